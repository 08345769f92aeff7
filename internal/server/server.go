package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/telmele/pictochat-touchgrass/internal/broker"
	"github.com/telmele/pictochat-touchgrass/internal/server/middleware"
	"github.com/telmele/pictochat-touchgrass/internal/session"
	"github.com/telmele/pictochat-touchgrass/pkg/config"
	"github.com/telmele/pictochat-touchgrass/pkg/state"
	"github.com/telmele/pictochat-touchgrass/pkg/state/statemanager"
	"github.com/telmele/pictochat-touchgrass/pkg/transport"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	broker       *broker.Broker
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	stateManager := statemanager.NewInMemoryManager(logger, cfg.Rooms, cfg.Broker.HistoryLimit)
	msgBroker := broker.New(logger, stateManager, cfg.Broker, cfg.Identity.TripcodeSecret)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		broker:       msgBroker,
		config:       cfg,
		ctx:          rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	// Cycling closes the oldest connection for the IP to make room.
	connCycler := func(ip string) {
		if oldest, found := stateManager.FindOldestConnectionForIP(ip); found {
			logger.Info("Cycling connection: closing oldest",
				slog.String("ip", ip),
				slog.String("connID", oldest.ID.String()),
			)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewConnectionLimiter(
				logger,
				stateManager.ConnectionCountForIP,
				connCycler,
				app.config.Server.ConnectionLimit,
			),
		),
	)

	app.http = &http.Server{
		Addr:    app.config.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.Config{ReadLimit: a.config.Transport.ReadLimit},
		nil,
		nil,
		a.logger,
	)
	if _, err := a.stateManager.RegisterConnection(conn, reqMeta.IP); err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}

	sess := session.New(conn, a.broker, session.Config{
		HandshakeTimeout: a.config.Session.HandshakeTimeout,
		PingInterval:     a.config.Session.PingInterval,
		PongGrace:        a.config.Session.PongGrace,
	}, connLogger)
	conn.SetOnMessageHandler(sess.HandleFrame)
	conn.SetOnCloseHandler(sess.HandleClose)

	connLogger.Info("Connection fully established", slog.String("connID", conn.ID().String()))
	conn.Run()
	sess.Start()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.Connections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
