package statemanager_test

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telmele/pictochat-touchgrass/pkg/protocol"
	"github.com/telmele/pictochat-touchgrass/pkg/state"
	"github.com/telmele/pictochat-touchgrass/pkg/state/statemanager"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger(), []string{"room_a", "room_b"}, 50)
}

// fakeLink satisfies state.Link without a live websocket.
type fakeLink struct {
	id uuid.UUID
}

func newFakeLink() *fakeLink {
	return &fakeLink{id: uuid.New()}
}

func (l *fakeLink) ID() uuid.UUID { return l.id }
func (l *fakeLink) Send([]byte)   {}
func (l *fakeLink) Close(error)   {}

// register is shorthand for the common register-then-verify sequence.
func register(t *testing.T, m *statemanager.InMemoryManager, name string) *fakeLink {
	t.Helper()
	link := newFakeLink()
	_, err := m.RegisterConnection(link, "127.0.0.1")
	require.NoError(t, err)
	_, _, err = m.VerifyName(link.ID(), name)
	require.NoError(t, err)
	return link
}

// --- Connection lifecycle ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	link := newFakeLink()

	conn, err := m.RegisterConnection(link, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, link.ID(), conn.ID)

	_, err = m.RegisterConnection(link, "127.0.0.1")
	require.ErrorIs(t, err, state.ErrConnRegistered)

	got, found := m.GetConnection(link.ID())
	require.True(t, found)
	assert.Equal(t, conn, got)

	require.NoError(t, m.DeregisterConnection(link.ID()))
	_, found = m.GetConnection(link.ID())
	assert.False(t, found)

	// Deregistering twice is a no-op.
	require.NoError(t, m.DeregisterConnection(link.ID()))
}

func TestConnectionCountAndOldestPerIP(t *testing.T) {
	m := newTestManager()
	link1, link2, link3 := newFakeLink(), newFakeLink(), newFakeLink()

	_, err := m.RegisterConnection(link1, "1.1.1.1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond) // Ensure timestamps differ
	_, err = m.RegisterConnection(link2, "1.1.1.1")
	require.NoError(t, err)
	_, err = m.RegisterConnection(link3, "2.2.2.2")
	require.NoError(t, err)

	assert.Equal(t, 2, m.ConnectionCountForIP("1.1.1.1"))
	assert.Equal(t, 1, m.ConnectionCountForIP("2.2.2.2"))
	assert.Equal(t, 0, m.ConnectionCountForIP("3.3.3.3"))

	oldest, found := m.FindOldestConnectionForIP("1.1.1.1")
	require.True(t, found)
	assert.Equal(t, link1.ID(), oldest.ID)

	_, found = m.FindOldestConnectionForIP("3.3.3.3")
	assert.False(t, found)
}

// --- Player registry ---

func TestVerifyName(t *testing.T) {
	m := newTestManager()
	link := newFakeLink()
	_, err := m.RegisterConnection(link, "127.0.0.1")
	require.NoError(t, err)

	player, _, err := m.VerifyName(link.ID(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", player.Name)
	assert.Equal(t, state.ColorFor("Alice"), player.Color)

	got, found := m.PlayerFor(link.ID())
	require.True(t, found)
	assert.Equal(t, player, got)
}

func TestVerifyNameRejectsEmptyAndUnknownConn(t *testing.T) {
	m := newTestManager()
	link := newFakeLink()
	_, err := m.RegisterConnection(link, "127.0.0.1")
	require.NoError(t, err)

	_, _, err = m.VerifyName(link.ID(), "")
	require.ErrorIs(t, err, state.ErrNameEmpty)

	_, _, err = m.VerifyName(uuid.New(), "Ghost")
	require.ErrorIs(t, err, state.ErrUnknownConn)
}

func TestVerifyNameConflict(t *testing.T) {
	m := newTestManager()
	register(t, m, "Alice")

	link2 := newFakeLink()
	_, err := m.RegisterConnection(link2, "127.0.0.1")
	require.NoError(t, err)

	_, _, err = m.VerifyName(link2.ID(), "Alice")
	require.ErrorIs(t, err, state.ErrNameTaken)

	// The failed claim must not mutate anything.
	_, found := m.PlayerFor(link2.ID())
	assert.False(t, found)
}

func TestVerifyNameConcurrentClaims(t *testing.T) {
	m := newTestManager()

	const claimers = 16
	links := make([]*fakeLink, claimers)
	for i := range links {
		links[i] = newFakeLink()
		_, err := m.RegisterConnection(links[i], "127.0.0.1")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = m.VerifyName(links[i].ID(), "Alice")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, state.ErrNameTaken)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent claim must win")
}

func TestReverifyReleasesOldName(t *testing.T) {
	m := newTestManager()
	link := register(t, m, "Alice")

	_, dep, err := m.VerifyName(link.ID(), "Alicia")
	require.NoError(t, err)
	assert.Nil(t, dep, "renaming outside a room is not a departure")

	// The old name is free again.
	other := newFakeLink()
	_, err = m.RegisterConnection(other, "127.0.0.1")
	require.NoError(t, err)
	_, _, err = m.VerifyName(other.ID(), "Alice")
	require.NoError(t, err)
}

func TestReverifyInRoomProducesDeparture(t *testing.T) {
	m := newTestManager()
	linkA := register(t, m, "Alice")
	linkB := register(t, m, "Bob")
	_, _, err := m.Join(linkA.ID(), "room_a")
	require.NoError(t, err)
	_, _, err = m.Join(linkB.ID(), "room_a")
	require.NoError(t, err)

	player, dep, err := m.VerifyName(linkB.ID(), "Robert")
	require.NoError(t, err)
	assert.Equal(t, "Robert", player.Name)
	require.NotNil(t, dep, "renaming inside a room must surface the leave")
	assert.Equal(t, "Bob", dep.Player.Name)
	assert.Equal(t, "room_a", dep.RoomID)
	require.Len(t, dep.Remaining, 1)
	assert.Equal(t, "Alice", dep.Remaining[0].Name)

	// The new identity starts outside any room.
	assert.Nil(t, player.Room)
	assert.Equal(t, 1, m.Rooms()[0].Occupants)
}

func TestNameFreedOnDeregister(t *testing.T) {
	m := newTestManager()
	link := register(t, m, "Alice")
	require.NoError(t, m.DeregisterConnection(link.ID()))

	register(t, m, "Alice") // would fail if the name leaked
}

// --- Room registry ---

func TestRoomsDeclarationOrderAndOccupancy(t *testing.T) {
	m := statemanager.NewInMemoryManager(newTestLogger(), []string{"zeta", "alpha", "mu"}, 50)

	linkA := newFakeLink()
	_, err := m.RegisterConnection(linkA, "127.0.0.1")
	require.NoError(t, err)
	_, _, err = m.VerifyName(linkA.ID(), "Alice")
	require.NoError(t, err)
	_, _, err = m.Join(linkA.ID(), "alpha")
	require.NoError(t, err)

	infos := m.Rooms()
	require.Len(t, infos, 3)
	assert.Equal(t, []state.RoomInfo{
		{ID: "zeta", Occupants: 0},
		{ID: "alpha", Occupants: 1},
		{ID: "mu", Occupants: 0},
	}, infos)
}

func TestJoinRequiresVerifiedNameAndKnownRoom(t *testing.T) {
	m := newTestManager()
	link := newFakeLink()
	_, err := m.RegisterConnection(link, "127.0.0.1")
	require.NoError(t, err)

	_, _, err = m.Join(link.ID(), "room_a")
	require.ErrorIs(t, err, state.ErrNoPlayer)

	_, _, err = m.VerifyName(link.ID(), "Alice")
	require.NoError(t, err)
	_, _, err = m.Join(link.ID(), "room_z")
	require.ErrorIs(t, err, state.ErrUnknownRoom)

	// A failed join changes no membership.
	player, _ := m.PlayerFor(link.ID())
	assert.Nil(t, player.Room)
}

func TestJoinReportsExistingMembers(t *testing.T) {
	m := newTestManager()
	linkA := register(t, m, "Alice")
	linkB := register(t, m, "Bob")

	admA, depA, err := m.Join(linkA.ID(), "room_a")
	require.NoError(t, err)
	assert.Nil(t, depA)
	assert.Empty(t, admA.Others)

	admB, depB, err := m.Join(linkB.ID(), "room_a")
	require.NoError(t, err)
	assert.Nil(t, depB)
	require.Len(t, admB.Others, 1)
	assert.Equal(t, "Alice", admB.Others[0].Name)
}

func TestJoinAutoLeavesPreviousRoom(t *testing.T) {
	m := newTestManager()
	linkA := register(t, m, "Alice")
	linkB := register(t, m, "Bob")

	_, _, err := m.Join(linkA.ID(), "room_a")
	require.NoError(t, err)
	_, _, err = m.Join(linkB.ID(), "room_a")
	require.NoError(t, err)

	adm, dep, err := m.Join(linkB.ID(), "room_b")
	require.NoError(t, err)
	require.NotNil(t, dep, "switching rooms must produce a departure")
	assert.Equal(t, "room_a", dep.RoomID)
	require.Len(t, dep.Remaining, 1)
	assert.Equal(t, "Alice", dep.Remaining[0].Name)
	assert.Equal(t, "room_b", adm.Room.ID)

	// A player is never in two rooms at once.
	player, _ := m.PlayerFor(linkB.ID())
	assert.Equal(t, "room_b", player.Room.ID)
	infos := m.Rooms()
	assert.Equal(t, 1, infos[0].Occupants)
	assert.Equal(t, 1, infos[1].Occupants)
}

func TestRejoinSameRoomIsNotADeparture(t *testing.T) {
	m := newTestManager()
	link := register(t, m, "Alice")

	_, _, err := m.Join(link.ID(), "room_a")
	require.NoError(t, err)
	adm, dep, err := m.Join(link.ID(), "room_a")
	require.NoError(t, err)
	assert.Nil(t, dep)
	assert.Equal(t, "room_a", adm.Room.ID)
	assert.Equal(t, 1, m.Rooms()[0].Occupants)
}

func TestLeaveIsIdempotent(t *testing.T) {
	m := newTestManager()
	link := register(t, m, "Alice")
	_, _, err := m.Join(link.ID(), "room_a")
	require.NoError(t, err)

	dep, ok := m.Leave(link.ID())
	require.True(t, ok)
	assert.Equal(t, "room_a", dep.RoomID)

	_, ok = m.Leave(link.ID())
	assert.False(t, ok, "second leave must be a no-op")
	assert.Equal(t, 0, m.Rooms()[0].Occupants)
}

// --- Broadcast commit path ---

func TestSubmitStampsSenderAndResolvesRoom(t *testing.T) {
	m := newTestManager()
	linkA := register(t, m, "Alice")
	linkB := register(t, m, "Bob")
	_, _, err := m.Join(linkA.ID(), "room_a")
	require.NoError(t, err)
	_, _, err = m.Join(linkB.ID(), "room_a")
	require.NoError(t, err)

	msg := &protocol.ChatMessage{
		Player: protocol.Player{Name: "Mallory", Color: 0}, // ignored
		Lines:  1,
	}
	delivery, err := m.Submit(linkA.ID(), msg)
	require.NoError(t, err)
	assert.Equal(t, "Alice", delivery.Message.Player.Name)
	assert.Equal(t, state.ColorFor("Alice"), delivery.Message.Player.Color)
	assert.Equal(t, "room_a", delivery.RoomID)
	assert.Len(t, delivery.Members, 2, "fan-out is room-wide, sender included")
}

func TestSubmitRequiresRoom(t *testing.T) {
	m := newTestManager()
	link := register(t, m, "Alice")

	_, err := m.Submit(link.ID(), &protocol.ChatMessage{})
	require.ErrorIs(t, err, state.ErrNotInRoom)

	_, err = m.Submit(uuid.New(), &protocol.ChatMessage{})
	require.ErrorIs(t, err, state.ErrNoPlayer)
}

func TestSubmitHistoryBound(t *testing.T) {
	m := newTestManager()
	link := register(t, m, "Alice")
	_, _, err := m.Join(link.ID(), "room_a")
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		_, err := m.Submit(link.ID(), &protocol.ChatMessage{
			Textboxes: []protocol.Textbox{{Text: fmt.Sprintf("msg-%d", i)}},
		})
		require.NoError(t, err)
	}

	// A fresh joiner sees exactly the 50 most recent messages.
	other := register(t, m, "Bob")
	adm, _, err := m.Join(other.ID(), "room_a")
	require.NoError(t, err)
	require.Len(t, adm.History, 50)
	assert.Equal(t, "msg-10", adm.History[0].Textboxes[0].Text)
	assert.Equal(t, "msg-59", adm.History[49].Textboxes[0].Text)
}

func TestDeregisterCleansRoomMembership(t *testing.T) {
	m := newTestManager()
	link := register(t, m, "Alice")
	_, _, err := m.Join(link.ID(), "room_a")
	require.NoError(t, err)

	require.NoError(t, m.DeregisterConnection(link.ID()))
	assert.Equal(t, 0, m.Rooms()[0].Occupants,
		"no room may retain a player whose connection is gone")
	_, found := m.PlayerFor(link.ID())
	assert.False(t, found)
}
