package state_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telmele/pictochat-touchgrass/pkg/protocol"
	"github.com/telmele/pictochat-touchgrass/pkg/state"
)

func msgNamed(i int) *protocol.ChatMessage {
	return &protocol.ChatMessage{Player: protocol.Player{Name: fmt.Sprintf("m%d", i)}}
}

func TestHistoryKeepsMostRecent(t *testing.T) {
	h := state.NewHistory(50)
	for i := 0; i < 60; i++ {
		h.Append(msgNamed(i))
	}

	require.Equal(t, 50, h.Len())
	snap := h.Snapshot()
	require.Len(t, snap, 50)
	assert.Equal(t, "m10", snap[0].Player.Name, "oldest retained should be the 11th submitted")
	assert.Equal(t, "m59", snap[49].Player.Name)
}

func TestHistoryBelowCapacity(t *testing.T) {
	h := state.NewHistory(50)
	h.Append(msgNamed(0))
	h.Append(msgNamed(1))

	snap := h.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "m0", snap[0].Player.Name)
	assert.Equal(t, "m1", snap[1].Player.Name)
}

func TestHistorySnapshotOfEmpty(t *testing.T) {
	h := state.NewHistory(50)
	assert.Empty(t, h.Snapshot())
}

func TestColorForIsDeterministic24Bit(t *testing.T) {
	c := state.ColorFor("Alice")
	assert.Equal(t, c, state.ColorFor("Alice"))
	assert.GreaterOrEqual(t, c, 0)
	assert.LessOrEqual(t, c, 0xFFFFFF)
}
