package presence

import (
	"testing"

	"chatter/internal/models"

	"github.com/stretchr/testify/assert"
)

var (
	alice = models.Identity{UserId: "u-alice", Username: "alice"}
	bob   = models.Identity{UserId: "u-bob", Username: "bob"}
)

func TestTypingTracker_StartIsIdempotent(t *testing.T) {
	tr := NewTypingTracker()

	ev, ok := tr.StartTyping("g1", alice)
	assert.True(t, ok)
	assert.Equal(t, models.TypingData{GroupId: "g1", UserId: alice.UserId, Username: "alice"}, ev)

	_, ok = tr.StartTyping("g1", alice)
	assert.False(t, ok)
	assert.Len(t, tr.ListTyping("g1"), 1)
}

func TestTypingTracker_Stop(t *testing.T) {
	tr := NewTypingTracker()
	tr.StartTyping("g1", alice)
	tr.StartTyping("g1", bob)

	ev, ok := tr.StopTyping("g1", alice.UserId)
	assert.True(t, ok)
	assert.Equal(t, models.TypingStoppedData{GroupId: "g1", UserId: alice.UserId}, ev)
	assert.Equal(t, []models.TypingUser{{UserId: bob.UserId, Username: "bob"}}, tr.ListTyping("g1"))

	_, ok = tr.StopTyping("g1", alice.UserId)
	assert.False(t, ok, "stopping a user who is not typing emits nothing")

	_, ok = tr.StopTyping("unknown", alice.UserId)
	assert.False(t, ok)
}

func TestTypingTracker_OnDisconnect(t *testing.T) {
	tr := NewTypingTracker()
	tr.StartTyping("g2", alice)
	tr.StartTyping("g1", alice)
	tr.StartTyping("g1", bob)
	tr.StartTyping("g3", bob)

	events := tr.OnDisconnect(alice.UserId)
	assert.Equal(t, []models.TypingStoppedData{
		{GroupId: "g1", UserId: alice.UserId},
		{GroupId: "g2", UserId: alice.UserId},
	}, events)

	assert.Empty(t, tr.ListTyping("g2"))
	assert.Len(t, tr.ListTyping("g1"), 1)
	assert.Empty(t, tr.OnDisconnect(alice.UserId))
}

func TestTypingTracker_ListTypingEmpty(t *testing.T) {
	tr := NewTypingTracker()
	users := tr.ListTyping("nobody")
	assert.NotNil(t, users)
	assert.Empty(t, users)
}
