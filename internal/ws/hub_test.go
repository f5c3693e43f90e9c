package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatter/internal/chat"
	"chatter/internal/models"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOracle struct {
	members map[string]map[string]bool // groupId -> userId
	err     error
}

func (f *fakeOracle) IsMember(_ context.Context, groupId, userId string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[groupId][userId], nil
}

func newTestHub(t *testing.T, oracle MembershipOracle) *Hub {
	t.Helper()
	hub := NewHub(oracle)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func testClient(t *testing.T, hub *Hub, connId, userId string) *Client {
	t.Helper()
	c := newClient(nil, nil, connId, models.Identity{UserId: userId, Username: userId})
	require.NoError(t, hub.Register(c))
	return c
}

func recv(t *testing.T, c *Client) models.Event {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var ev models.Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.connId)
		return models.Event{}
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected frame for %s: %s", c.connId, payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func groupOracle() *fakeOracle {
	return &fakeOracle{members: map[string]map[string]bool{
		"g1": {"alice": true, "bob": true},
	}}
}

func TestHub_JoinRequiresMembership(t *testing.T) {
	hub := newTestHub(t, groupOracle())
	alice := testClient(t, hub, "c-alice", "alice")
	carol := testClient(t, hub, "c-carol", "carol")

	require.NoError(t, hub.Join(context.Background(), alice, "g1"))
	assert.True(t, hub.InRoom(alice, "g1"))

	err := hub.Join(context.Background(), carol, "g1")
	assert.ErrorIs(t, err, chat.ErrNotAMember)
	assert.False(t, hub.InRoom(carol, "g1"))
	assert.Equal(t, 1, hub.RoomClientCount("g1"))
}

func TestHub_JoinOracleFailure(t *testing.T) {
	hub := newTestHub(t, &fakeOracle{err: errors.New("db down")})
	alice := testClient(t, hub, "c-alice", "alice")

	assert.ErrorIs(t, hub.Join(context.Background(), alice, "g1"), chat.ErrPersistence)
}

func TestHub_BroadcastToGroupWithExclude(t *testing.T) {
	hub := newTestHub(t, groupOracle())
	alice := testClient(t, hub, "c-alice", "alice")
	bob := testClient(t, hub, "c-bob", "bob")
	outsider := testClient(t, hub, "c-out", "carol")

	require.NoError(t, hub.Join(context.Background(), alice, "g1"))
	require.NoError(t, hub.Join(context.Background(), bob, "g1"))

	hub.BroadcastToGroup("g1", models.EventUserTyping, models.TypingData{GroupId: "g1", UserId: "alice"}, alice.connId)

	ev := recv(t, bob)
	assert.Equal(t, models.EventUserTyping, ev.Type)
	assert.Equal(t, "g1", ev.GroupId)
	assertNothing(t, alice)
	assertNothing(t, outsider)

	hub.BroadcastToGroup("g1", models.EventGroupMessage, "hi", "")
	assert.Equal(t, models.EventGroupMessage, recv(t, alice).Type)
	assert.Equal(t, models.EventGroupMessage, recv(t, bob).Type)
}

func TestHub_LeaveAndUnregister(t *testing.T) {
	hub := newTestHub(t, groupOracle())
	alice := testClient(t, hub, "c-alice", "alice")
	bob := testClient(t, hub, "c-bob", "bob")
	require.NoError(t, hub.Join(context.Background(), alice, "g1"))
	require.NoError(t, hub.Join(context.Background(), bob, "g1"))

	hub.Leave(bob, "g1")
	hub.Leave(bob, "g1")
	assert.False(t, hub.InRoom(bob, "g1"))

	hub.BroadcastToGroup("g1", models.EventGroupMessage, "hi", "")
	recv(t, alice)
	assertNothing(t, bob)

	hub.Unregister(alice)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.RoomClientCount("g1"))

	_, ok := <-alice.send
	assert.False(t, ok, "send channel is closed on unregister")

	assert.ErrorIs(t, hub.Join(context.Background(), alice, "g1"), ErrNotConnected)
}

func TestHub_BroadcastAllAndSendTo(t *testing.T) {
	hub := newTestHub(t, groupOracle())
	alice := testClient(t, hub, "c-alice", "alice")
	bob := testClient(t, hub, "c-bob", "bob")

	hub.BroadcastAll(models.EventServerMessage, models.ServerMessageData{Sender: "Server", Content: "maintenance"})
	assert.Equal(t, models.EventServerMessage, recv(t, alice).Type)
	assert.Equal(t, models.EventServerMessage, recv(t, bob).Type)

	hub.SendTo(alice, models.Event{Type: models.EventAck, Ack: "a1"})
	ev := recv(t, alice)
	assert.Equal(t, "a1", ev.Ack)
	assert.NotZero(t, ev.Timestamp)
	assertNothing(t, bob)
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := newTestHub(t, groupOracle())
	slow := testClient(t, hub, "c-slow", "alice")
	require.NoError(t, hub.Join(context.Background(), slow, "g1"))

	for i := 0; i < sendBufferSize+1; i++ {
		hub.BroadcastToGroup("g1", models.EventGroupMessage, i, "")
	}

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.RoomClientCount("g1"))

	// unregistering after the drop is a no-op
	hub.Unregister(slow)
}

type fakeRelay struct {
	hub      *Hub
	messages chan *models.BroadcastMessage
	err      error
}

func (r *fakeRelay) Publish(_ context.Context, msg *models.BroadcastMessage) error {
	if r.err != nil {
		return r.err
	}
	r.messages <- msg
	r.hub.Deliver(msg)
	return nil
}

func TestHub_Relay(t *testing.T) {
	hub := NewHub(groupOracle())
	relay := &fakeRelay{hub: hub, messages: make(chan *models.BroadcastMessage, 1)}
	hub.SetRelay(relay)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	alice := testClient(t, hub, "c-alice", "alice")
	require.NoError(t, hub.Join(context.Background(), alice, "g1"))

	hub.BroadcastToGroup("g1", models.EventGroupMessage, "hi", "c-other")
	published := <-relay.messages
	assert.Equal(t, "g1", published.GroupId)
	assert.Equal(t, "c-other", published.Exclude)
	assert.Equal(t, models.EventGroupMessage, recv(t, alice).Type)

	relay.err = errors.New("redis down")
	hub.BroadcastToGroup("g1", models.EventGroupMessage, "again", "")
	assert.Equal(t, models.EventGroupMessage, recv(t, alice).Type, "falls back to local delivery")
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(groupOracle())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	alice := testClient(t, hub, "c-alice", "alice")
	cancel()
	<-done

	_, ok := <-alice.send
	assert.False(t, ok)
	assert.ErrorIs(t, hub.Register(newClient(nil, nil, "late", models.Identity{})), ErrHubClosed)

	// does not block once the loop is gone
	hub.Unregister(alice)
	hub.BroadcastAll(models.EventServerMessage, "x")
}

func TestHub_RegisterAfterCloseAllIsRejected(t *testing.T) {
	hub := NewHub(groupOracle())
	alice := newClient(nil, nil, "c-alice", models.Identity{UserId: "alice"})
	require.NoError(t, hub.Register(alice))

	// the loop has closed every client but not yet signalled done
	hub.closeAll()

	_, ok := <-alice.send
	assert.False(t, ok)

	late := newClient(nil, nil, "late", models.Identity{UserId: "bob"})
	assert.ErrorIs(t, hub.Register(late), ErrHubClosed)
	assert.Equal(t, 0, hub.ClientCount())
}
