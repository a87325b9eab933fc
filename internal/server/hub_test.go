package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startHub runs a fresh hub and stops it when the test ends.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, nil)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })
	return hub
}

// nextEvent reads the next frame queued for a connection-less client.
func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw, ok := <-c.GetSendChan():
		require.True(t, ok, "send channel closed")
		ev, err := DecodeEvent(raw)
		require.NoError(t, err)
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil, nil)
	require.NotNil(t, hub)
	assert.NotNil(t, hub.GetRegisterChan())
	assert.NotNil(t, hub.GetUnregisterChan())
	assert.NotNil(t, hub.GetBroadcastChan())
	assert.Empty(t, hub.ConnectedUsers())
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubJoinBroadcastsRegistry(t *testing.T) {
	hub := startHub(t)

	alice := NewClient(nil, hub, "alice", "test")
	require.True(t, hub.Register(alice))
	assert.Equal(t, JoinedEvent{Users: []string{"alice"}, ServerMsg: "alice has joined..."}, nextEvent(t, alice))

	bob := NewClient(nil, hub, "bob", "test")
	require.True(t, hub.Register(bob))

	want := JoinedEvent{Users: []string{"alice", "bob"}, ServerMsg: "bob has joined..."}
	assert.Equal(t, want, nextEvent(t, alice))
	assert.Equal(t, want, nextEvent(t, bob))
	assert.Equal(t, []string{"alice", "bob"}, hub.ConnectedUsers())
}

func TestHubLeaveRemovesByValue(t *testing.T) {
	hub := startHub(t)

	first := NewClient(nil, hub, "alice", "a1")
	bob := NewClient(nil, hub, "bob", "b")
	second := NewClient(nil, hub, "alice", "a2")
	for _, c := range []*Client{first, bob, second} {
		require.True(t, hub.Register(c))
	}
	// drain joins: bob saw two, second saw one
	for i := 0; i < 2; i++ {
		nextEvent(t, bob)
	}
	nextEvent(t, second)
	assert.Equal(t, []string{"alice", "bob", "alice"}, hub.ConnectedUsers())

	hub.GetUnregisterChan() <- second

	want := LeftEvent{Users: []string{"bob", "alice"}, ServerMsg: "alice has left ..."}
	assert.Equal(t, want, nextEvent(t, bob))
	assert.Equal(t, []string{"bob", "alice"}, hub.ConnectedUsers())

	_, ok := <-second.GetSendChan()
	assert.False(t, ok, "unregistered client's send channel must be closed")
}

func TestHubChatEchoesToSender(t *testing.T) {
	hub := startHub(t)

	alice := NewClient(nil, hub, "alice", "a")
	bob := NewClient(nil, hub, "bob", "b")
	require.True(t, hub.Register(alice))
	require.True(t, hub.Register(bob))
	nextEvent(t, alice)
	nextEvent(t, alice)
	nextEvent(t, bob)

	hub.GetBroadcastChan() <- BroadcastMessage{Sender: alice, Text: "hi"}

	assert.Equal(t, ChatEvent{Msg: "alice: hi"}, nextEvent(t, alice))
	assert.Equal(t, ChatEvent{Msg: "alice: hi"}, nextEvent(t, bob))
}

func TestHubDropsClientWithFullBuffer(t *testing.T) {
	hub := startHub(t)

	slow := NewClient(nil, hub, "slow", "s")
	fast := NewClient(nil, hub, "fast", "f")
	require.True(t, hub.Register(slow))
	require.True(t, hub.Register(fast))

	nextEvent(t, fast)

	// slow never drains; fast is read after every send so only slow overflows.
	var left []LeftEvent
	collect := func(ev Event) {
		if l, ok := ev.(LeftEvent); ok {
			left = append(left, l)
		}
	}
	for i := 0; i < sendBuffer+1; i++ {
		hub.GetBroadcastChan() <- BroadcastMessage{Sender: fast, Text: "flood"}
		collect(nextEvent(t, fast))
	}
	for len(left) == 0 {
		collect(nextEvent(t, fast))
	}

	require.Len(t, left, 1)
	assert.Equal(t, LeftEvent{Users: []string{"fast"}, ServerMsg: "slow has left ..."}, left[0])
	assert.Equal(t, []string{"fast"}, hub.ConnectedUsers())
}

func TestHubRegisterAfterShutdown(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	assert.False(t, hub.Register(NewClient(nil, hub, "late", "x")))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{}, r.Snapshot())

	r.Add("alice")
	r.Add("bob")
	r.Add("alice")
	assert.Equal(t, 3, r.Len())

	assert.True(t, r.RemoveFirst("alice"))
	assert.Equal(t, []string{"bob", "alice"}, r.Snapshot())
	assert.False(t, r.RemoveFirst("carol"))

	snap := r.Snapshot()
	snap[0] = "mutated"
	assert.Equal(t, []string{"bob", "alice"}, r.Snapshot())
}
