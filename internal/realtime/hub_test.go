package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient collects delivered events; failSend simulates a client that
// cannot keep up.
type testClient struct {
	mu       sync.Mutex
	userID   int
	events   []Event
	failSend bool
	closed   bool
}

func (c *testClient) UserID() int { return c.userID }

func (c *testClient) Send(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *testClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *testClient) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestPublishReachesSubscribersOnly(t *testing.T) {
	hub := NewHub()
	a := &testClient{userID: 1}
	b := &testClient{userID: 2}
	hub.Add(a)
	hub.Add(b)
	hub.Subscribe(a, RoomChannel(10))

	hub.Publish(RoomChannel(10), Event{Event: EventMessage})

	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received())
}

func TestPublishExceptSkipsActor(t *testing.T) {
	hub := NewHub()
	a := &testClient{userID: 1}
	b := &testClient{userID: 2}
	hub.Add(a)
	hub.Add(b)
	hub.Subscribe(a, RoomChannel(10))
	hub.Subscribe(b, RoomChannel(10))

	hub.PublishExcept(RoomChannel(10), a, Event{Event: EventUserStatusUpdate})

	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
}

func TestSendToUserReachesEveryConnection(t *testing.T) {
	hub := NewHub()
	first := &testClient{userID: 1}
	second := &testClient{userID: 1}
	other := &testClient{userID: 2}
	hub.Add(first)
	hub.Add(second)
	hub.Add(other)

	hub.SendToUser(1, Event{Event: EventUnreadUpdate})

	assert.Len(t, first.received(), 1)
	assert.Len(t, second.received(), 1)
	assert.Empty(t, other.received())
}

func TestRemoveReportsLastConnection(t *testing.T) {
	hub := NewHub()
	first := &testClient{userID: 1}
	second := &testClient{userID: 1}
	hub.Add(first)
	hub.Add(second)
	require.True(t, hub.IsUserConnected(1))

	assert.False(t, hub.Remove(first), "one connection remains")
	assert.True(t, hub.IsUserConnected(1))
	assert.True(t, hub.Remove(second), "last connection gone")
	assert.False(t, hub.IsUserConnected(1))
}

func TestRemoveDropsAllSubscriptions(t *testing.T) {
	hub := NewHub()
	c := &testClient{userID: 1}
	hub.Add(c)
	hub.Subscribe(c, RoomChannel(10))
	hub.Subscribe(c, RoomChannel(20))
	hub.Remove(c)

	hub.Publish(RoomChannel(10), Event{Event: EventMessage})
	hub.Publish(RoomChannel(20), Event{Event: EventMessage})
	hub.Publish(UserChannel(1), Event{Event: EventUnreadUpdate})

	assert.Empty(t, c.received())
}

func TestSlowClientEvicted(t *testing.T) {
	hub := NewHub()
	slow := &testClient{userID: 1, failSend: true}
	ok := &testClient{userID: 2}
	hub.Add(slow)
	hub.Add(ok)
	hub.Subscribe(slow, RoomChannel(10))
	hub.Subscribe(ok, RoomChannel(10))

	hub.Publish(RoomChannel(10), Event{Event: EventMessage})

	assert.True(t, slow.closed)
	assert.False(t, hub.IsUserConnected(1))
	assert.Len(t, ok.received(), 1)

	// later publishes no longer see the evicted client
	hub.Publish(RoomChannel(10), Event{Event: EventMessage})
	assert.Len(t, ok.received(), 2)
}

func TestConcurrentPublishAndChurn(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &testClient{userID: i}
			hub.Add(c)
			hub.Subscribe(c, RoomChannel(1))
			hub.Publish(RoomChannel(1), Event{Event: EventMessage})
			hub.Remove(c)
		}(i)
	}
	wg.Wait()
	assert.False(t, hub.IsUserConnected(0))
}
