package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	recv   [][]byte
	fail   bool
	closed bool
	block  chan struct{} // non-nil: Send parks until this is closed
}

func (f *fakeSubscriber) Send(payload []byte) error {
	if f.block != nil {
		<-f.block
	}
	if f.fail {
		return errors.New("send failed")
	}
	f.mu.Lock()
	f.recv = append(f.recv, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSubscriber) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recv)
}

func (f *fakeSubscriber) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// waitFor polls cond until it holds or the deadline passes. Delivery is
// asynchronous (each subscriber drains on its own writer goroutine), so
// tests observe effects rather than assuming synchronous sends.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	h := New()
	sub := &fakeSubscriber{}

	n := h.Subscribe("cam-1", sub)
	require.Equal(t, 1, n)

	h.BroadcastStatus("cam-1", "connected")

	waitFor(t, func() bool { return sub.received() == 1 })
	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Contains(t, string(sub.recv[0]), "connected")
}

func TestHub_FailedSendDisconnectsSubscriber(t *testing.T) {
	h := New()
	good := &fakeSubscriber{}
	bad := &fakeSubscriber{fail: true}
	h.Subscribe("cam-1", good)
	h.Subscribe("cam-1", bad)

	h.BroadcastStatus("cam-1", "tick")

	waitFor(t, func() bool { return h.Count("cam-1") == 1 })
	waitFor(t, func() bool { return bad.isClosed() })
	waitFor(t, func() bool { return good.received() == 1 })
}

func TestHub_UnsubscribeReturnsRemainingCount(t *testing.T) {
	h := New()
	a := &fakeSubscriber{}
	b := &fakeSubscriber{}
	h.Subscribe("cam-1", a)
	h.Subscribe("cam-1", b)

	remaining := h.Unsubscribe("cam-1", a)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, 1, h.Count("cam-1"))
	assert.False(t, a.isClosed(), "explicit unsubscribe leaves closing the transport to its owner")
}

// TestHub_IndependentCameras: cameras don't interfere and
// a slow/failing subscriber on one camera never affects another.
func TestHub_IndependentCameras(t *testing.T) {
	h := New()
	s1 := &fakeSubscriber{}
	s2 := &fakeSubscriber{}
	h.Subscribe("cam-1", s1)
	h.Subscribe("cam-2", s2)

	h.BroadcastStatus("cam-1", "only-cam-1")

	waitFor(t, func() bool { return s1.received() == 1 })
	assert.Equal(t, 0, s2.received())
}

// TestHub_StalledSubscriberDoesNotBlockBroadcastOrOthers: a subscriber
// whose transport never completes a write must not stall Broadcast (the
// pipeline's goroutine) or delivery to the camera's other subscribers.
func TestHub_StalledSubscriberDoesNotBlockBroadcastOrOthers(t *testing.T) {
	h := New()
	stalled := &fakeSubscriber{block: make(chan struct{})}
	healthy := &fakeSubscriber{}
	h.Subscribe("cam-1", stalled)
	h.Subscribe("cam-1", healthy)

	start := time.Now()
	for i := 0; i < 10; i++ {
		h.BroadcastStatus("cam-1", "tick")
	}
	require.Less(t, time.Since(start), time.Second,
		"broadcast must enqueue and return, not wait on the stalled transport")

	waitFor(t, func() bool { return healthy.received() == 10 })

	close(stalled.block)
}

// TestHub_LaggingSubscriberIsDisconnected: once a subscriber's outbox
// overflows it is dropped and closed; the rest of the camera's set is
// untouched.
func TestHub_LaggingSubscriberIsDisconnected(t *testing.T) {
	h := New()
	stalled := &fakeSubscriber{block: make(chan struct{})}
	healthy := &fakeSubscriber{}
	h.Subscribe("cam-1", stalled)
	h.Subscribe("cam-1", healthy)

	// One message may be held by the stalled writer goroutine itself, so
	// overflow needs outboxDepth+2 total in flight.
	for i := 0; i < outboxDepth+2; i++ {
		h.BroadcastStatus("cam-1", "tick")
	}

	waitFor(t, func() bool { return h.Count("cam-1") == 1 })
	waitFor(t, func() bool { return stalled.isClosed() })
	waitFor(t, func() bool { return healthy.received() == outboxDepth+2 })

	close(stalled.block)
}

// TestHub_PerSubscriberOrderPreserved: the single writer goroutine per
// subscriber keeps messages in broadcast order.
func TestHub_PerSubscriberOrderPreserved(t *testing.T) {
	h := New()
	sub := &fakeSubscriber{}
	h.Subscribe("cam-1", sub)

	h.BroadcastStatus("cam-1", "first")
	h.BroadcastStatus("cam-1", "second")
	h.BroadcastStatus("cam-1", "third")

	waitFor(t, func() bool { return sub.received() == 3 })
	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Contains(t, string(sub.recv[0]), "first")
	assert.Contains(t, string(sub.recv[1]), "second")
	assert.Contains(t, string(sub.recv[2]), "third")
}
