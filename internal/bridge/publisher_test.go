package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	id1, ch1 := p.Subscribe()
	id2, ch2 := p.Subscribe()
	defer p.Unsubscribe(id1)
	defer p.Unsubscribe(id2)

	p.Publish(Snapshot{Tick: 1, Distance: 63})

	for _, ch := range []chan Snapshot{ch1, ch2} {
		select {
		case s := <-ch:
			assert.Equal(t, 1, s.Tick)
			assert.Equal(t, 63.0, s.Distance)
		default:
			t.Fatal("subscriber did not receive the snapshot")
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	id, ch := p.Subscribe()
	defer p.Unsubscribe(id)

	// Far more publishes than the channel buffers: the excess is
	// dropped, the publisher never stalls.
	for i := 1; i <= 100; i++ {
		p.Publish(Snapshot{Tick: i})
	}

	assert.Equal(t, cap(ch), len(ch))
	first := <-ch
	assert.Equal(t, 1, first.Tick)

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, 100, latest.Tick)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	p.Publish(Snapshot{Tick: 7}) // must not panic or block

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, 7, latest.Tick)
}

func TestLatestEmpty(t *testing.T) {
	t.Parallel()

	_, ok := NewPublisher().Latest()
	assert.False(t, ok)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	id, ch := p.Subscribe()
	p.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	p.Unsubscribe(id)
}

func TestCloseUnblocksReaders(t *testing.T) {
	t.Parallel()

	p := NewPublisher()
	_, ch := p.Subscribe()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	p.Close()
	<-done

	// After close, new subscribers get a closed channel immediately
	// and publishes are ignored.
	_, ch2 := p.Subscribe()
	_, open := <-ch2
	assert.False(t, open)
	p.Publish(Snapshot{Tick: 1})
}
