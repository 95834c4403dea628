package lifecycle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(EventVisible)
	assert.Equal(t, EventVisible, <-ch)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublishDuringSubscriberChurn(t *testing.T) {
	b := NewBus()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(EventFocus)
			}
		}
	}()

	// Subscribers come and go while the publisher runs; no send may
	// land on a closed channel.
	for i := 0; i < 500; i++ {
		ch := b.Subscribe()
		b.Unsubscribe(ch)
	}

	close(stop)
	wg.Wait()
}
