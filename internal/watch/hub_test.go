package watch

import (
	"context"
	"testing"
	"time"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub[int]()
	defer hub.Close()

	first, cancelFirst := hub.Subscribe(context.Background())
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe(context.Background())
	defer cancelSecond()

	hub.Publish(42)

	for name, stream := range map[string]<-chan int{"first": first, "second": second} {
		select {
		case value := <-stream:
			if value != 42 {
				t.Fatalf("%s subscriber received %d, want 42", name, value)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber received nothing", name)
		}
	}
}

func TestHubPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub[int]()
	defer hub.Close()

	_, cancel := hub.Subscribe(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*4; i++ {
			hub.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on an undrained subscriber")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub[string]()
	defer hub.Close()

	stream, cancel := hub.Subscribe(context.Background())
	cancel()

	if _, open := <-stream; open {
		t.Fatalf("expected channel to close after unsubscribe")
	}
}

func TestHubContextCancellationUnsubscribes(t *testing.T) {
	hub := NewHub[string]()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, _ := hub.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-stream:
			if !open {
				return
			}
		case <-deadline:
			t.Fatalf("subscriber channel never closed after context cancellation")
		}
	}
}

func TestHubSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	hub := NewHub[int]()
	hub.Close()

	stream, cleanup := hub.Subscribe(context.Background())
	defer cleanup()

	if _, open := <-stream; open {
		t.Fatalf("expected closed channel from closed hub")
	}
	hub.Publish(1)
}
