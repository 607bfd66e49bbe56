package pipeline

import (
	"testing"
	"time"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe("u1")
	ch2, cancel2 := h.Subscribe("u1")
	chOther, cancelOther := h.Subscribe("u2")
	defer cancel1()
	defer cancel2()
	defer cancelOther()

	h.Publish(Event{UploadID: "u1", Stage: StageScan, Kind: EventProgress, Percent: 40})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Percent != 40 || ev.Kind != EventProgress {
				t.Errorf("subscriber %d got %+v", i, ev)
			}
			if ev.Time.IsZero() {
				t.Errorf("subscriber %d: event time not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}

	select {
	case ev := <-chOther:
		t.Errorf("cross-upload leak: %+v", ev)
	default:
	}
}

func TestHubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("u1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overflow the buffered channel; Publish must never block.
		for i := 0; i < 200; i++ {
			h.Publish(Event{UploadID: "u1", Kind: EventProgress, Percent: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("u1")
	cancel()
	cancel() // second call must not panic on the closed channel

	// Publishing after cancellation reaches nobody and must not panic.
	h.Publish(Event{UploadID: "u1", Kind: EventDone, Percent: 100})
}
