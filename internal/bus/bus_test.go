package bus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mwhitaker/conclave/pkg/models"
)

func TestSendDeliversToSubscriber(t *testing.T) {
	b := New()

	var got []models.Message
	b.Subscribe("coder", func(m models.Message) {
		got = append(got, m)
	})

	sent := b.Send("reader", "coder", "analyze x", models.MessageMeta{})

	if len(got) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(got))
	}
	if got[0].ID != sent.ID {
		t.Errorf("delivered message ID %q does not match sent %q", got[0].ID, sent.ID)
	}
	if got[0].Kind != models.KindRequest {
		t.Errorf("expected kind %q, got %q", models.KindRequest, got[0].Kind)
	}
}

func TestSendNotDeliveredToOtherAgents(t *testing.T) {
	b := New()

	delivered := false
	b.Subscribe("reviewer", func(m models.Message) {
		delivered = true
	})

	b.Send("reader", "coder", "analyze x", models.MessageMeta{})

	if delivered {
		t.Error("message addressed to coder was delivered to reviewer")
	}
}

func TestBroadcastDeliveredToAll(t *testing.T) {
	b := New()

	counts := make(map[string]int)
	b.Subscribe("coder", func(m models.Message) { counts["coder"]++ })
	b.Subscribe("reviewer", func(m models.Message) { counts["reviewer"]++ })
	b.SubscribeBroadcast(func(m models.Message) { counts["broadcast"]++ })

	b.Broadcast("coordinator", "session starting", models.MessageMeta{})

	for _, name := range []string{"coder", "reviewer", "broadcast"} {
		if counts[name] != 1 {
			t.Errorf("expected %s to receive 1 message, got %d", name, counts[name])
		}
	}
}

func TestBroadcastOnlySubscriberSkipsDirectMessages(t *testing.T) {
	b := New()

	count := 0
	b.SubscribeBroadcast(func(m models.Message) { count++ })

	b.Send("reader", "coder", "direct", models.MessageMeta{})
	b.Broadcast("reader", "to everyone", models.MessageMeta{})

	if count != 1 {
		t.Errorf("expected broadcast-only subscriber to see 1 message, got %d", count)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	count := 0
	unsub := b.Subscribe("coder", func(m models.Message) { count++ })

	b.Send("reader", "coder", "first", models.MessageMeta{})
	unsub()
	b.Send("reader", "coder", "second", models.MessageMeta{})

	if count != 1 {
		t.Errorf("expected 1 delivery after unsubscribe, got %d", count)
	}
}

func TestHistoryRecordedBeforeNotify(t *testing.T) {
	b := New()

	var seenInHistory bool
	b.Subscribe("coder", func(m models.Message) {
		// The message being delivered must already be in history.
		for _, h := range b.History() {
			if h.ID == m.ID {
				seenInHistory = true
			}
		}
	})

	b.Send("reader", "coder", "check history", models.MessageMeta{})

	if !seenInHistory {
		t.Error("message was not in history at notification time")
	}
}

func TestHandlerPanicDoesNotInterruptOthers(t *testing.T) {
	b := New()

	delivered := false
	b.Subscribe("coder", func(m models.Message) {
		panic("handler failure")
	})
	b.Subscribe("coder", func(m models.Message) {
		delivered = true
	})

	b.Send("reader", "coder", "survive panic", models.MessageMeta{})

	if !delivered {
		t.Error("second handler was not invoked after first panicked")
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	b := NewWithCapacity(3)

	for i := 0; i < 5; i++ {
		b.Send("reader", "coder", fmt.Sprintf("msg-%d", i), models.MessageMeta{})
	}

	history := b.History()
	if len(history) != 3 {
		t.Fatalf("expected history of 3, got %d", len(history))
	}
	if history[0].Content != "msg-2" {
		t.Errorf("expected oldest retained message msg-2, got %q", history[0].Content)
	}
	if history[2].Content != "msg-4" {
		t.Errorf("expected newest message msg-4, got %q", history[2].Content)
	}
}

func TestGetHistoryFilter(t *testing.T) {
	b := New()

	b.Send("reader", "coder", "a", models.MessageMeta{})
	b.Send("coder", "reviewer", "b", models.MessageMeta{})
	b.Broadcast("coordinator", "c", models.MessageMeta{})

	fromReader := b.GetHistory(HistoryFilter{From: "reader"})
	if len(fromReader) != 1 || fromReader[0].Content != "a" {
		t.Errorf("expected 1 message from reader, got %d", len(fromReader))
	}

	broadcasts := b.GetHistory(HistoryFilter{Kind: models.KindBroadcast})
	if len(broadcasts) != 1 || broadcasts[0].Content != "c" {
		t.Errorf("expected 1 broadcast, got %d", len(broadcasts))
	}
}

func TestWaitForReply(t *testing.T) {
	b := New()

	original := b.Send("reader", "coder", "analyze x", models.MessageMeta{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Reply(original, "coder", "analysis done")
	}()

	reply, err := b.WaitForReply(context.Background(), original.ID, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Meta.ReplyTo != original.ID {
		t.Errorf("expected reply_to %q, got %q", original.ID, reply.Meta.ReplyTo)
	}
	if reply.To != "reader" {
		t.Errorf("expected reply addressed to reader, got %q", reply.To)
	}
	if reply.Kind != models.KindResponse {
		t.Errorf("expected kind %q, got %q", models.KindResponse, reply.Kind)
	}
}

func TestWaitForReplyTimeout(t *testing.T) {
	b := New()

	_, err := b.WaitForReply(context.Background(), "nonexistent", 20*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("expected ErrWaitTimeout, got %v", err)
	}
}

func TestWaitForMessagePredicate(t *testing.T) {
	b := New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Send("reader", "coder", "ignored", models.MessageMeta{})
		b.Send("reader", "coder", "wanted", models.MessageMeta{})
	}()

	msg, err := b.WaitForMessage(context.Background(), func(m models.Message) bool {
		return m.Content == "wanted"
	}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "wanted" {
		t.Errorf("expected content %q, got %q", "wanted", msg.Content)
	}
}

func TestWaitForMessageContextCancelled(t *testing.T) {
	b := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.WaitForMessage(ctx, func(models.Message) bool { return true }, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLoadHistoryTrimsToCapacity(t *testing.T) {
	b := NewWithCapacity(2)

	msgs := []models.Message{
		{ID: "1", Content: "a"},
		{ID: "2", Content: "b"},
		{ID: "3", Content: "c"},
	}
	b.LoadHistory(msgs)

	history := b.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 retained messages, got %d", len(history))
	}
	if history[0].ID != "2" {
		t.Errorf("expected oldest retained ID 2, got %q", history[0].ID)
	}
}
