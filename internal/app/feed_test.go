package app_test

import (
	"context"
	"testing"
	"time"

	"eduquiz-ledger/internal/domain"
)

func collectEvent(t *testing.T, ch <-chan domain.FeedEvent) domain.FeedEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for feed event")
		return domain.FeedEvent{}
	}
}

func TestFeedPublishesLedgerEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ch, cancel := f.ledger.Subscribe()
	defer cancel()

	if err := f.ledger.GrantRole(ctx, admin, domain.RoleStudent, student1); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ev := collectEvent(t, ch)
	if ev.Kind != domain.FeedRoleGranted || ev.Account != student1 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.ID == "" || ev.At.IsZero() {
		t.Fatalf("event missing id or timestamp: %+v", ev)
	}

	quiz := f.createTestQuiz(t)
	ev = collectEvent(t, ch)
	if ev.Kind != domain.FeedQuizCreated || ev.Quiz == nil || *ev.Quiz != quiz.ID {
		t.Fatalf("unexpected event %+v", ev)
	}

	if _, err := f.ledger.JoinQuiz(ctx, student1, quiz.ID, entryFee); err != nil {
		t.Fatalf("join: %v", err)
	}
	ev = collectEvent(t, ch)
	if ev.Kind != domain.FeedQuizJoined || !ev.Amount.Equal(entryFee) {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestFeedCancelStopsDelivery(t *testing.T) {
	f := newFixture(t)

	ch, cancel := f.ledger.Subscribe()
	cancel()
	// Cancel is idempotent.
	cancel()

	if _, open := <-ch; open {
		t.Fatalf("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	f.createTestQuiz(t)
}

func TestFeedSlowSubscriberDropsOldest(t *testing.T) {
	f := newFixture(t)

	ch, cancel := f.ledger.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer without ever reading.
	for i := 0; i < 40; i++ {
		f.createTestQuiz(t)
	}

	// The newest event is still delivered; the publisher never blocked.
	var last domain.FeedEvent
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	if last.Kind != domain.FeedQuizCreated {
		t.Fatalf("expected a quizCreated event, got %+v", last)
	}
	if last.Quiz == nil || *last.Quiz != 39 {
		t.Fatalf("expected the newest event to survive, got quiz %v", last.Quiz)
	}
}
