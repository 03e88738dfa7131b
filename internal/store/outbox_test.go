package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOutboxRepo_EnqueueClaimSend(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		id1, err := s.EnqueueOutboxMessage("a@b.com", "recovery_attempt", `{"attempt_id":1}`, "attempt:1")
		if err != nil {
			t.Fatalf("EnqueueOutboxMessage failed: %v", err)
		}
		id2, err := s.EnqueueOutboxMessage("a@b.com", "recovery_attempt", `{"attempt_id":1}`, "attempt:1")
		if err != nil {
			t.Fatalf("EnqueueOutboxMessage (dup) failed: %v", err)
		}
		if id1 != id2 {
			t.Errorf("expected dedupe to return %q, got %q", id1, id2)
		}

		msgs, err := s.ClaimDueOutboxMessages(time.Now().Add(time.Second), 10)
		if err != nil {
			t.Fatalf("ClaimDueOutboxMessages failed: %v", err)
		}
		if len(msgs) != 1 || msgs[0].Status != OutboxStatusSending || msgs[0].Recipient != "a@b.com" {
			t.Fatalf("unexpected claim result: %+v", msgs)
		}

		again, _ := s.ClaimDueOutboxMessages(time.Now().Add(time.Second), 10)
		if len(again) != 0 {
			t.Errorf("claimed message should not be claimed twice, got %d", len(again))
		}

		if err := s.MarkOutboxMessageSent(id1); err != nil {
			t.Fatalf("MarkOutboxMessageSent failed: %v", err)
		}
		id3, _ := s.EnqueueOutboxMessage("a@b.com", "recovery_attempt", `{}`, "attempt:1")
		if id3 == id1 {
			t.Error("expected a new message once the previous one was sent")
		}
	})
}

func TestOutboxRepo_FailSchedulesRetry(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		id, _ := s.EnqueueOutboxMessage("+15551234567", "recovery_attempt", `{}`, "")
		now := time.Now()
		if _, err := s.ClaimDueOutboxMessages(now.Add(time.Second), 10); err != nil {
			t.Fatalf("ClaimDueOutboxMessages failed: %v", err)
		}
		if err := s.FailOutboxMessage(id, "boom", now.Add(time.Hour)); err != nil {
			t.Fatalf("FailOutboxMessage failed: %v", err)
		}
		due, _ := s.ClaimDueOutboxMessages(now.Add(time.Minute), 10)
		if len(due) != 0 {
			t.Errorf("retry should not be due yet, got %d", len(due))
		}
		due, _ = s.ClaimDueOutboxMessages(now.Add(2*time.Hour), 10)
		if len(due) != 1 || due[0].Attempts != 1 || due[0].LastError != "boom" {
			t.Errorf("expected retry with one recorded attempt, got %+v", due)
		}
	})
}

func TestOutboxRepo_RequeueStale(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		s.EnqueueOutboxMessage("a@b.com", "recovery_attempt", `{}`, "")
		msgs, err := s.ClaimDueOutboxMessages(time.Now().Add(time.Second), 10)
		if err != nil || len(msgs) != 1 {
			t.Fatalf("expected one claimed message, got %d (%v)", len(msgs), err)
		}
		n, err := s.RequeueStaleSendingMessages(time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("RequeueStaleSendingMessages failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 requeued, got %d", n)
		}
	})
}

func TestDedupRepo(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		dup, err := s.IsDuplicate("conv:1:msg-a")
		if err != nil || dup {
			t.Fatalf("IsDuplicate = %v, %v", dup, err)
		}
		first, err := s.RecordInbound("conv:1:msg-a", "conv:1")
		if err != nil || !first {
			t.Fatalf("RecordInbound = %v, %v", first, err)
		}
		second, err := s.RecordInbound("conv:1:msg-a", "conv:1")
		if err != nil || second {
			t.Errorf("expected duplicate on second record, got %v, %v", second, err)
		}
		if err := s.MarkProcessed("conv:1:msg-a"); err != nil {
			t.Errorf("MarkProcessed failed: %v", err)
		}
		dup, _ = s.IsDuplicate("conv:1:msg-a")
		if !dup {
			t.Error("expected IsDuplicate true after record")
		}
		if err := s.ReleaseInbound("conv:1:msg-a"); err != nil {
			t.Fatalf("ReleaseInbound failed: %v", err)
		}
		if dup, _ = s.IsDuplicate("conv:1:msg-a"); !dup {
			t.Error("expected a processed record to survive release")
		}

		if _, err := s.RecordInbound("conv:1:msg-b", "conv:1"); err != nil {
			t.Fatalf("RecordInbound = %v", err)
		}
		if err := s.ReleaseInbound("conv:1:msg-b"); err != nil {
			t.Fatalf("ReleaseInbound failed: %v", err)
		}
		again, err := s.RecordInbound("conv:1:msg-b", "conv:1")
		if err != nil || !again {
			t.Errorf("expected an unprocessed record to be released, got %v, %v", again, err)
		}
	})
}

func TestOutboxSender_DeliversAndGivesUp(t *testing.T) {
	s := NewInMemoryStore()
	okID, _ := s.EnqueueOutboxMessage("ok@b.com", "recovery_attempt", `{}`, "")
	badID, _ := s.EnqueueOutboxMessage("bad@b.com", "recovery_attempt", `{}`, "")

	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error {
		if msg.Recipient == "bad@b.com" {
			return errors.New("provider down")
		}
		return nil
	}, time.Millisecond)
	sender.maxAttempts = 2

	sender.poll(context.Background())
	statuses := map[string]OutboxStatus{}
	for _, m := range s.OutboxMessages() {
		statuses[m.ID] = m.Status
	}
	if statuses[okID] != OutboxStatusSent {
		t.Errorf("expected ok message sent, got %s", statuses[okID])
	}
	if statuses[badID] != OutboxStatusQueued {
		t.Errorf("expected failed message requeued, got %s", statuses[badID])
	}

	// Force the retry due and poll again; second failure reaches maxAttempts.
	s.mu.Lock()
	m := s.outbox[badID]
	past := time.Now().Add(-time.Minute)
	m.NextAttemptAt = &past
	s.outbox[badID] = m
	s.mu.Unlock()

	sender.poll(context.Background())
	for _, m := range s.OutboxMessages() {
		if m.ID == badID && m.Status != OutboxStatusFailed {
			t.Errorf("expected message marked failed after max attempts, got %s (attempts=%d)", m.Status, m.Attempts)
		}
	}
}
