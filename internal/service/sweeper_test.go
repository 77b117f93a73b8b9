package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/import-engine/internal/queue"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

func TestNewStaleClaimSweeperValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewStaleClaimSweeper(nil, &recordingDispatcher{}, 0, 0, 0, zap.NewNop()); err == nil {
		t.Fatal("expected error when record repository is nil")
	}
	if _, err := NewStaleClaimSweeper(newMemRecordRepo(), nil, 0, 0, 0, zap.NewNop()); err == nil {
		t.Fatal("expected error when dispatcher is nil")
	}

	sweeper, err := NewStaleClaimSweeper(newMemRecordRepo(), &recordingDispatcher{}, 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewStaleClaimSweeper() error = %v", err)
	}
	if sweeper.interval != defaultSweepInterval || sweeper.limit != defaultSweepLimit {
		t.Fatalf("defaults = (%v, %d), want (%v, %d)", sweeper.interval, sweeper.limit, defaultSweepInterval, defaultSweepLimit)
	}
}

func TestStaleClaimSweeperSweepDispatchesCandidates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	records := newMemRecordRepo()
	records.sweepableFn = func(pendingBefore, staleBefore time.Time, limit int) ([]repository.SweepCandidate, error) {
		if !pendingBefore.Equal(now.Add(-defaultSweepPendingAge)) {
			t.Fatalf("pendingBefore = %v, want %v", pendingBefore, now.Add(-defaultSweepPendingAge))
		}
		if !staleBefore.Equal(now.Add(-5 * time.Second)) {
			t.Fatalf("staleBefore = %v, want %v", staleBefore, now.Add(-5*time.Second))
		}
		if limit != 50 {
			t.Fatalf("limit = %d, want 50", limit)
		}
		return []repository.SweepCandidate{
			{ImportBatchGUID: "b-1", RecordIndex: 0, OrgInternalName: "acme"},
			{ImportBatchGUID: "b-2", RecordIndex: 4, OrgInternalName: "globex"},
		}, nil
	}
	dispatcher := &recordingDispatcher{}

	sweeper, err := NewStaleClaimSweeper(records, dispatcher, time.Second, 5*time.Second, 50, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStaleClaimSweeper() error = %v", err)
	}
	sweeper.now = func() time.Time { return now }

	if err := sweeper.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	if len(dispatcher.messages) != 2 {
		t.Fatalf("dispatched = %d, want 2", len(dispatcher.messages))
	}
	second := dispatcher.messages[1]
	if second.ImportBatchGUID != "b-2" || second.RecordIndex != 4 || second.OrgInternalName != "globex" {
		t.Fatalf("message = %+v, want b-2#4 for globex", second)
	}
	if second.Trigger != queue.TriggerSweep {
		t.Fatalf("Trigger = %s, want sweep", second.Trigger)
	}
}

func TestStaleClaimSweeperSweepContinuesOnDispatchError(t *testing.T) {
	t.Parallel()

	records := newMemRecordRepo()
	records.sweepableFn = func(pendingBefore, staleBefore time.Time, limit int) ([]repository.SweepCandidate, error) {
		return []repository.SweepCandidate{
			{ImportBatchGUID: "b-1", RecordIndex: 0, OrgInternalName: "acme"},
			{ImportBatchGUID: "b-1", RecordIndex: 1, OrgInternalName: "acme"},
		}, nil
	}
	dispatcher := &recordingDispatcher{
		dispatchFn: func(ctx context.Context, msg queue.RecordMessage) error {
			if msg.RecordIndex == 0 {
				return errors.New("broker unavailable")
			}
			return nil
		},
	}

	sweeper, err := NewStaleClaimSweeper(records, dispatcher, time.Second, 0, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStaleClaimSweeper() error = %v", err)
	}

	if err := sweeper.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if len(dispatcher.messages) != 2 {
		t.Fatalf("dispatch attempts = %d, want 2", len(dispatcher.messages))
	}
}

func TestStaleClaimSweeperSweepRepositoryError(t *testing.T) {
	t.Parallel()

	records := newMemRecordRepo()
	records.sweepableFn = func(pendingBefore, staleBefore time.Time, limit int) ([]repository.SweepCandidate, error) {
		return nil, errors.New("db down")
	}

	sweeper, err := NewStaleClaimSweeper(records, &recordingDispatcher{}, time.Second, 0, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStaleClaimSweeper() error = %v", err)
	}

	if err := sweeper.sweep(context.Background()); err == nil {
		t.Fatal("expected sweep() error")
	}
}

func TestStaleClaimSweeperStartReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := newMemRecordRepo()
	records.sweepableFn = func(pendingBefore, staleBefore time.Time, limit int) ([]repository.SweepCandidate, error) {
		return nil, nil
	}

	sweeper, err := NewStaleClaimSweeper(records, &recordingDispatcher{}, time.Second, 0, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStaleClaimSweeper() error = %v", err)
	}

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
