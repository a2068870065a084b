package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Blackhoodiez/sipcoin/internal/entity"
)

type countingProcessor struct {
	mu   sync.Mutex
	seen []uuid.UUID
	done chan struct{}
	want int
}

func (c *countingProcessor) ProcessReceipt(_ context.Context, _, receiptID uuid.UUID) (*entity.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, receiptID)
	if len(c.seen) == c.want {
		close(c.done)
	}
	return &entity.Receipt{ID: receiptID}, nil
}

func TestQueueProcessesEveryJob(t *testing.T) {
	proc := &countingProcessor{done: make(chan struct{}), want: 10}
	q := NewProcessorQueue(proc, nil, WithWorkers(3), WithQueueSize(4))
	defer q.Shutdown(context.Background())

	ctx := context.Background()
	ids := make(map[uuid.UUID]bool)
	for i := 0; i < 10; i++ {
		id := uuid.New()
		ids[id] = true
		if err := q.Enqueue(ctx, Job{UserID: uuid.New(), ReceiptID: id, SubmittedAt: time.Now()}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	select {
	case <-proc.done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs not drained in time")
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	for _, id := range proc.seen {
		if !ids[id] {
			t.Errorf("processed unknown receipt %s", id)
		}
	}
	if len(proc.seen) != 10 {
		t.Errorf("processed %d jobs, want 10", len(proc.seen))
	}
}

func TestShutdownDrainsAndRejectsLateJobs(t *testing.T) {
	proc := &countingProcessor{done: make(chan struct{}), want: 3}
	q := NewProcessorQueue(proc, nil, WithWorkers(1))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, Job{UserID: uuid.New(), ReceiptID: uuid.New()}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	q.Shutdown(ctx)

	select {
	case <-proc.done:
	case <-time.After(time.Second):
		t.Fatal("queued jobs were dropped at shutdown")
	}

	// Enqueue after shutdown is a logged no-op, not a panic.
	if err := q.Enqueue(ctx, Job{ReceiptID: uuid.New()}); err != nil {
		t.Fatalf("post-shutdown Enqueue: %v", err)
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.seen) != 3 {
		t.Errorf("processed %d jobs, want exactly the 3 enqueued before shutdown", len(proc.seen))
	}
}

func TestShutdownIdempotent(t *testing.T) {
	q := NewProcessorQueue(&countingProcessor{done: make(chan struct{}), want: 1}, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())
}
