package datalayer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Priority is the sync queue's scheduling priority.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// syncTask is a unit of deferred work: propagate key's current value
// for entity from its primary store to its secondary store.
type syncTask struct {
	entity   Entity
	key      string
	priority Priority
	attempt  int
}

// DeadLetter records a sync task that exhausted its retries.
type DeadLetter struct {
	Entity   Entity
	Key      string
	Attempts int
	LastErr  string
	FailedAt time.Time
}

// syncQueue runs three priority lanes of worker pools that drain
// pending store-to-store synchronization tasks, retrying with a
// backoff and eventually parking exhausted tasks on a dead-letter
// queue for later inspection.
type syncQueue struct {
	high   chan syncTask
	medium chan syncTask
	low    chan syncTask

	maxRetries int
	handle     func(ctx context.Context, entity Entity, key string) error

	mu         sync.Mutex
	deadLetter []DeadLetter

	wg     sync.WaitGroup
	stopCh chan struct{}
}

func newSyncQueue(capacity, highWorkers, mediumWorkers, lowWorkers, maxRetries int, handle func(ctx context.Context, entity Entity, key string) error) *syncQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	q := &syncQueue{
		high:       make(chan syncTask, capacity),
		medium:     make(chan syncTask, capacity),
		low:        make(chan syncTask, capacity),
		maxRetries: maxRetries,
		handle:     handle,
		stopCh:     make(chan struct{}),
	}
	q.startWorkers(q.high, highWorkers)
	q.startWorkers(q.medium, mediumWorkers)
	q.startWorkers(q.low, lowWorkers)
	return q
}

func (q *syncQueue) startWorkers(ch chan syncTask, n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go q.worker(ch)
	}
}

func (q *syncQueue) worker(ch chan syncTask) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case task := <-ch:
			q.process(task)
		}
	}
}

func (q *syncQueue) process(task syncTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.handle(ctx, task.entity, task.key); err != nil {
		task.attempt++
		if task.attempt > q.maxRetries {
			q.mu.Lock()
			q.deadLetter = append(q.deadLetter, DeadLetter{
				Entity: task.entity, Key: task.key, Attempts: task.attempt,
				LastErr: err.Error(), FailedAt: time.Now(),
			})
			q.mu.Unlock()
			log.Printf("datalayer: sync task for %s/%s moved to dead letter after %d attempts: %v", task.entity, task.key, task.attempt, err)
			return
		}
		backoff := 200 * time.Millisecond * time.Duration(1<<uint(task.attempt-1))
		time.AfterFunc(backoff, func() { q.enqueueRetry(task) })
		return
	}
}

func (q *syncQueue) enqueueRetry(task syncTask) {
	select {
	case <-q.stopCh:
		return
	default:
	}
	q.laneFor(task.priority) <- task
}

func (q *syncQueue) laneFor(p Priority) chan syncTask {
	switch p {
	case PriorityHigh:
		return q.high
	case PriorityMedium:
		return q.medium
	default:
		return q.low
	}
}

// Enqueue schedules a sync task without blocking; it returns an error
// when the lane is full.
func (q *syncQueue) Enqueue(entity Entity, key string, priority Priority) error {
	select {
	case q.laneFor(priority) <- syncTask{entity: entity, key: key, priority: priority}:
		return nil
	default:
		return fmt.Errorf("datalayer: sync queue lane full for priority %d", priority)
	}
}

// DeadLetters returns a snapshot of tasks that exhausted their
// retries.
func (q *syncQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.deadLetter))
	copy(out, q.deadLetter)
	return out
}

// Close stops all workers. Queued-but-undrained tasks are dropped.
func (q *syncQueue) Close() {
	close(q.stopCh)
	q.wg.Wait()
}
