package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned by MemoryBroker when a kind's buffer is full.
var ErrQueueFull = errors.New("queue: memory queue full")

// DeadJob is a job the MemoryBroker dead-lettered.
type DeadJob struct {
	Job    Job
	Reason string
}

// Publication records one Publish call.
type Publication struct {
	Job   Job
	Delay time.Duration
}

// MemoryBroker is an in-process Broker for development and tests.
// Delays are honoured with timers; nothing survives a restart.
type MemoryBroker struct {
	mu        sync.Mutex
	buffer    int
	queues    map[string]chan Delivery
	timers    []*time.Timer
	closed    bool
	dead      []DeadJob
	published []Publication
	connected bool
	connects  int
}

func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryBroker{buffer: buffer, queues: map[string]chan Delivery{}}
}

func (b *MemoryBroker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	if !b.connected {
		b.connected = true
		b.connects++
	}
	return nil
}

func (b *MemoryBroker) queue(kind string) chan Delivery {
	q, ok := b.queues[kind]
	if !ok {
		q = make(chan Delivery, b.buffer)
		b.queues[kind] = q
	}
	return q
}

func (b *MemoryBroker) Publish(ctx context.Context, job Job, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	b.published = append(b.published, Publication{Job: job, Delay: delay})
	if delay <= 0 {
		return b.enqueueLocked(job)
	}
	b.timers = append(b.timers, time.AfterFunc(delay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.closed {
			_ = b.enqueueLocked(job)
		}
	}))
	return nil
}

func (b *MemoryBroker) enqueueLocked(job Job) error {
	q := b.queue(job.Kind)
	d := NewDelivery(job, nil, func(requeue bool) error {
		if !requeue {
			return nil
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return ErrBrokerClosed
		}
		return b.enqueueLocked(job)
	})
	select {
	case q <- d:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, kind string) (<-chan Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	return b.queue(kind), nil
}

func (b *MemoryBroker) DeadLetter(ctx context.Context, job Job, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dead = append(b.dead, DeadJob{Job: job, Reason: reason})
	return nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, t := range b.timers {
		t.Stop()
	}
	return nil
}

// DeadLetters returns a copy of the dead-lettered jobs.
func (b *MemoryBroker) DeadLetters() []DeadJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeadJob(nil), b.dead...)
}

// Published returns a copy of every Publish call.
func (b *MemoryBroker) Published() []Publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Publication(nil), b.published...)
}

// Connects reports how many times Connect dialed.
func (b *MemoryBroker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

var _ Broker = (*MemoryBroker)(nil)
