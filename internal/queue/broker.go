package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStopped is returned by Send after Stop.
	ErrStopped = errors.New("queue: service stopped")
	// ErrStopTimeout is returned by Stop when in-flight jobs outlive the timeout.
	ErrStopTimeout = errors.New("queue: timed out waiting for in-flight jobs")
	// ErrBrokerClosed is returned by brokers after Close.
	ErrBrokerClosed = errors.New("queue: broker closed")
	// ErrConnect wraps broker dial failures returned by Start.
	ErrConnect = errors.New("queue: connect")
	// ErrDeliveryClosed is returned by Run when a broker stops delivering
	// while the service is still running, usually a dropped connection.
	ErrDeliveryClosed = errors.New("queue: delivery channel closed")
)

// Delivery is one received job plus its settlement callbacks.
type Delivery struct {
	Job  Job
	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery builds a Delivery from broker specific callbacks.
func NewDelivery(job Job, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Job: job, ack: ack, nack: nack}
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Broker is the transport the Service runs on.
type Broker interface {
	// Connect dials the broker. It is a no-op while connected and dials
	// again after the connection dropped.
	Connect(ctx context.Context) error
	Publish(ctx context.Context, job Job, delay time.Duration) error
	// Consume delivers jobs of kind one at a time until ctx is done.
	Consume(ctx context.Context, kind string) (<-chan Delivery, error)
	DeadLetter(ctx context.Context, job Job, reason string) error
	Close() error
}
