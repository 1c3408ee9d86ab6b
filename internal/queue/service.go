package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const publishTimeout = 10 * time.Second

// Service is the explicit queue handle shared by producers and consumers.
// It is started lazily.
type Service struct {
	broker Broker
	logger zerolog.Logger
	now    func() time.Time

	startMu sync.Mutex
	started bool

	mu            sync.Mutex
	handlers      map[string]Handler
	stopping      bool
	consumeCancel context.CancelFunc
	inflight      sync.WaitGroup

	handlerCtx    context.Context
	handlerCancel context.CancelFunc
}

func NewService(broker Broker, logger zerolog.Logger) *Service {
	handlerCtx, handlerCancel := context.WithCancel(context.Background())
	return &Service{
		broker:        broker,
		logger:        logger.With().Str("component", "queue").Logger(),
		now:           time.Now,
		handlers:      map[string]Handler{},
		handlerCtx:    handlerCtx,
		handlerCancel: handlerCancel,
	}
}

// Start connects the broker. Calls are serialised; a failed start is tried
// again on the next call and a dropped connection is dialed again.
func (s *Service) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if err := s.broker.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if !s.started {
		s.started = true
		s.logger.Info().Msg("queue: started")
	}
	return nil
}

// Send publishes payload as a new job of kind and returns its id.
func (s *Service) Send(ctx context.Context, kind string, payload any, opts SendOptions) (string, error) {
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return "", ErrStopped
	}
	if err := s.Start(ctx); err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: encode %s payload: %w", kind, err)
	}
	job := Job{
		ID:           uuid.NewString(),
		Kind:         kind,
		Payload:      body,
		RetryLimit:   opts.RetryLimit,
		RetryDelay:   opts.RetryDelay,
		RetryBackoff: opts.RetryBackoff,
		ExpireIn:     opts.ExpireIn,
		Attempt:      1,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.broker.Publish(ctx, job, opts.StartAfter); err != nil {
		return "", fmt.Errorf("queue: publish %s: %w", kind, err)
	}
	s.logger.Debug().Str("job_id", job.ID).Str("kind", kind).Msg("queue: job sent")
	return job.ID, nil
}

// Work registers the consumer for kind. Registration must happen before Run.
func (s *Service) Work(kind string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// Run consumes every registered kind until ctx is done or Stop is called.
// Kinds are consumed concurrently; each kind handles one job at a time.
// When any kind's deliveries end early Run stops the others and returns
// ErrDeliveryClosed; calling Run again reconnects.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return ErrStopped
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrStopped
	}
	consumeCtx, cancel := context.WithCancel(ctx)
	s.consumeCancel = cancel
	kinds := make([]string, 0, len(s.handlers))
	for kind := range s.handlers {
		kinds = append(kinds, kind)
	}
	handlers := make(map[string]Handler, len(s.handlers))
	for k, h := range s.handlers {
		handlers[k] = h
	}
	s.mu.Unlock()
	defer cancel()

	sort.Strings(kinds)
	g, gctx := errgroup.WithContext(consumeCtx)
	for _, kind := range kinds {
		deliveries, err := s.broker.Consume(gctx, kind)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("queue: consume %s: %w", kind, err)
		}
		s.logger.Info().Str("kind", kind).Msg("queue: consuming")
		h := handlers[kind]
		g.Go(func() error {
			return s.consume(gctx, kind, h, deliveries)
		})
	}
	return g.Wait()
}

func (s *Service) consume(ctx context.Context, kind string, h Handler, deliveries <-chan Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				s.mu.Lock()
				stopping := s.stopping
				s.mu.Unlock()
				if stopping || ctx.Err() != nil {
					return nil
				}
				s.logger.Warn().Str("kind", kind).Msg("queue: deliveries closed unexpectedly")
				return fmt.Errorf("%w: %s", ErrDeliveryClosed, kind)
			}
			s.mu.Lock()
			if s.stopping {
				s.mu.Unlock()
				_ = d.Nack(true)
				return nil
			}
			s.inflight.Add(1)
			s.mu.Unlock()
			s.handle(h, d)
			s.inflight.Done()
		}
	}
}

func (s *Service) handle(h Handler, d Delivery) {
	job := d.Job
	log := s.logger.With().Str("job_id", job.ID).Str("kind", job.Kind).Int("attempt", job.Attempt).Logger()

	if job.Expired(s.now()) {
		log.Warn().Time("created_at", job.CreatedAt).Dur("expire_in", job.ExpireIn).Msg("queue: dropping expired job")
		_ = d.Ack()
		return
	}

	log.Info().Msg("queue: picked job")
	err := s.invoke(h, job)
	if err == nil {
		log.Info().Msg("queue: job done")
		_ = d.Ack()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if IsPermanent(err) || !job.CanRetry() {
		log.Error().Err(err).Msg("queue: job failed, dead-lettering")
		if dlErr := s.broker.DeadLetter(ctx, job, err.Error()); dlErr != nil {
			log.Error().Err(dlErr).Msg("queue: dead-letter failed")
		}
		_ = d.Ack()
		return
	}

	next := job
	next.Attempt++
	delay := job.NextDelay()
	if pubErr := s.broker.Publish(ctx, next, delay); pubErr != nil {
		log.Error().Err(pubErr).Msg("queue: retry publish failed, requeueing")
		_ = d.Nack(true)
		return
	}
	log.Warn().Err(err).Dur("retry_in", delay).Msg("queue: job failed, retry scheduled")
	_ = d.Ack()
}

func (s *Service) invoke(h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: handler panic: %v", r)
		}
	}()
	return h(s.handlerCtx, job)
}

// Stop stops consuming, waits up to timeout for in-flight handlers, then
// closes the broker. Handlers still running after the timeout see their
// context cancelled.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	cancel := s.consumeCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		s.handlerCancel()
		err = ErrStopTimeout
	}
	s.handlerCancel()

	if cerr := s.broker.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.logger.Info().Msg("queue: stopped")
	return err
}
