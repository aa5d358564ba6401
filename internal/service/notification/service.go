package notification

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/notification"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/sse"
	"github.com/google/uuid"
)

// Config holds notification service configuration
type Config struct {
	BatchSize     int           // default: 100
	FlushInterval time.Duration // default: 1 second
	WorkerCount   int           // default: 2
	QueueSize     int           // default: 1000
}

type service struct {
	repo   notification.Repository
	hub    *sse.Hub
	config Config
	logger *slog.Logger

	queue   chan *notification.Notification
	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopped atomic.Bool
	once    sync.Once
	now     func() time.Time
}

// NewNotificationService creates a new notification service with background workers.
// Events reach live subscribers as soon as a worker picks them up; the log
// write is batched.
func NewNotificationService(repo notification.Repository, hub *sse.Hub, cfg Config, logger *slog.Logger) notification.Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &service{
		repo:   repo,
		hub:    hub,
		config: cfg,
		logger: logger.With("component", "notification"),
		queue:  make(chan *notification.Notification, cfg.QueueSize),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info("notification service started",
		"workers", cfg.WorkerCount,
		"batch_size", cfg.BatchSize,
		"flush_interval", cfg.FlushInterval.String(),
	)

	return s
}

func (s *service) worker(id int) {
	defer s.wg.Done()

	batch := make([]*notification.Notification, 0, s.config.BatchSize)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 || s.repo == nil {
			batch = batch[:0]
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.repo.CreateBatch(ctx, batch); err != nil {
			s.logger.Error("failed to persist notifications", "worker", id, "count", len(batch), "error", err)
		} else {
			s.logger.Debug("persisted notifications", "worker", id, "count", len(batch))
		}

		batch = make([]*notification.Notification, 0, s.config.BatchSize)
	}

	handle := func(n *notification.Notification) {
		s.deliver(n)
		batch = append(batch, n)
		if len(batch) >= s.config.BatchSize {
			flush()
		}
	}

	for {
		select {
		case n := <-s.queue:
			handle(n)
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			for {
				select {
				case n := <-s.queue:
					handle(n)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliver pushes a notification to the global channel and, when it concerns
// a person, to that person's channel.
func (s *service) deliver(n *notification.Notification) {
	channels := []string{notification.ChannelAttendance}
	if n.PersonID != nil && *n.PersonID != "" {
		channels = append(channels, notification.PersonChannel(*n.PersonID))
	}

	s.hub.PublishToMany(channels, sse.Event{
		Event: string(n.Event),
		Data:  toResponse(n),
	})
}

// Publish queues an event. It returns ErrQueueFull instead of blocking.
func (s *service) Publish(ctx context.Context, event notification.EventName, personID *string, data map[string]interface{}) error {
	if s.stopped.Load() {
		return notification.ErrPublisherClosed
	}

	if data == nil {
		data = map[string]interface{}{}
	}

	n := &notification.Notification{
		ID:        uuid.New().String(),
		Event:     event,
		PersonID:  personID,
		Data:      data,
		CreatedAt: s.now().UTC(),
	}

	select {
	case s.queue <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.logger.Warn("notification queue full, dropping event", "event", event)
		return notification.ErrQueueFull
	}
}

func toResponse(n *notification.Notification) notification.NotificationResponse {
	return notification.NotificationResponse{
		ID:        n.ID,
		Event:     string(n.Event),
		PersonID:  n.PersonID,
		Data:      n.Data,
		CreatedAt: n.CreatedAt.Format(time.RFC3339Nano),
	}
}

// Recent returns the latest logged notifications, newest first.
func (s *service) Recent(ctx context.Context, limit int) ([]notification.NotificationResponse, error) {
	switch {
	case limit < 1:
		limit = notification.DefaultRecentLimit
	case limit > notification.MaxRecentLimit:
		limit = notification.MaxRecentLimit
	}
	if s.repo == nil {
		return []notification.NotificationResponse{}, nil
	}

	items, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]notification.NotificationResponse, len(items))
	for i, n := range items {
		responses[i] = toResponse(n)
	}
	return responses, nil
}

// Subscribe creates an SSE subscription on a channel
func (s *service) Subscribe(ctx context.Context, channel string) (<-chan notification.SSEEvent, func()) {
	ch, cleanup := s.hub.Subscribe(channel)

	out := make(chan notification.SSEEvent, 10)

	go func() {
		defer close(out)
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- notification.SSEEvent{Event: event.Event, Data: event.Data}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cleanup
}

// Stop drains the queue and waits for the workers.
func (s *service) Stop() {
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Info("notification service stopped")
	})
}
