package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ardiwinata/qms-compliance/internal/core/events"
)

// worker pulls jobs from the shared queue through its own channel, the
// same dispatch shape the rest of the codebase uses for background pools.
type worker struct {
	id         int
	workerPool chan chan Job
	jobChannel chan Job
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan Job, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan Job),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, process func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			w.workerPool <- w.jobChannel

			select {
			case job := <-w.jobChannel:
				w.logger.Debug("notification worker processing", "worker_id", w.id, "kind", job.Kind)
				process(job)
			case <-ctx.Done():
				w.logger.Debug("notification worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

// Dispatcher fans notification jobs out to a worker pool. Notify never
// blocks the caller: when the queue is full the job is dropped and logged,
// since notifications are fire-and-forget by contract.
type Dispatcher struct {
	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	sender     Sender
	logger     *slog.Logger
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewDispatcher(cfg Config, sender Sender, logger *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		jobQueue:   make(chan Job, cfg.JobQueueSize),
		workerPool: make(chan chan Job, cfg.MaxWorkers),
		maxWorkers: cfg.MaxWorkers,
		sender:     sender,
		logger:     logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	for i := 0; i < d.maxWorkers; i++ {
		newWorker(i+1, d.workerPool, logger).start(ctx, &d.wg, d.process)
	}

	d.wg.Add(1)
	go d.dispatch(ctx)

	return d
}

// Notify enqueues one delivery. Implements the Notifier interfaces the
// approval and audit engines consume.
func (d *Dispatcher) Notify(principalID int64, kind string, payload map[string]any) {
	job := Job{
		PrincipalID: principalID,
		Kind:        kind,
		Payload:     payload,
		EnqueuedAt:  time.Now(),
	}

	select {
	case d.jobQueue <- job:
	default:
		d.logger.Warn("notification queue full, dropping",
			"principal_id", principalID,
			"kind", kind)
	}
}

// SubscribeBus wires the dispatcher to notification events on the bus.
func (d *Dispatcher) SubscribeBus(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeNotificationRequested, func(ctx context.Context, event events.Event) error {
		if e, ok := event.(*events.NotificationRequestedEvent); ok {
			d.Notify(e.PrincipalID, e.Kind, e.Detail)
		}
		return nil
	})
}

// Stop drains the workers and waits for them to exit.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.cancel()
		d.wg.Wait()
	})
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			select {
			case jobChannel := <-d.workerPool:
				jobChannel <- job
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.sender.Send(ctx, job); err != nil {
		d.logger.Error("notification delivery failed",
			"principal_id", job.PrincipalID,
			"kind", job.Kind,
			"error", err)
		return
	}

	d.logger.Info("notification delivered",
		"principal_id", job.PrincipalID,
		"kind", job.Kind,
		"queued_ms", time.Since(job.EnqueuedAt).Milliseconds())
}

// LogSender is the default delivery backend: it writes the notification
// to the structured log. Real deployments swap in email or chat senders.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, job Job) error {
	s.Logger.Info("notification",
		"principal_id", job.PrincipalID,
		"kind", job.Kind,
		"payload", job.Payload)
	return nil
}
