// Package scheduler drives batch materialization of pending staging
// records. A poll loop picks up pending records oldest-first and applies
// the publish policy to decide the status each one materializes with.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrSchedulerStopped is returned when the scheduler is stopped
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultPollInterval is the default interval between import cycles
	DefaultPollInterval = 30 * time.Second

	// DefaultLockTTL is the default TTL for per-record distributed locks
	DefaultLockTTL = 60 * time.Second

	// DefaultBatchSize is the number of pending records to fetch per poll
	DefaultBatchSize = 100

	// LockKeyPrefix is the prefix for record import locks
	LockKeyPrefix = "import:record:"
)

// StagingLister returns records awaiting materialization, oldest first.
type StagingLister interface {
	ListPending(ctx context.Context, limit int) ([]models.StagingRecord, error)
}

// Materializer applies one staging record with the given target status.
type Materializer interface {
	Materialize(ctx context.Context, id uuid.UUID, targetStatus string) error
}

// Config holds configuration for the import scheduler
type Config struct {
	// PollInterval is how often to check for pending records
	PollInterval time.Duration

	// LockTTL is how long to hold a lock on a record being materialized
	LockTTL time.Duration

	// BatchSize is the maximum number of records to materialize per poll
	BatchSize int

	// PublishPolicy decides the status of materialized content: publish,
	// draft, or import-only (stage but never materialize automatically).
	PublishPolicy string

	// AlwaysPublishTypes are content types that materialize with publish
	// status regardless of the policy.
	AlwaysPublishTypes []string
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:  DefaultPollInterval,
		LockTTL:       DefaultLockTTL,
		BatchSize:     DefaultBatchSize,
		PublishPolicy: models.PublishPolicyDraft,
	}
}

// Scheduler polls for and materializes pending staging records
type Scheduler struct {
	staging      StagingLister
	materializer Materializer
	locker       *redis.Locker
	config       Config
	logger       ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new import scheduler. The locker is optional;
// without it, concurrent instances may materialize the same record, which
// is safe but wasteful.
func NewScheduler(
	staging StagingLister,
	materializer Materializer,
	locker *redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	// Apply defaults
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.PublishPolicy == "" {
		config.PublishPolicy = models.PublishPolicyDraft
	}

	return &Scheduler{
		staging:      staging,
		materializer: materializer,
		locker:       locker,
		config:       config,
		logger:       logger,
		stopCh:       make(chan struct{}),
		stoppedC:     make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "Scheduler.Start")
	defer span.End()

	s.logger.WithContext(ctx).Infof("Starting import scheduler: poll_interval=%s batch_size=%d policy=%s",
		s.config.PollInterval, s.config.BatchSize, s.config.PublishPolicy)

	go s.pollLoop(ctx)

	s.logger.WithContext(ctx).Info("Import scheduler started")
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping import scheduler...")

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Import scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Import scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// pollLoop continuously polls for pending records
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunBatch(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Import scheduler poll loop stopping")
			return
		case <-ticker.C:
			s.RunBatch(ctx)
		}
	}
}

// RunBatch runs a single import cycle: list pending records and
// materialize each per the publish policy. Per-record failures are logged
// and the cycle moves on; the record stays pending for the next cycle.
func (s *Scheduler) RunBatch(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunBatch")
	defer span.End()

	start := time.Now()

	records, err := s.staging.ListPending(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list pending records")
		return
	}

	if len(records) == 0 {
		s.logger.WithContext(ctx).Debug("No pending records")
		return
	}

	s.logger.WithContext(ctx).Infof("Found %d pending records", len(records))

	materialized := 0
	skipped := 0
	for _, record := range records {
		targetStatus, ok := s.targetStatus(record.Type)
		if !ok {
			skipped++
			continue
		}

		if err := s.materializeRecord(ctx, record, targetStatus); err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				skipped++
				continue
			}
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to materialize record %s (%s:%s)",
				record.ID, record.Name, record.Type)
			continue
		}
		materialized++
	}

	duration := time.Since(start)
	s.logger.WithContext(ctx).Infof("Import cycle completed: materialized=%d skipped=%d duration=%s",
		materialized, skipped, duration)
}

// targetStatus applies the publish policy to one content type. The second
// return is false when the record should stay staged, as under the
// import-only policy.
func (s *Scheduler) targetStatus(contentType string) (string, bool) {
	return importer.TargetStatus(s.config.PublishPolicy, s.config.AlwaysPublishTypes, contentType)
}

// materializeRecord materializes a single record under a per-record lock
// when a locker is configured.
func (s *Scheduler) materializeRecord(ctx context.Context, record models.StagingRecord, targetStatus string) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.materializeRecord")
	defer span.End()

	if s.locker == nil {
		return s.materializer.Materialize(ctx, record.ID, targetStatus)
	}

	lock, err := s.locker.Acquire(ctx, s.lockKey(record.ID), s.config.LockTTL)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	return s.materializer.Materialize(ctx, record.ID, targetStatus)
}

// lockKey generates a lock key for a staging record
func (s *Scheduler) lockKey(id uuid.UUID) string {
	return LockKeyPrefix + id.String()
}
