package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/transfer"
)

// Publisher is the slice of the publish service the scheduler drives.
type Publisher interface {
	Publish(ctx context.Context, postID int64) (*transfer.PublishOutcome, error)
	FailStuck(ctx context.Context, olderThan time.Duration) (int, error)
}

// PostSource is the due-posts view of the post repository.
type PostSource interface {
	GetDueScheduled(ctx context.Context, now time.Time) ([]*models.Post, error)
}

// Scheduler polls for due scheduled posts and hands each to the
// Publisher. It holds no per-post locks: a tick that races a manual
// publish is resolved by the Publisher's status guard, so duplicate
// ticks are harmless. Worst-case dispatch latency is one poll interval.
type Scheduler struct {
	posts             PostSource
	publisher         Publisher
	interval          time.Duration
	publishingTimeout time.Duration
	concurrency       int
	logger            *slog.Logger
}

func New(posts PostSource, publisher Publisher, interval, publishingTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		posts:             posts,
		publisher:         publisher,
		interval:          interval,
		publishingTimeout: publishingTimeout,
		concurrency:       5,
		logger:            logger,
	}
}

// Start runs an immediate tick and then ticks on the interval until ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick publishes every due post with bounded concurrency, then sweeps
// posts stuck in publishing. One post's failure never aborts the tick.
func (s *Scheduler) Tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, s.interval*4)
	defer cancel()

	due, err := s.posts.GetDueScheduled(tickCtx, time.Now())
	if err != nil {
		s.logger.Error("failed to query due posts", "error", err)
		return
	}

	if len(due) > 0 {
		s.logger.Info("publishing due posts", "count", len(due))
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.concurrency)

	for _, post := range due {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(post *models.Post) {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcome, err := s.publisher.Publish(tickCtx, post.ID)
			switch {
			case errors.Is(err, models.ErrConflict):
				// Lost the race to a manual publish or an overlapping
				// tick; the winner owns the attempt.
				s.logger.Info("post already being published", "post_id", post.ID)
			case err != nil:
				s.logger.Error("publish attempt errored", "post_id", post.ID, "error", err)
			case !outcome.Success:
				s.logger.Info("publish attempt failed", "post_id", post.ID, "reason", outcome.Error)
			default:
				s.logger.Info("post published", "post_id", post.ID)
			}
		}(post)
	}

	wg.Wait()

	swept, err := s.publisher.FailStuck(tickCtx, s.publishingTimeout)
	if err != nil {
		s.logger.Error("stuck-publishing sweep failed", "error", err)
		return
	}
	if swept > 0 {
		s.logger.Info("failed stuck posts", "count", swept)
	}
}
