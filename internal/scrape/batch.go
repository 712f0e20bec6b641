package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/citemetric/scholarcrawl/internal/progress"
	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// BatchConfig controls a multi-profile run.
type BatchConfig struct {
	// Concurrency bounds how many profiles are scraped at once.
	Concurrency int
	// ProfileTimeout caps wall time per profile; 0 disables the cap.
	ProfileTimeout time.Duration
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// Summary aggregates one batch run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
	Files     []string
}

// AllFailed reports whether not a single profile produced data. This is the
// only condition a batch run treats as fatal.
func (s Summary) AllFailed() bool {
	return s.Total > 0 && s.Succeeded == 0
}

// BatchScraper runs many profiles with per-profile failure isolation: a
// failing or panicking profile never takes down its siblings.
type BatchScraper struct {
	cfg     BatchConfig
	profile *ProfileScraper
	sink    scholar.ResultSink
	emitter progress.Emitter
	runID   [16]byte
	logger  *zap.Logger
}

// NewBatchScraper constructs a BatchScraper.
func NewBatchScraper(
	cfg BatchConfig,
	profile *ProfileScraper,
	sink scholar.ResultSink,
	emitter progress.Emitter,
	runID [16]byte,
	logger *zap.Logger,
) *BatchScraper {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchScraper{
		cfg:     cfg.withDefaults(),
		profile: profile,
		sink:    sink,
		emitter: emitter,
		runID:   runID,
		logger:  logger,
	}
}

// Run scrapes every author and persists each result as it completes. The
// returned slice preserves roster order.
func (b *BatchScraper) Run(ctx context.Context, authors []scholar.Author) (Summary, []scholar.ProfileResult) {
	start := time.Now()
	b.emit(progress.Event{Stage: progress.StageRunStart, Note: fmt.Sprintf("%d profiles", len(authors))})

	results := make([]scholar.ProfileResult, len(authors))
	files := make([]string, len(authors))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.cfg.Concurrency)
	for i, author := range authors {
		group.Go(func() error {
			results[i], files[i] = b.runOne(groupCtx, author)
			return nil
		})
	}
	// Workers swallow their own failures; Wait only orders completion.
	_ = group.Wait()

	summary := Summary{Total: len(authors), Duration: time.Since(start)}
	for i := range results {
		if results[i].Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		if files[i] != "" {
			summary.Files = append(summary.Files, files[i])
		}
	}

	b.emit(progress.Event{
		Stage: progress.StageRunDone,
		Dur:   summary.Duration,
		Note:  fmt.Sprintf("%d succeeded, %d failed", summary.Succeeded, summary.Failed),
	})
	b.logger.Info("batch run complete",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary, results
}

func (b *BatchScraper) runOne(ctx context.Context, author scholar.Author) (result scholar.ProfileResult, path string) {
	defer func() {
		if r := recover(); r != nil {
			result = scholar.ProfileResult{
				UserID:        author.UserID,
				Name:          author.Name,
				Status:        scholar.ProfileStatusFailed,
				FailureReason: fmt.Sprintf("panic: %v", r),
				ScrapedAt:     time.Now().UTC(),
			}
			b.logger.Error("profile scrape panicked",
				zap.String("user_id", author.UserID),
				zap.Any("panic", r),
			)
			b.emit(progress.Event{
				Stage:  progress.StageProfileError,
				UserID: author.UserID,
				Note:   result.FailureReason,
			})
		}
	}()

	profileCtx := ctx
	if b.cfg.ProfileTimeout > 0 {
		var cancel context.CancelFunc
		profileCtx, cancel = context.WithTimeout(ctx, b.cfg.ProfileTimeout)
		defer cancel()
	}

	result = b.profile.Scrape(profileCtx, author)
	if b.sink == nil {
		return result, ""
	}
	written, err := b.sink.Write(result)
	if err != nil {
		b.logger.Error("writing result failed",
			zap.String("user_id", author.UserID),
			zap.Error(err),
		)
		return result, ""
	}
	return result, written
}

func (b *BatchScraper) emit(evt progress.Event) {
	evt.RunID = b.runID
	evt.TS = time.Now().UTC()
	b.emitter.Emit(evt)
}
