// Package scrape contains the profile and batch orchestrators that sit on
// top of the guarded fetch controller.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/citemetric/scholarcrawl/internal/progress"
	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// PageFetcher drives one URL through the retry/escalation pipeline.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (scholar.FetchResponse, error)
}

// ProfileConfig controls a single profile scrape.
type ProfileConfig struct {
	// PageSize is the listing pagination size (Scholar caps it at 100).
	PageSize int
	// DetailConcurrency bounds parallel detail-page fetches per profile.
	DetailConcurrency int
	// MaxPublications truncates the listing when > 0.
	MaxPublications int
}

func (c ProfileConfig) withDefaults() ProfileConfig {
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.DetailConcurrency <= 0 {
		c.DetailConcurrency = 2
	}
	return c
}

// ProfileScraper scrapes one Scholar profile: the paginated listing first,
// then the per-publication detail pages concurrently.
type ProfileScraper struct {
	cfg       ProfileConfig
	fetcher   PageFetcher
	extractor scholar.Extractor
	emitter   progress.Emitter
	runID     [16]byte
	logger    *zap.Logger
}

// NewProfileScraper constructs a ProfileScraper.
func NewProfileScraper(
	cfg ProfileConfig,
	fetcher PageFetcher,
	extractor scholar.Extractor,
	emitter progress.Emitter,
	runID [16]byte,
	logger *zap.Logger,
) *ProfileScraper {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileScraper{
		cfg:       cfg.withDefaults(),
		fetcher:   fetcher,
		extractor: extractor,
		emitter:   emitter,
		runID:     runID,
		logger:    logger,
	}
}

// Scrape runs one profile to completion. The result is always usable: a
// failed status carries a reason, a succeeded one carries records in listing
// order even when individual detail fetches were abandoned.
func (s *ProfileScraper) Scrape(ctx context.Context, author scholar.Author) scholar.ProfileResult {
	start := time.Now()
	s.emit(progress.Event{Stage: progress.StageProfileStart, UserID: author.UserID})

	result := scholar.ProfileResult{
		UserID:    author.UserID,
		Name:      author.Name,
		ScrapedAt: start.UTC(),
	}

	entries, err := s.collectListing(ctx, author.UserID)
	if err != nil {
		result.Status = scholar.ProfileStatusFailed
		result.FailureReason = err.Error()
		s.emit(progress.Event{
			Stage:  progress.StageProfileError,
			UserID: author.UserID,
			Dur:    time.Since(start),
			Note:   result.FailureReason,
		})
		return result
	}

	result.Records = s.collectDetails(ctx, author.UserID, entries)
	result.Status = scholar.ProfileStatusSucceeded
	s.emit(progress.Event{
		Stage:  progress.StageProfileDone,
		UserID: author.UserID,
		Dur:    time.Since(start),
		Note:   fmt.Sprintf("%d publications", len(result.Records)),
	})
	return result
}

// collectListing pages through the publication table until a short page. A
// failure on the first page fails the profile; on later pages it just ends
// pagination with what was gathered.
func (s *ProfileScraper) collectListing(ctx context.Context, userID string) ([]scholar.PublicationEntry, error) {
	var entries []scholar.PublicationEntry
	for cstart := 0; ; cstart += s.cfg.PageSize {
		url := scholar.ListingURL(userID, cstart, s.cfg.PageSize)
		resp, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			var notFound *scholar.NotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("profile not found: %s", userID)
			}
			if cstart == 0 {
				return nil, fmt.Errorf("listing fetch failed: %w", err)
			}
			s.logger.Warn("listing pagination abandoned",
				zap.String("user_id", userID),
				zap.Int("cstart", cstart),
				zap.Error(err),
			)
			return entries, nil
		}

		page, err := s.extractor.ListingEntries(resp.Body)
		if err != nil {
			if cstart == 0 {
				return nil, fmt.Errorf("listing parse failed: %w", err)
			}
			return entries, nil
		}
		entries = append(entries, page...)

		if s.cfg.MaxPublications > 0 && len(entries) >= s.cfg.MaxPublications {
			return entries[:s.cfg.MaxPublications], nil
		}
		if len(page) < s.cfg.PageSize {
			return entries, nil
		}
	}
}

// collectDetails enriches listing entries with detail-page fields. Records
// land at their listing index, so completion order never reorders output.
func (s *ProfileScraper) collectDetails(ctx context.Context, userID string, entries []scholar.PublicationEntry) []scholar.PublicationRecord {
	records := make([]scholar.PublicationRecord, len(entries))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.DetailConcurrency)

	for i, entry := range entries {
		group.Go(func() error {
			records[i] = s.detailRecord(groupCtx, userID, entry)
			return nil
		})
	}
	// Workers never return errors; abandoned details are recorded in place.
	_ = group.Wait()
	return records
}

func (s *ProfileScraper) detailRecord(ctx context.Context, userID string, entry scholar.PublicationEntry) scholar.PublicationRecord {
	record := recordFromEntry(entry)
	if entry.CitationURL == "" {
		record.DetailError = "no citation link on listing row"
		return record
	}

	resp, err := s.fetcher.Fetch(ctx, entry.CitationURL)
	if err != nil {
		record.DetailError = err.Error()
		s.logger.Warn("detail page abandoned",
			zap.String("user_id", userID),
			zap.String("url", entry.CitationURL),
			zap.Error(err),
		)
		return record
	}

	detail, err := s.extractor.DetailFields(resp.Body)
	if err != nil {
		record.DetailError = err.Error()
		return record
	}
	mergeDetail(&record, detail)
	return record
}

func recordFromEntry(entry scholar.PublicationEntry) scholar.PublicationRecord {
	return scholar.PublicationRecord{
		Title:       entry.Title,
		Authors:     entry.Authors,
		CitedBy:     entry.CitedBy,
		Year:        entry.Year,
		Venue:       entry.Venue,
		CitationURL: entry.CitationURL,
	}
}

// mergeDetail overlays detail-page fields onto the listing view. Detail
// values win where present since listing cells are truncated.
func mergeDetail(record *scholar.PublicationRecord, detail scholar.PublicationRecord) {
	if detail.Title != "" {
		record.Title = detail.Title
	}
	if len(detail.Authors) > 0 {
		record.Authors = detail.Authors
	}
	if detail.Venue != "" && detail.Venue != "N/A" {
		record.Venue = detail.Venue
	}
	record.PublicationDate = detail.PublicationDate
	record.Abstract = detail.Abstract
	record.TotalCitations = detail.TotalCitations
	if detail.PDFLink != "" && detail.PDFLink != "N/A" {
		record.PDFLink = detail.PDFLink
	}
}

func (s *ProfileScraper) emit(evt progress.Event) {
	evt.RunID = s.runID
	evt.TS = time.Now().UTC()
	s.emitter.Emit(evt)
}
