package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"storyteller/internal/domain"
)

const defaultRecentLimit = 20

// ReadingService records which stories were read and summarises the
// reading history.
type ReadingService struct {
	reads       ReadLogStore
	stories     StoryStore
	collections CollectionStore
	publisher   Publisher
	logger      *slog.Logger
	recentLimit int
}

func NewReadingService(
	reads ReadLogStore,
	stories StoryStore,
	collections CollectionStore,
	publisher Publisher,
	logger *slog.Logger,
	recentLimit int,
) *ReadingService {
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	return &ReadingService{
		reads:       reads,
		stories:     stories,
		collections: collections,
		publisher:   publisher,
		logger:      logger.With("component", "reading"),
		recentLimit: recentLimit,
	}
}

// LogRead appends a read to the history. Callers are expected to carry on
// reading whatever the outcome; the error is only informative.
func (s *ReadingService) LogRead(ctx context.Context, storyID string, collectionID *string, source string) error {
	storyID, err := domain.RequiredText("story id", storyID)
	if err != nil {
		return err
	}

	entry := &domain.ReadLogEntry{
		StoryID:      storyID,
		CollectionID: domain.OptionalText(collectionID),
		Source:       domain.NormalizeReadSource(source),
	}

	if err := s.reads.Insert(ctx, entry); err != nil {
		s.logger.Error("log story read failed", "story_id", storyID, "error", err)
		return fmt.Errorf("log story read: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRead(ctx, entry); err != nil {
			s.logger.Warn("publish read event failed", "story_id", storyID, "error", err)
		}
	}

	return nil
}

// RecentReads returns the newest reads first. Titles and names the store
// could not join are looked up in one batch per table.
func (s *ReadingService) RecentReads(ctx context.Context, limit int) ([]domain.RecentRead, error) {
	if limit <= 0 {
		limit = s.recentLimit
	}

	entries, err := s.reads.Recent(ctx, limit)
	if err != nil {
		s.logger.Error("list recent reads failed", "error", err)
		return nil, fmt.Errorf("list recent reads: %w", err)
	}

	titles := make(map[string]string)
	names := make(map[string]string)
	for _, e := range entries {
		if e.StoryTitle != nil {
			titles[e.StoryID] = *e.StoryTitle
		}
		if e.CollectionID != nil && e.CollectionName != nil {
			names[*e.CollectionID] = *e.CollectionName
		}
	}

	var missingStories, missingCollections []string
	for _, e := range entries {
		if _, ok := titles[e.StoryID]; !ok && !slices.Contains(missingStories, e.StoryID) {
			missingStories = append(missingStories, e.StoryID)
		}
		if e.CollectionID == nil {
			continue
		}
		if _, ok := names[*e.CollectionID]; !ok && !slices.Contains(missingCollections, *e.CollectionID) {
			missingCollections = append(missingCollections, *e.CollectionID)
		}
	}

	if len(missingStories) > 0 {
		found, err := s.stories.TitlesByIDs(ctx, missingStories)
		if err != nil {
			s.logger.Error("resolve story titles failed", "count", len(missingStories), "error", err)
			return nil, fmt.Errorf("resolve story titles: %w", err)
		}
		for id, title := range found {
			titles[id] = title
		}
	}

	if len(missingCollections) > 0 {
		found, err := s.collections.NamesByIDs(ctx, missingCollections)
		if err != nil {
			s.logger.Error("resolve collection names failed", "count", len(missingCollections), "error", err)
			return nil, fmt.Errorf("resolve collection names: %w", err)
		}
		for id, name := range found {
			names[id] = name
		}
	}

	reads := make([]domain.RecentRead, 0, len(entries))
	for _, e := range entries {
		read := domain.RecentRead{
			StoryID:        e.StoryID,
			CollectionID:   e.CollectionID,
			Title:          domain.UnresolvedName,
			CollectionName: domain.UnresolvedName,
			Source:         e.Source,
			CreatedAt:      e.CreatedAt,
		}
		if title, ok := titles[e.StoryID]; ok {
			read.Title = title
		}
		if e.CollectionID != nil {
			if name, ok := names[*e.CollectionID]; ok {
				read.CollectionName = name
			}
		}
		reads = append(reads, read)
	}

	return reads, nil
}

// ReadCounts ranks stories by how often they were read. Stories with the
// same count stay in the order they were first read.
func (s *ReadingService) ReadCounts(ctx context.Context) ([]domain.StoryReadCount, error) {
	ids, err := s.reads.StoryIDs(ctx)
	if err != nil {
		s.logger.Error("scan reading log failed", "error", err)
		return nil, fmt.Errorf("scan reading log: %w", err)
	}

	counts := make(map[string]int)
	var order []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}

	if len(order) == 0 {
		return nil, nil
	}

	titles, err := s.stories.TitlesByIDs(ctx, order)
	if err != nil {
		s.logger.Error("resolve ranking titles failed", "count", len(order), "error", err)
		return nil, fmt.Errorf("resolve story titles: %w", err)
	}

	ranking := make([]domain.StoryReadCount, 0, len(order))
	for _, id := range order {
		title, ok := titles[id]
		if !ok {
			title = domain.UnresolvedStoryTitle
		}
		ranking = append(ranking, domain.StoryReadCount{
			StoryID:   id,
			Title:     title,
			ReadCount: counts[id],
		})
	}

	slices.SortStableFunc(ranking, func(a, b domain.StoryReadCount) int {
		return cmp.Compare(b.ReadCount, a.ReadCount)
	})

	return ranking, nil
}

// Report builds the reading summary and logs it.
func (s *ReadingService) Report(ctx context.Context) (*domain.ReadingReport, error) {
	startTime := time.Now()

	ranking, err := s.ReadCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}

	recent, err := s.RecentReads(ctx, s.recentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent reads: %w", err)
	}

	report := &domain.ReadingReport{
		GeneratedAt: startTime.UTC(),
		Ranking:     ranking,
		Recent:      recent,
	}
	for _, r := range ranking {
		report.TotalReads += r.ReadCount
	}
	report.Duration = time.Since(startTime)

	attrs := []any{
		"total_reads", report.TotalReads,
		"stories_read", len(ranking),
		"recent", len(recent),
		"duration", report.Duration,
	}
	if len(ranking) > 0 {
		attrs = append(attrs, "top_story", ranking[0].Title, "top_count", ranking[0].ReadCount)
	}
	s.logger.Info("reading report", attrs...)

	return report, nil
}
