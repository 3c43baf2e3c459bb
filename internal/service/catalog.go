package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"storyteller/internal/domain"
)

// ErrEmptyUpdate is returned when an update carries no fields.
var ErrEmptyUpdate = errors.New("nothing to update")

var (
	collectionRequired = []string{"name"}
	collectionOptional = []string{"description"}
	storyRequired      = []string{"collection_id", "title", "body"}
	storyOptional      = []string{"image_url", "audio_url"}
)

// CatalogService reads and edits collections and stories. Backend failures
// are logged here once and returned wrapped, together with an empty result.
type CatalogService struct {
	collections CollectionStore
	stories     StoryStore
	publisher   Publisher
	logger      *slog.Logger
	intn        func(n int) int
}

func NewCatalogService(
	collections CollectionStore,
	stories StoryStore,
	publisher Publisher,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		collections: collections,
		stories:     stories,
		publisher:   publisher,
		logger:      logger.With("component", "catalog"),
		intn:        rand.IntN,
	}
}

func (s *CatalogService) ActiveCollections(ctx context.Context) ([]domain.Collection, error) {
	collections, err := s.collections.ListActive(ctx)
	if err != nil {
		return nil, s.fail("list active collections", err)
	}
	return collections, nil
}

func (s *CatalogService) PublishedStories(ctx context.Context, collectionID string) ([]domain.Story, error) {
	if _, err := domain.RequiredText("collection id", collectionID); err != nil {
		return nil, err
	}

	stories, err := s.stories.ListPublished(ctx, collectionID)
	if err != nil {
		return nil, s.fail("list published stories", err, "collection_id", collectionID)
	}
	return stories, nil
}

func (s *CatalogService) AllPublishedStories(ctx context.Context) ([]domain.Story, error) {
	stories, err := s.stories.ListPublished(ctx, "")
	if err != nil {
		return nil, s.fail("list all published stories", err)
	}
	return stories, nil
}

// PublishedStory returns one published story by id.
func (s *CatalogService) PublishedStory(ctx context.Context, id string) (*domain.Story, error) {
	story, err := s.stories.GetPublished(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("story %s: %w", id, err)
	}
	if err != nil {
		return nil, s.fail("get published story", err, "story_id", id)
	}
	return story, nil
}

// RandomPublishedStory draws uniformly from the published stories of
// collectionID, or from every published story when it is empty.
func (s *CatalogService) RandomPublishedStory(ctx context.Context, collectionID string) (*domain.Story, error) {
	return s.StoryOfTheNight(ctx, collectionID, "")
}

// StoryOfTheNight is RandomPublishedStory that avoids drawing lastStoryID
// again, unless it is the only story available.
func (s *CatalogService) StoryOfTheNight(ctx context.Context, collectionID, lastStoryID string) (*domain.Story, error) {
	stories, err := s.stories.ListPublished(ctx, collectionID)
	if err != nil {
		return nil, s.fail("draw published story", err, "collection_id", collectionID)
	}

	pool := stories
	if lastStoryID != "" {
		pool = make([]domain.Story, 0, len(stories))
		for _, story := range stories {
			if story.ID != lastStoryID {
				pool = append(pool, story)
			}
		}
		if len(pool) == 0 {
			pool = stories
		}
	}

	if len(pool) == 0 {
		return nil, fmt.Errorf("no published stories: %w", domain.ErrNotFound)
	}

	chosen := pool[s.intn(len(pool))]
	return &chosen, nil
}

func (s *CatalogService) CollectionsForAdmin(ctx context.Context) ([]domain.Collection, error) {
	collections, err := s.collections.ListAll(ctx)
	if err != nil {
		return nil, s.fail("list collections", err)
	}
	return collections, nil
}

func (s *CatalogService) StoriesForAdmin(ctx context.Context, collectionID string) ([]domain.Story, error) {
	if _, err := domain.RequiredText("collection id", collectionID); err != nil {
		return nil, err
	}

	stories, err := s.stories.ListByCollection(ctx, collectionID)
	if err != nil {
		return nil, s.fail("list stories", err, "collection_id", collectionID)
	}
	return stories, nil
}

// StoryForAdmin returns a story by id, published or not.
func (s *CatalogService) StoryForAdmin(ctx context.Context, id string) (*domain.Story, error) {
	if _, err := domain.RequiredText("story id", id); err != nil {
		return nil, err
	}

	story, err := s.stories.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("story %s: %w", id, err)
	}
	if err != nil {
		return nil, s.fail("get story", err, "story_id", id)
	}
	return story, nil
}

func (s *CatalogService) CreateCollection(ctx context.Context, in domain.NewCollection) (*domain.Collection, error) {
	row, err := in.Build()
	if err != nil {
		return nil, err
	}

	created, err := s.collections.Create(ctx, row)
	if err == nil && created == nil {
		err = errors.New("insert returned no row")
	}
	if err != nil {
		return nil, s.fail("create collection", err, "name", row.Name)
	}

	s.logger.Info("collection created", "collection_id", created.ID, "name", created.Name)
	return created, nil
}

func (s *CatalogService) UpdateCollection(ctx context.Context, id string, fields domain.Fields) (*domain.Collection, error) {
	fields, err := normalizeFields(fields, collectionRequired, collectionOptional)
	if err != nil {
		return nil, err
	}

	updated, err := s.collections.Update(ctx, id, fields)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("collection %s: %w", id, err)
	}
	if err != nil {
		return nil, s.fail("update collection", err, "collection_id", id)
	}
	return updated, nil
}

func (s *CatalogService) CreateStory(ctx context.Context, in domain.NewStory) (*domain.Story, error) {
	row, err := in.Build()
	if err != nil {
		return nil, err
	}

	created, err := s.stories.Create(ctx, row)
	if err == nil && created == nil {
		err = errors.New("insert returned no row")
	}
	if err != nil {
		return nil, s.fail("create story", err, "collection_id", row.CollectionID, "title", row.Title)
	}

	s.logger.Info("story created", "story_id", created.ID, "title", created.Title)
	s.publish(ctx, created, domain.StoryCreated)
	return created, nil
}

func (s *CatalogService) UpdateStory(ctx context.Context, id string, fields domain.Fields) (*domain.Story, error) {
	fields, err := normalizeFields(fields, storyRequired, storyOptional)
	if err != nil {
		return nil, err
	}

	updated, err := s.stories.Update(ctx, id, fields)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("story %s: %w", id, err)
	}
	if err != nil {
		return nil, s.fail("update story", err, "story_id", id)
	}

	s.publish(ctx, updated, domain.StoryUpdated)
	return updated, nil
}

// UpdateStoryMedia sets only the media URLs that are given.
func (s *CatalogService) UpdateStoryMedia(ctx context.Context, id string, imageURL, audioURL *string) (*domain.Story, error) {
	fields := domain.Fields{}
	if imageURL != nil {
		fields["image_url"] = *imageURL
	}
	if audioURL != nil {
		fields["audio_url"] = *audioURL
	}
	return s.UpdateStory(ctx, id, fields)
}

func (s *CatalogService) DeleteStory(ctx context.Context, id string) error {
	if _, err := domain.RequiredText("story id", id); err != nil {
		return err
	}

	if err := s.stories.Delete(ctx, id); err != nil {
		return s.fail("delete story", err, "story_id", id)
	}

	s.logger.Info("story deleted", "story_id", id)
	s.publish(ctx, &domain.Story{ID: id}, domain.StoryDeleted)
	return nil
}

func (s *CatalogService) publish(ctx context.Context, story *domain.Story, action domain.StoryAction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStory(ctx, story, action); err != nil {
		s.logger.Warn("publish story event failed",
			"story_id", story.ID,
			"action", action,
			"error", err,
		)
	}
}

func (s *CatalogService) fail(op string, err error, attrs ...any) error {
	s.logger.Error(op+" failed", append(attrs, "error", err)...)
	return fmt.Errorf("%s: %w", op, err)
}

// normalizeFields copies fields, trimming required text columns and turning
// blank optional text into NULL.
func normalizeFields(fields domain.Fields, required, optional []string) (domain.Fields, error) {
	if len(fields) == 0 {
		return nil, ErrEmptyUpdate
	}

	out := make(domain.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	for _, column := range required {
		v, ok := out[column]
		if !ok {
			continue
		}
		text, isText := v.(string)
		if !isText {
			return nil, fmt.Errorf("%w: %s must be text", domain.ErrValidation, column)
		}
		trimmed, err := domain.RequiredText(column, text)
		if err != nil {
			return nil, err
		}
		out[column] = trimmed
	}

	for _, column := range optional {
		v, ok := out[column]
		if !ok {
			continue
		}
		switch text := v.(type) {
		case nil:
		case string:
			out[column] = domain.OptionalText(&text)
		case *string:
			out[column] = domain.OptionalText(text)
		default:
			return nil, fmt.Errorf("%w: %s must be text", domain.ErrValidation, column)
		}
	}

	return out, nil
}
