package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"storyteller/internal/domain"
)

const (
	storyReaderColumns = `id, collection_id, title, body, image_url, audio_url, duration_seconds, sort_order, is_published`
	storyAdminColumns  = storyReaderColumns + `, created_at, updated_at`
)

var storyWritable = map[string]bool{
	"collection_id":    true,
	"title":            true,
	"body":             true,
	"image_url":        true,
	"audio_url":        true,
	"duration_seconds": true,
	"sort_order":       true,
	"is_published":     true,
}

type StoryStore struct {
	db *sqlx.DB
}

func NewStoryStore(db *sqlx.DB) *StoryStore {
	return &StoryStore{db: db}
}

// ListPublished returns the published stories of one collection, or of all
// collections when collectionID is empty.
func (s *StoryStore) ListPublished(ctx context.Context, collectionID string) ([]domain.Story, error) {
	query := `
		SELECT ` + storyReaderColumns + `
		FROM stories
		WHERE is_published = TRUE`
	var args []any
	if collectionID != "" {
		query += ` AND collection_id = $1`
		args = append(args, collectionID)
	}
	query += ` ORDER BY sort_order, title`

	stories := []domain.Story{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &stories, query, args...)
	return stories, err
}

func (s *StoryStore) GetPublished(ctx context.Context, id string) (*domain.Story, error) {
	query := `
		SELECT ` + storyReaderColumns + `
		FROM stories
		WHERE is_published = TRUE AND id = $1`

	var story domain.Story
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &story, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &story, nil
}

// Get returns a story by id whatever its publication state.
func (s *StoryStore) Get(ctx context.Context, id string) (*domain.Story, error) {
	query := `
		SELECT ` + storyAdminColumns + `
		FROM stories
		WHERE id = $1`

	var story domain.Story
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &story, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &story, nil
}

func (s *StoryStore) ListByCollection(ctx context.Context, collectionID string) ([]domain.Story, error) {
	query := `
		SELECT ` + storyAdminColumns + `
		FROM stories
		WHERE collection_id = $1
		ORDER BY sort_order, title`

	stories := []domain.Story{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &stories, query, collectionID)
	return stories, err
}

func (s *StoryStore) Create(ctx context.Context, story *domain.Story) (*domain.Story, error) {
	query := `
		INSERT INTO stories (
			collection_id, title, body, image_url, audio_url,
			duration_seconds, sort_order, is_published
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING ` + storyAdminColumns

	var created domain.Story
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &created, query,
		story.CollectionID,
		story.Title,
		story.Body,
		story.ImageURL,
		story.AudioURL,
		story.DurationSeconds,
		story.SortOrder,
		story.IsPublished,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *StoryStore) Update(ctx context.Context, id string, fields domain.Fields) (*domain.Story, error) {
	query, args, err := buildUpdate("stories", storyWritable, id, fields, storyAdminColumns)
	if err != nil {
		return nil, err
	}

	var updated domain.Story
	err = sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &updated, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the story. Deleting an unknown id is not an error.
func (s *StoryStore) Delete(ctx context.Context, id string) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id)
	return err
}

func (s *StoryStore) TitlesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT id, title FROM stories WHERE id = ANY($1::uuid[])`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, err
		}
		result[id] = title
	}

	return result, rows.Err()
}
