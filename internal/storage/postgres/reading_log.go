package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"storyteller/internal/domain"
)

type ReadLogStore struct {
	db *sqlx.DB
}

func NewReadLogStore(db *sqlx.DB) *ReadLogStore {
	return &ReadLogStore{db: db}
}

func (s *ReadLogStore) Insert(ctx context.Context, entry *domain.ReadLogEntry) error {
	query := `
		INSERT INTO reading_log (story_id, collection_id, source)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		entry.StoryID,
		entry.CollectionID,
		entry.Source,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// Recent returns the newest entries first, with the story title and
// collection name joined in when those rows still exist.
func (s *ReadLogStore) Recent(ctx context.Context, limit int) ([]domain.ReadLogEntry, error) {
	query := `
		SELECT r.id, r.story_id, r.collection_id, r.source, r.created_at,
			s.title AS story_title, c.name AS collection_name
		FROM reading_log r
		LEFT JOIN stories s ON s.id = r.story_id
		LEFT JOIN collections c ON c.id = r.collection_id
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $1`

	entries := []domain.ReadLogEntry{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entries, query, limit)
	return entries, err
}

// StoryIDs returns the story id of every entry in insertion order.
func (s *ReadLogStore) StoryIDs(ctx context.Context) ([]string, error) {
	query := `SELECT story_id FROM reading_log ORDER BY id`

	ids := []string{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids, query)
	return ids, err
}
