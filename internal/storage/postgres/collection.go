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
	collectionReaderColumns = `id, name, description, sort_order, is_active`
	collectionAdminColumns  = collectionReaderColumns + `, created_at, updated_at`
)

var collectionWritable = map[string]bool{
	"name":        true,
	"description": true,
	"sort_order":  true,
	"is_active":   true,
}

type CollectionStore struct {
	db *sqlx.DB
}

func NewCollectionStore(db *sqlx.DB) *CollectionStore {
	return &CollectionStore{db: db}
}

func (s *CollectionStore) ListActive(ctx context.Context) ([]domain.Collection, error) {
	query := `
		SELECT ` + collectionReaderColumns + `
		FROM collections
		WHERE is_active = TRUE
		ORDER BY sort_order, name`

	collections := []domain.Collection{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &collections, query)
	return collections, err
}

func (s *CollectionStore) ListAll(ctx context.Context) ([]domain.Collection, error) {
	query := `
		SELECT ` + collectionAdminColumns + `
		FROM collections
		ORDER BY sort_order, name`

	collections := []domain.Collection{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &collections, query)
	return collections, err
}

func (s *CollectionStore) Create(ctx context.Context, c *domain.Collection) (*domain.Collection, error) {
	query := `
		INSERT INTO collections (name, description, sort_order, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + collectionAdminColumns

	var created domain.Collection
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &created, query,
		c.Name,
		c.Description,
		c.SortOrder,
		c.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *CollectionStore) Update(ctx context.Context, id string, fields domain.Fields) (*domain.Collection, error) {
	query, args, err := buildUpdate("collections", collectionWritable, id, fields, collectionAdminColumns)
	if err != nil {
		return nil, err
	}

	var updated domain.Collection
	err = sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &updated, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *CollectionStore) NamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT id, name FROM collections WHERE id = ANY($1::uuid[])`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		result[id] = name
	}

	return result, rows.Err()
}
