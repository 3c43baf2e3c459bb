package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"storyteller/internal/domain"
)

type CollectionStore interface {
	ListActive(ctx context.Context) ([]domain.Collection, error)
	ListAll(ctx context.Context) ([]domain.Collection, error)
	Create(ctx context.Context, collection *domain.Collection) (*domain.Collection, error)
	Update(ctx context.Context, id string, fields domain.Fields) (*domain.Collection, error)
	NamesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

type StoryStore interface {
	ListPublished(ctx context.Context, collectionID string) ([]domain.Story, error)
	GetPublished(ctx context.Context, id string) (*domain.Story, error)
	Get(ctx context.Context, id string) (*domain.Story, error)
	ListByCollection(ctx context.Context, collectionID string) ([]domain.Story, error)
	Create(ctx context.Context, story *domain.Story) (*domain.Story, error)
	Update(ctx context.Context, id string, fields domain.Fields) (*domain.Story, error)
	Delete(ctx context.Context, id string) error
	TitlesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

type ReadLogStore interface {
	Insert(ctx context.Context, entry *domain.ReadLogEntry) error
	Recent(ctx context.Context, limit int) ([]domain.ReadLogEntry, error)
	StoryIDs(ctx context.Context) ([]string, error)
}

type ObjectStorage interface {
	Upload(ctx context.Context, bucket, path, contentType string, data []byte) error
	PublicURL(bucket, path string) (string, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishStory(ctx context.Context, story *domain.Story, action domain.StoryAction) error
	PublishRead(ctx context.Context, entry *domain.ReadLogEntry) error
}
