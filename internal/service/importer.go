package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"storyteller/internal/domain"
)

// ParseCatalog decodes a YAML catalog. Unknown keys are rejected so typos in
// hand-written files do not go unnoticed.
func ParseCatalog(r io.Reader) (*domain.Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var catalog domain.Catalog
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &catalog, nil
}

// Importer seeds collections and stories in a single transaction.
type Importer struct {
	txManager   TransactionManager
	collections CollectionStore
	stories     StoryStore
	logger      *slog.Logger
}

func NewImporter(txManager TransactionManager, collections CollectionStore, stories StoryStore, logger *slog.Logger) *Importer {
	return &Importer{
		txManager:   txManager,
		collections: collections,
		stories:     stories,
		logger:      logger.With("component", "importer"),
	}
}

type plannedCollection struct {
	row     *domain.Collection
	stories []*domain.Story
}

// Import validates the whole catalog first and then writes it. Nothing is
// written when any entry fails.
func (i *Importer) Import(ctx context.Context, catalog *domain.Catalog) (*domain.ImportStats, error) {
	startTime := time.Now()

	plan, err := i.plan(catalog)
	if err != nil {
		return nil, err
	}

	stats := &domain.ImportStats{}
	err = i.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, p := range plan {
			created, err := i.collections.Create(txCtx, p.row)
			if err != nil {
				return fmt.Errorf("create collection %q: %w", p.row.Name, err)
			}
			stats.Collections++

			for _, story := range p.stories {
				story.CollectionID = created.ID
				if _, err := i.stories.Create(txCtx, story); err != nil {
					return fmt.Errorf("create story %q: %w", story.Title, err)
				}
				stats.Stories++
			}
		}
		return nil
	})
	if err != nil {
		i.logger.Error("import failed", "error", err)
		return nil, fmt.Errorf("import catalog: %w", err)
	}

	stats.Duration = time.Since(startTime)

	i.logger.Info("import completed",
		"collections", stats.Collections,
		"stories", stats.Stories,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (i *Importer) plan(catalog *domain.Catalog) ([]plannedCollection, error) {
	if catalog == nil || len(catalog.Collections) == 0 {
		return nil, fmt.Errorf("%w: catalog has no collections", domain.ErrValidation)
	}

	plan := make([]plannedCollection, 0, len(catalog.Collections))
	for ci, c := range catalog.Collections {
		row, err := c.NewCollection.Build()
		if err != nil {
			return nil, fmt.Errorf("collection %d: %w", ci+1, err)
		}

		p := plannedCollection{row: row}
		for si, ns := range c.Stories {
			// The collection id is assigned once the collection exists.
			ns.CollectionID = "pending"
			story, err := ns.Build()
			if err != nil {
				return nil, fmt.Errorf("collection %q story %d: %w", row.Name, si+1, err)
			}
			p.stories = append(p.stories, story)
		}
		plan = append(plan, p)
	}
	return plan, nil
}
