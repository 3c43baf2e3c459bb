package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"storyteller/internal/backend"
	"storyteller/internal/config"
	"storyteller/internal/domain"
	"storyteller/internal/publisher"
	"storyteller/internal/service"
	"storyteller/internal/storage/postgres"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const notConfiguredMessage = `The story library is not connected yet.

Set these variables (in the environment, a .env file or config.yaml) and try again:
  SUPABASE_URL       project URL, e.g. https://<project>.supabase.co
  SUPABASE_ANON_KEY  project anon key
  SUPABASE_DB_URL    project Postgres connection string
`

type services struct {
	handle    *backend.Handle
	catalog   *service.CatalogService
	reading   *service.ReadingService
	media     *service.MediaService
	importer  *service.Importer
	publisher *publisher.RabbitMQ
}

type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	connector *backend.Connector
	stdout    io.Writer
	stderr    io.Writer

	svc *services
}

func newApp(cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) *app {
	return &app{
		cfg:       cfg,
		logger:    logger,
		connector: backend.NewConnector(cfg.Supabase, cfg.Storage, logger),
		stdout:    stdout,
		stderr:    stderr,
	}
}

// services wires stores and services on top of the shared backend handle.
// The RabbitMQ publisher is optional: when it is not configured or cannot be
// reached, events are skipped.
func (a *app) services(ctx context.Context) (*services, error) {
	if a.svc != nil {
		return a.svc, nil
	}

	handle, err := a.connector.Get(ctx)
	if err != nil {
		return nil, err
	}

	collectionStore := postgres.NewCollectionStore(handle.DB)
	storyStore := postgres.NewStoryStore(handle.DB)
	readLogStore := postgres.NewReadLogStore(handle.DB)
	txManager := postgres.NewTransactionManager(handle.DB)

	svc := &services{handle: handle}

	var events service.Publisher
	if a.cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        a.cfg.RabbitMQ.URL,
			Exchange:   a.cfg.RabbitMQ.Exchange,
			RoutingKey: a.cfg.RabbitMQ.RoutingKey,
			QueueName:  a.cfg.RabbitMQ.QueueName,
		}, a.logger)
		if err != nil {
			a.logger.Warn("story events disabled", "error", err)
		} else {
			svc.publisher = rabbitMQ
			events = rabbitMQ
		}
	}

	svc.catalog = service.NewCatalogService(collectionStore, storyStore, events, a.logger)
	svc.reading = service.NewReadingService(readLogStore, storyStore, collectionStore, events, a.logger, a.cfg.Report.RecentLimit)
	svc.media = service.NewMediaService(svc.catalog, handle.Objects, a.cfg.Storage, a.logger)
	svc.importer = service.NewImporter(txManager, collectionStore, storyStore, a.logger)

	a.svc = svc
	return svc, nil
}

func (a *app) Close() error {
	if a.svc == nil {
		return nil
	}
	if a.svc.publisher != nil {
		a.svc.publisher.Close()
	}
	return a.svc.handle.Close()
}

// run executes one command and maps its outcome to an exit status.
func (a *app) run(ctx context.Context, name string, args []string) int {
	cmd, ok := lookupCommand(name)
	if !ok {
		fmt.Fprintf(a.stderr, "unknown command %q\n", name)
		return exitUsage
	}

	err := cmd.run(ctx, a, args)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, backend.ErrNotConfigured):
		fmt.Fprint(a.stdout, notConfiguredMessage)
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, service.ErrEmptyUpdate):
		fmt.Fprintf(a.stderr, "%s: %v\n", name, err)
		return exitUsage
	default:
		fmt.Fprintf(a.stderr, "%s: %v\n", name, err)
		return exitFailure
	}
}
