package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"storyteller/internal/domain"
	"storyteller/internal/scheduler"
	"storyteller/internal/service"
	"storyteller/migrations"
)

var errUsage = errors.New("invalid usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"migrate", "apply database migrations (-down to roll back)", runMigrate},
		{"collections", "list active collections (-all for every collection)", runCollections},
		{"stories", "list published stories (-collection ID, -all for drafts)", runStories},
		{"story", "show one published story (-id ID)", runStory},
		{"tonight", "pick the story of the night (-collection ID, -last ID)", runTonight},
		{"read", "show a story and log the read (-story ID)", runRead},
		{"create-collection", "add a collection", runCreateCollection},
		{"update-collection", "edit a collection (-id ID)", runUpdateCollection},
		{"create-story", "add a story with optional cover and audio", runCreateStory},
		{"update-story", "edit a story and its media (-id ID)", runUpdateStory},
		{"delete-story", "delete a story (-id ID)", runDeleteStory},
		{"history", "show recent reads (-limit N)", runHistory},
		{"ranking", "rank stories by reads", runRanking},
		{"import", "import collections and stories from YAML (-file F)", runImport},
		{"report", "print the reading report (-watch to repeat)", runReport},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: storyteller [-config FILE] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", c.name, c.summary)
	}
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %q", errUsage, fs.Args())
	}
	return nil
}

func required(flagName, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: -%s is required", errUsage, flagName)
	}
	return nil
}

// visited reports which flags were given on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// fieldsFromFlags turns the given flags into a partial update. columns maps
// flag names to column names; other flags are ignored.
func fieldsFromFlags(fs *flag.FlagSet, columns map[string]string) domain.Fields {
	fields := domain.Fields{}
	fs.Visit(func(f *flag.Flag) {
		column, ok := columns[f.Name]
		if !ok {
			return
		}
		if getter, ok := f.Value.(flag.Getter); ok {
			fields[column] = getter.Get()
		}
	})
	return fields
}

// readBlob loads a media file. The content type comes from the extension.
func readBlob(path string) (*service.Blob, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &service.Blob{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        bytes.NewReader(data),
	}, nil
}

func readBody(body, bodyFile string) (string, error) {
	if bodyFile == "" {
		return body, nil
	}
	if body != "" {
		return "", fmt.Errorf("%w: use either -body or -body-file", errUsage)
	}
	data, err := os.ReadFile(bodyFile)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", bodyFile, err)
	}
	return string(data), nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("migrate")
	down := fs.Bool("down", false, "roll back every migration")
	if err := parse(fs, args); err != nil {
		return err
	}

	if _, err := a.connector.Get(ctx); err != nil {
		return err
	}

	dsn := a.cfg.Supabase.DatabaseURL
	var err error
	if *down {
		err = migrations.Down(dsn)
	} else {
		err = migrations.Up(dsn)
	}
	if err != nil {
		return err
	}

	version, dirty, err := migrations.Version(dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

func runCollections(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("collections")
	all := fs.Bool("all", false, "include inactive collections")
	if err := parse(fs, args); err != nil {
		return err
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	var collections []domain.Collection
	if *all {
		collections, err = svc.catalog.CollectionsForAdmin(ctx)
	} else {
		collections, err = svc.catalog.ActiveCollections(ctx)
	}
	if err != nil {
		return err
	}

	if len(collections) == 0 {
		fmt.Fprintln(a.stdout, "No collections yet.")
		return nil
	}

	tw := newTable(a.stdout)
	fmt.Fprintln(tw, "ID\tNAME\tSORT\tACTIVE\tDESCRIPTION")
	for _, c := range collections {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", c.ID, c.Name, c.SortOrder, c.IsActive, deref(c.Description))
	}
	return tw.Flush()
}

func runStories(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("stories")
	collectionID := fs.String("collection", "", "collection id (empty for every collection)")
	all := fs.Bool("all", false, "include unpublished stories (needs -collection)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *all {
		if err := required("collection", *collectionID); err != nil {
			return err
		}
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	var stories []domain.Story
	switch {
	case *all:
		stories, err = svc.catalog.StoriesForAdmin(ctx, *collectionID)
	case *collectionID != "":
		stories, err = svc.catalog.PublishedStories(ctx, *collectionID)
	default:
		stories, err = svc.catalog.AllPublishedStories(ctx)
	}
	if err != nil {
		return err
	}

	if len(stories) == 0 {
		fmt.Fprintln(a.stdout, "No stories yet.")
		return nil
	}

	tw := newTable(a.stdout)
	fmt.Fprintln(tw, "ID\tTITLE\tSORT\tPUBLISHED\tCOVER\tAUDIO")
	for _, s := range stories {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%t\t%t\n", s.ID, s.Title, s.SortOrder, s.IsPublished, s.ImageURL != nil, s.AudioURL != nil)
	}
	return tw.Flush()
}

func printStory(w io.Writer, story *domain.Story) {
	fmt.Fprintln(w, story.Title)
	fmt.Fprintln(w, strings.Repeat("=", len([]rune(story.Title))))
	if story.ImageURL != nil {
		fmt.Fprintf(w, "cover: %s\n", *story.ImageURL)
	}
	if story.AudioURL != nil {
		fmt.Fprintf(w, "audio: %s\n", *story.AudioURL)
	}
	if story.DurationSeconds != nil {
		fmt.Fprintf(w, "length: %s\n", time.Duration(*story.DurationSeconds)*time.Second)
	}
	for _, p := range story.Paragraphs() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, p)
	}
}

func runStory(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("story")
	id := fs.String("id", "", "story id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	story, err := svc.catalog.PublishedStory(ctx, *id)
	if err != nil {
		return err
	}
	printStory(a.stdout, story)
	return nil
}

func runTonight(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("tonight")
	collectionID := fs.String("collection", "", "draw from one collection only")
	lastID := fs.String("last", "", "story read last time, skipped when possible")
	if err := parse(fs, args); err != nil {
		return err
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	story, err := svc.catalog.StoryOfTheNight(ctx, *collectionID, *lastID)
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Fprintln(a.stdout, "No published stories yet.")
		return nil
	}
	if err != nil {
		return err
	}

	printStory(a.stdout, story)

	// The story is shown whatever happens to the log entry.
	_ = svc.reading.LogRead(ctx, story.ID, &story.CollectionID, string(domain.SourceRandom))
	return nil
}

func runRead(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("read")
	storyID := fs.String("story", "", "story id")
	collectionID := fs.String("collection", "", "collection the story was opened from")
	source := fs.String("source", string(domain.SourceManual), "how the story was chosen: random or manual")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("story", *storyID); err != nil {
		return err
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	story, err := svc.catalog.PublishedStory(ctx, *storyID)
	if err != nil {
		return err
	}

	printStory(a.stdout, story)

	_ = svc.reading.LogRead(ctx, story.ID, collectionID, *source)
	return nil
}

func runCreateCollection(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("create-collection")
	name := fs.String("name", "", "collection name")
	description := fs.String("description", "", "short description")
	sortOrder := fs.Int("sort", 0, "sort order")
	active := fs.Bool("active", true, "visible to readers")
	if err := parse(fs, args); err != nil {
		return err
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	set := visited(fs)
	in := domain.NewCollection{Name: *name, Description: description}
	if set["sort"] {
		in.SortOrder = sortOrder
	}
	if set["active"] {
		in.IsActive = active
	}

	created, err := svc.catalog.CreateCollection(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "created collection %s (%s)\n", created.ID, created.Name)
	return nil
}

var collectionColumns = map[string]string{
	"name":        "name",
	"description": "description",
	"sort":        "sort_order",
	"active":      "is_active",
}

func runUpdateCollection(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("update-collection")
	id := fs.String("id", "", "collection id")
	fs.String("name", "", "new name")
	fs.String("description", "", "new description (empty clears it)")
	fs.Int("sort", 0, "new sort order")
	fs.Bool("active", true, "visible to readers")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	fields := fieldsFromFlags(fs, collectionColumns)
	if len(fields) == 0 {
		return service.ErrEmptyUpdate
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	updated, err := svc.catalog.UpdateCollection(ctx, *id, fields)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "updated collection %s (%s)\n", updated.ID, updated.Name)
	return nil
}

func runCreateStory(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("create-story")
	collectionID := fs.String("collection", "", "collection id")
	title := fs.String("title", "", "story title")
	body := fs.String("body", "", "story text, paragraphs separated by a blank line")
	bodyFile := fs.String("body-file", "", "read the story text from a file")
	sortOrder := fs.Int("sort", 0, "sort order")
	published := fs.Bool("published", false, "visible to readers")
	duration := fs.Int("duration", 0, "narration length in seconds")
	imagePath := fs.String("image", "", "cover image file")
	audioPath := fs.String("audio", "", "narration audio file")
	if err := parse(fs, args); err != nil {
		return err
	}

	text, err := readBody(*body, *bodyFile)
	if err != nil {
		return err
	}
	image, err := readBlob(*imagePath)
	if err != nil {
		return err
	}
	audio, err := readBlob(*audioPath)
	if err != nil {
		return err
	}

	set := visited(fs)
	in := domain.NewStory{CollectionID: *collectionID, Title: *title, Body: text}
	if set["sort"] {
		in.SortOrder = sortOrder
	}
	if set["published"] {
		in.IsPublished = published
	}
	if set["duration"] {
		in.DurationSeconds = duration
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	story, err := svc.media.CreateStory(ctx, in, image, audio)
	if story != nil {
		fmt.Fprintf(a.stdout, "created story %s (%s)\n", story.ID, story.Title)
	}
	return err
}

var storyColumns = map[string]string{
	"collection": "collection_id",
	"title":      "title",
	"body":       "body",
	"sort":       "sort_order",
	"published":  "is_published",
	"duration":   "duration_seconds",
}

func runUpdateStory(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("update-story")
	id := fs.String("id", "", "story id")
	fs.String("collection", "", "move to another collection")
	fs.String("title", "", "new title")
	fs.String("body", "", "new text")
	bodyFile := fs.String("body-file", "", "read the new text from a file")
	fs.Int("sort", 0, "new sort order")
	fs.Bool("published", false, "visible to readers")
	fs.Int("duration", 0, "narration length in seconds")
	imagePath := fs.String("image", "", "replace the cover image")
	audioPath := fs.String("audio", "", "replace the narration audio")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	fields := fieldsFromFlags(fs, storyColumns)
	if *bodyFile != "" {
		if _, ok := fields["body"]; ok {
			return fmt.Errorf("%w: use either -body or -body-file", errUsage)
		}
		text, err := readBody("", *bodyFile)
		if err != nil {
			return err
		}
		fields["body"] = text
	}

	image, err := readBlob(*imagePath)
	if err != nil {
		return err
	}
	audio, err := readBlob(*audioPath)
	if err != nil {
		return err
	}
	if len(fields) == 0 && image == nil && audio == nil {
		return service.ErrEmptyUpdate
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	story, err := svc.media.UpdateStory(ctx, *id, fields, image, audio)
	if story != nil {
		fmt.Fprintf(a.stdout, "updated story %s\n", story.ID)
	}
	return err
}

func runDeleteStory(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("delete-story")
	id := fs.String("id", "", "story id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	if err := svc.catalog.DeleteStory(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted story %s\n", *id)
	return nil
}

func printRecent(w io.Writer, reads []domain.RecentRead) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "WHEN\tSTORY\tCOLLECTION\tSOURCE")
	for _, r := range reads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.CreatedAt.Local().Format(time.DateTime), r.Title, r.CollectionName, r.Source)
	}
	return tw.Flush()
}

func printRanking(w io.Writer, ranking []domain.StoryReadCount) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tSTORY\tREADS")
	for i, r := range ranking {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", i+1, r.Title, r.ReadCount)
	}
	return tw.Flush()
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("history")
	limit := fs.Int("limit", 0, "number of reads to show (default from config)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *limit < 0 {
		return fmt.Errorf("%w: -limit must be positive", errUsage)
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	reads, err := svc.reading.RecentReads(ctx, *limit)
	if err != nil {
		return err
	}
	if len(reads) == 0 {
		fmt.Fprintln(a.stdout, "Nothing read yet.")
		return nil
	}
	return printRecent(a.stdout, reads)
}

func runRanking(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("ranking")
	if err := parse(fs, args); err != nil {
		return err
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	ranking, err := svc.reading.ReadCounts(ctx)
	if err != nil {
		return err
	}
	if len(ranking) == 0 {
		fmt.Fprintln(a.stdout, "Nothing read yet.")
		return nil
	}
	return printRanking(a.stdout, ranking)
}

func runImport(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("import")
	file := fs.String("file", "", "YAML catalog")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("file", *file); err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	catalog, err := service.ParseCatalog(f)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	stats, err := svc.importer.Import(ctx, catalog)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "imported %d collections and %d stories in %s\n",
		stats.Collections, stats.Stories, stats.Duration.Round(time.Millisecond))
	return nil
}

func runReport(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("report")
	watch := fs.Bool("watch", false, "report every interval until interrupted")
	if err := parse(fs, args); err != nil {
		return err
	}

	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	if *watch {
		sched := scheduler.NewScheduler(svc.reading, a.cfg.Report.Interval, a.cfg.Report.Timeout, a.logger)
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	report, err := svc.reading.Report(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Reading report, %s\n", report.GeneratedAt.Local().Format(time.DateTime))
	fmt.Fprintf(a.stdout, "Total reads: %d\n\n", report.TotalReads)
	if len(report.Ranking) > 0 {
		if err := printRanking(a.stdout, report.Ranking); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout)
	}
	if len(report.Recent) > 0 {
		return printRecent(a.stdout, report.Recent)
	}
	return nil
}
