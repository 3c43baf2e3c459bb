package domain

import (
	"strings"
	"time"
)

type Story struct {
	ID              string    `db:"id" json:"id"`
	CollectionID    string    `db:"collection_id" json:"collection_id"`
	Title           string    `db:"title" json:"title"`
	Body            string    `db:"body" json:"body"`
	ImageURL        *string   `db:"image_url" json:"image_url,omitempty"`
	AudioURL        *string   `db:"audio_url" json:"audio_url,omitempty"`
	DurationSeconds *int      `db:"duration_seconds" json:"duration_seconds,omitempty"`
	SortOrder       int       `db:"sort_order" json:"sort_order"`
	IsPublished     bool      `db:"is_published" json:"is_published"`
	CreatedAt       time.Time `db:"created_at" json:"created_at,omitzero"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at,omitzero"`
}

// Paragraphs splits the body on blank lines. A body without any non-blank
// paragraph is returned as a single paragraph.
func (s *Story) Paragraphs() []string {
	return Paragraphs(s.Body)
}

func Paragraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	var paragraphs []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return []string{body}
	}
	return paragraphs
}

// NewStory is the input for creating a story. Nil fields take their
// defaults: sort order 0, unpublished, no media.
type NewStory struct {
	CollectionID    string  `yaml:"-"`
	Title           string  `yaml:"title"`
	Body            string  `yaml:"body"`
	ImageURL        *string `yaml:"image_url"`
	AudioURL        *string `yaml:"audio_url"`
	DurationSeconds *int    `yaml:"duration_seconds"`
	SortOrder       *int    `yaml:"sort_order"`
	IsPublished     *bool   `yaml:"is_published"`
}

// Build validates the input and returns the row to insert.
func (n NewStory) Build() (*Story, error) {
	collectionID, err := RequiredText("story collection", n.CollectionID)
	if err != nil {
		return nil, err
	}
	title, err := RequiredText("story title", n.Title)
	if err != nil {
		return nil, err
	}
	body, err := RequiredText("story body", n.Body)
	if err != nil {
		return nil, err
	}

	s := &Story{
		CollectionID:    collectionID,
		Title:           title,
		Body:            body,
		ImageURL:        OptionalText(n.ImageURL),
		AudioURL:        OptionalText(n.AudioURL),
		DurationSeconds: n.DurationSeconds,
	}
	if n.SortOrder != nil {
		s.SortOrder = *n.SortOrder
	}
	if n.IsPublished != nil {
		s.IsPublished = *n.IsPublished
	}
	return s, nil
}

// StoryAction names a change published for a story.
type StoryAction string

const (
	StoryCreated StoryAction = "create"
	StoryUpdated StoryAction = "update"
	StoryDeleted StoryAction = "delete"
)
