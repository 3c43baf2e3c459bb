package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"storyteller/internal/config"
	"storyteller/internal/domain"
)

const DefaultContentType = "application/octet-stream"

// Blob is an uploaded file: its original name, declared content type and
// contents.
type Blob struct {
	Name        string
	ContentType string
	Data        io.Reader
}

// CoverPath is where a story's cover image is stored.
func CoverPath(storyID, filename string) string {
	return storyObjectPath(storyID, "cover", filename, ".png")
}

// AudioPath is where a story's narration is stored.
func AudioPath(storyID, filename string) string {
	return storyObjectPath(storyID, "audio", filename, ".mp3")
}

func storyObjectPath(storyID, kind, filename, defaultExt string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = defaultExt
	}
	return "stories/" + storyID + "/" + kind + ext
}

// MediaService uploads story media to object storage and links it to
// stories.
type MediaService struct {
	catalog *CatalogService
	objects ObjectStorage
	buckets config.StorageConfig
	logger  *slog.Logger
}

func NewMediaService(catalog *CatalogService, objects ObjectStorage, buckets config.StorageConfig, logger *slog.Logger) *MediaService {
	return &MediaService{
		catalog: catalog,
		objects: objects,
		buckets: buckets,
		logger:  logger.With("component", "media"),
	}
}

// Upload stores blob at bucket/path, replacing any previous object, and
// returns its public URL.
func (m *MediaService) Upload(ctx context.Context, bucket, path string, blob Blob) (string, error) {
	url, err := m.upload(ctx, bucket, path, blob)
	if err != nil {
		m.logger.Error("upload media failed",
			"bucket", bucket,
			"path", path,
			"error", err,
		)
		return "", fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return url, nil
}

func (m *MediaService) upload(ctx context.Context, bucket, path string, blob Blob) (string, error) {
	if blob.Data == nil {
		return "", errors.New("no data")
	}
	data, err := io.ReadAll(blob.Data)
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}

	contentType := blob.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	if err := m.objects.Upload(ctx, bucket, path, contentType, data); err != nil {
		return "", err
	}

	return m.objects.PublicURL(bucket, path)
}

// AttachImage uploads the cover of a story and stores its URL.
func (m *MediaService) AttachImage(ctx context.Context, storyID string, blob Blob) (*domain.Story, error) {
	url, err := m.Upload(ctx, m.buckets.ImageBucket, CoverPath(storyID, blob.Name), blob)
	if err != nil {
		return nil, err
	}
	return m.catalog.UpdateStoryMedia(ctx, storyID, &url, nil)
}

// AttachAudio uploads the narration of a story and stores its URL.
func (m *MediaService) AttachAudio(ctx context.Context, storyID string, blob Blob) (*domain.Story, error) {
	url, err := m.Upload(ctx, m.buckets.AudioBucket, AudioPath(storyID, blob.Name), blob)
	if err != nil {
		return nil, err
	}
	return m.catalog.UpdateStoryMedia(ctx, storyID, nil, &url)
}

// CreateStory creates the story and then attaches the given media. The
// story is kept when an attachment fails: it is returned together with the
// attachment errors.
func (m *MediaService) CreateStory(ctx context.Context, in domain.NewStory, image, audio *Blob) (*domain.Story, error) {
	story, err := m.catalog.CreateStory(ctx, in)
	if err != nil {
		return nil, err
	}
	return m.attach(ctx, story, image, audio)
}

// UpdateStory applies fields and then attaches the given media, with the
// same policy as CreateStory. Fields may be empty when media is given.
func (m *MediaService) UpdateStory(ctx context.Context, id string, fields domain.Fields, image, audio *Blob) (*domain.Story, error) {
	if len(fields) == 0 && (image != nil || audio != nil) {
		story, err := m.catalog.StoryForAdmin(ctx, id)
		if err != nil {
			return nil, err
		}
		return m.attach(ctx, story, image, audio)
	}

	story, err := m.catalog.UpdateStory(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	return m.attach(ctx, story, image, audio)
}

func (m *MediaService) attach(ctx context.Context, story *domain.Story, image, audio *Blob) (*domain.Story, error) {
	var errs []error

	if image != nil {
		updated, err := m.AttachImage(ctx, story.ID, *image)
		if err != nil {
			errs = append(errs, fmt.Errorf("attach image: %w", err))
		} else {
			story = updated
		}
	}

	if audio != nil {
		updated, err := m.AttachAudio(ctx, story.ID, *audio)
		if err != nil {
			errs = append(errs, fmt.Errorf("attach audio: %w", err))
		} else {
			story = updated
		}
	}

	return story, errors.Join(errs...)
}
