package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"storyteller/internal/domain"
	"storyteller/internal/service/mocks"
	"storyteller/internal/testutil"
)

type CatalogServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	collections *mocks.MockCollectionStore
	stories     *mocks.MockStoryStore
	publisher   *mocks.MockPublisher

	service *CatalogService
	logger  *slog.Logger
}

func (s *CatalogServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.collections = mocks.NewMockCollectionStore(s.ctrl)
	s.stories = mocks.NewMockStoryStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewCatalogService(s.collections, s.stories, s.publisher, s.logger)
}

func (s *CatalogServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCatalogServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CatalogServiceTestSuite))
}

func publishedStories(ids ...string) []domain.Story {
	stories := make([]domain.Story, len(ids))
	for i, id := range ids {
		stories[i] = domain.Story{ID: id, CollectionID: "c1", Title: "Story " + id, Body: "Once...", IsPublished: true}
	}
	return stories
}

func (s *CatalogServiceTestSuite) TestActiveCollections() {
	ctx := context.Background()
	want := []domain.Collection{
		{ID: "c1", Name: "Adventures", IsActive: true},
		{ID: "c2", Name: "Bedtime", SortOrder: 1, IsActive: true},
	}

	s.collections.EXPECT().ListActive(ctx).Return(want, nil)

	got, err := s.service.ActiveCollections(ctx)

	s.NoError(err)
	s.Equal(want, got)
}

func (s *CatalogServiceTestSuite) TestActiveCollections_BackendError() {
	ctx := context.Background()

	s.collections.EXPECT().ListActive(ctx).Return(nil, errors.New("connection reset"))

	got, err := s.service.ActiveCollections(ctx)

	s.Error(err)
	s.Empty(got)
	s.Contains(err.Error(), "list active collections")
}

func (s *CatalogServiceTestSuite) TestPublishedStories_ScopesToCollection() {
	ctx := context.Background()

	s.stories.EXPECT().ListPublished(ctx, "c1").Return(publishedStories("s1", "s2"), nil)

	got, err := s.service.PublishedStories(ctx, "c1")

	s.NoError(err)
	s.Len(got, 2)
	for _, story := range got {
		s.True(story.IsPublished)
	}
}

func (s *CatalogServiceTestSuite) TestPublishedStories_RequiresCollection() {
	_, err := s.service.PublishedStories(context.Background(), " ")

	s.ErrorIs(err, domain.ErrValidation)
}

func (s *CatalogServiceTestSuite) TestAllPublishedStories_Unscoped() {
	ctx := context.Background()

	s.stories.EXPECT().ListPublished(ctx, "").Return(publishedStories("s1"), nil)

	got, err := s.service.AllPublishedStories(ctx)

	s.NoError(err)
	s.Len(got, 1)
}

func (s *CatalogServiceTestSuite) TestRandomPublishedStory_EmptyPool() {
	ctx := context.Background()

	s.stories.EXPECT().ListPublished(ctx, "c1").Return([]domain.Story{}, nil)

	story, err := s.service.RandomPublishedStory(ctx, "c1")

	s.Nil(story)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *CatalogServiceTestSuite) TestRandomPublishedStory_DrawsFromPool() {
	ctx := context.Background()
	pool := publishedStories("s1", "s2", "s3")

	s.stories.EXPECT().ListPublished(ctx, "").Return(pool, nil).Times(300)

	seen := map[string]int{}
	for range 300 {
		story, err := s.service.RandomPublishedStory(ctx, "")
		s.Require().NoError(err)
		s.Contains([]string{"s1", "s2", "s3"}, story.ID)
		seen[story.ID]++
	}

	s.Len(seen, 3)
	for id, n := range seen {
		s.Greater(n, 50, "story %s drawn %d times out of 300", id, n)
	}
}

func (s *CatalogServiceTestSuite) TestRandomPublishedStory_BackendError() {
	ctx := context.Background()

	s.stories.EXPECT().ListPublished(ctx, "").Return(nil, errors.New("timeout"))

	story, err := s.service.RandomPublishedStory(ctx, "")

	s.Nil(story)
	s.Error(err)
	s.False(errors.Is(err, domain.ErrNotFound))
}

func (s *CatalogServiceTestSuite) TestStoryOfTheNight_SkipsLastStory() {
	ctx := context.Background()

	s.stories.EXPECT().ListPublished(ctx, "c1").Return(publishedStories("s1", "s2"), nil).Times(50)

	for range 50 {
		story, err := s.service.StoryOfTheNight(ctx, "c1", "s1")
		s.Require().NoError(err)
		s.Equal("s2", story.ID)
	}
}

func (s *CatalogServiceTestSuite) TestStoryOfTheNight_RepeatsOnlyStory() {
	ctx := context.Background()

	s.stories.EXPECT().ListPublished(ctx, "").Return(publishedStories("s1"), nil)

	story, err := s.service.StoryOfTheNight(ctx, "", "s1")

	s.NoError(err)
	s.Equal("s1", story.ID)
}

func (s *CatalogServiceTestSuite) TestStoryOfTheNight_UsesRandomIndex() {
	ctx := context.Background()
	s.service.intn = func(n int) int { return n - 1 }

	s.stories.EXPECT().ListPublished(ctx, "").Return(publishedStories("s1", "s2", "s3"), nil)

	story, err := s.service.StoryOfTheNight(ctx, "", "")

	s.NoError(err)
	s.Equal("s3", story.ID)
}

func (s *CatalogServiceTestSuite) TestPublishedStory_NotFound() {
	ctx := context.Background()

	s.stories.EXPECT().GetPublished(ctx, "s9").Return(nil, domain.ErrNotFound)

	story, err := s.service.PublishedStory(ctx, "s9")

	s.Nil(story)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *CatalogServiceTestSuite) TestCollectionsForAdmin_IncludesInactive() {
	ctx := context.Background()
	want := []domain.Collection{
		{ID: "c1", Name: "Adventures", IsActive: false},
		{ID: "c2", Name: "Bedtime", IsActive: true},
	}

	s.collections.EXPECT().ListAll(ctx).Return(want, nil)

	got, err := s.service.CollectionsForAdmin(ctx)

	s.NoError(err)
	s.Equal(want, got)
}

func (s *CatalogServiceTestSuite) TestStoriesForAdmin() {
	ctx := context.Background()
	drafts := []domain.Story{{ID: "s1", CollectionID: "c1", Title: "Draft"}}

	s.stories.EXPECT().ListByCollection(ctx, "c1").Return(drafts, nil)

	got, err := s.service.StoriesForAdmin(ctx, "c1")

	s.NoError(err)
	s.Equal(drafts, got)
}

func (s *CatalogServiceTestSuite) TestCreateCollection_FillsDefaults() {
	ctx := context.Background()

	s.collections.EXPECT().Create(ctx, &domain.Collection{Name: "Adventures", IsActive: true}).
		Return(&domain.Collection{ID: "c1", Name: "Adventures", IsActive: true}, nil)

	created, err := s.service.CreateCollection(ctx, domain.NewCollection{Name: "  Adventures "})

	s.NoError(err)
	s.Equal("c1", created.ID)
}

func (s *CatalogServiceTestSuite) TestCreateCollection_ValidationSkipsBackend() {
	created, err := s.service.CreateCollection(context.Background(), domain.NewCollection{Name: "   "})

	s.Nil(created)
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *CatalogServiceTestSuite) TestCreateCollection_NoRowReturned() {
	ctx := context.Background()

	s.collections.EXPECT().Create(ctx, gomock.Any()).Return(nil, nil)

	created, err := s.service.CreateCollection(ctx, domain.NewCollection{Name: "Adventures"})

	s.Nil(created)
	s.Error(err)
}

func (s *CatalogServiceTestSuite) TestUpdateCollection_Deactivate() {
	ctx := context.Background()

	s.collections.EXPECT().Update(ctx, "c1", domain.Fields{"is_active": false}).
		Return(&domain.Collection{ID: "c1", Name: "Adventures", IsActive: false}, nil)

	updated, err := s.service.UpdateCollection(ctx, "c1", domain.Fields{"is_active": false})

	s.NoError(err)
	s.False(updated.IsActive)
}

func (s *CatalogServiceTestSuite) TestUpdateCollection_NormalizesText() {
	ctx := context.Background()

	s.collections.EXPECT().Update(ctx, "c1", domain.Fields{
		"name":        "Fables",
		"description": (*string)(nil),
	}).Return(&domain.Collection{ID: "c1", Name: "Fables"}, nil)

	_, err := s.service.UpdateCollection(ctx, "c1", domain.Fields{"name": " Fables ", "description": "  "})

	s.NoError(err)
}

func (s *CatalogServiceTestSuite) TestUpdateCollection_Rejected() {
	ctx := context.Background()

	_, err := s.service.UpdateCollection(ctx, "c1", domain.Fields{})
	s.ErrorIs(err, ErrEmptyUpdate)

	_, err = s.service.UpdateCollection(ctx, "c1", domain.Fields{"name": ""})
	s.ErrorIs(err, domain.ErrValidation)

	_, err = s.service.UpdateCollection(ctx, "c1", domain.Fields{"name": 42})
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *CatalogServiceTestSuite) TestUpdateCollection_NotFound() {
	ctx := context.Background()

	s.collections.EXPECT().Update(ctx, "c9", gomock.Any()).Return(nil, domain.ErrNotFound)

	updated, err := s.service.UpdateCollection(ctx, "c9", domain.Fields{"sort_order": 2})

	s.Nil(updated)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *CatalogServiceTestSuite) TestCreateStory_PublishesEvent() {
	ctx := context.Background()
	created := &domain.Story{ID: "s1", CollectionID: "c1", Title: "The Lost Key", Body: "Once...\n\nThe end."}

	s.stories.EXPECT().Create(ctx, &domain.Story{
		CollectionID: "c1",
		Title:        "The Lost Key",
		Body:         "Once...\n\nThe end.",
	}).Return(created, nil)
	s.publisher.EXPECT().PublishStory(ctx, created, domain.StoryCreated).Return(nil)

	got, err := s.service.CreateStory(ctx, domain.NewStory{
		CollectionID: "c1",
		Title:        "The Lost Key",
		Body:         "Once...\n\nThe end.",
		IsPublished:  testutil.Ptr(false),
	})

	s.NoError(err)
	s.Equal(created, got)
	s.Len(got.Paragraphs(), 2)
}

func (s *CatalogServiceTestSuite) TestCreateStory_PublishFailureIgnored() {
	ctx := context.Background()
	created := &domain.Story{ID: "s1", CollectionID: "c1", Title: "T", Body: "B"}

	s.stories.EXPECT().Create(ctx, gomock.Any()).Return(created, nil)
	s.publisher.EXPECT().PublishStory(ctx, created, domain.StoryCreated).Return(errors.New("channel closed"))

	got, err := s.service.CreateStory(ctx, domain.NewStory{CollectionID: "c1", Title: "T", Body: "B"})

	s.NoError(err)
	s.Equal(created, got)
}

func (s *CatalogServiceTestSuite) TestCreateStory_WithoutPublisher() {
	ctx := context.Background()
	service := NewCatalogService(s.collections, s.stories, nil, s.logger)

	s.stories.EXPECT().Create(ctx, gomock.Any()).Return(&domain.Story{ID: "s1"}, nil)

	got, err := service.CreateStory(ctx, domain.NewStory{CollectionID: "c1", Title: "T", Body: "B"})

	s.NoError(err)
	s.Equal("s1", got.ID)
}

func (s *CatalogServiceTestSuite) TestCreateStory_BackendError() {
	ctx := context.Background()

	s.stories.EXPECT().Create(ctx, gomock.Any()).Return(nil, errors.New("foreign key violation"))

	got, err := s.service.CreateStory(ctx, domain.NewStory{CollectionID: "c1", Title: "T", Body: "B"})

	s.Nil(got)
	s.Error(err)
	s.Contains(err.Error(), "create story")
}

func (s *CatalogServiceTestSuite) TestUpdateStory_Publish() {
	ctx := context.Background()
	updated := &domain.Story{ID: "s1", IsPublished: true}

	s.stories.EXPECT().Update(ctx, "s1", domain.Fields{"is_published": true}).Return(updated, nil)
	s.publisher.EXPECT().PublishStory(ctx, updated, domain.StoryUpdated).Return(nil)

	got, err := s.service.UpdateStory(ctx, "s1", domain.Fields{"is_published": true})

	s.NoError(err)
	s.True(got.IsPublished)
}

func (s *CatalogServiceTestSuite) TestUpdateStoryMedia_OnlyImage() {
	ctx := context.Background()
	updated := &domain.Story{
		ID:       "s1",
		ImageURL: testutil.Ptr("https://cdn.example/cover.png"),
		AudioURL: testutil.Ptr("https://cdn.example/audio.mp3"),
	}

	s.stories.EXPECT().Update(ctx, "s1", domain.Fields{
		"image_url": testutil.Ptr("https://cdn.example/cover.png"),
	}).Return(updated, nil)
	s.publisher.EXPECT().PublishStory(ctx, updated, domain.StoryUpdated).Return(nil)

	got, err := s.service.UpdateStoryMedia(ctx, "s1", testutil.Ptr("https://cdn.example/cover.png"), nil)

	s.NoError(err)
	s.Equal("https://cdn.example/audio.mp3", *got.AudioURL)
}

func (s *CatalogServiceTestSuite) TestUpdateStoryMedia_NothingGiven() {
	got, err := s.service.UpdateStoryMedia(context.Background(), "s1", nil, nil)

	s.Nil(got)
	s.ErrorIs(err, ErrEmptyUpdate)
}

func (s *CatalogServiceTestSuite) TestDeleteStory() {
	ctx := context.Background()

	s.stories.EXPECT().Delete(ctx, "s1").Return(nil)
	s.publisher.EXPECT().PublishStory(ctx, &domain.Story{ID: "s1"}, domain.StoryDeleted).Return(nil)

	s.NoError(s.service.DeleteStory(ctx, "s1"))
}

func (s *CatalogServiceTestSuite) TestDeleteStory_BackendError() {
	ctx := context.Background()

	s.stories.EXPECT().Delete(ctx, "s1").Return(errors.New("permission denied"))

	err := s.service.DeleteStory(ctx, "s1")

	s.Error(err)
	s.Contains(err.Error(), "delete story")
}

func (s *CatalogServiceTestSuite) quietService() (*CatalogService, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewCatalogService(s.collections, s.stories, nil, logger), &logs
}

func (s *CatalogServiceTestSuite) TestUpdateCollection_UnknownIDIsNotABackendFailure() {
	ctx := context.Background()
	service, logs := s.quietService()

	s.collections.EXPECT().Update(ctx, "c9", gomock.Any()).Return(nil, domain.ErrNotFound)

	_, err := service.UpdateCollection(ctx, "c9", domain.Fields{"is_active": false})

	s.ErrorIs(err, domain.ErrNotFound)
	s.NotContains(logs.String(), "level=ERROR")
}

func (s *CatalogServiceTestSuite) TestUpdateStory_UnknownIDIsNotABackendFailure() {
	ctx := context.Background()
	service, logs := s.quietService()

	s.stories.EXPECT().Update(ctx, "s9", gomock.Any()).Return(nil, domain.ErrNotFound)

	updated, err := service.UpdateStory(ctx, "s9", domain.Fields{"title": "New"})

	s.Nil(updated)
	s.ErrorIs(err, domain.ErrNotFound)
	s.NotContains(logs.String(), "level=ERROR")
}

func (s *CatalogServiceTestSuite) TestUpdateStory_BackendFailureIsLogged() {
	ctx := context.Background()
	service, logs := s.quietService()

	s.stories.EXPECT().Update(ctx, "s1", gomock.Any()).Return(nil, errors.New("connection reset"))

	_, err := service.UpdateStory(ctx, "s1", domain.Fields{"title": "New"})

	s.Error(err)
	s.Contains(logs.String(), "level=ERROR")
}

func (s *CatalogServiceTestSuite) TestStoryForAdmin_IncludesDrafts() {
	ctx := context.Background()
	draft := &domain.Story{ID: "s1", Title: "Draft"}

	s.stories.EXPECT().Get(ctx, "s1").Return(draft, nil)

	got, err := s.service.StoryForAdmin(ctx, "s1")

	s.NoError(err)
	s.Equal(draft, got)
}

func (s *CatalogServiceTestSuite) TestStoryForAdmin_NotFound() {
	ctx := context.Background()

	s.stories.EXPECT().Get(ctx, "s9").Return(nil, domain.ErrNotFound)

	got, err := s.service.StoryForAdmin(ctx, "s9")

	s.Nil(got)
	s.ErrorIs(err, domain.ErrNotFound)
}
