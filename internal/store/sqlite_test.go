package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedgraph/feedgraph/internal/model"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testAccount(remoteID, handle string) *model.Account {
	return &model.Account{
		Key:       model.Key{Source: model.SourceTwitter, RemoteID: remoteID},
		Handle:    handle,
		UpdatedAt: testTime,
	}
}

func TestSQLite_AccountRoundTrip(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	a := testAccount("7", "ada")
	a.DisplayName = "Ada L"
	a.FollowerCount = 42
	a.SetViewerFlags("twitter//viewer-1", model.AccountFlags{Following: true})

	require.NoError(t, s.UpsertAccount(ctx, a))
	assert.NotZero(t, a.ID)

	got, err := s.Account(ctx, a.Key)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "ada", got.Handle)
	assert.Equal(t, int64(42), got.FollowerCount)
	assert.True(t, got.ViewerFlags("twitter//viewer-1").Following)
	assert.True(t, got.UpdatedAt.Equal(testTime))
}

func TestSQLite_UpsertKeepsIDStable(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	a := testAccount("7", "ada")
	require.NoError(t, s.UpsertAccount(ctx, a))
	firstID := a.ID

	b := testAccount("7", "ada_lovelace")
	b.UpdatedAt = testTime.Add(time.Minute)
	require.NoError(t, s.UpsertAccount(ctx, b))
	assert.Equal(t, firstID, b.ID)

	got, err := s.Account(ctx, a.Key)
	require.NoError(t, err)
	assert.Equal(t, "ada_lovelace", got.Handle)
}

func TestSQLite_NotFound(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	key := model.Key{Source: model.SourceMastodon, Domain: "hachyderm.io", RemoteID: "missing"}
	_, err := s.Account(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Post(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Poll(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Notification(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.List(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.SavedSearch(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_DomainIsPartOfIdentity(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	a := &model.Account{
		Key:       model.Key{Source: model.SourceMastodon, Domain: "hachyderm.io", RemoteID: "20"},
		Handle:    "ada",
		UpdatedAt: testTime,
	}
	b := &model.Account{
		Key:       model.Key{Source: model.SourceMastodon, Domain: "fosstodon.org", RemoteID: "20"},
		Handle:    "grace",
		UpdatedAt: testTime,
	}
	require.NoError(t, s.UpsertAccount(ctx, a))
	require.NoError(t, s.UpsertAccount(ctx, b))
	assert.NotEqual(t, a.ID, b.ID)

	got, err := s.Account(ctx, b.Key)
	require.NoError(t, err)
	assert.Equal(t, "grace", got.Handle)
}

func TestSQLite_PostRoundTripWithEdges(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	author := testAccount("7", "ada")
	require.NoError(t, s.UpsertAccount(ctx, author))

	target := &model.Post{
		Key:       model.Key{Source: model.SourceTwitter, RemoteID: "100"},
		Body:      "original",
		CreatedAt: testTime.Add(-time.Hour),
		Author:    author,
		UpdatedAt: testTime,
	}
	require.NoError(t, s.UpsertPost(ctx, target))

	p := &model.Post{
		Key:       model.Key{Source: model.SourceTwitter, RemoteID: "101"},
		Body:      "boosting",
		CreatedAt: testTime.Add(-30 * time.Minute),
		Author:    author,
		RepostOf:  target,
		ReplyToID: "99",
		UpdatedAt: testTime,
	}
	p.SetViewerFlags("twitter//viewer-1", model.PostFlags{Liked: true})
	require.NoError(t, s.UpsertPost(ctx, p))

	got, err := s.Post(ctx, p.Key)
	require.NoError(t, err)
	assert.Equal(t, "boosting", got.Body)
	assert.Equal(t, "99", got.ReplyToID)
	require.NotNil(t, got.Author)
	assert.Equal(t, "ada", got.Author.Handle)
	require.NotNil(t, got.RepostOf)
	assert.Equal(t, "100", got.RepostOf.Key.RemoteID)
	assert.True(t, got.ViewerFlags("twitter//viewer-1").Liked)
}

func TestSQLite_UpsertPostRejectsUnpersistedReferences(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	p := &model.Post{
		Key:       model.Key{Source: model.SourceTwitter, RemoteID: "100"},
		Author:    testAccount("7", "ada"), // never upserted, ID zero
		UpdatedAt: testTime,
	}
	err := s.UpsertPost(ctx, p)
	assert.ErrorContains(t, err, "author not persisted")
}

func TestSQLite_PollOptionsRewrittenOnUpsert(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	p := &model.Poll{
		Key: model.Key{Source: model.SourceTwitter, RemoteID: "500"},
		Options: []model.PollOption{
			{Position: 0, Label: "yes", VoteCount: 5},
			{Position: 1, Label: "no", VoteCount: 3},
			{Position: 2, Label: "maybe", VoteCount: 1},
		},
		UpdatedAt: testTime,
	}
	require.NoError(t, s.UpsertPoll(ctx, p))

	p.Options = []model.PollOption{
		{Position: 0, Label: "yes", VoteCount: 9},
		{Position: 1, Label: "no", VoteCount: 4},
	}
	p.UpdatedAt = testTime.Add(time.Minute)
	require.NoError(t, s.UpsertPoll(ctx, p))

	got, err := s.Poll(ctx, p.Key)
	require.NoError(t, err)
	require.Len(t, got.Options, 2)
	assert.Equal(t, int64(9), got.Options[0].VoteCount)
	assert.Equal(t, "no", got.Options[1].Label)
}

func TestSQLite_PollViewerFlagsRoundTrip(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	p := &model.Poll{
		Key:       model.Key{Source: model.SourceTwitter, RemoteID: "500"},
		Options:   []model.PollOption{{Position: 0, Label: "yes"}},
		UpdatedAt: testTime,
	}
	p.SetViewerFlags("twitter//viewer-1", model.PollFlags{Voted: true, Selected: []int{0}})
	require.NoError(t, s.UpsertPoll(ctx, p))

	got, err := s.Poll(ctx, p.Key)
	require.NoError(t, err)
	flags := got.ViewerFlags("twitter//viewer-1")
	assert.True(t, flags.Voted)
	assert.Equal(t, []int{0}, flags.Selected)
}

func TestSQLite_NotificationRoundTrip(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	actor := testAccount("8", "grace")
	require.NoError(t, s.UpsertAccount(ctx, actor))
	author := testAccount("7", "ada")
	require.NoError(t, s.UpsertAccount(ctx, author))

	subject := &model.Post{
		Key:       model.Key{Source: model.SourceTwitter, RemoteID: "100"},
		Body:      "the liked post",
		CreatedAt: testTime,
		Author:    author,
		UpdatedAt: testTime,
	}
	require.NoError(t, s.UpsertPost(ctx, subject))

	n := &model.Notification{
		Key:       model.Key{Source: model.SourceTwitter, RemoteID: "900"},
		Type:      "like",
		Actor:     actor,
		Subject:   subject,
		UpdatedAt: testTime,
	}
	require.NoError(t, s.UpsertNotification(ctx, n))

	got, err := s.Notification(ctx, n.Key)
	require.NoError(t, err)
	assert.Equal(t, "like", got.Type)
	require.NotNil(t, got.Actor)
	assert.Equal(t, "grace", got.Actor.Handle)
	require.NotNil(t, got.Subject)
	assert.Equal(t, "the liked post", got.Subject.Body)

	// Actor-only notification leaves the subject column null.
	n2 := &model.Notification{
		Key:       model.Key{Source: model.SourceTwitter, RemoteID: "901"},
		Type:      "follow",
		Actor:     actor,
		UpdatedAt: testTime,
	}
	require.NoError(t, s.UpsertNotification(ctx, n2))
	got2, err := s.Notification(ctx, n2.Key)
	require.NoError(t, err)
	assert.Nil(t, got2.Subject)
}

func TestSQLite_ListAndSavedSearchRoundTrip(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	owner := testAccount("7", "ada")
	require.NoError(t, s.UpsertAccount(ctx, owner))

	l := &model.List{
		Key:         model.Key{Source: model.SourceTwitter, RemoteID: "300"},
		Title:       "compilers",
		Description: "language people",
		Owner:       owner,
		UpdatedAt:   testTime,
	}
	require.NoError(t, s.UpsertList(ctx, l))
	gotList, err := s.List(ctx, l.Key)
	require.NoError(t, err)
	assert.Equal(t, "compilers", gotList.Title)
	assert.Equal(t, owner.ID, gotList.Owner.ID)

	ss := &model.SavedSearch{
		Key:       model.Key{Source: model.SourceTwitter, RemoteID: "400"},
		Query:     "golang",
		Owner:     owner,
		UpdatedAt: testTime,
	}
	require.NoError(t, s.UpsertSavedSearch(ctx, ss))
	gotSearch, err := s.SavedSearch(ctx, ss.Key)
	require.NoError(t, err)
	assert.Equal(t, "golang", gotSearch.Query)
}
