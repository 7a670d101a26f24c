package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/wire"
)

func TestApplyBatch_CountsAndSkipsMalformed(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	ada := twAccount("7", "ada")
	b := &wire.Batch{
		Source:    model.SourceTwitter,
		FetchedAt: t1,
		Accounts:  []*wire.Account{ada},
		Posts: []*wire.Post{
			twPost("100", "hello", ada),
			{Source: model.SourceTwitter, Body: "no remote id"},
			twPost("101", "orphan", nil),
		},
		SavedSearches: []*wire.SavedSearch{
			{Source: model.SourceTwitter, RemoteID: "400", Query: "golang", Owner: ada},
		},
	}

	s, err := eng.ApplyBatch(ctx, b)
	require.NoError(t, err)
	assert.NotEmpty(t, s.BatchID)
	assert.Equal(t, 1, s.AccountsCreated)
	assert.Equal(t, 1, s.PostsCreated)
	assert.Equal(t, 1, s.SearchesCreated)
	assert.Equal(t, 2, s.Skipped)

	accounts, posts, _, _, _, searches := st.Counts()
	assert.Equal(t, 1, accounts)
	assert.Equal(t, 1, posts)
	assert.Equal(t, 1, searches)
}

func TestApplyBatch_RedeliveryIsIdempotent(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	ada := twAccount("7", "ada")
	b := &wire.Batch{
		Source:    model.SourceTwitter,
		FetchedAt: t1,
		Accounts:  []*wire.Account{ada},
		Posts:     []*wire.Post{twPost("100", "hello", ada)},
	}

	_, err := eng.ApplyBatch(ctx, b)
	require.NoError(t, err)
	writesAfterFirst := st.Upserts

	s, err := eng.ApplyBatch(ctx, b)
	require.NoError(t, err)
	assert.Zero(t, s.AccountsCreated)
	assert.Zero(t, s.PostsCreated)
	assert.Equal(t, 1, s.AccountsMerged)
	assert.Equal(t, 1, s.PostsMerged)
	assert.Equal(t, writesAfterFirst, st.Upserts)

	accounts, posts, _, _, _, _ := st.Counts()
	assert.Equal(t, 1, accounts)
	assert.Equal(t, 1, posts)
}

func TestApplyBatch_SharedEntitiesResolvedOncePerBatch(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	// The same author appears standalone, on two posts, and as a
	// notification actor. One batch, one account row.
	ada := twAccount("7", "ada")
	b := &wire.Batch{
		Source:    model.SourceTwitter,
		FetchedAt: t1,
		Accounts:  []*wire.Account{ada},
		Posts: []*wire.Post{
			twPost("100", "one", ada),
			twPost("101", "two", ada),
		},
		Notifications: []*wire.Notification{
			{Source: model.SourceTwitter, RemoteID: "900", Type: "follow", Actor: ada},
		},
	}

	s, err := eng.ApplyBatch(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, s.AccountsCreated)
	assert.Equal(t, 2, s.PostsCreated)
	assert.Equal(t, 1, s.NotificationsCreated)

	accounts, _, _, _, _, _ := st.Counts()
	assert.Equal(t, 1, accounts)
}

func TestApplyBatch_ViewerFlagsAttributedToBatchViewer(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	followed := twAccount("7", "ada")
	followed.Following = boolp(true)
	b := &wire.Batch{
		Source:    model.SourceTwitter,
		FetchedAt: t1,
		Viewer:    &viewerKey,
		Accounts:  []*wire.Account{followed},
	}
	_, err := eng.ApplyBatch(ctx, b)
	require.NoError(t, err)

	stored, err := st.Account(ctx, followed.Key())
	require.NoError(t, err)
	assert.True(t, stored.ViewerFlags(viewerKey.String()).Following)
}

func TestApplyBatch_InfrastructureFailureAborts(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	st.WriteErr = errors.New("connection reset")
	b := &wire.Batch{
		Source:    model.SourceTwitter,
		FetchedAt: t1,
		Accounts:  []*wire.Account{twAccount("7", "ada")},
	}
	_, err := eng.ApplyBatch(ctx, b)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
}

func TestApplyBatch_NilAndMissingFetchTime(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.ApplyBatch(ctx, nil)
	assert.Error(t, err)

	_, err = eng.ApplyBatch(ctx, &wire.Batch{Source: model.SourceTwitter})
	assert.ErrorIs(t, err, ErrMissingFetchTime)
}
