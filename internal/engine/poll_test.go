package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/wire"
)

func twPoll(id string, options ...wire.PollOption) *wire.Poll {
	return &wire.Poll{
		Source:   model.SourceTwitter,
		RemoteID: id,
		Options:  options,
	}
}

func TestMergeOptions(t *testing.T) {
	tests := []struct {
		name     string
		existing []model.PollOption
		incoming []wire.PollOption
		want     []model.PollOption
	}{
		{
			name: "fresh create keeps payload order by position",
			incoming: []wire.PollOption{
				{Position: 1, Label: "no", VoteCount: 3},
				{Position: 0, Label: "yes", VoteCount: 5},
			},
			want: []model.PollOption{
				{Position: 0, Label: "yes", VoteCount: 5},
				{Position: 1, Label: "no", VoteCount: 3},
			},
		},
		{
			name: "matched positions take incoming label and votes",
			existing: []model.PollOption{
				{Position: 0, Label: "yes", VoteCount: 5},
				{Position: 1, Label: "no", VoteCount: 3},
			},
			incoming: []wire.PollOption{
				{Position: 0, Label: "yes", VoteCount: 9},
				{Position: 2, Label: "maybe", VoteCount: 1},
			},
			want: []model.PollOption{
				{Position: 0, Label: "yes", VoteCount: 9},
				{Position: 1, Label: "no", VoteCount: 3},
				{Position: 2, Label: "maybe", VoteCount: 1},
			},
		},
		{
			name: "duplicate incoming positions collapse to first",
			incoming: []wire.PollOption{
				{Position: 0, Label: "first", VoteCount: 5},
				{Position: 0, Label: "second", VoteCount: 7},
			},
			want: []model.PollOption{
				{Position: 0, Label: "first", VoteCount: 5},
			},
		},
		{
			name: "historical duplicates in the store are repaired",
			existing: []model.PollOption{
				{Position: 0, Label: "kept", VoteCount: 1},
				{Position: 0, Label: "dropped", VoteCount: 2},
			},
			incoming: []wire.PollOption{
				{Position: 1, Label: "new", VoteCount: 4},
			},
			want: []model.PollOption{
				{Position: 0, Label: "kept", VoteCount: 1},
				{Position: 1, Label: "new", VoteCount: 4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeOptions(tt.existing, tt.incoming)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateOrMergePoll_VoteCountsAdvance(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CreateOrMergePoll(ctx, twPoll("500",
		wire.PollOption{Position: 0, Label: "yes", VoteCount: 5},
		wire.PollOption{Position: 1, Label: "no", VoteCount: 3},
	), ApplyOptions{FetchedAt: t1})
	require.NoError(t, err)

	res, err := eng.CreateOrMergePoll(ctx, twPoll("500",
		wire.PollOption{Position: 0, Label: "yes", VoteCount: 12},
		wire.PollOption{Position: 1, Label: "no", VoteCount: 8},
	), ApplyOptions{FetchedAt: t2})
	require.NoError(t, err)
	assert.False(t, res.Created)

	opt, ok := res.Poll.Option(0)
	require.True(t, ok)
	assert.Equal(t, int64(12), opt.VoteCount)

	stored, err := st.Poll(ctx, res.Poll.Key)
	require.NoError(t, err)
	assert.Len(t, stored.Options, 2)
}

func TestCreateOrMergePoll_StalePayloadIgnored(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CreateOrMergePoll(ctx, twPoll("500",
		wire.PollOption{Position: 0, Label: "yes", VoteCount: 12},
	), ApplyOptions{FetchedAt: t2})
	require.NoError(t, err)
	writesBefore := st.Upserts

	res, err := eng.CreateOrMergePoll(ctx, twPoll("500",
		wire.PollOption{Position: 0, Label: "yes", VoteCount: 5},
	), ApplyOptions{FetchedAt: t1})
	require.NoError(t, err)

	opt, ok := res.Poll.Option(0)
	require.True(t, ok)
	assert.Equal(t, int64(12), opt.VoteCount)
	assert.Equal(t, writesBefore, st.Upserts)
}

func TestPollFlags_SelectedDistinguishesNilFromEmpty(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	p := twPoll("500", wire.PollOption{Position: 0, Label: "yes"})
	p.Voted = boolp(true)
	p.Selected = []int{0}
	res, err := eng.CreateOrMergePoll(ctx, p, ApplyOptions{FetchedAt: t1, Viewer: &viewerKey})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Poll.ViewerFlags(viewerKey.String()).Selected)

	// nil Selected leaves the recorded choices alone.
	p2 := twPoll("500", wire.PollOption{Position: 0, Label: "yes"})
	res, err = eng.CreateOrMergePoll(ctx, p2, ApplyOptions{FetchedAt: t2, Viewer: &viewerKey})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Poll.ViewerFlags(viewerKey.String()).Selected)

	// An explicit empty slice clears them.
	p3 := twPoll("500", wire.PollOption{Position: 0, Label: "yes"})
	p3.Selected = []int{}
	res, err = eng.CreateOrMergePoll(ctx, p3, ApplyOptions{FetchedAt: t3, Viewer: &viewerKey})
	require.NoError(t, err)
	assert.Empty(t, res.Poll.ViewerFlags(viewerKey.String()).Selected)
}

func TestCreateOrMergePost_CarriesPoll(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	p := twPost("100", "which one", twAccount("7", "ada"))
	p.Poll = twPoll("500",
		wire.PollOption{Position: 0, Label: "this"},
		wire.PollOption{Position: 1, Label: "that"},
	)
	res, err := eng.CreateOrMergePost(ctx, p, ApplyOptions{FetchedAt: t1})
	require.NoError(t, err)
	require.NotNil(t, res.Post.Poll)
	assert.NotZero(t, res.Post.Poll.ID)

	_, _, polls, _, _, _ := st.Counts()
	assert.Equal(t, 1, polls)

	stored, err := st.Post(ctx, res.Post.Key)
	require.NoError(t, err)
	require.NotNil(t, stored.Poll)
	assert.Len(t, stored.Poll.Options, 2)
}
