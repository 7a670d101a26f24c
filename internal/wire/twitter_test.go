package wire

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedgraph/feedgraph/internal/model"
)

var fetchedAt = time.Date(2024, 10, 9, 15, 0, 0, 0, time.UTC)

func TestDecodeTwitterBatch_ResolvesSideTableReferences(t *testing.T) {
	raw := []byte(`{
		"globalObjects": {
			"tweets": {
				"101": {
					"id_str": "101",
					"full_text": "boosting",
					"created_at": "Wed Oct 09 14:00:00 +0000 2024",
					"user_id_str": "8",
					"retweeted_status_id_str": "100",
					"retweeted": true
				},
				"100": {
					"id_str": "100",
					"full_text": "original",
					"created_at": "Wed Oct 09 13:30:00 +0000 2024",
					"user_id_str": "7",
					"in_reply_to_status_id_str": "99"
				}
			},
			"users": {
				"7": {"id_str": "7", "screen_name": "Ada", "name": "Ada L"},
				"8": {"id_str": "8", "screen_name": "grace", "name": "Grace H", "following": true}
			}
		}
	}`)

	b, err := DecodeTwitterBatch(raw, fetchedAt, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SourceTwitter, b.Source)
	assert.Empty(t, b.Domain)
	require.Len(t, b.Posts, 2)

	// Sorted by remote id regardless of map order.
	original, boost := b.Posts[0], b.Posts[1]
	assert.Equal(t, "100", original.RemoteID)
	assert.Equal(t, "99", original.ReplyToID)
	require.NotNil(t, original.Author)
	assert.Equal(t, "ada", original.Author.Handle)
	assert.Equal(t, time.Date(2024, 10, 9, 13, 30, 0, 0, time.UTC), original.CreatedAt)

	assert.Equal(t, "101", boost.RemoteID)
	require.NotNil(t, boost.RepostOf)
	assert.Same(t, original, boost.RepostOf)
	require.NotNil(t, boost.Reposted)
	assert.True(t, *boost.Reposted)

	require.Len(t, b.Accounts, 2)
	require.NotNil(t, b.Accounts[1].Following)
	assert.True(t, *b.Accounts[1].Following)
}

func TestDecodeTwitterBatch_MissingReferences(t *testing.T) {
	raw := []byte(`{
		"globalObjects": {
			"tweets": {
				"100": {
					"id_str": "100",
					"full_text": "dangling",
					"user_id_str": "404",
					"retweeted_status_id_str": "405"
				}
			},
			"users": {}
		}
	}`)

	b, err := DecodeTwitterBatch(raw, fetchedAt, nil)
	require.NoError(t, err)
	require.Len(t, b.Posts, 1)

	// Unresolvable side-table refs surface as nil; the engine decides
	// whether that makes the entity malformed.
	assert.Nil(t, b.Posts[0].Author)
	assert.Nil(t, b.Posts[0].RepostOf)
}

func TestDecodeTwitterBatch_ReferenceLoopDropped(t *testing.T) {
	raw := []byte(`{
		"globalObjects": {
			"tweets": {
				"100": {"id_str": "100", "user_id_str": "7", "quoted_status_id_str": "101"},
				"101": {"id_str": "101", "user_id_str": "7", "quoted_status_id_str": "100"}
			},
			"users": {
				"7": {"id_str": "7", "screen_name": "ada"}
			}
		}
	}`)

	b, err := DecodeTwitterBatch(raw, fetchedAt, nil)
	require.NoError(t, err)
	require.Len(t, b.Posts, 2)

	// One direction survives, the back-edge is dropped.
	edges := 0
	for _, p := range b.Posts {
		if p.QuoteOf != nil {
			edges++
		}
	}
	assert.Equal(t, 1, edges)
}

func TestDecodeTwitterBatch_PollChoicesKeyedByPosition(t *testing.T) {
	raw := []byte(`{
		"globalObjects": {
			"tweets": {
				"100": {
					"id_str": "100",
					"user_id_str": "7",
					"poll": {
						"id_str": "500",
						"choices": [
							{"label": "yes", "count": 5},
							{"label": "no", "count": 3}
						],
						"voted": true,
						"own_votes": [0]
					}
				}
			},
			"users": {
				"7": {"id_str": "7", "screen_name": "ada"}
			}
		}
	}`)

	b, err := DecodeTwitterBatch(raw, fetchedAt, nil)
	require.NoError(t, err)
	require.Len(t, b.Posts, 1)
	poll := b.Posts[0].Poll
	require.NotNil(t, poll)
	assert.Equal(t, "500", poll.RemoteID)
	require.Len(t, poll.Options, 2)
	assert.Equal(t, 0, poll.Options[0].Position)
	assert.Equal(t, "yes", poll.Options[0].Label)
	assert.Equal(t, 1, poll.Options[1].Position)
	require.NotNil(t, poll.Voted)
	assert.Equal(t, []int{0}, poll.Selected)
}

func TestDecodeTwitterBatch_UnparseableCreatedAtWarnsAndProceeds(t *testing.T) {
	raw := []byte(`{
		"globalObjects": {
			"tweets": {
				"100": {
					"id_str": "100",
					"full_text": "clock skew",
					"created_at": "not-a-timestamp",
					"user_id_str": "7"
				}
			},
			"users": {
				"7": {"id_str": "7", "screen_name": "ada"}
			}
		}
	}`)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	b, err := DecodeTwitterBatch(raw, fetchedAt, nil)
	require.NoError(t, err)
	require.Len(t, b.Posts, 1)

	// The bad timestamp degrades to zero; the tweet itself survives.
	assert.True(t, b.Posts[0].CreatedAt.IsZero())
	assert.Equal(t, "clock skew", b.Posts[0].Body)
	assert.Contains(t, buf.String(), "unparseable tweet created_at")
	assert.Contains(t, buf.String(), "not-a-timestamp")
}

func TestDecodeTwitterBatch_InvalidJSON(t *testing.T) {
	_, err := DecodeTwitterBatch([]byte(`{"globalObjects":`), fetchedAt, nil)
	assert.Error(t, err)
}

// batchSnapshot is the stable projection used for golden comparisons;
// the full normalized structs carry pointers and timestamps that make
// byte-exact fixtures brittle.
type batchSnapshot struct {
	Source   string         `json:"source"`
	Posts    []postSnapshot `json:"posts"`
	Accounts []string       `json:"accounts"`
	Searches []string       `json:"searches"`
}

type postSnapshot struct {
	Key      string `json:"key"`
	Body     string `json:"body"`
	Author   string `json:"author"`
	RepostOf string `json:"repost_of,omitempty"`
}

func snapshotBatch(b *Batch) batchSnapshot {
	s := batchSnapshot{Source: string(b.Source)}
	for _, p := range b.Posts {
		ps := postSnapshot{
			Key:  p.Key().String(),
			Body: p.Body,
		}
		if p.Author != nil {
			ps.Author = p.Author.Handle
		}
		if p.RepostOf != nil {
			ps.RepostOf = p.RepostOf.Key().String()
		}
		s.Posts = append(s.Posts, ps)
	}
	for _, a := range b.Accounts {
		s.Accounts = append(s.Accounts, a.Key().String())
	}
	for _, ss := range b.SavedSearches {
		s.Searches = append(s.Searches, ss.Query)
	}
	return s
}

func TestDecodeTwitterBatch_Golden(t *testing.T) {
	raw := []byte(`{
		"globalObjects": {
			"tweets": {
				"100": {
					"id_str": "100",
					"full_text": "first light",
					"user_id_str": "7"
				},
				"101": {
					"id_str": "101",
					"full_text": "RT first light",
					"user_id_str": "8",
					"retweeted_status_id_str": "100"
				}
			},
			"users": {
				"7": {"id_str": "7", "screen_name": "Ada"},
				"8": {"id_str": "8", "screen_name": "grace"}
			}
		},
		"saved_searches": [
			{"id_str": "55", "query": "golang", "user_id_str": "7"}
		]
	}`)

	b, err := DecodeTwitterBatch(raw, fetchedAt, nil)
	require.NoError(t, err)

	data, err := json.MarshalIndent(snapshotBatch(b), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "twitter_home_timeline", data)
}
