// Package model defines the shared entity graph persisted by the
// reconciliation engine.
//
// Entities from both networks are normalized into one set of types.
// Identity is the composite key (source, domain, remote id): remote ids
// are only unique within a source, and for the federated source only
// within an instance domain. The engine guarantees at most one local
// object per key for the lifetime of the store.
package model

import (
	"fmt"
	"time"
)

// Source identifies which network an entity originated from.
type Source string

const (
	// SourceTwitter is the centralized, single-domain network.
	SourceTwitter Source = "twitter"

	// SourceMastodon is the federated network. Entities from it carry
	// an instance domain as part of their identity.
	SourceMastodon Source = "mastodon"
)

// Key is the composite identity of a remote entity.
//
// Domain is empty for single-domain sources. A Key with an empty
// RemoteID is invalid and never persisted.
type Key struct {
	Source   Source
	Domain   string
	RemoteID string
}

// Valid reports whether the key can identify an entity.
func (k Key) Valid() bool {
	return k.Source != "" && k.RemoteID != ""
}

// String renders the key as source/domain/remote-id for logs and CLI
// lookups. The domain segment is kept even when empty so the format
// parses unambiguously.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Source, k.Domain, k.RemoteID)
}

// AccountFlags are the per-viewer relationship flags for an account.
// They describe the viewer's relationship to the account, not the
// account's own state.
type AccountFlags struct {
	Following       bool `json:"following,omitempty"`
	FollowRequested bool `json:"follow_requested,omitempty"`
	Blocking        bool `json:"blocking,omitempty"`
	Muting          bool `json:"muting,omitempty"`
}

// Account is a user profile on either network.
//
// Accounts are created on first sighting of their remote id and mutated
// on later sightings. The engine never deletes accounts.
type Account struct {
	// ID is the local store identifier. Zero until persisted.
	ID int64

	Key Key

	Handle      string
	DisplayName string
	Bio         string
	AvatarURL   string

	FollowerCount  int64
	FollowingCount int64
	PostCount      int64

	// Viewer holds per-viewer relationship flags keyed by the viewing
	// account's Key.String(). Nil when no viewer has been recorded.
	Viewer map[string]AccountFlags

	// UpdatedAt is the fetch timestamp of the last response applied to
	// this account. The merge gate compares against it.
	UpdatedAt time.Time
}

// ViewerFlags returns the flags recorded for a viewer key, zero if none.
func (a *Account) ViewerFlags(viewer string) AccountFlags {
	return a.Viewer[viewer]
}

// SetViewerFlags records flags for a viewer key, allocating the map on
// first use.
func (a *Account) SetViewerFlags(viewer string, f AccountFlags) {
	if a.Viewer == nil {
		a.Viewer = make(map[string]AccountFlags)
	}
	a.Viewer[viewer] = f
}

// PostFlags are the per-viewer flags for a post.
type PostFlags struct {
	Reposted bool `json:"reposted,omitempty"`
	Liked    bool `json:"liked,omitempty"`
}

// Post is a status on either network.
//
// The repost/quote edges form a directed graph. The engine persists at
// most one object per key and refuses to persist a cyclic edge, so the
// stored graph is acyclic even if a response claims otherwise.
type Post struct {
	ID int64

	Key Key

	Body      string
	CreatedAt time.Time

	// Author is the owning account. Always set on a persisted post.
	Author *Account

	// RepostOf and QuoteOf are optional edges to other posts.
	RepostOf *Post
	QuoteOf  *Post

	// ReplyToID is the remote id of the post this replies to. Kept as
	// a reference rather than a resolved edge: reply targets are not
	// delivered inside the payload.
	ReplyToID string

	Poll *Poll

	Viewer map[string]PostFlags

	UpdatedAt time.Time
}

// ViewerFlags returns the flags recorded for a viewer key, zero if none.
func (p *Post) ViewerFlags(viewer string) PostFlags {
	return p.Viewer[viewer]
}

// SetViewerFlags records flags for a viewer key.
func (p *Post) SetViewerFlags(viewer string, f PostFlags) {
	if p.Viewer == nil {
		p.Viewer = make(map[string]PostFlags)
	}
	p.Viewer[viewer] = f
}

// PollOption is one choice in a poll. Options have no stable remote id;
// they are identified by position within their poll, and positions are
// unique after any merge.
type PollOption struct {
	Position  int
	Label     string
	VoteCount int64
}

// PollFlags are the per-viewer flags for a poll. Selected holds the
// positions the viewer voted for.
type PollFlags struct {
	Voted    bool  `json:"voted,omitempty"`
	Selected []int `json:"selected,omitempty"`
}

// Poll is an attached poll. Options are ordered by position.
type Poll struct {
	ID int64

	Key Key

	Options []PollOption

	Viewer map[string]PollFlags

	UpdatedAt time.Time
}

// ViewerFlags returns the flags recorded for a viewer key, zero if none.
func (p *Poll) ViewerFlags(viewer string) PollFlags {
	return p.Viewer[viewer]
}

// SetViewerFlags records flags for a viewer key.
func (p *Poll) SetViewerFlags(viewer string, f PollFlags) {
	if p.Viewer == nil {
		p.Viewer = make(map[string]PollFlags)
	}
	p.Viewer[viewer] = f
}

// Option returns the option at the given position and whether it exists.
func (p *Poll) Option(position int) (PollOption, bool) {
	for _, o := range p.Options {
		if o.Position == position {
			return o, true
		}
	}
	return PollOption{}, false
}

// Notification is a composite entity: it references an actor account
// and optionally a subject post, both persisted through their own
// engines before the notification itself.
type Notification struct {
	ID int64

	Key Key

	// Type is the source-reported notification kind (follow, mention,
	// repost, like, poll, ...). Opaque to the engine.
	Type string

	// Actor is the account that triggered the notification. Required.
	Actor *Account

	// Subject is the post the notification is about, when there is one.
	Subject *Post

	UpdatedAt time.Time
}

// List is a user-curated list of accounts. Only the owning relationship
// is modeled; membership is fetched and reconciled elsewhere.
type List struct {
	ID int64

	Key Key

	Title       string
	Description string

	// Owner is the account the list belongs to. Required.
	Owner *Account

	UpdatedAt time.Time
}

// SavedSearch is a persisted search query owned by an account.
type SavedSearch struct {
	ID int64

	Key Key

	Query string

	// Owner is the account the search belongs to. Required.
	Owner *Account

	UpdatedAt time.Time
}
