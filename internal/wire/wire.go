// Package wire defines the normalized wire entities consumed by the
// reconciliation engine, plus the decoders that map each network's raw
// payload format into them.
//
// The two networks disagree on payload shape (the twitter-like source
// delivers flat records with a side table of users; the mastodon-like
// source nests account objects inside statuses), so each has its own
// decoder. Everything past the decoders speaks the one shared shape.
//
// Sparse fields are pointers: nil means "this response did not report
// the field", which is different from an explicit false. The engine
// leaves stored values untouched for nil fields.
package wire

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/feedgraph/feedgraph/internal/model"
)

// Batch is one network response worth of normalized entities, all
// sharing a single fetch timestamp.
type Batch struct {
	Source model.Source

	// Domain is the instance the batch was fetched from, for federated
	// sources. Entities that do not carry their own domain inherit it.
	Domain string

	// FetchedAt is when the response was received. It is the only
	// staleness signal the merge gate uses.
	FetchedAt time.Time

	// Viewer is the authenticated account the response was fetched as,
	// if any. Per-viewer flags in the batch are attributed to it.
	Viewer *model.Key

	Posts         []*Post
	Accounts      []*Account
	Notifications []*Notification
	Lists         []*List
	SavedSearches []*SavedSearch
}

// Account is a normalized account payload.
type Account struct {
	Source   model.Source
	RemoteID string
	Domain   string

	Handle      string
	DisplayName string
	Bio         string
	AvatarURL   string

	FollowerCount  int64
	FollowingCount int64
	PostCount      int64

	// Sparse per-viewer relationship flags.
	Following       *bool
	FollowRequested *bool
	Blocking        *bool
	Muting          *bool
}

// Key returns the account's identity key.
func (a *Account) Key() model.Key {
	return model.Key{Source: a.Source, Domain: a.Domain, RemoteID: a.RemoteID}
}

// Post is a normalized status payload with its embedded sub-entities.
type Post struct {
	Source   model.Source
	RemoteID string
	Domain   string

	Body      string
	CreatedAt time.Time

	// Author is required; a post without a resolvable author is
	// rejected as malformed.
	Author *Account

	RepostOf  *Post
	QuoteOf   *Post
	ReplyToID string

	Poll *Poll

	// Sparse per-viewer flags.
	Reposted *bool
	Liked    *bool
}

// Key returns the post's identity key.
func (p *Post) Key() model.Key {
	return model.Key{Source: p.Source, Domain: p.Domain, RemoteID: p.RemoteID}
}

// PollOption is one normalized poll choice, keyed by position.
type PollOption struct {
	Position  int
	Label     string
	VoteCount int64
}

// Poll is a normalized poll payload.
type Poll struct {
	Source   model.Source
	RemoteID string
	Domain   string

	Options []PollOption

	// Sparse per-viewer flags. Selected is nil when unreported and
	// non-nil (possibly empty) when the response stated the viewer's
	// choices.
	Voted    *bool
	Selected []int
}

// Key returns the poll's identity key.
func (p *Poll) Key() model.Key {
	return model.Key{Source: p.Source, Domain: p.Domain, RemoteID: p.RemoteID}
}

// Notification is a normalized notification payload.
type Notification struct {
	Source   model.Source
	RemoteID string
	Domain   string

	Type string

	// Actor is required.
	Actor *Account

	// Subject is optional; an unresolvable subject is dropped and the
	// notification persists actor-only.
	Subject *Post
}

// Key returns the notification's identity key.
func (n *Notification) Key() model.Key {
	return model.Key{Source: n.Source, Domain: n.Domain, RemoteID: n.RemoteID}
}

// List is a normalized list payload.
type List struct {
	Source   model.Source
	RemoteID string
	Domain   string

	Title       string
	Description string

	// Owner is required.
	Owner *Account
}

// Key returns the list's identity key.
func (l *List) Key() model.Key {
	return model.Key{Source: l.Source, Domain: l.Domain, RemoteID: l.RemoteID}
}

// SavedSearch is a normalized saved-search payload.
type SavedSearch struct {
	Source   model.Source
	RemoteID string
	Domain   string

	Query string

	// Owner is required.
	Owner *Account
}

// Key returns the saved search's identity key.
func (s *SavedSearch) Key() model.Key {
	return model.Key{Source: s.Source, Domain: s.Domain, RemoteID: s.RemoteID}
}

// foldIdentifier canonicalizes handles and domains: NFC so the identity
// key is byte-stable across differently-composed responses, lowercased
// because both networks treat these as case-insensitive.
func foldIdentifier(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// foldText NFC-normalizes display text without changing case.
func foldText(s string) string {
	return norm.NFC.String(s)
}
