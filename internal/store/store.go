// Package store provides durable storage for the reconciled entity
// graph, behind a port the engine consumes.
//
// Two backends implement the port: SQLite for a local single-file
// store and Postgres for a shared one. Both resolve entities by the
// composite identity key (source, domain, remote id) and perform
// idempotent upserts keyed on it.
//
// The store does not serialize writers. The engine's caller owns the
// single-writer discipline; see the engine package.
package store

import (
	"context"
	"errors"

	"github.com/feedgraph/feedgraph/internal/model"
)

// ErrNotFound is returned by lookup methods when no entity matches the
// key. Callers must distinguish it from infrastructure failures: the
// engine treats ErrNotFound as "create" and anything else as an abort.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence port consumed by the reconciliation engine.
//
// Lookup methods query by the full composite key and return at most one
// entity, or ErrNotFound. Loaded posts carry their author and one hop
// of repost/quote edges; deeper graph reconstruction goes through the
// engine's recursive resolution.
//
// Upsert methods insert or update by the same key and fill in the
// entity's local ID on insert. Upserting a post, notification, list,
// or saved search requires its referenced entities (author,
// repost/quote targets, poll, actor, subject, owner) to already be
// persisted; the engine's child-first ordering guarantees that.
type Store interface {
	Account(ctx context.Context, key model.Key) (*model.Account, error)
	UpsertAccount(ctx context.Context, a *model.Account) error

	Post(ctx context.Context, key model.Key) (*model.Post, error)
	UpsertPost(ctx context.Context, p *model.Post) error

	Poll(ctx context.Context, key model.Key) (*model.Poll, error)
	UpsertPoll(ctx context.Context, p *model.Poll) error

	Notification(ctx context.Context, key model.Key) (*model.Notification, error)
	UpsertNotification(ctx context.Context, n *model.Notification) error

	List(ctx context.Context, key model.Key) (*model.List, error)
	UpsertList(ctx context.Context, l *model.List) error

	SavedSearch(ctx context.Context, key model.Key) (*model.SavedSearch, error)
	UpsertSavedSearch(ctx context.Context, s *model.SavedSearch) error

	Close() error
}
