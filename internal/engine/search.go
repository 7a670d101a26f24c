package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/wire"
)

// SearchResult reports the outcome of one saved-search reconciliation.
type SearchResult struct {
	Search *model.SavedSearch

	Created      bool
	OwnerCreated bool
}

// CreateOrMergeSavedSearch reconciles one saved-search payload. The
// owning account is required.
func (e *Engine) CreateOrMergeSavedSearch(ctx context.Context, w *wire.SavedSearch, opts ApplyOptions) (SearchResult, error) {
	ps, err := e.newPass(opts)
	if err != nil {
		return SearchResult{}, err
	}
	return e.createOrMergeSavedSearch(ctx, ps, w)
}

func (e *Engine) createOrMergeSavedSearch(ctx context.Context, ps *pass, w *wire.SavedSearch) (SearchResult, error) {
	if w == nil {
		return SearchResult{}, fmt.Errorf("saved search: %w", ErrMissingRemoteID)
	}
	key, err := entityKey(w.Source, w.Domain, w.RemoteID)
	if err != nil {
		return SearchResult{}, fmt.Errorf("saved search: %w", err)
	}

	existing, err := e.resolveSearch(ctx, ps, key)
	if err != nil {
		return SearchResult{}, err
	}

	if existing == nil {
		if w.Owner == nil {
			return SearchResult{}, fmt.Errorf("saved search %s: %w", key, ErrMissingOwner)
		}
		owner, err := e.createOrMergeAccount(ctx, ps, w.Owner)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				return SearchResult{}, fmt.Errorf("saved search %s: %w", key, ErrMissingOwner)
			}
			return SearchResult{}, fmt.Errorf("saved search %s owner: %w", key, err)
		}
		s := &model.SavedSearch{
			Key:       key,
			Query:     w.Query,
			Owner:     owner.Account,
			UpdatedAt: ps.fetchedAt,
		}
		if err := e.store.UpsertSavedSearch(ctx, s); err != nil {
			return SearchResult{}, fmt.Errorf("create saved search %s: %w", key, err)
		}
		ps.cache.putSearch(s)
		ps.log.Debug("saved search created", "key", key.String())
		return SearchResult{Search: s, Created: true, OwnerCreated: owner.Created}, nil
	}

	if !shouldApply(existing.UpdatedAt, ps.fetchedAt) {
		return SearchResult{Search: existing}, nil
	}

	ownerCreated := false
	if w.Owner != nil {
		owner, err := e.createOrMergeAccount(ctx, ps, w.Owner)
		switch {
		case errors.Is(err, ErrMalformed):
			ps.log.Warn("skipping malformed embedded owner", "search", existing.Key.String(), "error", err)
		case err != nil:
			return SearchResult{}, fmt.Errorf("saved search %s owner: %w", existing.Key, err)
		default:
			existing.Owner = owner.Account
			ownerCreated = owner.Created
		}
	}
	existing.Query = w.Query
	existing.UpdatedAt = ps.fetchedAt
	if err := e.store.UpsertSavedSearch(ctx, existing); err != nil {
		return SearchResult{}, fmt.Errorf("merge saved search %s: %w", existing.Key, err)
	}
	return SearchResult{Search: existing, OwnerCreated: ownerCreated}, nil
}
