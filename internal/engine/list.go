package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/wire"
)

// ListResult reports the outcome of one list reconciliation.
type ListResult struct {
	List *model.List

	Created      bool
	OwnerCreated bool
}

// CreateOrMergeList reconciles one list payload. The owning account is
// required.
func (e *Engine) CreateOrMergeList(ctx context.Context, w *wire.List, opts ApplyOptions) (ListResult, error) {
	ps, err := e.newPass(opts)
	if err != nil {
		return ListResult{}, err
	}
	return e.createOrMergeList(ctx, ps, w)
}

func (e *Engine) createOrMergeList(ctx context.Context, ps *pass, w *wire.List) (ListResult, error) {
	if w == nil {
		return ListResult{}, fmt.Errorf("list: %w", ErrMissingRemoteID)
	}
	key, err := entityKey(w.Source, w.Domain, w.RemoteID)
	if err != nil {
		return ListResult{}, fmt.Errorf("list: %w", err)
	}

	existing, err := e.resolveList(ctx, ps, key)
	if err != nil {
		return ListResult{}, err
	}

	if existing == nil {
		if w.Owner == nil {
			return ListResult{}, fmt.Errorf("list %s: %w", key, ErrMissingOwner)
		}
		owner, err := e.createOrMergeAccount(ctx, ps, w.Owner)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				return ListResult{}, fmt.Errorf("list %s: %w", key, ErrMissingOwner)
			}
			return ListResult{}, fmt.Errorf("list %s owner: %w", key, err)
		}
		l := &model.List{
			Key:         key,
			Title:       w.Title,
			Description: w.Description,
			Owner:       owner.Account,
			UpdatedAt:   ps.fetchedAt,
		}
		if err := e.store.UpsertList(ctx, l); err != nil {
			return ListResult{}, fmt.Errorf("create list %s: %w", key, err)
		}
		ps.cache.putList(l)
		ps.log.Debug("list created", "key", key.String(), "title", l.Title)
		return ListResult{List: l, Created: true, OwnerCreated: owner.Created}, nil
	}

	if !shouldApply(existing.UpdatedAt, ps.fetchedAt) {
		return ListResult{List: existing}, nil
	}

	ownerCreated := false
	if w.Owner != nil {
		owner, err := e.createOrMergeAccount(ctx, ps, w.Owner)
		switch {
		case errors.Is(err, ErrMalformed):
			ps.log.Warn("skipping malformed embedded owner", "list", existing.Key.String(), "error", err)
		case err != nil:
			return ListResult{}, fmt.Errorf("list %s owner: %w", existing.Key, err)
		default:
			existing.Owner = owner.Account
			ownerCreated = owner.Created
		}
	}
	existing.Title = w.Title
	existing.Description = w.Description
	existing.UpdatedAt = ps.fetchedAt
	if err := e.store.UpsertList(ctx, existing); err != nil {
		return ListResult{}, fmt.Errorf("merge list %s: %w", existing.Key, err)
	}
	return ListResult{List: existing, OwnerCreated: ownerCreated}, nil
}
