package engine

import (
	"context"
	"fmt"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/wire"
)

// AccountResult reports the outcome of one account reconciliation.
type AccountResult struct {
	Account *model.Account

	// Created is true when this call inserted the account rather than
	// merging into an existing one.
	Created bool
}

// CreateOrMergeAccount reconciles one account payload into the store.
func (e *Engine) CreateOrMergeAccount(ctx context.Context, w *wire.Account, opts ApplyOptions) (AccountResult, error) {
	ps, err := e.newPass(opts)
	if err != nil {
		return AccountResult{}, err
	}
	return e.createOrMergeAccount(ctx, ps, w)
}

func (e *Engine) createOrMergeAccount(ctx context.Context, ps *pass, w *wire.Account) (AccountResult, error) {
	if w == nil {
		return AccountResult{}, fmt.Errorf("account: %w", ErrMissingRemoteID)
	}
	key, err := entityKey(w.Source, w.Domain, w.RemoteID)
	if err != nil {
		return AccountResult{}, fmt.Errorf("account: %w", err)
	}

	existing, err := e.resolveAccount(ctx, ps, key)
	if err != nil {
		return AccountResult{}, err
	}
	if existing == nil {
		return e.createAccount(ctx, ps, key, w)
	}
	return e.mergeAccount(ctx, ps, existing, w)
}

func (e *Engine) createAccount(ctx context.Context, ps *pass, key model.Key, w *wire.Account) (AccountResult, error) {
	a := &model.Account{
		Key:            key,
		Handle:         w.Handle,
		DisplayName:    w.DisplayName,
		Bio:            w.Bio,
		AvatarURL:      w.AvatarURL,
		FollowerCount:  w.FollowerCount,
		FollowingCount: w.FollowingCount,
		PostCount:      w.PostCount,
		UpdatedAt:      ps.fetchedAt,
	}
	e.applyAccountFlags(ps, a, w)
	if err := e.store.UpsertAccount(ctx, a); err != nil {
		return AccountResult{}, fmt.Errorf("create account %s: %w", key, err)
	}
	ps.cache.putAccount(a)
	ps.log.Debug("account created", "key", key.String(), "handle", a.Handle)
	return AccountResult{Account: a, Created: true}, nil
}

func (e *Engine) mergeAccount(ctx context.Context, ps *pass, a *model.Account, w *wire.Account) (AccountResult, error) {
	changed := false
	if shouldApply(a.UpdatedAt, ps.fetchedAt) {
		a.Handle = w.Handle
		a.DisplayName = w.DisplayName
		a.Bio = w.Bio
		a.AvatarURL = w.AvatarURL
		a.FollowerCount = w.FollowerCount
		a.FollowingCount = w.FollowingCount
		a.PostCount = w.PostCount
		a.UpdatedAt = ps.fetchedAt
		changed = true
	}
	if e.applyAccountFlags(ps, a, w) {
		changed = true
	}
	if changed {
		if err := e.store.UpsertAccount(ctx, a); err != nil {
			return AccountResult{}, fmt.Errorf("merge account %s: %w", a.Key, err)
		}
	}
	return AccountResult{Account: a}, nil
}

// applyAccountFlags records the payload's sparse relationship flags for
// the batch viewer. Flags bypass the merge gate; absent flags leave the
// stored value untouched. Reports whether anything changed.
func (e *Engine) applyAccountFlags(ps *pass, a *model.Account, w *wire.Account) bool {
	if ps.viewer == "" {
		return false
	}
	if w.Following == nil && w.FollowRequested == nil && w.Blocking == nil && w.Muting == nil {
		return false
	}
	f := a.ViewerFlags(ps.viewer)
	changed := applySparse(&f.Following, w.Following)
	changed = applySparse(&f.FollowRequested, w.FollowRequested) || changed
	changed = applySparse(&f.Blocking, w.Blocking) || changed
	changed = applySparse(&f.Muting, w.Muting) || changed
	if changed {
		a.SetViewerFlags(ps.viewer, f)
	}
	return changed
}
