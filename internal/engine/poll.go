package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/wire"
)

// PollResult reports the outcome of one poll reconciliation.
type PollResult struct {
	Poll *model.Poll

	// Created is true when the poll was inserted.
	Created bool
}

// CreateOrMergePoll reconciles one poll payload into the store.
func (e *Engine) CreateOrMergePoll(ctx context.Context, w *wire.Poll, opts ApplyOptions) (PollResult, error) {
	ps, err := e.newPass(opts)
	if err != nil {
		return PollResult{}, err
	}
	return e.createOrMergePoll(ctx, ps, w)
}

func (e *Engine) createOrMergePoll(ctx context.Context, ps *pass, w *wire.Poll) (PollResult, error) {
	if w == nil {
		return PollResult{}, fmt.Errorf("poll: %w", ErrMissingRemoteID)
	}
	key, err := entityKey(w.Source, w.Domain, w.RemoteID)
	if err != nil {
		return PollResult{}, fmt.Errorf("poll: %w", err)
	}

	existing, err := e.resolvePoll(ctx, ps, key)
	if err != nil {
		return PollResult{}, err
	}

	if existing == nil {
		p := &model.Poll{
			Key:       key,
			Options:   mergeOptions(nil, w.Options),
			UpdatedAt: ps.fetchedAt,
		}
		if err := assertUniquePositions(key, p.Options); err != nil {
			return PollResult{}, err
		}
		e.applyPollFlags(ps, p, w)
		if err := e.store.UpsertPoll(ctx, p); err != nil {
			return PollResult{}, fmt.Errorf("create poll %s: %w", key, err)
		}
		ps.cache.putPoll(p)
		ps.log.Debug("poll created", "key", key.String(), "options", len(p.Options))
		return PollResult{Poll: p, Created: true}, nil
	}

	changed := false
	if shouldApply(existing.UpdatedAt, ps.fetchedAt) {
		existing.Options = mergeOptions(existing.Options, w.Options)
		if err := assertUniquePositions(key, existing.Options); err != nil {
			return PollResult{}, err
		}
		existing.UpdatedAt = ps.fetchedAt
		changed = true
	}
	if e.applyPollFlags(ps, existing, w) {
		changed = true
	}
	if changed {
		if err := e.store.UpsertPoll(ctx, existing); err != nil {
			return PollResult{}, fmt.Errorf("merge poll %s: %w", existing.Key, err)
		}
	}
	return PollResult{Poll: existing}, nil
}

// mergeOptions reconciles incoming options into the stored set by
// position: matched positions take the incoming label and vote count,
// unmatched incoming positions append. Duplicate positions collapse to
// the first occurrence, repairing both payload duplicates and any
// historical duplicates already in the store. The result is ordered by
// position.
func mergeOptions(existing []model.PollOption, incoming []wire.PollOption) []model.PollOption {
	merged := make([]model.PollOption, 0, len(existing)+len(incoming))
	index := make(map[int]int, len(existing)+len(incoming))

	for _, o := range existing {
		if _, dup := index[o.Position]; dup {
			continue
		}
		index[o.Position] = len(merged)
		merged = append(merged, o)
	}
	for _, in := range incoming {
		if i, ok := index[in.Position]; ok {
			merged[i].Label = in.Label
			merged[i].VoteCount = in.VoteCount
			continue
		}
		index[in.Position] = len(merged)
		merged = append(merged, model.PollOption{
			Position:  in.Position,
			Label:     in.Label,
			VoteCount: in.VoteCount,
		})
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Position < merged[j].Position
	})
	return merged
}

func assertUniquePositions(key model.Key, options []model.PollOption) error {
	seen := make(map[int]struct{}, len(options))
	for _, o := range options {
		if _, dup := seen[o.Position]; dup {
			return fmt.Errorf("poll %s: %w (position %d)", key, errDuplicatePositions, o.Position)
		}
		seen[o.Position] = struct{}{}
	}
	return nil
}

// applyPollFlags records the payload's sparse per-viewer flags. A nil
// Selected slice means unreported; a non-nil empty one clears the
// viewer's recorded choices. Reports whether anything changed.
func (e *Engine) applyPollFlags(ps *pass, p *model.Poll, w *wire.Poll) bool {
	if ps.viewer == "" {
		return false
	}
	if w.Voted == nil && w.Selected == nil {
		return false
	}
	f := p.ViewerFlags(ps.viewer)
	changed := applySparse(&f.Voted, w.Voted)
	if w.Selected != nil && !slices.Equal(f.Selected, w.Selected) {
		f.Selected = slices.Clone(w.Selected)
		changed = true
	}
	if changed {
		p.SetViewerFlags(ps.viewer, f)
	}
	return changed
}
