package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/wire"
)

// PostResult reports the outcome of one post reconciliation.
type PostResult struct {
	Post *model.Post

	// Created is true when the post itself was inserted.
	Created bool

	// AuthorCreated is true when reconciling this post inserted its
	// author account as a side effect.
	AuthorCreated bool
}

// CreateOrMergePost reconciles one post payload and its embedded
// sub-entities (author, repost/quote targets, poll), children first.
func (e *Engine) CreateOrMergePost(ctx context.Context, w *wire.Post, opts ApplyOptions) (PostResult, error) {
	ps, err := e.newPass(opts)
	if err != nil {
		return PostResult{}, err
	}
	return e.createOrMergePost(ctx, ps, w)
}

func (e *Engine) createOrMergePost(ctx context.Context, ps *pass, w *wire.Post) (PostResult, error) {
	if w == nil {
		return PostResult{}, fmt.Errorf("post: %w", ErrMissingRemoteID)
	}
	key, err := entityKey(w.Source, w.Domain, w.RemoteID)
	if err != nil {
		return PostResult{}, fmt.Errorf("post: %w", err)
	}

	if !ps.entering(key) {
		// The payload references a post that is still being persisted
		// higher on this call stack. Resolve through the cache when we
		// can; otherwise drop the edge rather than recurse forever.
		if p, ok := ps.cache.post(key); ok {
			return PostResult{Post: p}, nil
		}
		ps.log.Warn("breaking cyclic post reference", "key", key.String())
		return PostResult{}, nil
	}
	defer ps.leave(key)

	existing, err := e.resolvePost(ctx, ps, key)
	if err != nil {
		return PostResult{}, err
	}
	if existing == nil {
		return e.createPost(ctx, ps, key, w)
	}
	return e.mergePost(ctx, ps, existing, w)
}

func (e *Engine) createPost(ctx context.Context, ps *pass, key model.Key, w *wire.Post) (PostResult, error) {
	if w.Author == nil {
		return PostResult{}, fmt.Errorf("post %s: %w", key, ErrMissingAuthor)
	}
	author, err := e.createOrMergeAccount(ctx, ps, w.Author)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			return PostResult{}, fmt.Errorf("post %s: %w", key, ErrMissingAuthor)
		}
		return PostResult{}, fmt.Errorf("post %s author: %w", key, err)
	}

	repost, err := e.optionalPost(ctx, ps, w.RepostOf, key, "repost target")
	if err != nil {
		return PostResult{}, err
	}
	quote, err := e.optionalPost(ctx, ps, w.QuoteOf, key, "quote target")
	if err != nil {
		return PostResult{}, err
	}
	poll, err := e.optionalPoll(ctx, ps, w.Poll, key)
	if err != nil {
		return PostResult{}, err
	}

	p := &model.Post{
		Key:       key,
		Body:      w.Body,
		CreatedAt: w.CreatedAt,
		Author:    author.Account,
		RepostOf:  repost,
		QuoteOf:   quote,
		ReplyToID: w.ReplyToID,
		Poll:      poll,
		UpdatedAt: ps.fetchedAt,
	}
	e.applyPostFlags(ps, p, w)
	if err := e.store.UpsertPost(ctx, p); err != nil {
		return PostResult{}, fmt.Errorf("create post %s: %w", key, err)
	}
	ps.cache.putPost(p)
	ps.log.Debug("post created", "key", key.String())
	return PostResult{Post: p, Created: true, AuthorCreated: author.Created}, nil
}

func (e *Engine) mergePost(ctx context.Context, ps *pass, p *model.Post, w *wire.Post) (PostResult, error) {
	changed := false
	authorCreated := false

	// A stale payload skips content and the descent into children: the
	// embedded copies are at least as old as the payload that carried
	// them, so merging them would smuggle stale content past the gate.
	if shouldApply(p.UpdatedAt, ps.fetchedAt) {
		p.Body = w.Body
		p.CreatedAt = w.CreatedAt
		p.ReplyToID = w.ReplyToID

		if w.Author != nil {
			author, err := e.createOrMergeAccount(ctx, ps, w.Author)
			switch {
			case errors.Is(err, ErrMalformed):
				// The stored author stands.
				ps.log.Warn("skipping malformed embedded author", "post", p.Key.String(), "error", err)
			case err != nil:
				return PostResult{}, fmt.Errorf("post %s author: %w", p.Key, err)
			default:
				p.Author = author.Account
				authorCreated = author.Created
			}
		}

		// Unresolvable or cyclic targets leave the stored edge as is.
		if w.RepostOf != nil {
			repost, err := e.optionalPost(ctx, ps, w.RepostOf, p.Key, "repost target")
			if err != nil {
				return PostResult{}, err
			}
			if repost != nil {
				p.RepostOf = repost
			}
		}
		if w.QuoteOf != nil {
			quote, err := e.optionalPost(ctx, ps, w.QuoteOf, p.Key, "quote target")
			if err != nil {
				return PostResult{}, err
			}
			if quote != nil {
				p.QuoteOf = quote
			}
		}
		if w.Poll != nil {
			poll, err := e.optionalPoll(ctx, ps, w.Poll, p.Key)
			if err != nil {
				return PostResult{}, err
			}
			if poll != nil {
				p.Poll = poll
			}
		}

		p.UpdatedAt = ps.fetchedAt
		changed = true
	}

	if e.applyPostFlags(ps, p, w) {
		changed = true
	}
	if changed {
		if err := e.store.UpsertPost(ctx, p); err != nil {
			return PostResult{}, fmt.Errorf("merge post %s: %w", p.Key, err)
		}
	}
	return PostResult{Post: p, AuthorCreated: authorCreated}, nil
}

// optionalPost persists an optional post edge. A malformed target is
// skipped so the parent still persists without the edge; store failures
// propagate. A cycle-broken target comes back nil.
func (e *Engine) optionalPost(ctx context.Context, ps *pass, w *wire.Post, parent model.Key, what string) (*model.Post, error) {
	if w == nil {
		return nil, nil
	}
	res, err := e.createOrMergePost(ctx, ps, w)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			ps.log.Warn("skipping unresolvable "+what, "post", parent.String(), "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("post %s %s: %w", parent, what, err)
	}
	return res.Post, nil
}

func (e *Engine) optionalPoll(ctx context.Context, ps *pass, w *wire.Poll, parent model.Key) (*model.Poll, error) {
	if w == nil {
		return nil, nil
	}
	res, err := e.createOrMergePoll(ctx, ps, w)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			ps.log.Warn("skipping malformed poll", "post", parent.String(), "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("post %s poll: %w", parent, err)
	}
	return res.Poll, nil
}

// applyPostFlags records the payload's sparse per-viewer flags. Flags
// bypass the merge gate. Reports whether anything changed.
func (e *Engine) applyPostFlags(ps *pass, p *model.Post, w *wire.Post) bool {
	if ps.viewer == "" {
		return false
	}
	if w.Reposted == nil && w.Liked == nil {
		return false
	}
	f := p.ViewerFlags(ps.viewer)
	changed := applySparse(&f.Reposted, w.Reposted)
	changed = applySparse(&f.Liked, w.Liked) || changed
	if changed {
		p.SetViewerFlags(ps.viewer, f)
	}
	return changed
}
