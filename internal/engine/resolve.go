package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/store"
)

// The resolvers answer "does this remote entity already exist locally",
// cache-first. A store miss is (nil, nil); any other store failure
// propagates, because creating an entity after a failed lookup would
// duplicate it once the store recovers.

func (e *Engine) resolveAccount(ctx context.Context, ps *pass, key model.Key) (*model.Account, error) {
	if a, ok := ps.cache.account(key); ok {
		return a, nil
	}
	a, err := e.store.Account(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve account %s: %w", key, err)
	}
	ps.cache.putAccount(a)
	return a, nil
}

func (e *Engine) resolvePost(ctx context.Context, ps *pass, key model.Key) (*model.Post, error) {
	if p, ok := ps.cache.post(key); ok {
		return p, nil
	}
	p, err := e.store.Post(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve post %s: %w", key, err)
	}
	ps.cache.putPost(p)
	return p, nil
}

func (e *Engine) resolvePoll(ctx context.Context, ps *pass, key model.Key) (*model.Poll, error) {
	if p, ok := ps.cache.poll(key); ok {
		return p, nil
	}
	p, err := e.store.Poll(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve poll %s: %w", key, err)
	}
	ps.cache.putPoll(p)
	return p, nil
}

func (e *Engine) resolveNotification(ctx context.Context, ps *pass, key model.Key) (*model.Notification, error) {
	if n, ok := ps.cache.notification(key); ok {
		return n, nil
	}
	n, err := e.store.Notification(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve notification %s: %w", key, err)
	}
	ps.cache.putNotification(n)
	return n, nil
}

func (e *Engine) resolveList(ctx context.Context, ps *pass, key model.Key) (*model.List, error) {
	if l, ok := ps.cache.list(key); ok {
		return l, nil
	}
	l, err := e.store.List(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve list %s: %w", key, err)
	}
	ps.cache.putList(l)
	return l, nil
}

func (e *Engine) resolveSearch(ctx context.Context, ps *pass, key model.Key) (*model.SavedSearch, error) {
	if s, ok := ps.cache.search(key); ok {
		return s, nil
	}
	s, err := e.store.SavedSearch(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve saved search %s: %w", key, err)
	}
	ps.cache.putSearch(s)
	return s, nil
}
