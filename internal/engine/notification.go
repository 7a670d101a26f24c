package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/wire"
)

// NotificationResult reports the outcome of one notification
// reconciliation, including which referenced entities were inserted as
// side effects.
type NotificationResult struct {
	Notification *model.Notification

	Created        bool
	ActorCreated   bool
	SubjectCreated bool
}

// CreateOrMergeNotification reconciles one notification payload. The
// actor account is required; the subject post is persisted when it
// resolves and dropped otherwise.
func (e *Engine) CreateOrMergeNotification(ctx context.Context, w *wire.Notification, opts ApplyOptions) (NotificationResult, error) {
	ps, err := e.newPass(opts)
	if err != nil {
		return NotificationResult{}, err
	}
	return e.createOrMergeNotification(ctx, ps, w)
}

func (e *Engine) createOrMergeNotification(ctx context.Context, ps *pass, w *wire.Notification) (NotificationResult, error) {
	if w == nil {
		return NotificationResult{}, fmt.Errorf("notification: %w", ErrMissingRemoteID)
	}
	key, err := entityKey(w.Source, w.Domain, w.RemoteID)
	if err != nil {
		return NotificationResult{}, fmt.Errorf("notification: %w", err)
	}

	existing, err := e.resolveNotification(ctx, ps, key)
	if err != nil {
		return NotificationResult{}, err
	}
	if existing == nil {
		return e.createNotification(ctx, ps, key, w)
	}
	return e.mergeNotification(ctx, ps, existing, w)
}

func (e *Engine) createNotification(ctx context.Context, ps *pass, key model.Key, w *wire.Notification) (NotificationResult, error) {
	if w.Actor == nil {
		return NotificationResult{}, fmt.Errorf("notification %s: %w", key, ErrMissingActor)
	}
	actor, err := e.createOrMergeAccount(ctx, ps, w.Actor)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			return NotificationResult{}, fmt.Errorf("notification %s: %w", key, ErrMissingActor)
		}
		return NotificationResult{}, fmt.Errorf("notification %s actor: %w", key, err)
	}

	subject, subjectCreated, err := e.notificationSubject(ctx, ps, key, w.Subject)
	if err != nil {
		return NotificationResult{}, err
	}

	n := &model.Notification{
		Key:       key,
		Type:      w.Type,
		Actor:     actor.Account,
		Subject:   subject,
		UpdatedAt: ps.fetchedAt,
	}
	if err := e.store.UpsertNotification(ctx, n); err != nil {
		return NotificationResult{}, fmt.Errorf("create notification %s: %w", key, err)
	}
	ps.cache.putNotification(n)
	ps.log.Debug("notification created", "key", key.String(), "type", n.Type)
	return NotificationResult{
		Notification:   n,
		Created:        true,
		ActorCreated:   actor.Created,
		SubjectCreated: subjectCreated,
	}, nil
}

func (e *Engine) mergeNotification(ctx context.Context, ps *pass, n *model.Notification, w *wire.Notification) (NotificationResult, error) {
	if !shouldApply(n.UpdatedAt, ps.fetchedAt) {
		return NotificationResult{Notification: n}, nil
	}

	actorCreated := false
	if w.Actor != nil {
		actor, err := e.createOrMergeAccount(ctx, ps, w.Actor)
		switch {
		case errors.Is(err, ErrMalformed):
			ps.log.Warn("skipping malformed embedded actor", "notification", n.Key.String(), "error", err)
		case err != nil:
			return NotificationResult{}, fmt.Errorf("notification %s actor: %w", n.Key, err)
		default:
			n.Actor = actor.Account
			actorCreated = actor.Created
		}
	}

	subjectCreated := false
	if w.Subject != nil {
		subject, created, err := e.notificationSubject(ctx, ps, n.Key, w.Subject)
		if err != nil {
			return NotificationResult{}, err
		}
		if subject != nil {
			n.Subject = subject
			subjectCreated = created
		}
	}

	n.Type = w.Type
	n.UpdatedAt = ps.fetchedAt
	if err := e.store.UpsertNotification(ctx, n); err != nil {
		return NotificationResult{}, fmt.Errorf("merge notification %s: %w", n.Key, err)
	}
	return NotificationResult{
		Notification:   n,
		ActorCreated:   actorCreated,
		SubjectCreated: subjectCreated,
	}, nil
}

// notificationSubject persists the optional subject post. A malformed
// subject is dropped so the notification still persists actor-only.
func (e *Engine) notificationSubject(ctx context.Context, ps *pass, parent model.Key, w *wire.Post) (*model.Post, bool, error) {
	if w == nil {
		return nil, false, nil
	}
	res, err := e.createOrMergePost(ctx, ps, w)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			ps.log.Warn("skipping unresolvable subject", "notification", parent.String(), "error", err)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("notification %s subject: %w", parent, err)
	}
	return res.Post, res.Created, nil
}
