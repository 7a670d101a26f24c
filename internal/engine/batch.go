package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedgraph/feedgraph/internal/wire"
)

// Summary reports what one batch application did. Counts cover the
// batch's top-level entities; entities persisted as embedded children
// (authors, repost targets, polls) are not counted separately.
type Summary struct {
	BatchID string

	AccountsCreated      int
	AccountsMerged       int
	PostsCreated         int
	PostsMerged          int
	NotificationsCreated int
	NotificationsMerged  int
	ListsCreated         int
	ListsMerged          int
	SearchesCreated      int
	SearchesMerged       int

	// Skipped counts top-level entities rejected as malformed. They
	// are logged and dropped; they never abort the batch.
	Skipped int
}

// ApplyBatch reconciles every entity of one decoded response under a
// single batch cache and fetch timestamp. Malformed entities are
// skipped; the first infrastructure failure aborts the batch. An
// aborted batch is safe to replay: every applied entity is idempotent
// under its fetch timestamp.
func (e *Engine) ApplyBatch(ctx context.Context, b *wire.Batch) (*Summary, error) {
	if b == nil {
		return nil, fmt.Errorf("apply batch: nil batch")
	}
	ps, err := e.newPass(ApplyOptions{FetchedAt: b.FetchedAt, Viewer: b.Viewer})
	if err != nil {
		return nil, err
	}
	s := &Summary{BatchID: ps.batchID}
	ps.log.Info("applying batch",
		"source", string(b.Source),
		"domain", b.Domain,
		"posts", len(b.Posts),
		"accounts", len(b.Accounts),
		"notifications", len(b.Notifications))

	for _, w := range b.Accounts {
		res, err := e.createOrMergeAccount(ctx, ps, w)
		if err != nil {
			if skippable(ps, "account", err, s) {
				continue
			}
			return nil, err
		}
		count(res.Created, &s.AccountsCreated, &s.AccountsMerged)
	}
	for _, w := range b.Posts {
		res, err := e.createOrMergePost(ctx, ps, w)
		if err != nil {
			if skippable(ps, "post", err, s) {
				continue
			}
			return nil, err
		}
		count(res.Created, &s.PostsCreated, &s.PostsMerged)
	}
	for _, w := range b.Notifications {
		res, err := e.createOrMergeNotification(ctx, ps, w)
		if err != nil {
			if skippable(ps, "notification", err, s) {
				continue
			}
			return nil, err
		}
		count(res.Created, &s.NotificationsCreated, &s.NotificationsMerged)
	}
	for _, w := range b.Lists {
		res, err := e.createOrMergeList(ctx, ps, w)
		if err != nil {
			if skippable(ps, "list", err, s) {
				continue
			}
			return nil, err
		}
		count(res.Created, &s.ListsCreated, &s.ListsMerged)
	}
	for _, w := range b.SavedSearches {
		res, err := e.createOrMergeSavedSearch(ctx, ps, w)
		if err != nil {
			if skippable(ps, "saved search", err, s) {
				continue
			}
			return nil, err
		}
		count(res.Created, &s.SearchesCreated, &s.SearchesMerged)
	}

	ps.log.Info("batch applied",
		"accounts_created", s.AccountsCreated,
		"posts_created", s.PostsCreated,
		"notifications_created", s.NotificationsCreated,
		"skipped", s.Skipped)
	return s, nil
}

// skippable logs and counts a malformed top-level entity. Anything
// else is an infrastructure failure and must abort.
func skippable(ps *pass, kind string, err error, s *Summary) bool {
	if !errors.Is(err, ErrMalformed) {
		return false
	}
	ps.log.Warn("skipping malformed "+kind, "error", err)
	s.Skipped++
	return true
}

func count(created bool, createdN, mergedN *int) {
	if created {
		*createdN++
	} else {
		*mergedN++
	}
}
