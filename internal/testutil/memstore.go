package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/store"
)

// MemStore is an in-memory store.Store for engine tests.
//
// It mirrors the contract of the SQL backends: lookups return copies,
// never aliases of stored state, and upserting a post or notification
// whose referenced entities have no store ID fails, which catches
// child-first ordering bugs. Not safe for concurrent use; engine tests
// are single-writer like production.
type MemStore struct {
	accounts      map[model.Key]*model.Account
	posts         map[model.Key]*model.Post
	polls         map[model.Key]*model.Poll
	notifications map[model.Key]*model.Notification
	lists         map[model.Key]*model.List
	searches      map[model.Key]*model.SavedSearch

	nextID int64

	// Upserts counts every write, across all kinds. Tests assert on it
	// to prove the merge gate suppressed redundant writes.
	Upserts int

	// ReadErr and WriteErr, when set, fail every lookup or write with
	// the given error. Used to exercise fail-closed resolution.
	ReadErr  error
	WriteErr error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts:      make(map[model.Key]*model.Account),
		posts:         make(map[model.Key]*model.Post),
		polls:         make(map[model.Key]*model.Poll),
		notifications: make(map[model.Key]*model.Notification),
		lists:         make(map[model.Key]*model.List),
		searches:      make(map[model.Key]*model.SavedSearch),
	}
}

// Close implements store.Store.
func (m *MemStore) Close() error { return nil }

// Counts returns the number of stored entities per kind, for test
// assertions.
func (m *MemStore) Counts() (accounts, posts, polls, notifications, lists, searches int) {
	return len(m.accounts), len(m.posts), len(m.polls),
		len(m.notifications), len(m.lists), len(m.searches)
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemStore) Account(_ context.Context, key model.Key) (*model.Account, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	a, ok := m.accounts[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (m *MemStore) UpsertAccount(_ context.Context, a *model.Account) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if existing, ok := m.accounts[a.Key]; ok {
		a.ID = existing.ID
	} else if a.ID == 0 {
		a.ID = m.id()
	}
	m.accounts[a.Key] = cloneAccount(a)
	m.Upserts++
	return nil
}

func (m *MemStore) Post(_ context.Context, key model.Key) (*model.Post, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	p, ok := m.posts[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePost(p, true), nil
}

func (m *MemStore) UpsertPost(_ context.Context, p *model.Post) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if p.Author == nil || p.Author.ID == 0 {
		return fmt.Errorf("upsert post %s: author not persisted", p.Key)
	}
	if p.RepostOf != nil && p.RepostOf.ID == 0 {
		return fmt.Errorf("upsert post %s: repost target not persisted", p.Key)
	}
	if p.QuoteOf != nil && p.QuoteOf.ID == 0 {
		return fmt.Errorf("upsert post %s: quote target not persisted", p.Key)
	}
	if p.Poll != nil && p.Poll.ID == 0 {
		return fmt.Errorf("upsert post %s: poll not persisted", p.Key)
	}
	if existing, ok := m.posts[p.Key]; ok {
		p.ID = existing.ID
	} else if p.ID == 0 {
		p.ID = m.id()
	}
	m.posts[p.Key] = clonePost(p, true)
	m.Upserts++
	return nil
}

func (m *MemStore) Poll(_ context.Context, key model.Key) (*model.Poll, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	p, ok := m.polls[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePoll(p), nil
}

func (m *MemStore) UpsertPoll(_ context.Context, p *model.Poll) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if existing, ok := m.polls[p.Key]; ok {
		p.ID = existing.ID
	} else if p.ID == 0 {
		p.ID = m.id()
	}
	m.polls[p.Key] = clonePoll(p)
	m.Upserts++
	return nil
}

func (m *MemStore) Notification(_ context.Context, key model.Key) (*model.Notification, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	n, ok := m.notifications[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneNotification(n), nil
}

func (m *MemStore) UpsertNotification(_ context.Context, n *model.Notification) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if n.Actor == nil || n.Actor.ID == 0 {
		return fmt.Errorf("upsert notification %s: actor not persisted", n.Key)
	}
	if n.Subject != nil && n.Subject.ID == 0 {
		return fmt.Errorf("upsert notification %s: subject not persisted", n.Key)
	}
	if existing, ok := m.notifications[n.Key]; ok {
		n.ID = existing.ID
	} else if n.ID == 0 {
		n.ID = m.id()
	}
	m.notifications[n.Key] = cloneNotification(n)
	m.Upserts++
	return nil
}

func (m *MemStore) List(_ context.Context, key model.Key) (*model.List, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	l, ok := m.lists[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneList(l), nil
}

func (m *MemStore) UpsertList(_ context.Context, l *model.List) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if l.Owner == nil || l.Owner.ID == 0 {
		return fmt.Errorf("upsert list %s: owner not persisted", l.Key)
	}
	if existing, ok := m.lists[l.Key]; ok {
		l.ID = existing.ID
	} else if l.ID == 0 {
		l.ID = m.id()
	}
	m.lists[l.Key] = cloneList(l)
	m.Upserts++
	return nil
}

func (m *MemStore) SavedSearch(_ context.Context, key model.Key) (*model.SavedSearch, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	s, ok := m.searches[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSearch(s), nil
}

func (m *MemStore) UpsertSavedSearch(_ context.Context, s *model.SavedSearch) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if s.Owner == nil || s.Owner.ID == 0 {
		return fmt.Errorf("upsert saved search %s: owner not persisted", s.Key)
	}
	if existing, ok := m.searches[s.Key]; ok {
		s.ID = existing.ID
	} else if s.ID == 0 {
		s.ID = m.id()
	}
	m.searches[s.Key] = cloneSearch(s)
	m.Upserts++
	return nil
}

func cloneAccount(a *model.Account) *model.Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Viewer = maps.Clone(a.Viewer)
	return &c
}

// clonePost copies one hop deep, matching the SQL backends: the author
// and poll fully, repost/quote targets shallow.
func clonePost(p *model.Post, deep bool) *model.Post {
	if p == nil {
		return nil
	}
	c := *p
	c.Viewer = maps.Clone(p.Viewer)
	c.Author = cloneAccount(p.Author)
	c.Poll = clonePoll(p.Poll)
	if deep {
		c.RepostOf = clonePost(p.RepostOf, false)
		c.QuoteOf = clonePost(p.QuoteOf, false)
	} else {
		c.RepostOf = nil
		c.QuoteOf = nil
	}
	return &c
}

func clonePoll(p *model.Poll) *model.Poll {
	if p == nil {
		return nil
	}
	c := *p
	c.Options = slices.Clone(p.Options)
	c.Viewer = make(map[string]model.PollFlags, len(p.Viewer))
	for k, f := range p.Viewer {
		f.Selected = slices.Clone(f.Selected)
		c.Viewer[k] = f
	}
	if len(c.Viewer) == 0 {
		c.Viewer = nil
	}
	return &c
}

func cloneNotification(n *model.Notification) *model.Notification {
	if n == nil {
		return nil
	}
	c := *n
	c.Actor = cloneAccount(n.Actor)
	c.Subject = clonePost(n.Subject, true)
	return &c
}

func cloneList(l *model.List) *model.List {
	if l == nil {
		return nil
	}
	c := *l
	c.Owner = cloneAccount(l.Owner)
	return &c
}

func cloneSearch(s *model.SavedSearch) *model.SavedSearch {
	if s == nil {
		return nil
	}
	c := *s
	c.Owner = cloneAccount(s.Owner)
	return &c
}
