package engine

import "github.com/feedgraph/feedgraph/internal/model"

// Cache is the per-batch resolution table. Every entity resolved or
// persisted during a batch is recorded here, so later references to the
// same key within the batch return the identical local object instead
// of hitting the store again.
//
// A Cache must not outlive its batch: it pins objects at their state as
// of that batch, and it is not safe for concurrent use.
type Cache struct {
	accounts      map[model.Key]*model.Account
	posts         map[model.Key]*model.Post
	polls         map[model.Key]*model.Poll
	notifications map[model.Key]*model.Notification
	lists         map[model.Key]*model.List
	searches      map[model.Key]*model.SavedSearch
}

// NewCache returns an empty cache for one batch.
func NewCache() *Cache {
	return &Cache{
		accounts:      make(map[model.Key]*model.Account),
		posts:         make(map[model.Key]*model.Post),
		polls:         make(map[model.Key]*model.Poll),
		notifications: make(map[model.Key]*model.Notification),
		lists:         make(map[model.Key]*model.List),
		searches:      make(map[model.Key]*model.SavedSearch),
	}
}

// Len reports the number of cached entities across all kinds.
func (c *Cache) Len() int {
	return len(c.accounts) + len(c.posts) + len(c.polls) +
		len(c.notifications) + len(c.lists) + len(c.searches)
}

func (c *Cache) account(k model.Key) (*model.Account, bool) {
	a, ok := c.accounts[k]
	return a, ok
}

func (c *Cache) putAccount(a *model.Account) {
	c.accounts[a.Key] = a
}

func (c *Cache) post(k model.Key) (*model.Post, bool) {
	p, ok := c.posts[k]
	return p, ok
}

func (c *Cache) putPost(p *model.Post) {
	c.posts[p.Key] = p
}

func (c *Cache) poll(k model.Key) (*model.Poll, bool) {
	p, ok := c.polls[k]
	return p, ok
}

func (c *Cache) putPoll(p *model.Poll) {
	c.polls[p.Key] = p
}

func (c *Cache) notification(k model.Key) (*model.Notification, bool) {
	n, ok := c.notifications[k]
	return n, ok
}

func (c *Cache) putNotification(n *model.Notification) {
	c.notifications[n.Key] = n
}

func (c *Cache) list(k model.Key) (*model.List, bool) {
	l, ok := c.lists[k]
	return l, ok
}

func (c *Cache) putList(l *model.List) {
	c.lists[l.Key] = l
}

func (c *Cache) search(k model.Key) (*model.SavedSearch, bool) {
	s, ok := c.searches[k]
	return s, ok
}

func (c *Cache) putSearch(s *model.SavedSearch) {
	c.searches[s.Key] = s
}
