package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/feedgraph/feedgraph/internal/model"
)

// mastodonEnvelope is the response shape of the mastodon-like source:
// statuses nest their account objects inline, and per-viewer
// relationship flags arrive in a separate relationships list keyed by
// account id (they come from their own endpoint on the real API).
//
// All ids in a response are local to the instance the response was
// fetched from, so every entity's identity domain is the batch domain.
type mastodonEnvelope struct {
	Statuses      []*mastodonStatus       `json:"statuses"`
	Accounts      []*mastodonAccount      `json:"accounts"`
	Notifications []*mastodonNotification `json:"notifications"`
	Lists         []*mastodonList         `json:"lists"`
	Relationships []mastodonRelationship  `json:"relationships"`
}

type mastodonStatus struct {
	ID         string           `json:"id"`
	Content    string           `json:"content"`
	CreatedAt  time.Time        `json:"created_at"`
	Account    *mastodonAccount `json:"account"`
	Reblog     *mastodonStatus  `json:"reblog"`
	Quote      *mastodonStatus  `json:"quote"`
	InReplyTo  string           `json:"in_reply_to_id"`
	Poll       *mastodonPoll    `json:"poll"`
	Reblogged  *bool            `json:"reblogged"`
	Favourited *bool            `json:"favourited"`
}

type mastodonAccount struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Acct           string `json:"acct"`
	DisplayName    string `json:"display_name"`
	Note           string `json:"note"`
	Avatar         string `json:"avatar"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
	StatusesCount  int64  `json:"statuses_count"`
}

type mastodonPoll struct {
	ID      string `json:"id"`
	Options []struct {
		Title      string `json:"title"`
		VotesCount int64  `json:"votes_count"`
	} `json:"options"`
	Voted    *bool `json:"voted"`
	OwnVotes []int `json:"own_votes"`
}

type mastodonNotification struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Account *mastodonAccount `json:"account"`
	Status  *mastodonStatus  `json:"status"`
}

type mastodonList struct {
	ID      string           `json:"id"`
	Title   string           `json:"title"`
	Account *mastodonAccount `json:"account"`
}

type mastodonRelationship struct {
	ID        string `json:"id"`
	Following *bool  `json:"following"`
	Requested *bool  `json:"requested"`
	Blocking  *bool  `json:"blocking"`
	Muting    *bool  `json:"muting"`
}

// mastodonDecoder maps inline-nested payloads into the normalized
// shape. Accounts are memoized by id so one batch yields one normalized
// account per remote id, and relationship entries fold into them.
type mastodonDecoder struct {
	domain        string
	accounts      map[string]*Account
	posts         map[string]*Post
	relationships map[string]mastodonRelationship
}

// DecodeMastodonBatch parses a raw mastodon-like response fetched from
// the given instance domain into a normalized batch.
func DecodeMastodonBatch(raw []byte, domain string, fetchedAt time.Time, viewer *model.Key) (*Batch, error) {
	if domain == "" {
		return nil, fmt.Errorf("decode mastodon batch: instance domain is required")
	}

	var env mastodonEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode mastodon batch: %w", err)
	}

	d := &mastodonDecoder{
		domain:        foldIdentifier(domain),
		accounts:      make(map[string]*Account),
		posts:         make(map[string]*Post),
		relationships: make(map[string]mastodonRelationship),
	}
	for _, r := range env.Relationships {
		if r.ID != "" {
			d.relationships[r.ID] = r
		}
	}

	b := &Batch{
		Source:    model.SourceMastodon,
		Domain:    d.domain,
		FetchedAt: fetchedAt,
		Viewer:    viewer,
	}

	for _, s := range env.Statuses {
		if p := d.status(s); p != nil {
			b.Posts = append(b.Posts, p)
		}
	}

	for _, a := range env.Accounts {
		if wa := d.account(a); wa != nil {
			b.Accounts = append(b.Accounts, wa)
		}
	}

	for _, n := range env.Notifications {
		if n == nil || n.ID == "" {
			continue
		}
		b.Notifications = append(b.Notifications, &Notification{
			Source:   model.SourceMastodon,
			RemoteID: n.ID,
			Domain:   d.domain,
			Type:     n.Type,
			Actor:    d.account(n.Account),
			Subject:  d.status(n.Status),
		})
	}

	for _, l := range env.Lists {
		if l == nil || l.ID == "" {
			continue
		}
		b.Lists = append(b.Lists, &List{
			Source:   model.SourceMastodon,
			RemoteID: l.ID,
			Domain:   d.domain,
			Title:    foldText(l.Title),
			Owner:    d.account(l.Account),
		})
	}

	return b, nil
}

// status maps a nested status, reusing the memoized object when the
// same id appears more than once in the response (a boosted status also
// delivered standalone, for example).
func (d *mastodonDecoder) status(s *mastodonStatus) *Post {
	if s == nil || s.ID == "" {
		return nil
	}
	if p, ok := d.posts[s.ID]; ok {
		return p
	}

	p := &Post{
		Source:    model.SourceMastodon,
		RemoteID:  s.ID,
		Domain:    d.domain,
		Body:      foldText(s.Content),
		CreatedAt: s.CreatedAt.UTC(),
		Author:    d.account(s.Account),
		ReplyToID: s.InReplyTo,
		Reposted:  s.Reblogged,
		Liked:     s.Favourited,
	}
	// Memoize before descending: a payload nesting a status inside
	// itself resolves to the same object instead of recursing forever.
	d.posts[s.ID] = p

	if s.Reblog != nil && s.Reblog.ID != s.ID {
		p.RepostOf = d.status(s.Reblog)
	}
	if s.Quote != nil && s.Quote.ID != s.ID {
		p.QuoteOf = d.status(s.Quote)
	}

	if s.Poll != nil && s.Poll.ID != "" {
		wp := &Poll{
			Source:   model.SourceMastodon,
			RemoteID: s.Poll.ID,
			Domain:   d.domain,
			Voted:    s.Poll.Voted,
			Selected: s.Poll.OwnVotes,
		}
		for i, o := range s.Poll.Options {
			wp.Options = append(wp.Options, PollOption{
				Position:  i,
				Label:     foldText(o.Title),
				VoteCount: o.VotesCount,
			})
		}
		p.Poll = wp
	}

	return p
}

// account maps a nested account, folding in any relationship entry
// reported for it. The acct field carries the user@domain form for
// remote users; the bare username means the account is local to the
// fetched instance.
func (d *mastodonDecoder) account(a *mastodonAccount) *Account {
	if a == nil || a.ID == "" {
		return nil
	}
	if wa, ok := d.accounts[a.ID]; ok {
		return wa
	}

	handle := a.Acct
	if handle == "" {
		handle = a.Username
	}

	wa := &Account{
		Source:         model.SourceMastodon,
		RemoteID:       a.ID,
		Domain:         d.domain,
		Handle:         foldIdentifier(handle),
		DisplayName:    foldText(a.DisplayName),
		Bio:            foldText(a.Note),
		AvatarURL:      a.Avatar,
		FollowerCount:  a.FollowersCount,
		FollowingCount: a.FollowingCount,
		PostCount:      a.StatusesCount,
	}

	if r, ok := d.relationships[a.ID]; ok {
		wa.Following = r.Following
		wa.FollowRequested = r.Requested
		wa.Blocking = r.Blocking
		wa.Muting = r.Muting
	}

	d.accounts[a.ID] = wa
	return wa
}
