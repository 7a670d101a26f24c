package wire

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/feedgraph/feedgraph/internal/model"
)

// twitterTimeFormat is the legacy created_at format used across the
// twitter-like API.
const twitterTimeFormat = "Mon Jan 02 15:04:05 -0700 2006"

// twitterEnvelope is the response shape of the twitter-like source:
// flat records under globalObjects, cross-referencing each other by id
// through side tables. Tweets name their author via user_id_str and
// their repost/quote targets via *_status_id_str; the referenced
// records live in the users/tweets maps.
type twitterEnvelope struct {
	GlobalObjects struct {
		Tweets        map[string]*twitterTweet        `json:"tweets"`
		Users         map[string]*twitterUser         `json:"users"`
		Notifications map[string]*twitterNotification `json:"notifications"`
	} `json:"globalObjects"`

	Lists         []twitterList        `json:"lists"`
	SavedSearches []twitterSavedSearch `json:"saved_searches"`
}

type twitterTweet struct {
	IDStr                string `json:"id_str"`
	FullText             string `json:"full_text"`
	CreatedAt            string `json:"created_at"`
	UserIDStr            string `json:"user_id_str"`
	RetweetedStatusIDStr string `json:"retweeted_status_id_str"`
	QuotedStatusIDStr    string `json:"quoted_status_id_str"`
	InReplyToStatusIDStr string `json:"in_reply_to_status_id_str"`

	Poll *twitterPoll `json:"poll"`

	Retweeted *bool `json:"retweeted"`
	Favorited *bool `json:"favorited"`
}

type twitterUser struct {
	IDStr           string `json:"id_str"`
	ScreenName      string `json:"screen_name"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url_https"`
	FollowersCount  int64  `json:"followers_count"`
	FriendsCount    int64  `json:"friends_count"`
	StatusesCount   int64  `json:"statuses_count"`

	Following     *bool `json:"following"`
	FollowRequest *bool `json:"follow_request_sent"`
	Blocking      *bool `json:"blocking"`
	Muting        *bool `json:"muting"`
}

type twitterPoll struct {
	IDStr   string `json:"id_str"`
	Choices []struct {
		Label string `json:"label"`
		Count int64  `json:"count"`
	} `json:"choices"`
	Voted    *bool `json:"voted"`
	OwnVotes []int `json:"own_votes"`
}

type twitterNotification struct {
	IDStr             string `json:"id_str"`
	Type              string `json:"type"`
	FromUserIDStr     string `json:"from_user_id_str"`
	TargetStatusIDStr string `json:"target_status_id_str"`
}

type twitterList struct {
	IDStr       string `json:"id_str"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UserIDStr   string `json:"user_id_str"`
}

type twitterSavedSearch struct {
	IDStr     string `json:"id_str"`
	Query     string `json:"query"`
	UserIDStr string `json:"user_id_str"`
}

// twitterDecoder resolves side-table references while building the
// normalized graph. Tweets are memoized by id so two references to the
// same tweet share one normalized object, and an in-progress set breaks
// reference loops a buggy payload could carry.
type twitterDecoder struct {
	env      *twitterEnvelope
	posts    map[string]*Post
	accounts map[string]*Account
	building map[string]bool
}

// DecodeTwitterBatch parses a raw twitter-like response into a
// normalized batch. fetchedAt is the response receipt time; viewer is
// the authenticated account the response was fetched as, if any.
func DecodeTwitterBatch(raw []byte, fetchedAt time.Time, viewer *model.Key) (*Batch, error) {
	var env twitterEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode twitter batch: %w", err)
	}

	d := &twitterDecoder{
		env:      &env,
		posts:    make(map[string]*Post),
		accounts: make(map[string]*Account),
		building: make(map[string]bool),
	}

	b := &Batch{
		Source:    model.SourceTwitter,
		FetchedAt: fetchedAt,
		Viewer:    viewer,
	}

	for _, t := range env.GlobalObjects.Tweets {
		if t == nil || t.IDStr == "" {
			continue
		}
		if p := d.post(t.IDStr); p != nil {
			b.Posts = append(b.Posts, p)
		}
	}

	// Standalone users that no tweet referenced still merge on their own.
	for _, u := range env.GlobalObjects.Users {
		if u == nil || u.IDStr == "" {
			continue
		}
		b.Accounts = append(b.Accounts, d.account(u.IDStr))
	}

	for _, n := range env.GlobalObjects.Notifications {
		if n == nil || n.IDStr == "" {
			continue
		}
		wn := &Notification{
			Source:   model.SourceTwitter,
			RemoteID: n.IDStr,
			Type:     n.Type,
			Actor:    d.account(n.FromUserIDStr),
			Subject:  d.post(n.TargetStatusIDStr),
		}
		b.Notifications = append(b.Notifications, wn)
	}

	for _, l := range env.Lists {
		b.Lists = append(b.Lists, &List{
			Source:      model.SourceTwitter,
			RemoteID:    l.IDStr,
			Title:       foldText(l.Name),
			Description: foldText(l.Description),
			Owner:       d.account(l.UserIDStr),
		})
	}

	for _, s := range env.SavedSearches {
		b.SavedSearches = append(b.SavedSearches, &SavedSearch{
			Source:   model.SourceTwitter,
			RemoteID: s.IDStr,
			Query:    s.Query,
			Owner:    d.account(s.UserIDStr),
		})
	}

	// The side tables are maps; sort so batch order does not depend on
	// map iteration.
	sort.Slice(b.Posts, func(i, j int) bool { return b.Posts[i].RemoteID < b.Posts[j].RemoteID })
	sort.Slice(b.Accounts, func(i, j int) bool { return b.Accounts[i].RemoteID < b.Accounts[j].RemoteID })
	sort.Slice(b.Notifications, func(i, j int) bool { return b.Notifications[i].RemoteID < b.Notifications[j].RemoteID })

	return b, nil
}

// post resolves a tweet id against the side table. Returns nil for an
// empty id, an id missing from the table, or an id currently being
// built (a reference loop) - the caller drops the edge in all three
// cases.
func (d *twitterDecoder) post(id string) *Post {
	if id == "" {
		return nil
	}
	if p, ok := d.posts[id]; ok {
		return p
	}
	if d.building[id] {
		return nil
	}
	t, ok := d.env.GlobalObjects.Tweets[id]
	if !ok || t == nil {
		return nil
	}

	d.building[id] = true
	defer delete(d.building, id)

	p := &Post{
		Source:    model.SourceTwitter,
		RemoteID:  t.IDStr,
		Body:      foldText(t.FullText),
		Author:    d.account(t.UserIDStr),
		ReplyToID: t.InReplyToStatusIDStr,
		Reposted:  t.Retweeted,
		Liked:     t.Favorited,
	}

	if t.CreatedAt != "" {
		if ts, err := time.Parse(twitterTimeFormat, t.CreatedAt); err == nil {
			p.CreatedAt = ts.UTC()
		} else {
			// An unparseable timestamp degrades to the zero time rather
			// than rejecting the whole tweet.
			slog.Warn("unparseable tweet created_at", "tweet", t.IDStr, "created_at", t.CreatedAt)
		}
	}

	p.RepostOf = d.post(t.RetweetedStatusIDStr)
	p.QuoteOf = d.post(t.QuotedStatusIDStr)

	if t.Poll != nil && t.Poll.IDStr != "" {
		wp := &Poll{
			Source:   model.SourceTwitter,
			RemoteID: t.Poll.IDStr,
			Voted:    t.Poll.Voted,
			Selected: t.Poll.OwnVotes,
		}
		for i, c := range t.Poll.Choices {
			wp.Options = append(wp.Options, PollOption{
				Position:  i,
				Label:     foldText(c.Label),
				VoteCount: c.Count,
			})
		}
		p.Poll = wp
	}

	d.posts[id] = p
	return p
}

// account resolves a user id against the side table. Returns nil when
// the id is empty or absent, which callers surface as a skipped edge or
// a malformed post, depending on whether the edge is required.
func (d *twitterDecoder) account(id string) *Account {
	if id == "" {
		return nil
	}
	if a, ok := d.accounts[id]; ok {
		return a
	}
	u, ok := d.env.GlobalObjects.Users[id]
	if !ok || u == nil {
		return nil
	}

	a := &Account{
		Source:          model.SourceTwitter,
		RemoteID:        u.IDStr,
		Handle:          foldIdentifier(u.ScreenName),
		DisplayName:     foldText(u.Name),
		Bio:             foldText(u.Description),
		AvatarURL:       u.ProfileImageURL,
		FollowerCount:   u.FollowersCount,
		FollowingCount:  u.FriendsCount,
		PostCount:       u.StatusesCount,
		Following:       u.Following,
		FollowRequested: u.FollowRequest,
		Blocking:        u.Blocking,
		Muting:          u.Muting,
	}
	d.accounts[id] = a
	return a
}
