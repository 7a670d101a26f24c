package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/feedgraph/feedgraph/internal/model"
)

// postgresSchema mirrors schema.sql for Postgres.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id              BIGSERIAL PRIMARY KEY,
    source          TEXT NOT NULL,
    domain          TEXT NOT NULL DEFAULT '',
    remote_id       TEXT NOT NULL,
    handle          TEXT NOT NULL DEFAULT '',
    display_name    TEXT NOT NULL DEFAULT '',
    bio             TEXT NOT NULL DEFAULT '',
    avatar_url      TEXT NOT NULL DEFAULT '',
    follower_count  BIGINT NOT NULL DEFAULT 0,
    following_count BIGINT NOT NULL DEFAULT 0,
    post_count      BIGINT NOT NULL DEFAULT 0,
    viewer_flags    TEXT NOT NULL DEFAULT '{}',
    updated_at      TIMESTAMPTZ NOT NULL,
    UNIQUE (source, domain, remote_id)
);

CREATE TABLE IF NOT EXISTS polls (
    id           BIGSERIAL PRIMARY KEY,
    source       TEXT NOT NULL,
    domain       TEXT NOT NULL DEFAULT '',
    remote_id    TEXT NOT NULL,
    viewer_flags TEXT NOT NULL DEFAULT '{}',
    updated_at   TIMESTAMPTZ NOT NULL,
    UNIQUE (source, domain, remote_id)
);

CREATE TABLE IF NOT EXISTS poll_options (
    poll_id    BIGINT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    label      TEXT NOT NULL DEFAULT '',
    vote_count BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (poll_id, position)
);

CREATE TABLE IF NOT EXISTS posts (
    id                 BIGSERIAL PRIMARY KEY,
    source             TEXT NOT NULL,
    domain             TEXT NOT NULL DEFAULT '',
    remote_id          TEXT NOT NULL,
    body               TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL,
    author_id          BIGINT NOT NULL REFERENCES accounts(id),
    repost_of_id       BIGINT REFERENCES posts(id),
    quote_of_id        BIGINT REFERENCES posts(id),
    reply_to_remote_id TEXT NOT NULL DEFAULT '',
    poll_id            BIGINT REFERENCES polls(id),
    viewer_flags       TEXT NOT NULL DEFAULT '{}',
    updated_at         TIMESTAMPTZ NOT NULL,
    UNIQUE (source, domain, remote_id)
);

CREATE TABLE IF NOT EXISTS notifications (
    id              BIGSERIAL PRIMARY KEY,
    source          TEXT NOT NULL,
    domain          TEXT NOT NULL DEFAULT '',
    remote_id       TEXT NOT NULL,
    type            TEXT NOT NULL DEFAULT '',
    actor_id        BIGINT NOT NULL REFERENCES accounts(id),
    subject_post_id BIGINT REFERENCES posts(id),
    updated_at      TIMESTAMPTZ NOT NULL,
    UNIQUE (source, domain, remote_id)
);

CREATE TABLE IF NOT EXISTS lists (
    id          BIGSERIAL PRIMARY KEY,
    source      TEXT NOT NULL,
    domain      TEXT NOT NULL DEFAULT '',
    remote_id   TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    owner_id    BIGINT NOT NULL REFERENCES accounts(id),
    updated_at  TIMESTAMPTZ NOT NULL,
    UNIQUE (source, domain, remote_id)
);

CREATE TABLE IF NOT EXISTS saved_searches (
    id         BIGSERIAL PRIMARY KEY,
    source     TEXT NOT NULL,
    domain     TEXT NOT NULL DEFAULT '',
    remote_id  TEXT NOT NULL,
    query      TEXT NOT NULL DEFAULT '',
    owner_id   BIGINT NOT NULL REFERENCES accounts(id),
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (source, domain, remote_id)
);
`

// Postgres is the shared-database Store backend.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to Postgres at the given URL, verifies the
// connection, and ensures the schema exists. The caller should call
// Close when the store is no longer needed.
func OpenPostgres(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Postgres) Close() error {
	return s.db.Close()
}

// Account returns the account matching the full composite key.
func (s *Postgres) Account(ctx context.Context, key model.Key) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, handle, display_name, bio, avatar_url,
		       follower_count, following_count, post_count,
		       viewer_flags, updated_at
		FROM accounts
		WHERE source = $1 AND domain = $2 AND remote_id = $3
	`, string(key.Source), key.Domain, key.RemoteID)

	return scanAccount(row, key)
}

func (s *Postgres) accountByID(ctx context.Context, id int64) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, domain, remote_id, handle, display_name, bio, avatar_url,
		       follower_count, following_count, post_count,
		       viewer_flags, updated_at
		FROM accounts
		WHERE id = $1
	`, id)

	var (
		key   model.Key
		src   string
		a     model.Account
		flags string
	)
	err := row.Scan(&src, &key.Domain, &key.RemoteID,
		&a.Handle, &a.DisplayName, &a.Bio, &a.AvatarURL,
		&a.FollowerCount, &a.FollowingCount, &a.PostCount,
		&flags, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account %d: %w", id, err)
	}

	key.Source = model.Source(src)
	a.ID = id
	a.Key = key
	if a.Viewer, err = unmarshalFlags[model.AccountFlags](flags); err != nil {
		return nil, fmt.Errorf("account %d: %w", id, err)
	}
	return &a, nil
}

// UpsertAccount inserts or updates an account and fills in the local ID.
func (s *Postgres) UpsertAccount(ctx context.Context, a *model.Account) error {
	flags, err := marshalFlags(a.Viewer)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.Key, err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO accounts
		(source, domain, remote_id, handle, display_name, bio, avatar_url,
		 follower_count, following_count, post_count, viewer_flags, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source, domain, remote_id) DO UPDATE SET
			handle = excluded.handle,
			display_name = excluded.display_name,
			bio = excluded.bio,
			avatar_url = excluded.avatar_url,
			follower_count = excluded.follower_count,
			following_count = excluded.following_count,
			post_count = excluded.post_count,
			viewer_flags = excluded.viewer_flags,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		string(a.Key.Source), a.Key.Domain, a.Key.RemoteID,
		a.Handle, a.DisplayName, a.Bio, a.AvatarURL,
		a.FollowerCount, a.FollowingCount, a.PostCount,
		flags, a.UpdatedAt.UTC(),
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.Key, err)
	}
	return nil
}

// Post returns the post matching the key, with its author, poll, and
// one hop of repost/quote edges loaded.
func (s *Postgres) Post(ctx context.Context, key model.Key) (*model.Post, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM posts WHERE source = $1 AND domain = $2 AND remote_id = $3
	`, string(key.Source), key.Domain, key.RemoteID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query post %s: %w", key, err)
	}
	return s.postByID(ctx, id, true)
}

func (s *Postgres) postByID(ctx context.Context, id int64, deep bool) (*model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, domain, remote_id, body, created_at, author_id,
		       repost_of_id, quote_of_id, reply_to_remote_id, poll_id,
		       viewer_flags, updated_at
		FROM posts
		WHERE id = $1
	`, id)

	var (
		p        model.Post
		src      string
		authorID int64
		repostID sql.NullInt64
		quoteID  sql.NullInt64
		pollID   sql.NullInt64
		flags    string
	)
	err := row.Scan(&src, &p.Key.Domain, &p.Key.RemoteID, &p.Body, &p.CreatedAt,
		&authorID, &repostID, &quoteID, &p.ReplyToID, &pollID,
		&flags, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query post %d: %w", id, err)
	}

	p.ID = id
	p.Key.Source = model.Source(src)
	if p.Viewer, err = unmarshalFlags[model.PostFlags](flags); err != nil {
		return nil, fmt.Errorf("post %d: %w", id, err)
	}

	if p.Author, err = s.accountByID(ctx, authorID); err != nil {
		return nil, fmt.Errorf("post %d author: %w", id, err)
	}

	if deep {
		if repostID.Valid {
			if p.RepostOf, err = s.postByID(ctx, repostID.Int64, false); err != nil {
				return nil, fmt.Errorf("post %d repost target: %w", id, err)
			}
		}
		if quoteID.Valid {
			if p.QuoteOf, err = s.postByID(ctx, quoteID.Int64, false); err != nil {
				return nil, fmt.Errorf("post %d quote target: %w", id, err)
			}
		}
	}
	if pollID.Valid {
		if p.Poll, err = s.pollByID(ctx, pollID.Int64); err != nil {
			return nil, fmt.Errorf("post %d poll: %w", id, err)
		}
	}

	return &p, nil
}

// UpsertPost inserts or updates a post. All referenced entities must
// already be persisted.
func (s *Postgres) UpsertPost(ctx context.Context, p *model.Post) error {
	if p.Author == nil || p.Author.ID == 0 {
		return fmt.Errorf("upsert post %s: author not persisted", p.Key)
	}

	flags, err := marshalFlags(p.Viewer)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", p.Key, err)
	}

	repostID, err := edgeID("repost target", p.RepostOf)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", p.Key, err)
	}
	quoteID, err := edgeID("quote target", p.QuoteOf)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", p.Key, err)
	}

	var pollID any
	if p.Poll != nil {
		if p.Poll.ID == 0 {
			return fmt.Errorf("upsert post %s: poll not persisted", p.Key)
		}
		pollID = p.Poll.ID
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO posts
		(source, domain, remote_id, body, created_at, author_id,
		 repost_of_id, quote_of_id, reply_to_remote_id, poll_id,
		 viewer_flags, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source, domain, remote_id) DO UPDATE SET
			body = excluded.body,
			created_at = excluded.created_at,
			author_id = excluded.author_id,
			repost_of_id = excluded.repost_of_id,
			quote_of_id = excluded.quote_of_id,
			reply_to_remote_id = excluded.reply_to_remote_id,
			poll_id = excluded.poll_id,
			viewer_flags = excluded.viewer_flags,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		string(p.Key.Source), p.Key.Domain, p.Key.RemoteID,
		p.Body, p.CreatedAt.UTC(), p.Author.ID,
		repostID, quoteID, p.ReplyToID, pollID,
		flags, p.UpdatedAt.UTC(),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", p.Key, err)
	}
	return nil
}

// Poll returns the poll matching the key, options ordered by position.
func (s *Postgres) Poll(ctx context.Context, key model.Key) (*model.Poll, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM polls WHERE source = $1 AND domain = $2 AND remote_id = $3
	`, string(key.Source), key.Domain, key.RemoteID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query poll %s: %w", key, err)
	}
	return s.pollByID(ctx, id)
}

func (s *Postgres) pollByID(ctx context.Context, id int64) (*model.Poll, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, domain, remote_id, viewer_flags, updated_at
		FROM polls
		WHERE id = $1
	`, id)

	var (
		p     model.Poll
		src   string
		flags string
	)
	err := row.Scan(&src, &p.Key.Domain, &p.Key.RemoteID, &flags, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query poll %d: %w", id, err)
	}

	p.ID = id
	p.Key.Source = model.Source(src)
	if p.Viewer, err = unmarshalFlags[model.PollFlags](flags); err != nil {
		return nil, fmt.Errorf("poll %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, label, vote_count
		FROM poll_options
		WHERE poll_id = $1
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query poll %d options: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var o model.PollOption
		if err := rows.Scan(&o.Position, &o.Label, &o.VoteCount); err != nil {
			return nil, fmt.Errorf("scan poll %d option: %w", id, err)
		}
		p.Options = append(p.Options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poll %d options: %w", id, err)
	}

	return &p, nil
}

// UpsertPoll inserts or updates a poll and rewrites its option rows in
// one transaction.
func (s *Postgres) UpsertPoll(ctx context.Context, p *model.Poll) error {
	flags, err := marshalFlags(p.Viewer)
	if err != nil {
		return fmt.Errorf("upsert poll %s: %w", p.Key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert poll %s: begin tx: %w", p.Key, err)
	}
	defer tx.Rollback() // No-op if committed

	err = tx.QueryRowContext(ctx, `
		INSERT INTO polls (source, domain, remote_id, viewer_flags, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source, domain, remote_id) DO UPDATE SET
			viewer_flags = excluded.viewer_flags,
			updated_at = excluded.updated_at
		RETURNING id
	`, string(p.Key.Source), p.Key.Domain, p.Key.RemoteID, flags, p.UpdatedAt.UTC()).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert poll %s: %w", p.Key, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_options WHERE poll_id = $1`, p.ID); err != nil {
		return fmt.Errorf("upsert poll %s: clear options: %w", p.Key, err)
	}
	for _, o := range p.Options {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO poll_options (poll_id, position, label, vote_count)
			VALUES ($1, $2, $3, $4)
		`, p.ID, o.Position, o.Label, o.VoteCount)
		if err != nil {
			return fmt.Errorf("upsert poll %s: option %d: %w", p.Key, o.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert poll %s: commit: %w", p.Key, err)
	}
	return nil
}

// Notification returns the notification matching the key, with actor
// and subject loaded.
func (s *Postgres) Notification(ctx context.Context, key model.Key) (*model.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, actor_id, subject_post_id, updated_at
		FROM notifications
		WHERE source = $1 AND domain = $2 AND remote_id = $3
	`, string(key.Source), key.Domain, key.RemoteID)

	var (
		n         model.Notification
		actorID   int64
		subjectID sql.NullInt64
	)
	err := row.Scan(&n.ID, &n.Type, &actorID, &subjectID, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query notification %s: %w", key, err)
	}

	n.Key = key
	if n.Actor, err = s.accountByID(ctx, actorID); err != nil {
		return nil, fmt.Errorf("notification %s actor: %w", key, err)
	}
	if subjectID.Valid {
		if n.Subject, err = s.postByID(ctx, subjectID.Int64, true); err != nil {
			return nil, fmt.Errorf("notification %s subject: %w", key, err)
		}
	}

	return &n, nil
}

// UpsertNotification inserts or updates a notification.
func (s *Postgres) UpsertNotification(ctx context.Context, n *model.Notification) error {
	if n.Actor == nil || n.Actor.ID == 0 {
		return fmt.Errorf("upsert notification %s: actor not persisted", n.Key)
	}

	var subjectID any
	if n.Subject != nil {
		if n.Subject.ID == 0 {
			return fmt.Errorf("upsert notification %s: subject not persisted", n.Key)
		}
		subjectID = n.Subject.ID
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications
		(source, domain, remote_id, type, actor_id, subject_post_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, domain, remote_id) DO UPDATE SET
			type = excluded.type,
			actor_id = excluded.actor_id,
			subject_post_id = excluded.subject_post_id,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		string(n.Key.Source), n.Key.Domain, n.Key.RemoteID,
		n.Type, n.Actor.ID, subjectID, n.UpdatedAt.UTC(),
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("upsert notification %s: %w", n.Key, err)
	}
	return nil
}

// List returns the list matching the key, with its owner loaded.
func (s *Postgres) List(ctx context.Context, key model.Key) (*model.List, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, owner_id, updated_at
		FROM lists
		WHERE source = $1 AND domain = $2 AND remote_id = $3
	`, string(key.Source), key.Domain, key.RemoteID)

	var (
		l       model.List
		ownerID int64
	)
	err := row.Scan(&l.ID, &l.Title, &l.Description, &ownerID, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query list %s: %w", key, err)
	}

	l.Key = key
	if l.Owner, err = s.accountByID(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("list %s owner: %w", key, err)
	}
	return &l, nil
}

// UpsertList inserts or updates a list.
func (s *Postgres) UpsertList(ctx context.Context, l *model.List) error {
	if l.Owner == nil || l.Owner.ID == 0 {
		return fmt.Errorf("upsert list %s: owner not persisted", l.Key)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO lists
		(source, domain, remote_id, title, description, owner_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, domain, remote_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		string(l.Key.Source), l.Key.Domain, l.Key.RemoteID,
		l.Title, l.Description, l.Owner.ID, l.UpdatedAt.UTC(),
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("upsert list %s: %w", l.Key, err)
	}
	return nil
}

// SavedSearch returns the saved search matching the key, with its owner
// loaded.
func (s *Postgres) SavedSearch(ctx context.Context, key model.Key) (*model.SavedSearch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, owner_id, updated_at
		FROM saved_searches
		WHERE source = $1 AND domain = $2 AND remote_id = $3
	`, string(key.Source), key.Domain, key.RemoteID)

	var (
		ss      model.SavedSearch
		ownerID int64
	)
	err := row.Scan(&ss.ID, &ss.Query, &ownerID, &ss.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query saved search %s: %w", key, err)
	}

	ss.Key = key
	if ss.Owner, err = s.accountByID(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("saved search %s owner: %w", key, err)
	}
	return &ss, nil
}

// UpsertSavedSearch inserts or updates a saved search.
func (s *Postgres) UpsertSavedSearch(ctx context.Context, ss *model.SavedSearch) error {
	if ss.Owner == nil || ss.Owner.ID == 0 {
		return fmt.Errorf("upsert saved search %s: owner not persisted", ss.Key)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO saved_searches
		(source, domain, remote_id, query, owner_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source, domain, remote_id) DO UPDATE SET
			query = excluded.query,
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		string(ss.Key.Source), ss.Key.Domain, ss.Key.RemoteID,
		ss.Query, ss.Owner.ID, ss.UpdatedAt.UTC(),
	).Scan(&ss.ID)
	if err != nil {
		return fmt.Errorf("upsert saved search %s: %w", ss.Key, err)
	}
	return nil
}
