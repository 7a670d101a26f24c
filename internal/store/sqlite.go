package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/feedgraph/feedgraph/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial entity graph schema
const currentSchemaVersion = 1

// SQLite is the single-file Store backend.
// Uses WAL mode for concurrent read access while the writer runs.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// Account returns the account matching the full composite key.
func (s *SQLite) Account(ctx context.Context, key model.Key) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, handle, display_name, bio, avatar_url,
		       follower_count, following_count, post_count,
		       viewer_flags, updated_at
		FROM accounts
		WHERE source = ? AND domain = ? AND remote_id = ?
	`, string(key.Source), key.Domain, key.RemoteID)

	return scanAccount(row, key)
}

func (s *SQLite) accountByID(ctx context.Context, id int64) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, domain, remote_id, handle, display_name, bio, avatar_url,
		       follower_count, following_count, post_count,
		       viewer_flags, updated_at
		FROM accounts
		WHERE id = ?
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

func scanAccount(row *sql.Row, key model.Key) (*model.Account, error) {
	var (
		a     model.Account
		flags string
	)
	err := row.Scan(&a.ID, &a.Handle, &a.DisplayName, &a.Bio, &a.AvatarURL,
		&a.FollowerCount, &a.FollowingCount, &a.PostCount,
		&flags, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account %s: %w", key, err)
	}

	a.Key = key
	if a.Viewer, err = unmarshalFlags[model.AccountFlags](flags); err != nil {
		return nil, fmt.Errorf("account %s: %w", key, err)
	}
	return &a, nil
}

// UpsertAccount inserts or updates an account by its composite key and
// fills in the local ID.
func (s *SQLite) UpsertAccount(ctx context.Context, a *model.Account) error {
	flags, err := marshalFlags(a.Viewer)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.Key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts
		(source, domain, remote_id, handle, display_name, bio, avatar_url,
		 follower_count, following_count, post_count, viewer_flags, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, domain, remote_id) DO UPDATE SET
			handle = excluded.handle,
			display_name = excluded.display_name,
			bio = excluded.bio,
			avatar_url = excluded.avatar_url,
			follower_count = excluded.follower_count,
			following_count = excluded.following_count,
			post_count = excluded.post_count,
			viewer_flags = excluded.viewer_flags,
			updated_at = excluded.updated_at
	`,
		string(a.Key.Source), a.Key.Domain, a.Key.RemoteID,
		a.Handle, a.DisplayName, a.Bio, a.AvatarURL,
		a.FollowerCount, a.FollowingCount, a.PostCount,
		flags, a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.Key, err)
	}

	if a.ID == 0 {
		if err := s.idByKey(ctx, "accounts", a.Key, &a.ID); err != nil {
			return fmt.Errorf("upsert account %s: %w", a.Key, err)
		}
	}
	return nil
}

// Post returns the post matching the key, with its author, poll, and
// one hop of repost/quote edges loaded.
func (s *SQLite) Post(ctx context.Context, key model.Key) (*model.Post, error) {
	var id int64
	if err := s.idByKey(ctx, "posts", key, &id); err != nil {
		return nil, err
	}
	return s.postByID(ctx, id, true)
}

// postByID loads a post row. When deep is set, repost/quote edges are
// loaded shallowly (row and author only); the engine re-resolves
// children by key whenever it needs more.
func (s *SQLite) postByID(ctx context.Context, id int64, deep bool) (*model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, domain, remote_id, body, created_at, author_id,
		       repost_of_id, quote_of_id, reply_to_remote_id, poll_id,
		       viewer_flags, updated_at
		FROM posts
		WHERE id = ?
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
func (s *SQLite) UpsertPost(ctx context.Context, p *model.Post) error {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts
		(source, domain, remote_id, body, created_at, author_id,
		 repost_of_id, quote_of_id, reply_to_remote_id, poll_id,
		 viewer_flags, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, domain, remote_id) DO UPDATE SET
			body = excluded.body,
			created_at = excluded.created_at,
			author_id = excluded.author_id,
			repost_of_id = excluded.repost_of_id,
			quote_of_id = excluded.quote_of_id,
			reply_to_remote_id = excluded.reply_to_remote_id,
			poll_id = excluded.poll_id,
			viewer_flags = excluded.viewer_flags,
			updated_at = excluded.updated_at
	`,
		string(p.Key.Source), p.Key.Domain, p.Key.RemoteID,
		p.Body, p.CreatedAt.UTC(), p.Author.ID,
		repostID, quoteID, p.ReplyToID, pollID,
		flags, p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", p.Key, err)
	}

	if p.ID == 0 {
		if err := s.idByKey(ctx, "posts", p.Key, &p.ID); err != nil {
			return fmt.Errorf("upsert post %s: %w", p.Key, err)
		}
	}
	return nil
}

// Poll returns the poll matching the key, options ordered by position.
func (s *SQLite) Poll(ctx context.Context, key model.Key) (*model.Poll, error) {
	var id int64
	if err := s.idByKey(ctx, "polls", key, &id); err != nil {
		return nil, err
	}
	return s.pollByID(ctx, id)
}

func (s *SQLite) pollByID(ctx context.Context, id int64) (*model.Poll, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, domain, remote_id, viewer_flags, updated_at
		FROM polls
		WHERE id = ?
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
		WHERE poll_id = ?
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
// one transaction, so the stored option set always matches the model
// exactly (including after a duplicate-position repair).
func (s *SQLite) UpsertPoll(ctx context.Context, p *model.Poll) error {
	flags, err := marshalFlags(p.Viewer)
	if err != nil {
		return fmt.Errorf("upsert poll %s: %w", p.Key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert poll %s: begin tx: %w", p.Key, err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO polls (source, domain, remote_id, viewer_flags, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source, domain, remote_id) DO UPDATE SET
			viewer_flags = excluded.viewer_flags,
			updated_at = excluded.updated_at
	`, string(p.Key.Source), p.Key.Domain, p.Key.RemoteID, flags, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert poll %s: %w", p.Key, err)
	}

	if p.ID == 0 {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM polls WHERE source = ? AND domain = ? AND remote_id = ?
		`, string(p.Key.Source), p.Key.Domain, p.Key.RemoteID).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("upsert poll %s: select id: %w", p.Key, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_options WHERE poll_id = ?`, p.ID); err != nil {
		return fmt.Errorf("upsert poll %s: clear options: %w", p.Key, err)
	}
	for _, o := range p.Options {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO poll_options (poll_id, position, label, vote_count)
			VALUES (?, ?, ?, ?)
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
func (s *SQLite) Notification(ctx context.Context, key model.Key) (*model.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, actor_id, subject_post_id, updated_at
		FROM notifications
		WHERE source = ? AND domain = ? AND remote_id = ?
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

// UpsertNotification inserts or updates a notification. Actor (and
// subject, when set) must already be persisted.
func (s *SQLite) UpsertNotification(ctx context.Context, n *model.Notification) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications
		(source, domain, remote_id, type, actor_id, subject_post_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, domain, remote_id) DO UPDATE SET
			type = excluded.type,
			actor_id = excluded.actor_id,
			subject_post_id = excluded.subject_post_id,
			updated_at = excluded.updated_at
	`,
		string(n.Key.Source), n.Key.Domain, n.Key.RemoteID,
		n.Type, n.Actor.ID, subjectID, n.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert notification %s: %w", n.Key, err)
	}

	if n.ID == 0 {
		if err := s.idByKey(ctx, "notifications", n.Key, &n.ID); err != nil {
			return fmt.Errorf("upsert notification %s: %w", n.Key, err)
		}
	}
	return nil
}

// List returns the list matching the key, with its owner loaded.
func (s *SQLite) List(ctx context.Context, key model.Key) (*model.List, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, owner_id, updated_at
		FROM lists
		WHERE source = ? AND domain = ? AND remote_id = ?
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

// UpsertList inserts or updates a list. Owner must already be persisted.
func (s *SQLite) UpsertList(ctx context.Context, l *model.List) error {
	if l.Owner == nil || l.Owner.ID == 0 {
		return fmt.Errorf("upsert list %s: owner not persisted", l.Key)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lists
		(source, domain, remote_id, title, description, owner_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, domain, remote_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at
	`,
		string(l.Key.Source), l.Key.Domain, l.Key.RemoteID,
		l.Title, l.Description, l.Owner.ID, l.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert list %s: %w", l.Key, err)
	}

	if l.ID == 0 {
		if err := s.idByKey(ctx, "lists", l.Key, &l.ID); err != nil {
			return fmt.Errorf("upsert list %s: %w", l.Key, err)
		}
	}
	return nil
}

// SavedSearch returns the saved search matching the key, with its owner
// loaded.
func (s *SQLite) SavedSearch(ctx context.Context, key model.Key) (*model.SavedSearch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, owner_id, updated_at
		FROM saved_searches
		WHERE source = ? AND domain = ? AND remote_id = ?
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

// UpsertSavedSearch inserts or updates a saved search. Owner must
// already be persisted.
func (s *SQLite) UpsertSavedSearch(ctx context.Context, ss *model.SavedSearch) error {
	if ss.Owner == nil || ss.Owner.ID == 0 {
		return fmt.Errorf("upsert saved search %s: owner not persisted", ss.Key)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_searches
		(source, domain, remote_id, query, owner_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, domain, remote_id) DO UPDATE SET
			query = excluded.query,
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at
	`,
		string(ss.Key.Source), ss.Key.Domain, ss.Key.RemoteID,
		ss.Query, ss.Owner.ID, ss.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert saved search %s: %w", ss.Key, err)
	}

	if ss.ID == 0 {
		if err := s.idByKey(ctx, "saved_searches", ss.Key, &ss.ID); err != nil {
			return fmt.Errorf("upsert saved search %s: %w", ss.Key, err)
		}
	}
	return nil
}

// idByKey resolves a row id by composite key. The table name comes from
// a fixed in-package set, never caller input.
func (s *SQLite) idByKey(ctx context.Context, table string, key model.Key, id *int64) error {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE source = ? AND domain = ? AND remote_id = ?`, table)
	err := s.db.QueryRowContext(ctx, q, string(key.Source), key.Domain, key.RemoteID).Scan(id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query %s %s: %w", table, key, err)
	}
	return nil
}

// edgeID converts an optional post edge into a nullable column value,
// verifying the target is persisted.
func edgeID(what string, p *model.Post) (any, error) {
	if p == nil {
		return nil, nil
	}
	if p.ID == 0 {
		return nil, fmt.Errorf("%s not persisted", what)
	}
	return p.ID, nil
}
