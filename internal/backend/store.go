// Package backend is the development feed service behind `reelcast serve`.
// It keeps items, likes, comments and bearer tokens in SQLite and serves the
// wire contract the api client speaks.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/pkg/oauth"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// TokenLifetime is how long an issued access token stays valid.
const TokenLifetime = time.Hour

var (
	// ErrNotFound means the item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken means the bearer or refresh token is unknown or expired.
	ErrInvalidToken = errors.New("invalid token")
)

// Store handles all database operations
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: a single database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		media_url TEXT NOT NULL,
		thumbnail_url TEXT,
		author_id TEXT NOT NULL,
		author_name TEXT NOT NULL,
		avatar_url TEXT,
		caption TEXT,
		audio_title TEXT,
		likes INTEGER NOT NULL DEFAULT 0,
		comments INTEGER NOT NULL DEFAULT 0,
		shares INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS likes (
		item_id TEXT NOT NULL REFERENCES items(id),
		user_id TEXT NOT NULL,
		PRIMARY KEY (item_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id),
		author_id TEXT NOT NULL,
		author_name TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tokens (
		access_token TEXT PRIMARY KEY,
		refresh_token TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_position ON items(position);
	CREATE INDEX IF NOT EXISTS idx_comments_item ON comments(item_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_tokens_refresh ON tokens(refresh_token);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveItems appends items not already stored to the end of the feed and
// returns how many were new.
func (s *Store) SaveItems(ctx context.Context, items []feed.Item) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM items`).Scan(&next); err != nil {
		return 0, err
	}

	added := 0
	for _, it := range items {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, position, media_url, thumbnail_url, author_id, author_name,
				avatar_url, caption, audio_title, likes, comments, shares)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, it.ID, next, it.MediaURL, it.ThumbnailURL, it.Author.ID, it.Author.DisplayName,
			it.Author.AvatarURL, it.Caption, it.AudioTitle,
			it.Counters.Likes, it.Counters.Comments, it.Counters.Shares)
		if err != nil {
			return 0, fmt.Errorf("failed to save item %s: %w", it.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
			next++
		}
	}

	return added, tx.Commit()
}

// Page returns up to limit items from offset in feed order, with the liked
// flag set for userID. hasMore reports whether items remain after the page.
func (s *Store) Page(ctx context.Context, userID string, limit, offset int) ([]feed.Item, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.media_url, i.thumbnail_url, i.author_id, i.author_name, i.avatar_url,
			i.caption, i.audio_title, i.likes, i.comments, i.shares,
			CASE WHEN l.user_id IS NULL THEN 0 ELSE 1 END
		FROM items i
		LEFT JOIN likes l ON l.item_id = i.id AND l.user_id = ?
		ORDER BY i.position
		LIMIT ? OFFSET ?
	`, userID, limit+1, offset)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	items := make([]feed.Item, 0, limit)
	for rows.Next() {
		var it feed.Item
		var thumb, avatar, caption, audio sql.NullString
		if err := rows.Scan(&it.ID, &it.MediaURL, &thumb, &it.Author.ID, &it.Author.DisplayName, &avatar,
			&caption, &audio, &it.Counters.Likes, &it.Counters.Comments, &it.Counters.Shares, &it.Liked); err != nil {
			return nil, false, err
		}
		it.ThumbnailURL = thumb.String
		it.Author.AvatarURL = avatar.String
		it.Caption = caption.String
		it.AudioTitle = audio.String
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return items, hasMore, nil
}

// SetLike records or removes userID's like and returns the committed flag and
// the resulting like count.
func (s *Store) SetLike(ctx context.Context, itemID, userID string, liked bool) (bool, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := itemExists(ctx, tx, itemID); err != nil {
		return false, 0, err
	}

	var res sql.Result
	if liked {
		res, err = tx.ExecContext(ctx, `INSERT INTO likes (item_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, itemID, userID)
	} else {
		res, err = tx.ExecContext(ctx, `DELETE FROM likes WHERE item_id = ? AND user_id = ?`, itemID, userID)
	}
	if err != nil {
		return false, 0, err
	}

	if n, _ := res.RowsAffected(); n > 0 {
		delta := 1
		if !liked {
			delta = -1
		}
		if _, err := tx.ExecContext(ctx, `UPDATE items SET likes = MAX(likes + ?, 0) WHERE id = ?`, delta, itemID); err != nil {
			return false, 0, err
		}
	}

	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT likes FROM items WHERE id = ?`, itemID).Scan(&count); err != nil {
		return false, 0, err
	}

	return liked, count, tx.Commit()
}

// AddComment stores a comment by author and bumps the item's comment count.
func (s *Store) AddComment(ctx context.Context, itemID string, author feed.Author, text string) (feed.Comment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return feed.Comment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := itemExists(ctx, tx, itemID); err != nil {
		return feed.Comment{}, err
	}

	c := feed.Comment{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		Author:    author,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, item_id, author_id, author_name, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.ItemID, author.ID, author.DisplayName, c.Text, c.CreatedAt.Format(timeLayout)); err != nil {
		return feed.Comment{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE items SET comments = comments + 1 WHERE id = ?`, itemID); err != nil {
		return feed.Comment{}, err
	}

	return c, tx.Commit()
}

// Comments returns the comments on an item, newest first.
func (s *Store) Comments(ctx context.Context, itemID string) ([]feed.Comment, error) {
	if err := itemExists(ctx, s.db, itemID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, author_id, author_name, text, created_at
		FROM comments
		WHERE item_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]feed.Comment, 0)
	for rows.Next() {
		var c feed.Comment
		var created string
		if err := rows.Scan(&c.ID, &c.ItemID, &c.Author.ID, &c.Author.DisplayName, &c.Text, &created); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(timeLayout, created)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// IncrementShare bumps the share count of an item.
func (s *Store) IncrementShare(ctx context.Context, itemID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE items SET shares = shares + 1 WHERE id = ?`, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IssueToken creates an access and refresh token pair for user.
func (s *Store) IssueToken(ctx context.Context, user feed.Author) (*oauth.Token, error) {
	return s.issue(ctx, user, uuid.NewString())
}

func (s *Store) issue(ctx context.Context, user feed.Author, refresh string) (*oauth.Token, error) {
	token := &oauth.Token{
		AccessToken:  uuid.NewString(),
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(TokenLifetime / time.Second),
	}
	expires := s.now().Add(TokenLifetime).UTC().Format(timeLayout)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (access_token, refresh_token, user_id, user_name, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, token.AccessToken, token.RefreshToken, user.ID, user.DisplayName, expires); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// UserForToken resolves a bearer access token.
func (s *Store) UserForToken(ctx context.Context, accessToken string) (feed.Author, error) {
	var user feed.Author
	var expires string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, user_name, expires_at FROM tokens WHERE access_token = ?
	`, accessToken).Scan(&user.ID, &user.DisplayName, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return feed.Author{}, ErrInvalidToken
	}
	if err != nil {
		return feed.Author{}, err
	}

	exp, err := time.Parse(timeLayout, expires)
	if err != nil || !s.now().Before(exp) {
		return feed.Author{}, ErrInvalidToken
	}
	return user, nil
}

// Refresh issues a new access token for a known refresh token. The refresh
// token itself stays valid.
func (s *Store) Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	var user feed.Author
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, user_name FROM tokens WHERE refresh_token = ? LIMIT 1
	`, refreshToken).Scan(&user.ID, &user.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user, refreshToken)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func itemExists(ctx context.Context, q queryer, itemID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
