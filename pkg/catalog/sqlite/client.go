// Package sqlite provides a SQLite implementation of the role catalog.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-node deployments. It is the default catalog backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/mattn/go-sqlite3"

	"github.com/companionlabs/avatarmem-go/pkg/catalog"
)

// Client implements catalog.Store using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB
}

// Config contains configuration for creating a SQLite catalog.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient creates a new SQLite catalog client.
//
// Parameters:
//   - cfg: Configuration containing the database path
//
// Returns:
//   - *Client: The SQLite catalog instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteCatalog: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteCatalog: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteCatalog: %w", err)
	}

	client := &Client{db: db}

	// Initialize table structure
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			unionid TEXT PRIMARY KEY,
			nickname TEXT NOT NULL DEFAULT '',
			created_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_time DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS roles (
			avatar_id TEXT PRIMARY KEY,
			unionid TEXT NOT NULL,
			avatar_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			cosyvoice_id TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			memory_version INTEGER NOT NULL DEFAULT 0,
			video_url TEXT NOT NULL DEFAULT '',
			bg_id TEXT NOT NULL DEFAULT '',
			chat_count INTEGER NOT NULL DEFAULT 0,
			created_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (unionid) REFERENCES users(unionid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roles_unionid ON roles(unionid)`,
		`CREATE TABLE IF NOT EXISTS voices (
			voice_id TEXT PRIMARY KEY,
			unionid TEXT NOT NULL,
			cosyvoice_id TEXT NOT NULL DEFAULT '',
			voice_name TEXT NOT NULL DEFAULT '',
			voice_url TEXT NOT NULL DEFAULT '',
			clone_voice_url TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (unionid) REFERENCES users(unionid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_voices_unionid ON voices(unionid)`,
		`CREATE TABLE IF NOT EXISTS backgrounds (
			bg_id TEXT PRIMARY KEY,
			unionid TEXT NOT NULL,
			is_video INTEGER NOT NULL DEFAULT 0,
			bg_url TEXT NOT NULL DEFAULT '',
			thumbnail_url TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (unionid) REFERENCES users(unionid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backgrounds_unionid ON backgrounds(unionid)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	return nil
}

// GetUser returns the user for a unionid.
func (c *Client) GetUser(ctx context.Context, unionID string) (*catalog.User, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT unionid, nickname, created_time, updated_time
		FROM users WHERE unionid = ?
	`, unionID)

	var user catalog.User
	err := row.Scan(&user.UnionID, &user.Nickname, &user.CreatedTime, &user.UpdatedTime)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}

	return &user, nil
}

// GetRole returns the role for an avatar id.
func (c *Client) GetRole(ctx context.Context, avatarID string) (*catalog.Role, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT avatar_id, unionid, avatar_name, avatar_url, cosyvoice_id,
		       system_prompt, memory_version, video_url, bg_id, chat_count,
		       created_time, updated_time
		FROM roles WHERE avatar_id = ?
	`, avatarID)

	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetRole: %w", err)
	}

	return role, nil
}

// ListRoles returns all roles owned by a user.
func (c *Client) ListRoles(ctx context.Context, unionID string) ([]*catalog.Role, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT avatar_id, unionid, avatar_name, avatar_url, cosyvoice_id,
		       system_prompt, memory_version, video_url, bg_id, chat_count,
		       created_time, updated_time
		FROM roles WHERE unionid = ?
		ORDER BY created_time
	`, unionID)
	if err != nil {
		return nil, fmt.Errorf("ListRoles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var roles []*catalog.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRoles: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// ListVoices returns all voices owned by a user.
func (c *Client) ListVoices(ctx context.Context, unionID string) ([]*catalog.Voice, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT voice_id, unionid, cosyvoice_id, voice_name, voice_url, clone_voice_url
		FROM voices WHERE unionid = ?
	`, unionID)
	if err != nil {
		return nil, fmt.Errorf("ListVoices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var voices []*catalog.Voice
	for rows.Next() {
		var v catalog.Voice
		if err := rows.Scan(&v.VoiceID, &v.UnionID, &v.CosyvoiceID, &v.VoiceName, &v.VoiceURL, &v.CloneVoiceURL); err != nil {
			return nil, fmt.Errorf("ListVoices: %w", err)
		}
		voices = append(voices, &v)
	}

	return voices, rows.Err()
}

// ListBackgrounds returns all backgrounds owned by a user.
func (c *Client) ListBackgrounds(ctx context.Context, unionID string) ([]*catalog.Background, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT bg_id, unionid, is_video, bg_url, thumbnail_url
		FROM backgrounds WHERE unionid = ?
	`, unionID)
	if err != nil {
		return nil, fmt.Errorf("ListBackgrounds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bgs []*catalog.Background
	for rows.Next() {
		var b catalog.Background
		if err := rows.Scan(&b.BgID, &b.UnionID, &b.IsVideo, &b.BgURL, &b.ThumbnailURL); err != nil {
			return nil, fmt.Errorf("ListBackgrounds: %w", err)
		}
		bgs = append(bgs, &b)
	}

	return bgs, rows.Err()
}

// UpdateRoleMemory writes back a role's memory version and chat count.
func (c *Client) UpdateRoleMemory(ctx context.Context, avatarID string, memoryVersion uint32, chatCount int, updatedAt time.Time) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE roles
		SET memory_version = ?, chat_count = ?, updated_time = ?
		WHERE avatar_id = ?
	`, memoryVersion, chatCount, updatedAt, avatarID)
	if err != nil {
		return fmt.Errorf("UpdateRoleMemory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateRoleMemory: %w", err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}

	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Seed inserts a user and role for bootstrapping a fresh database.
// Generated ids use snowflake so that seeded rows never collide.
//
// Returns the new role's avatar id.
func (c *Client) Seed(ctx context.Context, unionID, nickname, avatarName, systemPrompt string) (string, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return "", fmt.Errorf("Seed: %w", err)
	}

	now := time.Now()
	_, err = c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (unionid, nickname, created_time, updated_time)
		VALUES (?, ?, ?, ?)
	`, unionID, nickname, now, now)
	if err != nil {
		return "", fmt.Errorf("Seed: %w", err)
	}

	avatarID := node.Generate().String()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO roles (avatar_id, unionid, avatar_name, system_prompt, created_time, updated_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`, avatarID, unionID, avatarName, systemPrompt, now, now)
	if err != nil {
		return "", fmt.Errorf("Seed: %w", err)
	}

	return avatarID, nil
}

// scanRole scans a role from a database row or rows.
func scanRole(scanner interface{}) (*catalog.Role, error) {
	var role catalog.Role

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(
			&role.AvatarID, &role.UnionID, &role.AvatarName, &role.AvatarURL,
			&role.CosyvoiceID, &role.SystemPrompt, &role.MemoryVersion,
			&role.VideoURL, &role.BgID, &role.ChatCount,
			&role.CreatedTime, &role.UpdatedTime,
		)
	case *sql.Rows:
		err = s.Scan(
			&role.AvatarID, &role.UnionID, &role.AvatarName, &role.AvatarURL,
			&role.CosyvoiceID, &role.SystemPrompt, &role.MemoryVersion,
			&role.VideoURL, &role.BgID, &role.ChatCount,
			&role.CreatedTime, &role.UpdatedTime,
		)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}

	if err != nil {
		return nil, err
	}

	return &role, nil
}
