// Package postgres provides a PostgreSQL implementation of the role catalog.
//
// PostgreSQL is suited to multi-node deployments where several service
// instances share one catalog.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/companionlabs/avatarmem-go/pkg/catalog"
)

// Client implements catalog.Store using PostgreSQL as the backend.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a PostgreSQL catalog.
type Config struct {
	// Host is the database host.
	Host string

	// Port is the database port.
	Port int

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// Database is the database name.
	Database string

	// SSLMode is the sslmode connection parameter. Defaults to "disable".
	SSLMode string
}

// NewClient creates a new PostgreSQL catalog client.
//
// Parameters:
//   - cfg: Configuration containing connection parameters
//
// Returns:
//   - *Client: The PostgreSQL catalog instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresCatalog: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresCatalog: %w", err)
	}

	client := &Client{db: db}

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
			created_time TIMESTAMPTZ DEFAULT NOW(),
			updated_time TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS roles (
			avatar_id TEXT PRIMARY KEY,
			unionid TEXT NOT NULL REFERENCES users(unionid),
			avatar_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			cosyvoice_id TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			memory_version BIGINT NOT NULL DEFAULT 0,
			video_url TEXT NOT NULL DEFAULT '',
			bg_id TEXT NOT NULL DEFAULT '',
			chat_count INTEGER NOT NULL DEFAULT 0,
			created_time TIMESTAMPTZ DEFAULT NOW(),
			updated_time TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roles_unionid ON roles(unionid)`,
		`CREATE TABLE IF NOT EXISTS voices (
			voice_id TEXT PRIMARY KEY,
			unionid TEXT NOT NULL REFERENCES users(unionid),
			cosyvoice_id TEXT NOT NULL DEFAULT '',
			voice_name TEXT NOT NULL DEFAULT '',
			voice_url TEXT NOT NULL DEFAULT '',
			clone_voice_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_voices_unionid ON voices(unionid)`,
		`CREATE TABLE IF NOT EXISTS backgrounds (
			bg_id TEXT PRIMARY KEY,
			unionid TEXT NOT NULL REFERENCES users(unionid),
			is_video BOOLEAN NOT NULL DEFAULT FALSE,
			bg_url TEXT NOT NULL DEFAULT '',
			thumbnail_url TEXT NOT NULL DEFAULT ''
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
		FROM users WHERE unionid = $1
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
		FROM roles WHERE avatar_id = $1
	`, avatarID)

	var role catalog.Role
	err := row.Scan(
		&role.AvatarID, &role.UnionID, &role.AvatarName, &role.AvatarURL,
		&role.CosyvoiceID, &role.SystemPrompt, &role.MemoryVersion,
		&role.VideoURL, &role.BgID, &role.ChatCount,
		&role.CreatedTime, &role.UpdatedTime,
	)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetRole: %w", err)
	}

	return &role, nil
}

// ListRoles returns all roles owned by a user.
func (c *Client) ListRoles(ctx context.Context, unionID string) ([]*catalog.Role, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT avatar_id, unionid, avatar_name, avatar_url, cosyvoice_id,
		       system_prompt, memory_version, video_url, bg_id, chat_count,
		       created_time, updated_time
		FROM roles WHERE unionid = $1
		ORDER BY created_time
	`, unionID)
	if err != nil {
		return nil, fmt.Errorf("ListRoles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var roles []*catalog.Role
	for rows.Next() {
		var role catalog.Role
		if err := rows.Scan(
			&role.AvatarID, &role.UnionID, &role.AvatarName, &role.AvatarURL,
			&role.CosyvoiceID, &role.SystemPrompt, &role.MemoryVersion,
			&role.VideoURL, &role.BgID, &role.ChatCount,
			&role.CreatedTime, &role.UpdatedTime,
		); err != nil {
			return nil, fmt.Errorf("ListRoles: %w", err)
		}
		roles = append(roles, &role)
	}

	return roles, rows.Err()
}

// ListVoices returns all voices owned by a user.
func (c *Client) ListVoices(ctx context.Context, unionID string) ([]*catalog.Voice, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT voice_id, unionid, cosyvoice_id, voice_name, voice_url, clone_voice_url
		FROM voices WHERE unionid = $1
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
		FROM backgrounds WHERE unionid = $1
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
		SET memory_version = $1, chat_count = $2, updated_time = $3
		WHERE avatar_id = $4
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
