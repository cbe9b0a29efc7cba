// Package catalog defines the role-catalog boundary: users, avatar roles,
// voices, and backgrounds, plus the memory-version write-back performed
// after a successful consolidation.
//
// The catalog is thin relational CRUD; backends exist for SQLite (default),
// PostgreSQL, and MySQL.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that the requested catalog row does not exist.
var ErrNotFound = errors.New("catalog row not found")

// User is an end user identified by a unionid.
type User struct {
	UnionID     string    `json:"unionid"`
	Nickname    string    `json:"nickname"`
	CreatedTime time.Time `json:"created_time"`
	UpdatedTime time.Time `json:"updated_time"`
}

// Role is an avatar persona owned by a user.
//
// MemoryVersion and ChatCount mirror the avatar's durable memory state:
// MemoryVersion 0 means no memory file has been saved yet.
type Role struct {
	AvatarID      string    `json:"avatar_id"`
	UnionID       string    `json:"unionid"`
	AvatarName    string    `json:"avatar_name"`
	AvatarURL     string    `json:"avatar_url"`
	CosyvoiceID   string    `json:"cosyvoice_id"`
	SystemPrompt  string    `json:"system_prompt"`
	MemoryVersion uint32    `json:"memory_version"`
	VideoURL      string    `json:"video_url"`
	BgID          string    `json:"bg_id"`
	ChatCount     int       `json:"chat_count"`
	CreatedTime   time.Time `json:"created_time"`
	UpdatedTime   time.Time `json:"updated_time"`
}

// Voice is a synthesized voice owned by a user.
type Voice struct {
	VoiceID       string `json:"voice_id"`
	UnionID       string `json:"unionid"`
	CosyvoiceID   string `json:"cosyvoice_id"`
	VoiceName     string `json:"voice_name"`
	VoiceURL      string `json:"voice_url"`
	CloneVoiceURL string `json:"clone_voice_url"`
}

// Background is a chat background image or video owned by a user.
type Background struct {
	BgID         string `json:"bg_id"`
	UnionID      string `json:"unionid"`
	IsVideo      bool   `json:"is_video"`
	BgURL        string `json:"bg_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Store is the role-catalog contract consumed by the session and
// consolidation layers.
type Store interface {
	// GetUser returns the user for a unionid, or ErrNotFound.
	GetUser(ctx context.Context, unionID string) (*User, error)

	// GetRole returns the role for an avatar id, or ErrNotFound.
	GetRole(ctx context.Context, avatarID string) (*Role, error)

	// ListRoles returns all roles owned by a user.
	ListRoles(ctx context.Context, unionID string) ([]*Role, error)

	// ListVoices returns all voices owned by a user.
	ListVoices(ctx context.Context, unionID string) ([]*Voice, error)

	// ListBackgrounds returns all backgrounds owned by a user.
	ListBackgrounds(ctx context.Context, unionID string) ([]*Background, error)

	// UpdateRoleMemory writes back the avatar's new memory version and chat
	// count after a successful consolidation.
	UpdateRoleMemory(ctx context.Context, avatarID string, memoryVersion uint32, chatCount int, updatedAt time.Time) error

	// Close closes the store and releases resources.
	Close() error
}
