package session

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/companionlabs/avatarmem-go/pkg/catalog"
	"github.com/companionlabs/avatarmem-go/pkg/llm"
)

// MaxAvatarsPerUser bounds the number of live sessions kept per user. The
// least recently used session past the bound is dropped without
// consolidation; its unconsolidated messages are lost.
const MaxAvatarsPerUser = 5

// RoleSource loads avatar roles for session bootstrap. *catalog.Store
// implementations satisfy it.
type RoleSource interface {
	GetRole(ctx context.Context, avatarID string) (*catalog.Role, error)
}

// Store holds every user's avatar sessions. Each user gets an LRU cache of
// at most MaxAvatarsPerUser sessions.
type Store struct {
	mu    sync.Mutex
	users map[string]*avatarCache
	roles RoleSource
}

// avatarCache is a small LRU keyed by avatar id. Front of the list is most
// recently used.
type avatarCache struct {
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	avatarID string
	session  *Session
}

// Evicted is a snapshot of an idle session removed from the store, carrying
// everything consolidation needs.
type Evicted struct {
	UnionID       string
	AvatarID      string
	MemoryVersion uint32
	Messages      []llm.Message
	ChatCount     int
}

// NewStore creates a session store backed by the given role source.
func NewStore(roles RoleSource) *Store {
	return &Store{
		users: make(map[string]*avatarCache),
		roles: roles,
	}
}

// GetOrCreate returns the live session for (unionID, avatarID), creating it
// from the catalog on a miss.
//
// On a hit, a non-empty memoryPrompt replaces the session's memory lines and
// the combined prompt is rebuilt. On a miss, the role is loaded from the
// catalog and a fresh session is inserted; if the user already holds
// MaxAvatarsPerUser sessions, the least recently used one is dropped.
func (s *Store) GetOrCreate(ctx context.Context, unionID, avatarID string, memoryPrompt []string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.users[unionID]
	if !ok {
		cache = &avatarCache{
			order:   list.New(),
			entries: make(map[string]*list.Element),
		}
		s.users[unionID] = cache
	}

	if el, ok := cache.entries[avatarID]; ok {
		cache.order.MoveToFront(el)
		sess := el.Value.(*cacheEntry).session
		if len(memoryPrompt) > 0 {
			sess.UpdateSystemPrompt(sess.SystemPrompt, memoryPrompt)
		}
		sess.Touch()
		return sess, nil
	}

	role, err := s.roles.GetRole(ctx, avatarID)
	if err != nil {
		return nil, fmt.Errorf("session: load role %s: %w", avatarID, err)
	}

	sess := New()
	sess.MemoryVersion = role.MemoryVersion
	sess.ChatCount = role.ChatCount
	sess.UpdateSystemPrompt(role.SystemPrompt, memoryPrompt)

	el := cache.order.PushFront(&cacheEntry{avatarID: avatarID, session: sess})
	cache.entries[avatarID] = el

	if cache.order.Len() > MaxAvatarsPerUser {
		oldest := cache.order.Back()
		if oldest != nil {
			dropped := oldest.Value.(*cacheEntry)
			cache.order.Remove(oldest)
			delete(cache.entries, dropped.avatarID)
			log.Printf("avatarmem: session cache full for user %s, dropped avatar %s", unionID, dropped.avatarID)
		}
	}

	return sess, nil
}

// Peek returns the session for (unionID, avatarID) without touching LRU
// order, or nil if absent.
func (s *Store) Peek(unionID, avatarID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.users[unionID]
	if !ok {
		return nil
	}
	el, ok := cache.entries[avatarID]
	if !ok {
		return nil
	}
	return el.Value.(*cacheEntry).session
}

// Count returns the number of live sessions for a user.
func (s *Store) Count(unionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.users[unionID]
	if !ok {
		return 0
	}
	return cache.order.Len()
}

// EvictIdle removes every session idle for longer than timeout and returns
// snapshots for consolidation. Users left with no sessions are removed from
// the store.
func (s *Store) EvictIdle(timeout time.Duration) []Evicted {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-timeout)

	var evicted []Evicted
	for unionID, cache := range s.users {
		var next *list.Element
		for el := cache.order.Front(); el != nil; el = next {
			next = el.Next()
			entry := el.Value.(*cacheEntry)
			if entry.session.LastActive.After(cutoff) {
				continue
			}

			msgs := make([]llm.Message, len(entry.session.Messages))
			copy(msgs, entry.session.Messages)

			evicted = append(evicted, Evicted{
				UnionID:       unionID,
				AvatarID:      entry.avatarID,
				MemoryVersion: entry.session.MemoryVersion,
				Messages:      msgs,
				ChatCount:     entry.session.ChatCount,
			})

			cache.order.Remove(el)
			delete(cache.entries, entry.avatarID)
		}
		if cache.order.Len() == 0 {
			delete(s.users, unionID)
		}
	}

	return evicted
}
