package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/companionlabs/avatarmem-go/pkg/memory"
)

// DefaultSweepInterval is how often the sweeper scans for idle sessions.
const DefaultSweepInterval = 60 * time.Second

// DefaultIdleTimeout is how long a session may sit untouched before it is
// evicted and consolidated.
const DefaultIdleTimeout = 100 * time.Second

// consolidateWorkers bounds how many consolidations run at once.
const consolidateWorkers = 2

// Consolidator turns an evicted session into durable memory. Satisfied by
// *memory.Consolidator.
type Consolidator interface {
	Run(ctx context.Context, job *memory.Job) (uint32, error)
}

// Sweeper periodically evicts idle sessions and consolidates them in the
// background.
type Sweeper struct {
	store        *Store
	consolidator Consolidator

	// Interval is the time between sweeps.
	Interval time.Duration

	// IdleTimeout is the inactivity threshold for eviction.
	IdleTimeout time.Duration

	sem  chan struct{}
	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewSweeper creates a sweeper with default interval and idle timeout.
func NewSweeper(store *Store, consolidator Consolidator) *Sweeper {
	return &Sweeper{
		store:        store,
		consolidator: consolidator,
		Interval:     DefaultSweepInterval,
		IdleTimeout:  DefaultIdleTimeout,
		sem:          make(chan struct{}, consolidateWorkers),
		stop:         make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for in-flight consolidations.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Sweep evicts every idle session and schedules consolidation for each.
// At most consolidateWorkers consolidations run concurrently; the rest
// queue behind the semaphore.
func (s *Sweeper) Sweep() {
	evicted := s.store.EvictIdle(s.IdleTimeout)
	if len(evicted) == 0 {
		return
	}

	log.Printf("avatarmem: sweeping %d idle session(s)", len(evicted))

	for _, ev := range evicted {
		ev := ev
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			s.sem <- struct{}{}
			defer func() { <-s.sem }()

			s.consolidate(ev)
		}()
	}
}

func (s *Sweeper) consolidate(ev Evicted) {
	job := &memory.Job{
		AvatarID:      ev.AvatarID,
		MemoryVersion: ev.MemoryVersion,
		Messages:      ev.Messages,
		ChatCount:     ev.ChatCount,
	}

	version, err := s.consolidator.Run(context.Background(), job)
	if errors.Is(err, memory.ErrNoFragments) {
		log.Printf("avatarmem: nothing to consolidate for avatar %s", ev.AvatarID)
		return
	}
	if err != nil {
		log.Printf("avatarmem: consolidation failed for avatar %s: %v", ev.AvatarID, err)
		return
	}

	log.Printf("avatarmem: consolidated avatar %s to memory version %d", ev.AvatarID, version)
}
