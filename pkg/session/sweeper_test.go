package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/avatarmem-go/pkg/llm"
	"github.com/companionlabs/avatarmem-go/pkg/memory"
)

// fakeConsolidator records jobs it receives.
type fakeConsolidator struct {
	mu   sync.Mutex
	jobs []*memory.Job
	err  error
}

func (f *fakeConsolidator) Run(ctx context.Context, job *memory.Job) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return 0, f.err
	}
	return job.MemoryVersion + 1, nil
}

func (f *fakeConsolidator) received() []*memory.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*memory.Job(nil), f.jobs...)
}

func TestSweepConsolidatesIdleSessions(t *testing.T) {
	store := NewStore(newFakeRoles("av1", "av2"))

	idle, err := store.GetOrCreate(context.Background(), "u1", "av1", nil)
	require.NoError(t, err)
	idle.AddMessages(llm.Message{Role: "user", Content: "hello"})
	idle.MemoryVersion = 2
	idle.ChatCount = 4
	idle.LastActive = time.Now().Add(-time.Hour)

	active, err := store.GetOrCreate(context.Background(), "u1", "av2", nil)
	require.NoError(t, err)
	active.Touch()

	consolidator := &fakeConsolidator{}
	sweeper := NewSweeper(store, consolidator)

	sweeper.Sweep()
	sweeper.Stop()

	jobs := consolidator.received()
	require.Len(t, jobs, 1)
	assert.Equal(t, "av1", jobs[0].AvatarID)
	assert.Equal(t, uint32(2), jobs[0].MemoryVersion)
	assert.Equal(t, 4, jobs[0].ChatCount)
	require.Len(t, jobs[0].Messages, 1)

	assert.Nil(t, store.Peek("u1", "av1"))
	assert.NotNil(t, store.Peek("u1", "av2"))
}

func TestSweepNothingIdle(t *testing.T) {
	store := NewStore(newFakeRoles("av1"))
	_, err := store.GetOrCreate(context.Background(), "u1", "av1", nil)
	require.NoError(t, err)

	consolidator := &fakeConsolidator{}
	sweeper := NewSweeper(store, consolidator)

	sweeper.Sweep()
	sweeper.Stop()

	assert.Empty(t, consolidator.received())
}

func TestSweepSurvivesConsolidationFailure(t *testing.T) {
	store := NewStore(newFakeRoles("av1", "av2"))
	for _, id := range []string{"av1", "av2"} {
		sess, err := store.GetOrCreate(context.Background(), "u1", id, nil)
		require.NoError(t, err)
		sess.AddMessages(llm.Message{Role: "user", Content: "hi"})
		sess.LastActive = time.Now().Add(-time.Hour)
	}

	consolidator := &fakeConsolidator{err: errors.New("backend down")}
	sweeper := NewSweeper(store, consolidator)

	sweeper.Sweep()
	sweeper.Stop()

	assert.Len(t, consolidator.received(), 2, "every evicted session is attempted")
	assert.Zero(t, store.Count("u1"), "sessions stay evicted even when consolidation fails")
}

func TestSweepTreatsNoFragmentsAsSkip(t *testing.T) {
	store := NewStore(newFakeRoles("av1"))
	sess, err := store.GetOrCreate(context.Background(), "u1", "av1", nil)
	require.NoError(t, err)
	sess.LastActive = time.Now().Add(-time.Hour)

	consolidator := &fakeConsolidator{err: memory.ErrNoFragments}
	sweeper := NewSweeper(store, consolidator)

	sweeper.Sweep()
	sweeper.Stop()

	assert.Len(t, consolidator.received(), 1)
}

func TestStartStop(t *testing.T) {
	store := NewStore(newFakeRoles("av1"))
	sweeper := NewSweeper(store, &fakeConsolidator{})
	sweeper.Interval = 10 * time.Millisecond

	sweeper.Start()
	time.Sleep(35 * time.Millisecond)
	sweeper.Stop()
}
