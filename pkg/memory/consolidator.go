package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/companionlabs/avatarmem-go/pkg/blob"
	"github.com/companionlabs/avatarmem-go/pkg/embedder"
	"github.com/companionlabs/avatarmem-go/pkg/llm"
)

// Consolidation failure sentinels.
var (
	// ErrNoFragments indicates that extraction produced no fragments; the
	// run is aborted with no side effects.
	ErrNoFragments = errors.New("no memory fragments extracted")

	// ErrEmbeddingMismatch indicates that the embedding batch failed or its
	// size did not match the fragment count; the run is aborted.
	ErrEmbeddingMismatch = errors.New("embedding batch failed or mismatched")
)

// Similarity search parameters for fragment resolution.
const (
	searchTopK      = 5
	searchThreshold = 0.7

	// mergeSeparator joins the existing text and the new fragment when the
	// LLM merge call fails.
	mergeSeparator = " | "
)

// Job is one consolidation unit of work: the message-log snapshot of an
// evicted session together with the catalog state loaded at session
// bootstrap. Messages appended after eviction are not included.
type Job struct {
	// AvatarID identifies the avatar whose memory is updated.
	AvatarID string

	// MemoryVersion is the avatar's stored memory version from the catalog;
	// it is authoritative for the version bump on save.
	MemoryVersion uint32

	// Messages is the session transcript snapshot.
	Messages []llm.Message

	// ChatCount is the avatar's chat count before this session.
	ChatCount int
}

// CatalogUpdater receives the new memory version and chat count after a
// successful save. catalog.Store satisfies it.
type CatalogUpdater interface {
	UpdateRoleMemory(ctx context.Context, avatarID string, memoryVersion uint32, chatCount int, updatedAt time.Time) error
}

// Consolidator turns a finished session's transcript into durable memory
// updates: extract fragments, embed them, search for similar records, let
// the LLM arbitrate merge/create/ignore per fragment, and persist the
// rewritten memory file with the version advanced by 1.
//
// A Consolidator exclusively owns the memory file for the duration of one
// Run; callers must not run two consolidations for the same avatar
// concurrently.
type Consolidator struct {
	blob     blob.Store
	catalog  CatalogUpdater
	llm      llm.Provider
	embedder embedder.Provider
}

// NewConsolidator creates a consolidator over the given collaborators.
func NewConsolidator(blobStore blob.Store, catalog CatalogUpdater, llmProvider llm.Provider, embedderProvider embedder.Provider) *Consolidator {
	return &Consolidator{
		blob:     blobStore,
		catalog:  catalog,
		llm:      llmProvider,
		embedder: embedderProvider,
	}
}

// Run executes one consolidation pass and returns the new memory version.
//
// Stage failure policy:
//   - load failure degrades to an empty memory file (never fatal)
//   - extraction failure or zero fragments aborts the run with no side
//     effects (ErrNoFragments)
//   - embedding failure or a batch-size mismatch aborts the run
//     (ErrEmbeddingMismatch); partial embeddings are never used
//   - arbitration and merge failures are fragment-local and degrade to
//     create_new / text concatenation
//   - save failure is returned to the caller; the in-memory mutations are
//     discarded and nothing is retried here
func (c *Consolidator) Run(ctx context.Context, job *Job) (uint32, error) {
	file := c.load(ctx, job)
	log.Printf("avatarmem: consolidating avatar %s: %d existing records (version %d)", job.AvatarID, len(file.Records), job.MemoryVersion)

	fragments, err := c.extractFragments(ctx, job.Messages)
	if err != nil {
		return 0, err
	}
	log.Printf("avatarmem: extracted %d fragments for avatar %s", len(fragments), job.AvatarID)

	embeddings, err := c.embedder.EmbedBatch(ctx, fragments)
	if err != nil || len(embeddings) != len(fragments) {
		if err == nil {
			err = fmt.Errorf("got %d embeddings for %d fragments", len(embeddings), len(fragments))
		}
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingMismatch, err)
	}

	for i, fragment := range fragments {
		c.resolveFragment(ctx, file, fragment, embeddings[i])
	}

	file.Version = job.MemoryVersion + 1
	if err := c.blob.Put(ctx, job.AvatarID, Encode(file)); err != nil {
		return 0, fmt.Errorf("saving memory file: %w", err)
	}

	if err := c.catalog.UpdateRoleMemory(ctx, job.AvatarID, file.Version, job.ChatCount+1, time.Now()); err != nil {
		return file.Version, fmt.Errorf("updating catalog: %w", err)
	}

	log.Printf("avatarmem: consolidated avatar %s: %d records at version %d", job.AvatarID, len(file.Records), file.Version)
	return file.Version, nil
}

// load fetches and decodes the avatar's memory file. Version 0 and every
// fetch or decode failure yield an empty file.
func (c *Consolidator) load(ctx context.Context, job *Job) *File {
	if job.MemoryVersion == 0 {
		return NewFile(job.AvatarID)
	}

	data, err := c.blob.Get(ctx, job.AvatarID)
	if err != nil {
		log.Printf("avatarmem: loading memory file for avatar %s failed, starting empty: %v", job.AvatarID, err)
		return NewFile(job.AvatarID)
	}

	return Decode(job.AvatarID, data)
}

// extractFragments asks the LLM to summarize the transcript into discrete
// fact fragments. An empty transcript, extraction failure, unparseable
// response, or empty result all abort with ErrNoFragments.
func (c *Consolidator) extractFragments(ctx context.Context, messages []llm.Message) ([]string, error) {
	transcript := formatTranscript(messages)
	if transcript == "" {
		return nil, ErrNoFragments
	}

	response, err := c.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: extractionPrompt(transcript)},
	}, llm.WithJSONResponse())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFragments, err)
	}

	fragments, err := parseFragmentsResponse(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFragments, err)
	}
	if len(fragments) == 0 {
		return nil, ErrNoFragments
	}
	return fragments, nil
}

// resolveFragment applies the merge/create/ignore pipeline to one fragment.
// All failures here are fragment-local; the batch always continues.
func (c *Consolidator) resolveFragment(ctx context.Context, file *File, fragment string, embedding []float64) {
	var matches []Match
	if len(file.Records) > 0 {
		matches = Search(embedding, file.Records, searchTopK, searchThreshold)
	}

	d := c.arbitrate(ctx, fragment, matches)

	switch d.kind {
	case decideMerge:
		if d.rank < 1 || d.rank > len(matches) {
			// Out-of-range rank degrades to a new record.
			file.Records = append(file.Records, NewRecord(fragment, embedding))
			return
		}
		match := matches[d.rank-1]
		rec := file.Records[match.Index]
		rec.Text = c.mergeTexts(ctx, rec.Text, fragment)
		rec.Frequency++
		rec.UpdatedAt = uint32(time.Now().Unix())
	case decideIgnore:
		// No mutation.
	default:
		file.Records = append(file.Records, NewRecord(fragment, embedding))
	}
}

// arbitrate asks the LLM to classify the fragment against its ranked
// candidates. With no candidates, or on any failure, the verdict is
// create_new.
func (c *Consolidator) arbitrate(ctx context.Context, fragment string, matches []Match) decision {
	if len(matches) == 0 {
		return decision{kind: decideCreateNew}
	}

	response, err := c.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: arbitrationSystemPrompt},
		{Role: "user", Content: arbitrationPrompt(fragment, matches)},
	}, llm.WithJSONResponse())
	if err != nil {
		log.Printf("avatarmem: arbitration failed, defaulting to create_new: %v", err)
		return decision{kind: decideCreateNew}
	}

	raw, reason, err := parseDecisionResponse(response)
	if err != nil {
		log.Printf("avatarmem: arbitration response unparseable, defaulting to create_new: %v", err)
		return decision{kind: decideCreateNew}
	}

	d := parseDecision(raw)
	log.Printf("avatarmem: arbitration verdict %q (%s)", raw, reason)
	return d
}

// mergeTexts asks the LLM to combine an existing memory with a new fragment
// into one coherent text, falling back to separator concatenation.
func (c *Consolidator) mergeTexts(ctx context.Context, existing, fragment string) string {
	merged, err := c.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: mergeSystemPrompt},
		{Role: "user", Content: mergePrompt(existing, fragment)},
	})
	if err != nil {
		log.Printf("avatarmem: merge failed, concatenating texts: %v", err)
		return existing + mergeSeparator + fragment
	}
	merged = removeCodeBlocks(merged)
	if merged == "" {
		return existing + mergeSeparator + fragment
	}
	return merged
}
