package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/avatarmem-go/pkg/blob"
	"github.com/companionlabs/avatarmem-go/pkg/llm"
)

// fakeLLM scripts responses per pipeline stage, keyed on the system prompt.
type fakeLLM struct {
	extractResp   string
	extractErr    error
	arbitrateResp []string
	arbitrateErr  error
	mergeResp     string
	mergeErr      error

	arbitrateCalls int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages")
	}
	switch messages[0].Content {
	case extractionSystemPrompt:
		return f.extractResp, f.extractErr
	case arbitrationSystemPrompt:
		if f.arbitrateErr != nil {
			return "", f.arbitrateErr
		}
		resp := f.arbitrateResp[f.arbitrateCalls%len(f.arbitrateResp)]
		f.arbitrateCalls++
		return resp, nil
	case mergeSystemPrompt:
		return f.mergeResp, f.mergeErr
	}
	return "", fmt.Errorf("unexpected system prompt: %q", messages[0].Content)
}

func (f *fakeLLM) GenerateStream(ctx context.Context, messages []llm.Message, onDelta func(string), opts ...llm.GenerateOption) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeLLM) Close() error { return nil }

// fakeEmbedder returns fixed vectors in input order.
type fakeEmbedder struct {
	vectors [][]float64
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Close() error    { return nil }

// fakeBlob is an in-memory blob store.
type fakeBlob struct {
	data   map[string][]byte
	putErr error
	puts   int
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{data: make(map[string][]byte)}
}

func (f *fakeBlob) Get(ctx context.Context, avatarID string) ([]byte, error) {
	d, ok := f.data[avatarID]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return d, nil
}

func (f *fakeBlob) Put(ctx context.Context, avatarID string, data []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.data[avatarID] = data
	return nil
}

func (f *fakeBlob) Close() error { return nil }

// fakeCatalog records memory write-backs.
type fakeCatalog struct {
	avatarID  string
	version   uint32
	chatCount int
	calls     int
	err       error
}

func (f *fakeCatalog) UpdateRoleMemory(ctx context.Context, avatarID string, memoryVersion uint32, chatCount int, updatedAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.calls++
	f.avatarID = avatarID
	f.version = memoryVersion
	f.chatCount = chatCount
	return nil
}

func transcript() []llm.Message {
	return []llm.Message{
		{Role: "user", Content: "I adopted a cat named Mochi"},
		{Role: "assistant", Content: "How lovely!"},
	}
}

func TestRunFreshConsolidation(t *testing.T) {
	blobs := newFakeBlob()
	cat := &fakeCatalog{}
	c := NewConsolidator(blobs, cat,
		&fakeLLM{
			extractResp:   `{"fragments": ["has a cat named Mochi", "starts a bakery job Monday"]}`,
			arbitrateResp: []string{`{"decision": "create_new"}`},
		},
		&fakeEmbedder{vectors: [][]float64{{1, 0, 0}, {0, 1, 0}}},
	)

	version, err := c.Run(context.Background(), &Job{
		AvatarID:      "av1",
		MemoryVersion: 0,
		Messages:      transcript(),
		ChatCount:     2,
	})

	require.NoError(t, err)
	assert.Equal(t, uint32(1), version)
	assert.Equal(t, 1, blobs.puts)
	assert.Equal(t, "av1", cat.avatarID)
	assert.Equal(t, uint32(1), cat.version)
	assert.Equal(t, 3, cat.chatCount)

	file := Decode("av1", blobs.data["av1"])
	assert.Equal(t, uint32(1), file.Version)
	require.Len(t, file.Records, 2)
	assert.Equal(t, "has a cat named Mochi", file.Records[0].Text)
	assert.Equal(t, uint32(1), file.Records[0].Frequency)
}

func TestRunMergesIntoExistingRecord(t *testing.T) {
	blobs := newFakeBlob()

	existing := NewFile("av2")
	existing.Version = 1
	existing.Dim = 3
	existing.Records = []*Record{NewRecord("owns a cat", []float64{1, 0, 0})}
	blobs.data["av2"] = Encode(existing)

	cat := &fakeCatalog{}
	c := NewConsolidator(blobs, cat,
		&fakeLLM{
			extractResp:   `{"fragments": ["the cat is named Mochi"]}`,
			arbitrateResp: []string{`{"decision": "merge_with:1", "reason": "same cat"}`},
			mergeResp:     "owns a cat named Mochi",
		},
		&fakeEmbedder{vectors: [][]float64{{1, 0.1, 0}}},
	)

	version, err := c.Run(context.Background(), &Job{
		AvatarID:      "av2",
		MemoryVersion: 1,
		Messages:      transcript(),
	})

	require.NoError(t, err)
	assert.Equal(t, uint32(2), version)

	file := Decode("av2", blobs.data["av2"])
	assert.Equal(t, uint32(2), file.Version)
	require.Len(t, file.Records, 1)
	assert.Equal(t, "owns a cat named Mochi", file.Records[0].Text)
	assert.Equal(t, uint32(2), file.Records[0].Frequency)
}

func TestRunNoFragmentsAborts(t *testing.T) {
	blobs := newFakeBlob()
	cat := &fakeCatalog{}
	c := NewConsolidator(blobs, cat,
		&fakeLLM{extractResp: `{"fragments": []}`},
		&fakeEmbedder{},
	)

	_, err := c.Run(context.Background(), &Job{AvatarID: "av3", Messages: transcript()})

	assert.ErrorIs(t, err, ErrNoFragments)
	assert.Zero(t, blobs.puts, "no upload on empty extraction")
	assert.Zero(t, cat.calls)
}

func TestRunEmptyTranscriptAborts(t *testing.T) {
	c := NewConsolidator(newFakeBlob(), &fakeCatalog{}, &fakeLLM{}, &fakeEmbedder{})

	_, err := c.Run(context.Background(), &Job{AvatarID: "av4"})

	assert.ErrorIs(t, err, ErrNoFragments)
}

func TestRunEmbeddingMismatchAborts(t *testing.T) {
	blobs := newFakeBlob()
	cat := &fakeCatalog{}
	c := NewConsolidator(blobs, cat,
		&fakeLLM{extractResp: `{"fragments": ["a", "b"]}`},
		&fakeEmbedder{vectors: [][]float64{{1, 0, 0}}}, // one vector for two fragments
	)

	_, err := c.Run(context.Background(), &Job{AvatarID: "av5", Messages: transcript()})

	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
	assert.Zero(t, blobs.puts)
	assert.Zero(t, cat.calls)
}

func TestRunEmbeddingErrorAborts(t *testing.T) {
	c := NewConsolidator(newFakeBlob(), &fakeCatalog{},
		&fakeLLM{extractResp: `{"fragments": ["a"]}`},
		&fakeEmbedder{err: errors.New("quota exceeded")},
	)

	_, err := c.Run(context.Background(), &Job{AvatarID: "av6", Messages: transcript()})

	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
}

func TestRunMalformedArbitrationCreatesNew(t *testing.T) {
	blobs := newFakeBlob()

	existing := NewFile("av7")
	existing.Version = 1
	existing.Dim = 3
	existing.Records = []*Record{NewRecord("owns a cat", []float64{1, 0, 0})}
	blobs.data["av7"] = Encode(existing)

	c := NewConsolidator(blobs, &fakeCatalog{},
		&fakeLLM{
			extractResp:   `{"fragments": ["cat is fluffy"]}`,
			arbitrateResp: []string{"this is not json"},
		},
		&fakeEmbedder{vectors: [][]float64{{1, 0.1, 0}}},
	)

	_, err := c.Run(context.Background(), &Job{AvatarID: "av7", MemoryVersion: 1, Messages: transcript()})

	require.NoError(t, err)
	file := Decode("av7", blobs.data["av7"])
	assert.Len(t, file.Records, 2, "unparseable verdict falls back to create_new")
}

func TestRunOutOfRangeMergeRankCreatesNew(t *testing.T) {
	blobs := newFakeBlob()

	existing := NewFile("av8")
	existing.Version = 1
	existing.Dim = 3
	existing.Records = []*Record{NewRecord("owns a cat", []float64{1, 0, 0})}
	blobs.data["av8"] = Encode(existing)

	c := NewConsolidator(blobs, &fakeCatalog{},
		&fakeLLM{
			extractResp:   `{"fragments": ["cat is fluffy"]}`,
			arbitrateResp: []string{`{"decision": "merge_with:7"}`},
		},
		&fakeEmbedder{vectors: [][]float64{{1, 0.1, 0}}},
	)

	_, err := c.Run(context.Background(), &Job{AvatarID: "av8", MemoryVersion: 1, Messages: transcript()})

	require.NoError(t, err)
	file := Decode("av8", blobs.data["av8"])
	require.Len(t, file.Records, 2)
	assert.Equal(t, "owns a cat", file.Records[0].Text, "existing record untouched")
}

func TestRunMergeFailureConcatenates(t *testing.T) {
	blobs := newFakeBlob()

	existing := NewFile("av9")
	existing.Version = 1
	existing.Dim = 3
	existing.Records = []*Record{NewRecord("owns a cat", []float64{1, 0, 0})}
	blobs.data["av9"] = Encode(existing)

	c := NewConsolidator(blobs, &fakeCatalog{},
		&fakeLLM{
			extractResp:   `{"fragments": ["cat is named Mochi"]}`,
			arbitrateResp: []string{`{"decision": "merge_with:1"}`},
			mergeErr:      errors.New("model unavailable"),
		},
		&fakeEmbedder{vectors: [][]float64{{1, 0.1, 0}}},
	)

	_, err := c.Run(context.Background(), &Job{AvatarID: "av9", MemoryVersion: 1, Messages: transcript()})

	require.NoError(t, err)
	file := Decode("av9", blobs.data["av9"])
	require.Len(t, file.Records, 1)
	assert.Equal(t, "owns a cat | cat is named Mochi", file.Records[0].Text)
	assert.Equal(t, uint32(2), file.Records[0].Frequency)
}

func TestRunIgnoreLeavesFileUnchanged(t *testing.T) {
	blobs := newFakeBlob()

	existing := NewFile("av10")
	existing.Version = 1
	existing.Dim = 3
	existing.Records = []*Record{NewRecord("owns a cat", []float64{1, 0, 0})}
	blobs.data["av10"] = Encode(existing)

	c := NewConsolidator(blobs, &fakeCatalog{},
		&fakeLLM{
			extractResp:   `{"fragments": ["owns a cat"]}`,
			arbitrateResp: []string{`{"decision": "ignore"}`},
		},
		&fakeEmbedder{vectors: [][]float64{{1, 0, 0}}},
	)

	version, err := c.Run(context.Background(), &Job{AvatarID: "av10", MemoryVersion: 1, Messages: transcript()})

	require.NoError(t, err)
	assert.Equal(t, uint32(2), version, "version still advances")
	file := Decode("av10", blobs.data["av10"])
	require.Len(t, file.Records, 1)
	assert.Equal(t, uint32(1), file.Records[0].Frequency)
}

func TestRunSaveFailureReported(t *testing.T) {
	blobs := newFakeBlob()
	blobs.putErr = errors.New("disk full")
	cat := &fakeCatalog{}

	c := NewConsolidator(blobs, cat,
		&fakeLLM{extractResp: `{"fragments": ["a"]}`},
		&fakeEmbedder{vectors: [][]float64{{1, 0, 0}}},
	)

	_, err := c.Run(context.Background(), &Job{AvatarID: "av11", Messages: transcript()})

	assert.Error(t, err)
	assert.Zero(t, cat.calls, "catalog untouched when the save fails")
}

func TestRunCorruptExistingFileStartsEmpty(t *testing.T) {
	blobs := newFakeBlob()
	blobs.data["av12"] = []byte{0xba, 0xad}

	c := NewConsolidator(blobs, &fakeCatalog{},
		&fakeLLM{extractResp: `{"fragments": ["a"]}`},
		&fakeEmbedder{vectors: [][]float64{{1, 0, 0}}},
	)

	version, err := c.Run(context.Background(), &Job{AvatarID: "av12", MemoryVersion: 4, Messages: transcript()})

	require.NoError(t, err)
	assert.Equal(t, uint32(5), version, "catalog version stays authoritative")
	file := Decode("av12", blobs.data["av12"])
	assert.Len(t, file.Records, 1)
}
