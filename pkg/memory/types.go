// Package memory implements the long-lived avatar memory: the versioned
// binary memory file, half-precision vector storage, cosine similarity
// search, and the consolidation pipeline that folds finished chat sessions
// into deduplicated memory records.
package memory

import (
	"math"
	"time"

	"github.com/x448/float16"
)

// DefaultDim is the embedding dimension used when a memory file declares
// none, matching the text-embedding-v4 configuration of the service.
const DefaultDim = 768

// Record is a single semantic fact belonging to one avatar's memory.
type Record struct {
	// Vector is the embedding of the record text. Values are quantized to
	// half precision (the on-disk representation) but held as float32 so
	// that decode(encode(r)) reproduces them exactly.
	Vector []float32

	// Norm is the half-precision L2 norm of Vector, precomputed at record
	// creation and persisted alongside it.
	Norm float32

	// Text is the memory content.
	Text string

	// Frequency counts how many fragments have been merged into this record,
	// starting at 1.
	Frequency uint32

	// CreatedAt is the record creation time in Unix seconds.
	CreatedAt uint32

	// UpdatedAt is the last merge time in Unix seconds.
	UpdatedAt uint32
}

// File is the durable, versioned container for one avatar's memories.
//
// Version 0 means the avatar has no persisted memory yet. Every successful
// consolidation rewrites the whole file with Version advanced by exactly 1.
type File struct {
	// AvatarID identifies the avatar owning this memory file.
	AvatarID string

	// Version is the monotonically increasing file version.
	Version uint32

	// CreatedAt is the file creation time in Unix seconds.
	CreatedAt uint32

	// UpdatedAt is the last save time in Unix seconds; Encode stamps it.
	UpdatedAt uint32

	// Dim is the embedding dimension every record's vector must have.
	Dim uint32

	// Records is the ordered list of memory records. Order is significant:
	// the binary encoding writes the vector block and the text block in the
	// same record order.
	Records []*Record
}

// NewFile creates an empty memory file for an avatar with the default
// embedding dimension and version 0.
func NewFile(avatarID string) *File {
	return &File{
		AvatarID:  avatarID,
		Version:   0,
		CreatedAt: uint32(time.Now().Unix()),
		Dim:       DefaultDim,
	}
}

// NewRecord builds a memory record from a full-precision embedding,
// quantizing the vector and its norm to half precision.
//
// Frequency starts at 1; created and updated timestamps are set to now.
func NewRecord(text string, embedding []float64) *Record {
	vector, norm := Quantize(embedding)
	now := uint32(time.Now().Unix())
	return &Record{
		Vector:    vector,
		Norm:      norm,
		Text:      text,
		Frequency: 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Quantize rounds a full-precision embedding through half precision and
// returns the quantized vector together with its half-precision L2 norm.
//
// The returned values are exactly the values the binary codec will persist,
// so similarity scores computed before and after a save round-trip agree.
func Quantize(embedding []float64) ([]float32, float32) {
	vector := make([]float32, len(embedding))
	var sum float64
	for i, v := range embedding {
		q := float64(float16.Fromfloat32(float32(v)).Float32())
		vector[i] = float32(q)
		sum += q * q
	}
	norm := float16.Fromfloat32(float32(math.Sqrt(sum))).Float32()
	return vector, norm
}
