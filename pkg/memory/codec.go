package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"github.com/x448/float16"
)

// Binary memory file layout, all integers little-endian uint32:
//
//	avatar_id_len | avatar_id (utf8)
//	version | created_at | updated_at
//	num_entries | dim
//	per entry: vector (dim x float16) | norm (float16) | frequency | created_at | updated_at
//	per entry, same order: text_len | text (utf8)

// Encode serializes a memory file into its binary representation.
//
// Encode stamps the file's UpdatedAt with the current time. It expects the
// caller to have already advanced Version; the codec never changes it.
func Encode(f *File) []byte {
	f.UpdatedAt = uint32(time.Now().Unix())

	dim := f.Dim
	if len(f.Records) > 0 {
		dim = uint32(len(f.Records[0].Vector))
	}
	if dim == 0 {
		dim = DefaultDim
	}

	var buf bytes.Buffer
	avatarID := []byte(f.AvatarID)
	writeU32(&buf, uint32(len(avatarID)))
	buf.Write(avatarID)
	writeU32(&buf, f.Version)
	writeU32(&buf, f.CreatedAt)
	writeU32(&buf, f.UpdatedAt)
	writeU32(&buf, uint32(len(f.Records)))
	writeU32(&buf, dim)

	for _, rec := range f.Records {
		for _, v := range rec.Vector {
			writeU16(&buf, float16.Fromfloat32(v).Bits())
		}
		writeU16(&buf, float16.Fromfloat32(rec.Norm).Bits())
		writeU32(&buf, rec.Frequency)
		writeU32(&buf, rec.CreatedAt)
		writeU32(&buf, rec.UpdatedAt)
	}

	for _, rec := range f.Records {
		text := []byte(rec.Text)
		writeU32(&buf, uint32(len(text)))
		buf.Write(text)
	}

	return buf.Bytes()
}

// Decode parses a binary memory file.
//
// Decode is fail-soft: any structural failure (truncated buffer, bad
// lengths) yields an empty memory file for the avatar instead of an error.
// Callers therefore cannot distinguish "new avatar" from "corrupt file" by
// the result alone; the failure is logged.
func Decode(avatarID string, data []byte) *File {
	f, err := decode(data)
	if err != nil {
		log.Printf("avatarmem: decoding memory file for avatar %s failed, starting empty: %v", avatarID, err)
		return NewFile(avatarID)
	}
	return f
}

func decode(data []byte) (*File, error) {
	r := &reader{data: data}

	idLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	avatarID, err := r.bytes(int(idLen))
	if err != nil {
		return nil, err
	}

	f := &File{AvatarID: string(avatarID)}
	if f.Version, err = r.u32(); err != nil {
		return nil, err
	}
	if f.CreatedAt, err = r.u32(); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = r.u32(); err != nil {
		return nil, err
	}

	numEntries, err := r.u32()
	if err != nil {
		return nil, err
	}
	if f.Dim, err = r.u32(); err != nil {
		return nil, err
	}
	if f.Dim == 0 || f.Dim > 1<<16 {
		return nil, fmt.Errorf("implausible dimension %d", f.Dim)
	}

	// Bound the entry count by the bytes left before allocating anything:
	// each entry occupies at least dim f16 values, an f16 norm, and three
	// u32 fields in the vector block.
	entrySize := int(f.Dim)*2 + 14
	if remaining := len(data) - r.pos; int(numEntries) > remaining/entrySize {
		return nil, fmt.Errorf("implausible entry count %d for %d remaining bytes", numEntries, len(data)-r.pos)
	}

	records := make([]*Record, 0, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		rec := &Record{Vector: make([]float32, f.Dim)}
		for j := uint32(0); j < f.Dim; j++ {
			bits, err := r.u16()
			if err != nil {
				return nil, err
			}
			rec.Vector[j] = float16.Frombits(bits).Float32()
		}
		bits, err := r.u16()
		if err != nil {
			return nil, err
		}
		rec.Norm = float16.Frombits(bits).Float32()
		if rec.Frequency, err = r.u32(); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = r.u32(); err != nil {
			return nil, err
		}
		if rec.UpdatedAt, err = r.u32(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	for i := uint32(0); i < numEntries; i++ {
		textLen, err := r.u32()
		if err != nil {
			return nil, err
		}
		text, err := r.bytes(int(textLen))
		if err != nil {
			return nil, err
		}
		records[i].Text = string(text)
	}

	f.Records = records
	return f, nil
}

// reader is a bounds-checked cursor over the binary payload.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("truncated at offset %d (want %d bytes of %d)", r.pos, n, len(r.data))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}
