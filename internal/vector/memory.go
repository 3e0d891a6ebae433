package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// magic identifies a kotae index file; version guards the on-disk layout.
const (
	indexMagic   = 0x4b544149 // "KTAI"
	indexVersion = 1
)

type entry struct {
	vec     []float32
	payload Payload
	seq     uint64
}

// MemoryIndex is an in-memory brute-force cosine index with binary
// persistence. Entries carry a monotonic insertion sequence number which
// breaks score ties deterministically; replacing an entry keeps its original
// sequence so re-ingesting a document does not reshuffle result order.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimensions int
	entries    map[string]*entry
	nextSeq    uint64
	closed     bool
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) *MemoryIndex {
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]*entry),
	}
}

// Upsert stores or replaces the entry for chunkID.
func (idx *MemoryIndex) Upsert(ctx context.Context, chunkID string, vec []float32, payload Payload) error {
	if len(vec) != idx.dimensions {
		return &DimensionMismatchError{Got: len(vec), Want: idx.dimensions}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)

	if existing, ok := idx.entries[chunkID]; ok {
		existing.vec = stored
		existing.payload = payload
		return nil
	}
	idx.entries[chunkID] = &entry{vec: stored, payload: payload, seq: idx.nextSeq}
	idx.nextSeq++
	return nil
}

// Search returns up to topK hits ranked by descending cosine similarity,
// earlier-inserted entries first on equal scores.
func (idx *MemoryIndex) Search(ctx context.Context, query []float32, topK int) ([]*Hit, error) {
	if len(query) != idx.dimensions {
		return nil, &DimensionMismatchError{Got: len(query), Want: idx.dimensions}
	}
	if topK <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("index is closed")
	}

	type scored struct {
		id    string
		score float64
		seq   uint64
		pl    Payload
	}
	results := make([]scored, 0, len(idx.entries))
	for id, e := range idx.entries {
		results = append(results, scored{
			id:    id,
			score: CosineSimilarity(query, e.vec),
			seq:   e.seq,
			pl:    e.payload,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].seq < results[j].seq
	})

	if len(results) > topK {
		results = results[:topK]
	}
	hits := make([]*Hit, len(results))
	for i, r := range results {
		hits[i] = &Hit{ChunkID: r.id, Score: r.score, Payload: r.pl}
	}
	return hits, nil
}

// Delete removes the entry for chunkID. Deleting a missing ID is a no-op.
func (idx *MemoryIndex) Delete(ctx context.Context, chunkID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("index is closed")
	}
	delete(idx.entries, chunkID)
	return nil
}

// Clear removes every entry and resets the sequence counter.
func (idx *MemoryIndex) Clear(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("index is closed")
	}
	idx.entries = make(map[string]*entry)
	idx.nextSeq = 0
	return nil
}

// Size returns the number of indexed vectors.
func (idx *MemoryIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Save writes the index to path atomically (temp file + rename).
//
// Layout (little-endian): magic, version, dimensions, entry count, then per
// entry: seq, id length + id bytes, payload length + payload JSON, vector.
func (idx *MemoryIndex) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	w := bufio.NewWriter(f)

	writeErr := func() error {
		for _, v := range []uint32{indexMagic, indexVersion, uint32(idx.dimensions), uint32(len(idx.entries))} {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		// Persist in seq order so files are byte-stable across saves.
		ids := make([]string, 0, len(idx.entries))
		for id := range idx.entries {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return idx.entries[ids[i]].seq < idx.entries[ids[j]].seq
		})
		for _, id := range ids {
			e := idx.entries[id]
			if err := binary.Write(w, binary.LittleEndian, e.seq); err != nil {
				return err
			}
			pl, err := json.Marshal(e.payload)
			if err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
				return err
			}
			if _, err := w.WriteString(id); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, uint32(len(pl))); err != nil {
				return err
			}
			if _, err := w.Write(pl); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, e.vec); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if writeErr != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write index: %w", writeErr)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	return nil
}

// Load replaces the index contents with the entries in the file at path.
// A missing file leaves the index empty and is not an error.
func (idx *MemoryIndex) Load(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic, version, dims, count uint32
	for _, p := range []*uint32{&magic, &version, &dims, &count} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return fmt.Errorf("failed to read index header: %w", err)
		}
	}
	if magic != indexMagic {
		return fmt.Errorf("not an index file: bad magic %#x", magic)
	}
	if version != indexVersion {
		return fmt.Errorf("unsupported index version %d", version)
	}
	if int(dims) != idx.dimensions {
		return &DimensionMismatchError{Got: int(dims), Want: idx.dimensions}
	}

	entries := make(map[string]*entry, count)
	var maxSeq uint64
	for i := uint32(0); i < count; i++ {
		var seq uint64
		if err := binary.Read(r, binary.LittleEndian, &seq); err != nil {
			return fmt.Errorf("failed to read entry %d: %w", i, err)
		}
		id, err := readBlob(r)
		if err != nil {
			return fmt.Errorf("failed to read entry %d id: %w", i, err)
		}
		plBytes, err := readBlob(r)
		if err != nil {
			return fmt.Errorf("failed to read entry %d payload: %w", i, err)
		}
		var pl Payload
		if err := json.Unmarshal(plBytes, &pl); err != nil {
			return fmt.Errorf("failed to decode entry %d payload: %w", i, err)
		}
		vec := make([]float32, dims)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("failed to read entry %d vector: %w", i, err)
		}
		entries[string(id)] = &entry{vec: vec, payload: pl, seq: seq}
		if seq >= maxSeq {
			maxSeq = seq + 1
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = entries
	idx.nextSeq = maxSeq
	return nil
}

// Close releases the index. Further calls fail.
func (idx *MemoryIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	idx.entries = nil
	return nil
}

func readBlob(r *bufio.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
