package vector

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestUpsertDimensionMismatch(t *testing.T) {
	idx := NewMemoryIndex(3)
	defer idx.Close()

	err := idx.Upsert(context.Background(), "c1", []float32{1, 0}, Payload{})
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dimErr.Got != 2 || dimErr.Want != 3 {
		t.Errorf("got %d/%d, want 2/3", dimErr.Got, dimErr.Want)
	}
	if idx.Size() != 0 {
		t.Errorf("failed upsert must not store anything, size = %d", idx.Size())
	}
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	defer idx.Close()

	if err := idx.Upsert(ctx, "c1", []float32{1, 0}, Payload{DocumentID: "d1"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, "c1", []float32{0, 1}, Payload{DocumentID: "d2"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Fatalf("size = %d, want 1", idx.Size())
	}

	hits, err := idx.Search(ctx, []float32{0, 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Payload.DocumentID != "d2" {
		t.Errorf("replaced entry not visible: %+v", hits)
	}
	if hits[0].Score < 0.999 {
		t.Errorf("score = %f, want ~1.0 against replaced vector", hits[0].Score)
	}
}

func TestSearchOrderingAndTopK(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	defer idx.Close()

	// Angles away from the query (1, 0): c3 closest, then c2, then c1.
	vectors := map[string][]float32{
		"c1": {0, 1},
		"c2": {1, 1},
		"c3": {1, 0.1},
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if err := idx.Upsert(ctx, id, vectors[id], Payload{}); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].ChunkID != "c3" || hits[1].ChunkID != "c2" {
		t.Errorf("order = [%s %s], want [c3 c2]", hits[0].ChunkID, hits[1].ChunkID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("scores not descending: %f < %f", hits[0].Score, hits[1].Score)
	}
}

func TestSearchTieBreaksByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	defer idx.Close()

	// Identical vectors: equal scores for every query.
	for _, id := range []string{"first", "second", "third"} {
		if err := idx.Upsert(ctx, id, []float32{1, 1}, Payload{}); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 5; i++ {
		hits, err := idx.Search(ctx, []float32{1, 0}, 3)
		if err != nil {
			t.Fatal(err)
		}
		got := []string{hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID}
		want := []string{"first", "second", "third"}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("run %d: order = %v, want %v", i, got, want)
			}
		}
	}
}

func TestSearchTieBreakSurvivesReplace(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	defer idx.Close()

	for _, id := range []string{"first", "second"} {
		if err := idx.Upsert(ctx, id, []float32{1, 1}, Payload{}); err != nil {
			t.Fatal(err)
		}
	}
	// Re-ingesting "first" must not demote it behind "second".
	if err := idx.Upsert(ctx, "first", []float32{1, 1}, Payload{}); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ChunkID != "first" {
		t.Errorf("replace changed tie-break order: got %s first", hits[0].ChunkID)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := NewMemoryIndex(2)
	defer idx.Close()

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("len(hits) = %d, want 0", len(hits))
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	defer idx.Close()

	if err := idx.Upsert(ctx, "c1", []float32{1, 0}, Payload{}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, "c1"); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
	if err := idx.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("deleting unknown id should be a no-op, got %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("size = %d, want 0", idx.Size())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.bin")

	idx := NewMemoryIndex(3)
	entries := []struct {
		id  string
		vec []float32
		pl  Payload
	}{
		{"c1", []float32{1, 0, 0}, Payload{DocumentID: "d1", ChunkIndex: 0, Filename: "a.txt"}},
		{"c2", []float32{0, 1, 0}, Payload{DocumentID: "d1", ChunkIndex: 1, Filename: "a.txt"}},
		{"c3", []float32{0, 0, 1}, Payload{DocumentID: "d2", ChunkIndex: 0, Filename: "b.pdf"}},
	}
	for _, e := range entries {
		if err := idx.Upsert(ctx, e.id, e.vec, e.pl); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	idx.Close()

	loaded := NewMemoryIndex(3)
	defer loaded.Close()
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != len(entries) {
		t.Fatalf("size = %d, want %d", loaded.Size(), len(entries))
	}

	hits, err := loaded.Search(ctx, []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ChunkID != "c2" || hits[0].Payload.Filename != "a.txt" || hits[0].Payload.ChunkIndex != 1 {
		t.Errorf("payload lost in round trip: %+v", hits[0])
	}
}

func TestLoadPreservesTieBreakOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.bin")

	idx := NewMemoryIndex(2)
	for _, id := range []string{"first", "second", "third"} {
		if err := idx.Upsert(ctx, id, []float32{1, 1}, Payload{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	idx.Close()

	loaded := NewMemoryIndex(2)
	defer loaded.Close()
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}

	hits, err := loaded.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "second", "third"}
	for i := range want {
		if hits[i].ChunkID != want[i] {
			t.Fatalf("order after reload = [%s %s %s], want %v",
				hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID, want)
		}
	}

	// New inserts after a reload must sort behind the loaded entries on ties.
	if err := loaded.Upsert(ctx, "fourth", []float32{1, 1}, Payload{}); err != nil {
		t.Fatal(err)
	}
	hits, err = loaded.Search(ctx, []float32{1, 0}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if hits[3].ChunkID != "fourth" {
		t.Errorf("new entry should tie-break last, got %s", hits[3].ChunkID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	idx := NewMemoryIndex(2)
	defer idx.Close()

	if err := idx.Load(filepath.Join(t.TempDir(), "does-not-exist.bin")); err != nil {
		t.Fatalf("missing index file should not be an error, got %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("size = %d, want 0", idx.Size())
	}
}

func TestLoadDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.bin")

	idx := NewMemoryIndex(3)
	if err := idx.Upsert(ctx, "c1", []float32{1, 0, 0}, Payload{}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	idx.Close()

	other := NewMemoryIndex(4)
	defer other.Close()
	err := other.Load(path)
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %f, want %f", got, tt.want)
			}
		})
	}
}
