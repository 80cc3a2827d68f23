package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kalambet/bizrag/internal/storage"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening index db: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewSQLiteStore(st)
}

func rec(id string, vec ...float32) Record {
	return Record{ID: id, SourceID: "src-" + id, SourceType: "employee", TextChunk: "text " + id, Embedding: vec}
}

func TestReplaceAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Replace(ctx, []Record{
		rec("a", 1, 0, 0),
		rec("b", 0.9, 0.1, 0),
		rec("c", 0, 1, 0),
		rec("d", 0, 0, 1),
	}, nil)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("order = [%s %s], want [a b]", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score descending")
	}
	if results[0].TextChunk != "text a" || results[0].SourceID != "src-a" {
		t.Errorf("record fields not round-tripped: %+v", results[0].Record)
	}
	if len(results[0].Embedding) != 3 {
		t.Errorf("embedding length = %d, want 3", len(results[0].Embedding))
	}
}

func TestSearchTopKLargerThanIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Replace(ctx, []Record{rec("a", 1, 0), rec("b", 0, 1)}, nil); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(ctx, []float32{1, 1}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestSearchEmptyIndexAndZeroQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	results, err := s.Search(ctx, []float32{1, 0}, 5)
	if err != nil || results != nil {
		t.Errorf("empty index: got %v, %v", results, err)
	}

	if err := s.Replace(ctx, []Record{rec("a", 1, 0)}, nil); err != nil {
		t.Fatal(err)
	}
	results, err = s.Search(ctx, []float32{0, 0}, 5)
	if err != nil || results != nil {
		t.Errorf("zero query: got %v, %v", results, err)
	}
}

func TestReplaceSwapsIndexAndMeta(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Replace(ctx, []Record{rec("old1", 1, 0), rec("old2", 0, 1)}, nil); err != nil {
		t.Fatal(err)
	}
	err := s.Replace(ctx, []Record{rec("new", 1, 1)}, map[string]string{storage.MetaFingerprint: "fp1"})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	fp, err := s.Meta(ctx, storage.MetaFingerprint)
	if err != nil || fp != "fp1" {
		t.Errorf("Meta(fingerprint) = %q, %v", fp, err)
	}
}

func TestReplaceRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Replace(ctx, []Record{rec("keep", 1, 0)}, nil); err != nil {
		t.Fatal(err)
	}
	// Duplicate ids violate the primary key mid-transaction.
	err := s.Replace(ctx, []Record{rec("dup", 1, 0), rec("dup", 0, 1)}, nil)
	if err == nil {
		t.Fatal("expected error on duplicate id")
	}
	n, _ := s.Count(ctx)
	if n != 1 {
		t.Errorf("Count after failed replace = %d, want 1", n)
	}
	if _, err := s.Meta(ctx, storage.MetaFingerprint); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Meta after failed replace = %v, want ErrNotFound", err)
	}
}

func TestSearchManyRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var records []Record
	for i := 0; i < 200; i++ {
		records = append(records, rec(fmt.Sprintf("r%03d", i), float32(i), 1))
	}
	if err := s.Replace(ctx, records, nil); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	if results[0].ID != "r199" {
		t.Errorf("best match = %s, want r199", results[0].ID)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestCosineMismatchedLength(t *testing.T) {
	a := []float32{1, 0}
	if got := cosine(a, []float32{1, 0, 0}, norm(a)); got != 0 {
		t.Errorf("cosine of mismatched vectors = %v, want 0", got)
	}
}
