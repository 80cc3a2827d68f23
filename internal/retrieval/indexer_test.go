package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/kalambet/bizrag/internal/dataset"
	"github.com/kalambet/bizrag/internal/storage"
)

func testDocs() []dataset.Document {
	return []dataset.Document{
		{ID: "employee:1", Kind: dataset.KindEmployee, Text: "Employee: John Smith (Lead Engineer), Department: Engineering, Salary: $120,000"},
		{ID: "employee:2", Kind: dataset.KindEmployee, Text: "Employee: Jane Doe (Sales Director), Department: Sales, Salary: $150,000"},
	}
}

func TestBuild_IndexesEveryDocument(t *testing.T) {
	store := openTestStore(t)
	k := &keywordEmbedder{}
	ix := NewIndexer(NewEmbedder(k, "fake"), store, IndexerOptions{ChunkSize: 500, ChunkOverlap: 50}, quietLogger())

	stats, err := ix.Build(context.Background(), testDocs(), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Skipped {
		t.Error("first build should not be skipped")
	}
	if stats.Documents != 2 || stats.Chunks != 2 {
		t.Errorf("stats = %+v, want 2 documents, 2 chunks", stats)
	}
	if k.calls.Load() != 2 {
		t.Errorf("embed calls = %d, want 2", k.calls.Load())
	}

	fp, err := store.Meta(context.Background(), storage.MetaFingerprint)
	if err != nil || fp != ix.Fingerprint(testDocs()) {
		t.Errorf("stored fingerprint = %q, %v", fp, err)
	}
	model, _ := store.Meta(context.Background(), storage.MetaEmbedModel)
	if model != "fake" {
		t.Errorf("stored embed model = %q, want fake", model)
	}
}

func TestBuild_SkipsUnchangedInputs(t *testing.T) {
	store := openTestStore(t)
	k := &keywordEmbedder{}
	ix := NewIndexer(NewEmbedder(k, "fake"), store, IndexerOptions{ChunkSize: 500, ChunkOverlap: 50}, quietLogger())

	if _, err := ix.Build(context.Background(), testDocs(), false); err != nil {
		t.Fatal(err)
	}
	before := k.calls.Load()

	stats, err := ix.Build(context.Background(), testDocs(), false)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if !stats.Skipped || stats.Chunks != 2 {
		t.Errorf("stats = %+v, want skipped with 2 chunks", stats)
	}
	if k.calls.Load() != before {
		t.Error("unchanged build should not embed")
	}

	stats, err = ix.Build(context.Background(), testDocs(), true)
	if err != nil {
		t.Fatalf("forced Build: %v", err)
	}
	if stats.Skipped {
		t.Error("forced build should not be skipped")
	}
}

func TestBuild_RebuildsWhenDocumentsChange(t *testing.T) {
	store := openTestStore(t)
	ix := NewIndexer(NewEmbedder(&keywordEmbedder{}, "fake"), store, IndexerOptions{ChunkSize: 500, ChunkOverlap: 50}, quietLogger())

	if _, err := ix.Build(context.Background(), testDocs(), false); err != nil {
		t.Fatal(err)
	}
	docs := testDocs()[:1]
	stats, err := ix.Build(context.Background(), docs, false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped {
		t.Error("changed inputs should trigger a rebuild")
	}
	n, _ := store.Count(context.Background())
	if n != 1 {
		t.Errorf("Count = %d, want 1 after replacing", n)
	}
}

func TestBuild_SplitsLongDocuments(t *testing.T) {
	store := openTestStore(t)
	ix := NewIndexer(NewEmbedder(&keywordEmbedder{}, "fake"), store, IndexerOptions{ChunkSize: 40, ChunkOverlap: 0}, quietLogger())

	long := strings.Repeat("Engineering budget line item. ", 10)
	stats, err := ix.Build(context.Background(), []dataset.Document{{ID: "department:Engineering", Kind: dataset.KindDepartment, Text: long}}, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Chunks < 2 {
		t.Errorf("chunks = %d, want the document split", stats.Chunks)
	}
}

func TestFingerprint_DependsOnSettings(t *testing.T) {
	store := openTestStore(t)
	a := NewIndexer(NewEmbedder(&keywordEmbedder{}, "fake"), store, IndexerOptions{ChunkSize: 500, ChunkOverlap: 50}, quietLogger())
	b := NewIndexer(NewEmbedder(&keywordEmbedder{}, "fake"), store, IndexerOptions{ChunkSize: 400, ChunkOverlap: 50}, quietLogger())
	c := NewIndexer(NewEmbedder(&keywordEmbedder{}, "other"), store, IndexerOptions{ChunkSize: 500, ChunkOverlap: 50}, quietLogger())

	docs := testDocs()
	if a.Fingerprint(docs) != a.Fingerprint(docs) {
		t.Error("fingerprint is not deterministic")
	}
	if a.Fingerprint(docs) == b.Fingerprint(docs) {
		t.Error("chunk size should change the fingerprint")
	}
	if a.Fingerprint(docs) == c.Fingerprint(docs) {
		t.Error("embed model should change the fingerprint")
	}
}

func TestBuild_DepartmentsSharingAName(t *testing.T) {
	depts := []dataset.Department{
		{ID: 1, Name: "Sales", Budget: 800000, Location: "Floor 2"},
		{ID: 2, Name: "Sales", Budget: 500000, Location: "Floor 1"},
	}
	fins := []dataset.Financial{
		{ID: 1, DepartmentID: 1, Year: 2023, Quarter: 1, Revenue: 10, Expenses: 5, Profit: 5},
		{ID: 2, DepartmentID: 2, Year: 2023, Quarter: 1, Revenue: 20, Expenses: 5, Profit: 15},
	}
	ds, err := dataset.New(nil, depts, fins)
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}

	store := openTestStore(t)
	ix := NewIndexer(NewEmbedder(&keywordEmbedder{}, "fake"), store, IndexerOptions{ChunkSize: 500, ChunkOverlap: 50}, quietLogger())
	docs := ds.Documents(dataset.ModeDepartment)
	stats, err := ix.Build(context.Background(), docs, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Documents != 4 {
		t.Errorf("documents = %d, want 4", stats.Documents)
	}
	n, err := store.Count(context.Background())
	if err != nil || n != stats.Chunks {
		t.Errorf("Count = %d, %v; want %d", n, err, stats.Chunks)
	}
}
