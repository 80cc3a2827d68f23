package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same directory and verifies
// migrations are not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}

	if _, err := os.Stat(filepath.Join(dir, DBFile)); err != nil {
		t.Errorf("expected %s in index dir: %v", DBFile, err)
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("applied %v, want two migrations", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
		}
	}
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)

	for _, name := range []string{"document_vectors", "index_meta", "idx_document_vectors_source"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("%s not found", name)
		}
	}
}

func setMeta(t *testing.T, s *Store, key, value string) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetMetaTx(ctx, tx, map[string]string{key: value}); err != nil {
		tx.Rollback()
		t.Fatalf("SetMetaTx(%s): %v", key, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetMeta(ctx, MetaFingerprint); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetMeta on empty store = %v, want ErrNotFound", err)
	}

	setMeta(t, s, MetaFingerprint, "abc")
	setMeta(t, s, MetaFingerprint, "def")
	got, err := s.GetMeta(ctx, MetaFingerprint)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if got != "def" {
		t.Errorf("GetMeta = %q, want def", got)
	}
}

func TestSetMetaTx(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetMetaTx(ctx, tx, map[string]string{MetaEmbedModel: "mxbai-embed-large", MetaBuiltAt: "now"}); err != nil {
		tx.Rollback()
		t.Fatalf("SetMetaTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMeta(ctx, MetaEmbedModel)
	if err != nil || got != "mxbai-embed-large" {
		t.Errorf("GetMeta(embed_model) = %q, %v", got, err)
	}
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
