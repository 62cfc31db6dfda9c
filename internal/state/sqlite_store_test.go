package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/afinia/internal/params"
)

func tempDB(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"), params.DefaultValue, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func withValue(name string, v int) params.Set {
	set := params.Defaults(params.DefaultValue)
	set[name] = v
	return set
}

func TestSQLiteLoadEmpty(t *testing.T) {
	s := tempDB(t)
	set, version := s.LoadVersion(context.Background(), "alice")
	if version != "" {
		t.Fatalf("expected empty version, got %q", version)
	}
	if !set.Equal(params.Defaults(params.DefaultValue)) {
		t.Fatalf("expected defaults, got %v", set)
	}
}

func TestSQLiteSaveAndLoad(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	want := withValue(params.Carisma, 44)
	if err := s.Save(ctx, "alice", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, version := s.LoadVersion(ctx, "alice")
	if version == "" {
		t.Fatal("expected non-empty version")
	}
	if !got.Equal(want) {
		t.Fatalf("mismatch: %v vs %v", got, want)
	}

	// Other users are untouched.
	if other := s.Load(ctx, "bob"); !other.Equal(params.Defaults(params.DefaultValue)) {
		t.Fatalf("bob should have defaults, got %v", other)
	}
}

func TestSQLiteCompareAndSwap(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	v1, err := s.CompareAndSwap(ctx, "alice", "", withValue(params.Iniciativa, 20))
	if err != nil {
		t.Fatalf("initial CAS: %v", err)
	}

	// A second writer holding the stale empty version loses.
	_, err = s.CompareAndSwap(ctx, "alice", "", withValue(params.Iniciativa, 99))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	v2, err := s.CompareAndSwap(ctx, "alice", v1, withValue(params.Iniciativa, 30))
	if err != nil {
		t.Fatalf("CAS on current version: %v", err)
	}
	if v2 == v1 {
		t.Fatal("expected a new version id")
	}

	got, version := s.LoadVersion(ctx, "alice")
	if version != v2 || got[params.Iniciativa] != 30 {
		t.Fatalf("expected v2 with Iniciativa 30, got %s %v", version, got)
	}
}

func TestSQLiteListVersionsAndRollback(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	s.Save(ctx, "alice", withValue(params.Creatividad, 15))
	_, first := s.LoadVersion(ctx, "alice")
	s.Save(ctx, "alice", withValue(params.Creatividad, 25))
	s.Save(ctx, "bob", withValue(params.Creatividad, 90))

	versions, err := s.ListVersions(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].Params[params.Creatividad] != 25 {
		t.Fatalf("expected newest first, got %v", versions[0].Params)
	}
	if versions[0].ParentID != first {
		t.Fatalf("expected parent %s, got %s", first, versions[0].ParentID)
	}
	if versions[1].ParentID != "" {
		t.Fatalf("expected empty parent on first version, got %s", versions[1].ParentID)
	}

	if err := s.Rollback(ctx, "alice", first); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := s.Load(ctx, "alice"); got[params.Creatividad] != 15 {
		t.Fatalf("expected 15 after rollback, got %d", got[params.Creatividad])
	}
}

func TestSQLiteRollbackForeignVersion(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	s.Save(ctx, "bob", withValue(params.Carisma, 70))
	_, bobVersion := s.LoadVersion(ctx, "bob")

	err := s.Rollback(ctx, "alice", bobVersion)
	if !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
	if err := s.Rollback(ctx, "alice", "nonexistent-id"); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestSQLiteCorruptRowDefaults(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	s.Save(ctx, "alice", withValue(params.Carisma, 70))
	_, version := s.LoadVersion(ctx, "alice")

	if _, err := s.db.Exec(`UPDATE parameter_versions SET params_json = 'garbage' WHERE version_id = ?`, version); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	if got := s.Load(ctx, "alice"); !got.Equal(params.Defaults(params.DefaultValue)) {
		t.Fatalf("expected defaults for corrupt row, got %v", got)
	}
}

func TestSQLiteSaveOnClosedDB(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewSQLiteStore(filepath.Join(dir, "test.db"), params.DefaultValue, nil)
	s.Close()

	err := s.Save(context.Background(), "alice", params.Defaults(10))
	if !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("expected ErrSaveFailed, got %v", err)
	}
	if got := s.Load(context.Background(), "alice"); !got.Equal(params.Defaults(params.DefaultValue)) {
		t.Fatalf("expected defaults from closed DB, got %v", got)
	}
}

func TestSQLiteInvalidPath(t *testing.T) {
	_, err := NewSQLiteStore(filepath.Join(string(os.PathSeparator), "nonexistent", "deep", "path", "test.db"), 10, nil)
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestSQLiteInMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", params.DefaultValue, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	if err := s.Save(ctx, "alice", withValue(params.Organizacion, 61)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := s.Load(ctx, "alice"); got[params.Organizacion] != 61 {
		t.Fatalf("expected 61, got %d", got[params.Organizacion])
	}
}
