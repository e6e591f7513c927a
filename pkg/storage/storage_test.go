package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key err = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := s.Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("get = %q/%v", v, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted key err = %v, want ErrNotFound", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}

	s2, err := NewFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, err := s2.Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("get after reopen = %q/%v", v, err)
	}

	if err := s2.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	s3, err := NewFile(path)
	if err != nil {
		t.Fatalf("reopen after delete: %v", err)
	}
	if _, err := s3.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted key err = %v, want ErrNotFound", err)
	}
}
