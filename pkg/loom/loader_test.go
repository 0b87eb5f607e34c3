package loom

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "page.loom"), []byte("content"), 0644); err != nil {
		t.Fatalf("failed to write template file: %v", err)
	}

	l := FileLoader{Dir: dir, Ext: ".loom"}
	text, err := l.Load(context.Background(), "page")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != "content" {
		t.Errorf("Load() = %q, want %q", text, "content")
	}
}

func TestFileLoader_Missing(t *testing.T) {
	l := FileLoader{Dir: t.TempDir(), Ext: ".loom"}
	_, err := l.Load(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected an error for a missing template, got nil")
	}
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("error type = %T, want *LoadError", err)
	}
	if le.Name != "ghost" {
		t.Errorf("LoadError.Name = %q, want %q", le.Name, "ghost")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("the filesystem cause must stay reachable through the error chain")
	}
}

func TestFSLoader(t *testing.T) {
	fsys := fstest.MapFS{
		"partials/header.loom": &fstest.MapFile{Data: []byte("<h1>hi</h1>")},
	}
	l := FSLoader{FS: fsys, Ext: ".loom"}
	text, err := l.Load(context.Background(), "partials/header")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != "<h1>hi</h1>" {
		t.Errorf("Load() = %q, want %q", text, "<h1>hi</h1>")
	}

	if _, err = l.Load(context.Background(), "absent"); err == nil {
		t.Fatal("expected an error for a missing fs entry, got nil")
	}
}
