package loom

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// Loader resolves a template name to its source text. Load may block on I/O;
// it is only ever called during compilation, never during render.
type Loader interface {
	Load(ctx context.Context, name string) (string, error)
}

// FileLoader is the default Loader. It resolves names against a base
// directory, appending an optional extension, e.g. Ext ".loom" turns the
// name "header" into "<dir>/header.loom".
type FileLoader struct {
	Dir string
	Ext string
}

// Load reads the named template from disk. Missing or unreadable files
// produce a LoadError wrapping the filesystem error.
func (l FileLoader) Load(_ context.Context, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(l.Dir, name+l.Ext))
	if err != nil {
		return "", &LoadError{Name: name, Err: err}
	}
	return string(data), nil
}

// FSLoader resolves template names inside an fs.FS, which makes embedded
// (embed.FS) and in-memory (fstest.MapFS) template sets loadable.
type FSLoader struct {
	FS  fs.FS
	Ext string
}

// Load reads the named template from the wrapped filesystem.
func (l FSLoader) Load(_ context.Context, name string) (string, error) {
	data, err := fs.ReadFile(l.FS, name+l.Ext)
	if err != nil {
		return "", &LoadError{Name: name, Err: err}
	}
	return string(data), nil
}
