package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the document file extensions discovered when
// none are configured.
var DefaultExtensions = []string{".yaml", ".yml"}

// Ref locates a document on disk and names it in the fingerprint store.
type Ref struct {
	Path string
	Key  string
}

// Discover lists the documents directly inside dir whose extension is in
// exts, sorted by file name. Subdirectories and dot files are ignored.
// The key of each document is the base name of dir joined with the file
// name, so it does not depend on the working directory.
func Discover(dir string, exts []string) ([]Ref, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read document directory: %w", err)
	}

	var refs []Ref
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !MatchesExtension(name, exts) {
			continue
		}
		refs = append(refs, Ref{
			Path: filepath.Join(abs, name),
			Key:  KeyFor(abs, name),
		})
	}
	return refs, nil
}

// KeyFor returns the store key of file name inside dir.
func KeyFor(dir, name string) string {
	return filepath.ToSlash(filepath.Join(filepath.Base(dir), name))
}

// MatchesExtension reports whether name ends in one of exts, ignoring case.
func MatchesExtension(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, want := range exts {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}
