// Package files locates receipt attachments on disk. An attachment name
// from the chat transcript may live in the incoming staging folder or in
// the processed archive depending on how far ingestion got, so every
// consumer resolves through the same two-location probe.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver probes the known attachment locations in order.
type Resolver struct {
	dirs []string
}

// NewResolver creates a resolver probing incoming first, then processed.
func NewResolver(incomingDir, processedDir string) *Resolver {
	return &Resolver{dirs: []string{incomingDir, processedDir}}
}

// Resolve returns the absolute path of the attachment, or an error when
// the file exists in none of the known locations. Only the base name of
// name is considered, so callers can pass paths from either folder.
func (r *Resolver) Resolve(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." {
		return "", fmt.Errorf("files.Resolve: empty attachment name")
	}
	for _, dir := range r.dirs {
		p := filepath.Join(dir, base)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("files.Resolve: attachment %q not found in %v", base, r.dirs)
}

// IsPDF reports whether the attachment name refers to a PDF.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
