// Package docs renders the node's AsciiDoc documentation to HTML for the
// API server. The pages under content/ are compiled into the binary; an
// operator can point the service at a directory instead.
package docs

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bytesparadise/libasciidoc"
	"github.com/bytesparadise/libasciidoc/pkg/configuration"
)

//go:embed content/*.adoc
var embedded embed.FS

// ErrNotFound is returned for a page that does not exist.
var ErrNotFound = errors.New("doc not found")

type Service struct {
	fsys  fs.FS
	cache map[string]string // filename -> html content
	mu    sync.RWMutex
}

// NewService serves the pages in fsys.
func NewService(fsys fs.FS) *Service {
	return &Service{
		fsys:  fsys,
		cache: make(map[string]string),
	}
}

// Default serves docsDir when set and the embedded pages otherwise.
func Default(docsDir string) *Service {
	if docsDir != "" {
		return NewService(os.DirFS(docsDir))
	}
	sub, err := fs.Sub(embedded, "content")
	if err != nil {
		panic("docs: " + err.Error())
	}
	return NewService(sub)
}

// GetDoc returns the rendered body of the page filename ("api.adoc").
func (s *Service) GetDoc(ctx context.Context, filename string) (string, error) {
	if !validName(filename) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, filename)
	}

	s.mu.RLock()
	content, ok := s.cache[filename]
	s.mu.RUnlock()
	if ok {
		return content, nil
	}

	data, err := fs.ReadFile(s.fsys, filename)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, filename)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read doc file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	output := bytes.NewBuffer(nil)
	config := configuration.NewConfiguration(
		configuration.WithHeaderFooter(false), // embedded in the caller's layout
		configuration.WithFilename(filename),
	)
	if _, err := libasciidoc.Convert(bytes.NewReader(data), output, config); err != nil {
		return "", fmt.Errorf("failed to convert asciidoc: %w", err)
	}

	html := output.String()
	s.mu.Lock()
	s.cache[filename] = html
	s.mu.Unlock()
	return html, nil
}

// ListDocs returns the available page names in order.
func (s *Service) ListDocs() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, err
	}

	var docs []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".adoc") {
			docs = append(docs, entry.Name())
		}
	}
	sort.Strings(docs)
	return docs, nil
}

func validName(name string) bool {
	return strings.HasSuffix(name, ".adoc") && path.Base(name) == name && !strings.HasPrefix(name, ".")
}
