package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var ErrEmptyDocument = errors.New("document has no text")

type Document struct {
	FileName string // base name, the deduplication key
	Path     string
	Content  string
}

// LoadFailure records a file that was enumerated but could not be parsed.
type LoadFailure struct {
	Path string
	Err  error
}

type Parser interface {
	Parse(ctx context.Context, path string, data []byte) (string, error)
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".json": true,
	".yaml": true, ".yml": true, ".xml": true, ".html": true, ".htm": true,
	".go": true, ".java": true, ".py": true, ".js": true, ".ts": true, ".sql": true,
	".log": true, ".rst": true, ".adoc": true,
}

// TextParser accepts any valid UTF-8 content.
type TextParser struct{}

func (TextParser) Parse(ctx context.Context, path string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", filepath.Base(path))
	}
	return string(data), nil
}

// Loader walks a directory tree and dispatches each file to a parser by
// extension. Binary formats go to the fallback parser (Tika) when one is set.
type Loader struct {
	text     Parser
	fallback Parser
}

func NewLoader(fallback Parser) *Loader {
	return &Loader{text: TextParser{}, fallback: fallback}
}

func (l *Loader) parserFor(path string) Parser {
	ext := strings.ToLower(filepath.Ext(path))
	if textExtensions[ext] || l.fallback == nil {
		return l.text
	}
	return l.fallback
}

// LoadFile reads and parses a single file.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content, err := l.parserFor(path).Parse(ctx, path, data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyDocument
	}

	return &Document{
		FileName: filepath.Base(path),
		Path:     path,
		Content:  content,
	}, nil
}

// LoadDirectory returns every parseable regular file below dir in lexical
// walk order. Hidden files and directories are skipped. Per-file failures are
// reported separately and do not stop the walk; the returned error is only
// set when the walk itself fails or ctx is cancelled.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) ([]*Document, []*LoadFailure, error) {
	var docs []*Document
	var failures []*LoadFailure

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			failures = append(failures, &LoadFailure{Path: path, Err: walkErr})
			return nil
		}

		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		doc, err := l.LoadFile(ctx, path)
		if err != nil {
			failures = append(failures, &LoadFailure{Path: path, Err: err})
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, failures, err
	}
	return docs, failures, nil
}
