// Package dataset materializes the tables the semantic layer describes.
// The CSV provider maps each table name to <dir>/<name>.csv, infers column
// types from the values, and caches the parsed frames so repeated queries
// do not re-read the files.
package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"tabletalk/pkg/frame"
)

// CSVProvider loads tables from a directory of CSV files.
type CSVProvider struct {
	dir    string
	logger *zap.Logger

	mu     sync.Mutex
	frames map[string]*frame.Frame
}

// NewCSVProvider serves tables out of dir. The directory must exist.
func NewCSVProvider(dir string, logger *zap.Logger) (*CSVProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset: %s is not a directory", dir)
	}
	return &CSVProvider{dir: dir, logger: logger, frames: make(map[string]*frame.Frame)}, nil
}

// Tables loads the named tables. Every name must have a matching CSV file.
func (p *CSVProvider) Tables(ctx context.Context, names []string) (map[string]*frame.Frame, error) {
	out := make(map[string]*frame.Frame, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := p.table(name)
		if err != nil {
			return nil, err
		}
		out[name] = f
	}
	return out, nil
}

func (p *CSVProvider) table(name string) (*frame.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.frames[name]; ok {
		return f, nil
	}

	path := filepath.Join(p.dir, name+".csv")
	f, err := ReadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: table %q: %w", name, err)
	}
	p.logger.Debug("loaded table",
		zap.String("table", name),
		zap.Int("rows", f.NumRows()),
		zap.Int("cols", f.NumCols()))
	p.frames[name] = f
	return f, nil
}

// Invalidate drops the cached frame for name, forcing a re-read on next use.
func (p *CSVProvider) Invalidate(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.frames, name)
}

// Static serves fixed in-memory frames. Used for tests and embedding.
type Static map[string]*frame.Frame

// Tables returns the named frames, failing on any unknown name.
func (s Static) Tables(ctx context.Context, names []string) (map[string]*frame.Frame, error) {
	out := make(map[string]*frame.Frame, len(names))
	for _, name := range names {
		f, ok := s[name]
		if !ok {
			return nil, fmt.Errorf("dataset: no data for table %q", name)
		}
		out[name] = f
	}
	return out, nil
}
