package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pb33f/pagecycle/motor/model"
)

// Sink persists a finished report.
type Sink interface {
	Save(ctx context.Context, rep *model.Report) error
}

// FileSink writes the report to Path in Format. A Path of "-" writes to
// Stdout.
type FileSink struct {
	Path   string
	Format Format
	Stdout io.Writer
}

func (s FileSink) Save(ctx context.Context, rep *model.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.Path == "" || s.Path == "-" {
		w := s.Stdout
		if w == nil {
			w = os.Stdout
		}
		return Write(w, rep, s.Format)
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", s.Path, err)
	}
	if err := Write(f, rep, s.Format); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report %s: %w", s.Path, err)
	}
	return f.Close()
}

// Sinks fans a report out to several sinks, stopping at the first error.
type Sinks []Sink

func (ss Sinks) Save(ctx context.Context, rep *model.Report) error {
	for _, s := range ss {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, rep); err != nil {
			return err
		}
	}
	return nil
}
