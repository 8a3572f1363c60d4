// Package sink persists run results as JSON artifacts.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/use-agent/harvest/models"
)

const maxRunIDLength = 128

// Mirror receives a copy of every artifact written to disk.
type Mirror interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// FileSink writes one <run_id>.json artifact per run under Dir. Each write
// goes to a temporary file that is renamed into place, so readers never see
// a partial artifact and distinct run ids can be written concurrently.
type FileSink struct {
	Dir string

	// Mirror, when set, gets a copy of each artifact after the local write.
	// Mirror failures are logged and otherwise ignored.
	Mirror Mirror
}

// NewFileSink returns a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Path returns the artifact path for runID.
func (s *FileSink) Path(runID string) string {
	return filepath.Join(s.Dir, runID+".json")
}

// Write serializes result and atomically creates or replaces its artifact.
// Writing the same result twice yields byte-identical files.
func (s *FileSink) Write(ctx context.Context, result models.RunResult) (string, error) {
	if err := ValidateRunID(result.RunID); err != nil {
		return "", err
	}

	data, err := Encode(result)
	if err != nil {
		return "", err
	}

	path := s.Path(result.RunID)
	if err := s.writeFile(path, data); err != nil {
		return "", err
	}
	slog.Info("artifact written", "run_id", result.RunID, "path", path, "records", len(result.Records))

	s.mirror(ctx, result.RunID+".json", data, "application/json")
	return path, nil
}

// WriteSnapshot stores the rendered HTML next to the artifact as
// <run_id>.html.
func (s *FileSink) WriteSnapshot(ctx context.Context, runID, html string) (string, error) {
	if err := ValidateRunID(runID); err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, runID+".html")
	if err := s.writeFile(path, []byte(html)); err != nil {
		return "", err
	}
	slog.Debug("snapshot written", "run_id", runID, "path", path, "bytes", len(html))

	s.mirror(ctx, runID+".html", []byte(html), "text/html; charset=utf-8")
	return path, nil
}

// ReadRun loads the artifact previously written for runID.
func (s *FileSink) ReadRun(runID string) (models.RunResult, error) {
	if err := ValidateRunID(runID); err != nil {
		return models.RunResult{}, err
	}
	return Read(s.Path(runID))
}

func (s *FileSink) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return models.NewScrapeError(
			models.ErrCodeDirectoryNotWritable,
			fmt.Sprintf("cannot create output directory %s", s.Dir),
			err,
		)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return models.NewScrapeError(
			models.ErrCodeDirectoryNotWritable,
			fmt.Sprintf("cannot write %s", path),
			err,
		)
	}
	return nil
}

func (s *FileSink) mirror(ctx context.Context, key string, data []byte, contentType string) {
	if s.Mirror == nil {
		return
	}
	if err := s.Mirror.Put(ctx, key, data, contentType); err != nil {
		slog.Warn("artifact mirror failed", "key", key, "error", err)
	}
}

// Encode renders the artifact JSON for result: records in schema order, then
// cost, indented, with a trailing newline.
func Encode(result models.RunResult) ([]byte, error) {
	records := result.Records
	if records == nil {
		records = []models.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(models.Artifact{Records: records, Cost: result.Cost}); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeSerializationFailed,
			fmt.Sprintf("cannot encode run %s", result.RunID),
			err,
		)
	}
	return buf.Bytes(), nil
}

// Read decodes an artifact. The run id is taken from the file name.
func Read(path string) (models.RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.RunResult{}, models.NewScrapeError(
				models.ErrCodeNotFound,
				fmt.Sprintf("no artifact at %s", path),
				err,
			)
		}
		return models.RunResult{}, fmt.Errorf("read artifact: %w", err)
	}

	var a models.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return models.RunResult{}, models.NewScrapeError(
			models.ErrCodeSerializationFailed,
			fmt.Sprintf("cannot decode %s", path),
			err,
		)
	}

	return models.RunResult{
		RunID:       strings.TrimSuffix(filepath.Base(path), ".json"),
		Records:     a.Records,
		Cost:        a.Cost,
		WrittenPath: path,
	}, nil
}

// ValidateRunID accepts non-empty ids made of letters, digits, '.', '_' and
// '-' that do not start with a dot.
func ValidateRunID(id string) error {
	invalid := func(reason string) error {
		return models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("invalid run id %q: %s", id, reason),
			nil,
		)
	}
	if id == "" {
		return invalid("empty")
	}
	if len(id) > maxRunIDLength {
		return invalid("too long")
	}
	if id[0] == '.' {
		return invalid("starts with a dot")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return invalid(fmt.Sprintf("character %q not allowed", r))
		}
	}
	return nil
}
