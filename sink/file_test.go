package sink

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/harvest/models"
)

func sampleResult(runID string) models.RunResult {
	return models.RunResult{
		RunID: runID,
		Records: []models.Record{
			models.RecordOf("name", "Civic", "price", 21000.0, "mileage", 15000.0),
			models.RecordOf("name", "Corolla LE", "price", 19500.5, "mileage", nil),
		},
		Cost: models.CostEstimate{
			Usage:            models.UsageStats{PromptTokens: 1000, CompletionTokens: 500, Model: "gpt-x"},
			EstimatedCostUSD: 0.025,
		},
	}
}

func TestWrite_ArtifactShape(t *testing.T) {
	s := NewFileSink(t.TempDir())
	path, err := s.Write(context.Background(), sampleResult("run-1"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.Dir, "run-1.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := `{
  "records": [
    {
      "name": "Civic",
      "price": 21000,
      "mileage": 15000
    },
    {
      "name": "Corolla LE",
      "price": 19500.5,
      "mileage": null
    }
  ],
  "cost": {
    "prompt_tokens": 1000,
    "completion_tokens": 500,
    "model": "gpt-x",
    "estimated_cost_usd": 0.025
  }
}
`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("artifact mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	s := NewFileSink(filepath.Join(t.TempDir(), "nested", "outputs"))
	orig := sampleResult("20261018T120000Z-0a1b2c3d")

	path, err := s.Write(context.Background(), orig)
	require.NoError(t, err)

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, orig.RunID, got.RunID)
	require.Equal(t, path, got.WrittenPath)
	require.Equal(t, orig.Cost, got.Cost)
	require.Len(t, got.Records, len(orig.Records))
	for i := range orig.Records {
		if diff := cmp.Diff(orig.Records[i].Map(), got.Records[i].Map()); diff != "" {
			t.Errorf("record %d mismatch (-want +got):\n%s", i, diff)
		}
		require.Equal(t, orig.Records[i].Keys(), got.Records[i].Keys())
	}

	again, err := Encode(got)
	require.NoError(t, err)
	first, err := Encode(orig)
	require.NoError(t, err)
	require.Equal(t, string(first), string(again))

	viaRun, err := s.ReadRun(orig.RunID)
	require.NoError(t, err)
	require.Equal(t, got.Cost, viaRun.Cost)
}

func TestWrite_OverwriteIsIdempotent(t *testing.T) {
	s := NewFileSink(t.TempDir())
	result := sampleResult("same")

	path, err := s.Write(context.Background(), result)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	path2, err := s.Write(context.Background(), result)
	require.NoError(t, err)
	require.Equal(t, path, path2)
	second, err := os.ReadFile(path2)
	require.NoError(t, err)
	require.Equal(t, first, second)

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestWrite_ConcurrentDistinctRuns(t *testing.T) {
	s := NewFileSink(t.TempDir())
	ids := []string{"a", "b", "c", "d", "e", "f"}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = s.Write(context.Background(), sampleResult(id))
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		require.NoError(t, errs[i], id)
		got, err := s.ReadRun(id)
		require.NoError(t, err)
		require.Len(t, got.Records, 2)
	}
}

func TestWrite_EmptyRecords(t *testing.T) {
	s := NewFileSink(t.TempDir())
	path, err := s.Write(context.Background(), models.RunResult{RunID: "empty"})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"records": []`)
}

func TestWrite_DirectoryNotWritable(t *testing.T) {
	// A regular file where the directory should be fails even for root.
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewFileSink(filepath.Join(blocker, "outputs"))
	_, err := s.Write(context.Background(), sampleResult("r"))
	require.Equal(t, models.ErrCodeDirectoryNotWritable, models.CodeOf(err))
}

func TestWrite_SerializationFailed(t *testing.T) {
	s := NewFileSink(t.TempDir())
	result := models.RunResult{
		RunID:   "nan",
		Records: []models.Record{models.RecordOf("price", math.NaN())},
	}
	_, err := s.Write(context.Background(), result)
	require.Equal(t, models.ErrCodeSerializationFailed, models.CodeOf(err))

	_, statErr := os.Stat(s.Path("nan"))
	require.True(t, errors.Is(statErr, os.ErrNotExist), "nothing written on failure")
}

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"20261018T120000Z-0a1b2c3d", true},
		{"cars_v2.1", true},
		{"", false},
		{"../escape", false},
		{"a/b", false},
		{`a\b`, false},
		{".hidden", false},
		{"space here", false},
	}
	for _, tt := range tests {
		err := ValidateRunID(tt.id)
		if tt.ok {
			require.NoError(t, err, tt.id)
		} else {
			require.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err), tt.id)
		}
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := NewFileSink(t.TempDir())
	_, err := s.ReadRun("missing")
	require.Equal(t, models.ErrCodeNotFound, models.CodeOf(err))
}

type recordingMirror struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *recordingMirror) Put(_ context.Context, key string, _ []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return m.err
}

func TestWrite_Mirror(t *testing.T) {
	m := &recordingMirror{}
	s := &FileSink{Dir: t.TempDir(), Mirror: m}

	_, err := s.Write(context.Background(), sampleResult("mirrored"))
	require.NoError(t, err)
	_, err = s.WriteSnapshot(context.Background(), "mirrored", "<html></html>")
	require.NoError(t, err)
	require.Equal(t, []string{"mirrored.json", "mirrored.html"}, m.keys)

	m.err = errors.New("bucket unreachable")
	_, err = s.Write(context.Background(), sampleResult("still-ok"))
	require.NoError(t, err, "mirror failures are not fatal")
}

func TestWriteSnapshot(t *testing.T) {
	s := NewFileSink(t.TempDir())
	html := "<html><body>Civic</body></html>"
	path, err := s.WriteSnapshot(context.Background(), "snap", html)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, html, string(data))
}
