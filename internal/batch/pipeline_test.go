package batch

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/pii-masker/internal/config"
	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/privacy"
	"github.com/raaihank/pii-masker/internal/stats"
)

func strPtr(s string) *string { return &s }

func newTestPipeline(t *testing.T, cfg *Config) (*Pipeline, *stats.MemoryRecorder) {
	t.Helper()

	rec := stats.NewMemoryRecorder()
	masker, err := privacy.New(config.GetDefaults().Privacy, rec, logger.NewNop())
	require.NoError(t, err)

	if cfg == nil {
		cfg = &Config{BatchSize: 2}
	}
	return NewPipeline(masker, cfg, logger.NewNop()), rec
}

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"a.csv":        FormatCSV,
		"a.CSV":        FormatCSV,
		"a.txt":        FormatCSV,
		"a":            FormatCSV,
		"a.parquet":    FormatParquet,
		"a.json":       FormatJSON,
		"a.jsonl":      FormatJSON,
		"dir/a.ndjson": FormatJSON,
	}
	for name, want := range tests {
		assert.Equal(t, want, DetectFileFormat(name), name)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "data/users.masked.csv", DefaultOutputPath("data/users.csv"))
	assert.Equal(t, "users.masked", DefaultOutputPath("users"))
}

func TestProcessCSV(t *testing.T) {
	input := writeFile(t, "users.csv", strings.Join([]string{
		"name,email,card_number,ssn",
		"John,john@doe.com,4111111111111111,123-45-6789",
		"Al,al@x.io,1234,",
		"Bad,row",
		"Jane,jane.roe@example.com,4111111111111,123456789",
	}, "\n")+"\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	p, rec := newTestPipeline(t, nil)
	result, err := p.ProcessFile(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(1), result.Failed)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, int64(6), result.MaskedValues)
	assert.Equal(t, int64(3), result.UnchangedValues)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"name,email,card_number,ssn",
		"John,jo**@doe.com,411111******1111,***-**-6789",
		"Al,al@x.io,1234,",
		"Jane,ja******@example.com,411111***1111,*****6789",
	}, "\n")+"\n", string(data))

	snap, err := rec.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), snap.Total)
	assert.Equal(t, int64(6), snap.Masked)
}

func TestProcessCSVEmpty(t *testing.T) {
	input := writeFile(t, "empty.csv", "")
	p, _ := newTestPipeline(t, nil)

	result, err := p.ProcessFile(context.Background(), input, "")
	require.NoError(t, err)
	assert.Zero(t, result.TotalRecords)
	assert.FileExists(t, DefaultOutputPath(input))
}

func TestProcessJSON(t *testing.T) {
	input := writeFile(t, "events.jsonl", strings.Join([]string{
		`{"id":1,"email":"john@doe.com","ssn":null,"note":"keep"}`,
		``,
		"  \t ",
		`{"id":2,"card_number":4111111111111111}`,
		`{not json`,
		`{"id":3,"SSN":"123-45-6789"}`,
	}, "\n")+"\n")
	output := filepath.Join(t.TempDir(), "out.jsonl")

	p, _ := newTestPipeline(t, nil)
	result, err := p.ProcessFile(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(1), result.Failed)
	assert.Equal(t, int64(2), result.MaskedValues)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "jo**@doe.com", first["email"])
	assert.Nil(t, first["ssn"])
	assert.Equal(t, "keep", first["note"])

	// numbers are not strings and pass through
	assert.JSONEq(t, `{"id":2,"card_number":4111111111111111}`, lines[1])
	assert.JSONEq(t, `{"id":3,"SSN":"***-**-6789"}`, lines[2])
}

func TestProcessParquet(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "contacts.parquet")
	output := filepath.Join(dir, "contacts.out.parquet")

	rows := []ContactRecord{
		{ID: 1, Name: strPtr("John"), Email: strPtr("john@doe.com"), CardNumber: strPtr("4111111111111111"), SSN: strPtr("123-45-6789")},
		{ID: 2, Name: strPtr("Al"), Email: strPtr("x@y")},
		{ID: 3},
	}

	f, err := os.Create(input)
	require.NoError(t, err)
	w := parquet.NewWriter(f, parquet.SchemaOf(new(ContactRecord)))
	for i := range rows {
		require.NoError(t, w.Write(&rows[i]))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	p, _ := newTestPipeline(t, nil)
	result, err := p.ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(3), result.MaskedValues)

	out, err := os.Open(output)
	require.NoError(t, err)
	defer out.Close()

	r := parquet.NewReader(out)
	defer r.Close()

	var got []ContactRecord
	for {
		var row ContactRecord
		err := r.Read(&row)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, row)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "John", *got[0].Name)
	assert.Equal(t, "jo**@doe.com", *got[0].Email)
	assert.Equal(t, "411111******1111", *got[0].CardNumber)
	assert.Equal(t, "***-**-6789", *got[0].SSN)
	assert.Equal(t, "x@y", *got[1].Email)
	assert.Nil(t, got[1].SSN)
	assert.Nil(t, got[2].Email)
}

func TestProcessParquetMalformed(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "broken.parquet")
	output := filepath.Join(dir, "broken.out.parquet")
	require.NoError(t, os.WriteFile(input, []byte("this is not parquet at all"), 0o600))

	p, _ := newTestPipeline(t, nil)
	assert.NotPanics(t, func() {
		_, err := p.ProcessFile(context.Background(), input, output)
		assert.Error(t, err)
	})
	assert.NoFileExists(t, output)
}

func TestFailedRunRemovesOutput(t *testing.T) {
	input := writeFile(t, "users.csv", "email\na@b.c\n")
	output := filepath.Join(t.TempDir(), "out.csv")
	p, _ := newTestPipeline(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessFile(ctx, input, output)
	require.Error(t, err)
	assert.NoFileExists(t, output)
}

func TestDryRun(t *testing.T) {
	input := writeFile(t, "users.csv", "email\njohn@doe.com\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	p, _ := newTestPipeline(t, &Config{BatchSize: 10, DryRun: true})
	result, err := p.ProcessFile(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.MaskedValues)
	assert.NoFileExists(t, output)
}

func TestRefusesToOverwriteInput(t *testing.T) {
	input := writeFile(t, "users.csv", "email\njohn@doe.com\n")
	p, _ := newTestPipeline(t, nil)

	_, err := p.ProcessFile(context.Background(), input, input)
	assert.Error(t, err)

	data, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, "email\njohn@doe.com\n", string(data))
}

func TestCancelled(t *testing.T) {
	input := writeFile(t, "users.csv", "email\na@b.c\nd@e.f\ng@h.i\n")
	p, _ := newTestPipeline(t, &Config{BatchSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessFile(ctx, input, filepath.Join(t.TempDir(), "out.csv"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMissingInput(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	_, err := p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), "")
	assert.Error(t, err)
}
