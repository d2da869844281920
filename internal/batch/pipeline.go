package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/privacy"
)

// maxJSONLine bounds a single JSON-lines record
const maxJSONLine = 10 << 20

// Pipeline masks the configured fields of every record in a file
type Pipeline struct {
	masker *privacy.Masker
	config *Config
	logger *logger.Logger
}

// NewPipeline creates a new masking pipeline
func NewPipeline(masker *privacy.Masker, config *Config, log *logger.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	return &Pipeline{
		masker: masker,
		config: config,
		logger: log.WithComponent("batch"),
	}
}

// ProcessFile masks inputPath into outputPath. The format is taken from the
// input extension and the output keeps the same format. In dry-run mode
// nothing is written.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	if outputPath == "" {
		outputPath = DefaultOutputPath(inputPath)
	}
	if !p.config.DryRun && samePath(inputPath, outputPath) {
		return nil, fmt.Errorf("output %s would overwrite the input", outputPath)
	}

	format := DetectFileFormat(inputPath)
	p.logger.Info("Starting masking pipeline",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Bool("dry_run", p.config.DryRun),
	)

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	var out io.Writer = io.Discard
	var outFile *os.File
	if !p.config.DryRun {
		outFile, err = os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output: %w", err)
		}
		defer outFile.Close()
		out = outFile
	}

	start := time.Now()
	result := &ProcessingResult{}

	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, in, out, result)
	case FormatJSON:
		err = p.processJSON(ctx, in, out, result)
	case FormatParquet:
		err = p.processParquet(ctx, in, out, result)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	result.Duration = time.Since(start)

	if err != nil {
		discardOutput(outFile)
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	if outFile != nil {
		if err := outFile.Sync(); err != nil {
			discardOutput(outFile)
			return result, fmt.Errorf("failed to flush output: %w", err)
		}
	}

	p.logger.Info("Masking pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("failed", result.Failed),
		zap.Int64("masked_values", result.MaskedValues),
		zap.Int64("unchanged_values", result.UnchangedValues),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// processCSV masks columns whose header names a configured field
func (p *Pipeline) processCSV(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	reader := csv.NewReader(in)
	writer := csv.NewWriter(out)

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	p.logger.Info("CSV header detected", zap.Strings("columns", header))

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	var row int64
	return p.processBatches(ctx, result, func() (int, bool, error) {
		n := 0
		for n < p.config.BatchSize {
			record, err := reader.Read()
			if err == io.EOF {
				writer.Flush()
				return n, true, writer.Error()
			}
			row++
			if err != nil {
				p.recordFailure(result, row, err)
				continue
			}

			for i := range record {
				value := record[i]
				masked, finding := p.masker.MaskField(ctx, privacy.SourceBatch, header[i], &value)
				p.tally(result, finding)
				record[i] = *masked
			}

			if err := writer.Write(record); err != nil {
				return n, false, fmt.Errorf("failed to write CSV record: %w", err)
			}
			n++
		}

		writer.Flush()
		return n, false, writer.Error()
	})
}

// processJSON masks string values of configured keys in JSON-lines input.
// Values of other types are left alone.
func (p *Pipeline) processJSON(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxJSONLine)
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)

	var row int64
	return p.processBatches(ctx, result, func() (int, bool, error) {
		n := 0
		for n < p.config.BatchSize {
			if !scanner.Scan() {
				return n, true, scanner.Err()
			}
			row++

			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var record map[string]interface{}
			if err := json.Unmarshal(line, &record); err != nil {
				p.recordFailure(result, row, err)
				continue
			}

			p.maskJSONRecord(ctx, record, result)

			if err := encoder.Encode(record); err != nil {
				return n, false, fmt.Errorf("failed to write JSON record: %w", err)
			}
			n++
		}
		return n, false, nil
	})
}

func (p *Pipeline) maskJSONRecord(ctx context.Context, record map[string]interface{}, result *ProcessingResult) {
	for key, raw := range record {
		var value *string
		switch v := raw.(type) {
		case string:
			value = &v
		case nil:
		default:
			continue
		}

		masked, finding := p.masker.MaskField(ctx, privacy.SourceBatch, key, value)
		p.tally(result, finding)
		if masked != nil {
			record[key] = *masked
		}
	}
}

// processParquet masks ContactRecord rows
func (p *Pipeline) processParquet(ctx context.Context, in *os.File, out io.Writer, result *ProcessingResult) error {
	stat, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat Parquet input: %w", err)
	}

	// NewReader panics on a malformed file, so open it here first
	file, err := parquet.OpenFile(in, stat.Size())
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}

	reader := parquet.NewReader(file)
	defer reader.Close()

	writer := parquet.NewWriter(out, parquet.SchemaOf(new(ContactRecord)))

	var row int64
	err = p.processBatches(ctx, result, func() (int, bool, error) {
		n := 0
		for n < p.config.BatchSize {
			var record ContactRecord
			err := reader.Read(&record)
			if err == io.EOF {
				return n, true, nil
			}
			row++
			if err != nil {
				// the reader cannot skip a bad row, so stop here
				p.recordFailure(result, row, err)
				return n, false, fmt.Errorf("failed to read Parquet record %d: %w", row, err)
			}

			p.maskContact(ctx, &record, result)

			if err := writer.Write(&record); err != nil {
				return n, false, fmt.Errorf("failed to write Parquet record: %w", err)
			}
			n++
		}
		return n, false, nil
	})
	if err != nil {
		return err
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}

func (p *Pipeline) maskContact(ctx context.Context, record *ContactRecord, result *ProcessingResult) {
	columns := []struct {
		name  string
		value **string
	}{
		{"name", &record.Name},
		{"email", &record.Email},
		{"card_number", &record.CardNumber},
		{"ssn", &record.SSN},
	}

	for _, col := range columns {
		masked, finding := p.masker.MaskField(ctx, privacy.SourceBatch, col.name, *col.value)
		p.tally(result, finding)
		*col.value = masked
	}
}

// processBatches drives readBatch until it reports the end of input,
// checking for cancellation between batches
func (p *Pipeline) processBatches(ctx context.Context, result *ProcessingResult, readBatch func() (int, bool, error)) error {
	var lastReport int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, done, err := readBatch()
		result.TotalRecords += int64(n)
		if err != nil {
			return err
		}

		if p.config.ProgressReport > 0 && result.TotalRecords-lastReport >= int64(p.config.ProgressReport) {
			lastReport = result.TotalRecords
			p.logger.Info("Processing progress",
				zap.Int64("records_processed", result.TotalRecords),
				zap.Int64("masked_values", result.MaskedValues),
				zap.Int64("failed", result.Failed),
			)
		}

		if done {
			return nil
		}
	}
}

func (p *Pipeline) tally(result *ProcessingResult, finding *privacy.Finding) {
	if finding == nil {
		return
	}
	if finding.Masked {
		result.MaskedValues++
	} else {
		result.UnchangedValues++
	}
}

func (p *Pipeline) recordFailure(result *ProcessingResult, row int64, err error) {
	result.Failed++
	if len(result.Errors) < 100 {
		result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", row, err))
	}
	p.logger.Warn("Skipping unreadable record", zap.Int64("record", row), zap.Error(err))
}

// discardOutput removes a partially written output file
func discardOutput(f *os.File) {
	if f == nil {
		return
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
