package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// ContactRecord is the row layout of parquet files handled by the pipeline.
// String columns are optional; a null stays null after masking.
type ContactRecord struct {
	ID         int64   `parquet:"id" json:"id"`
	Name       *string `parquet:"name" json:"name"`
	Email      *string `parquet:"email" json:"email"`
	CardNumber *string `parquet:"card_number" json:"card_number"`
	SSN        *string `parquet:"ssn" json:"ssn"`
}

// ProcessingResult represents the result of masking a file
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	Failed          int64         `json:"failed"`
	MaskedValues    int64         `json:"masked_values"`
	UnchangedValues int64         `json:"unchanged_values"`
	Duration        time.Duration `json:"duration"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains pipeline configuration
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"`
	DryRun         bool `yaml:"dry_run" mapstructure:"dry_run"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// DefaultOutputPath inserts ".masked" before the extension of input
func DefaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".masked" + ext
}
