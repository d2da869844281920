package privacy

import "github.com/raaihank/pii-masker/internal/masking"

// Sources tag where a masking request came from
const (
	SourceAPI   = "api"
	SourceBatch = "batch"
)

// Rule represents one masking kind and whether it is active
type Rule struct {
	Kind    masking.Kind `json:"kind"`
	Enabled bool         `json:"enabled"`
}

// Finding describes a record field that went through a masking function
type Finding struct {
	Field  string       `json:"field"`
	Kind   masking.Kind `json:"kind"`
	Masked bool         `json:"masked"`
}

// Result is the outcome of masking a single value. A nil Value means the
// input was absent.
type Result struct {
	Kind   masking.Kind `json:"kind"`
	Value  *string      `json:"value"`
	Masked bool         `json:"masked"`
}

// RecordResult contains a processed record and what was done to it
type RecordResult struct {
	Record   map[string]*string `json:"record"`
	Findings []Finding          `json:"findings"`
}

// MaskedCount returns how many findings actually changed a value
func (r RecordResult) MaskedCount() int {
	n := 0
	for _, f := range r.Findings {
		if f.Masked {
			n++
		}
	}
	return n
}
