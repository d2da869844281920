package privacy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/config"
	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/masking"
	"github.com/raaihank/pii-masker/internal/stats"
)

// ErrUnknownRule is returned when enabling or disabling a kind that does not exist
var ErrUnknownRule = errors.New("unknown rule")

// Masker applies the masking functions to values and records according to
// the privacy configuration. The caller names the kind of every value, either
// directly or through the field map; nothing is guessed from the content.
type Masker struct {
	mu       sync.RWMutex
	config   config.PrivacyConfig
	enabled  map[masking.Kind]bool
	fields   map[string]masking.Kind
	recorder stats.Recorder
	logger   *logger.Logger
}

// New creates a new masker instance. A nil recorder discards statistics.
func New(cfg config.PrivacyConfig, recorder stats.Recorder, log *logger.Logger) (*Masker, error) {
	if recorder == nil {
		recorder = stats.Nop{}
	}

	m := &Masker{
		recorder: recorder,
		logger:   log,
	}

	if err := m.Reconfigure(cfg); err != nil {
		return nil, err
	}

	log.Info("Privacy masker initialized",
		zap.Int("total_rules", len(masking.Kinds())),
		zap.Strings("enabled_rules", m.GetEnabledRules()),
		zap.Int("field_rules", len(m.fields)),
	)

	return m, nil
}

// Reconfigure swaps in a new privacy configuration. On error the previous
// configuration stays active.
func (m *Masker) Reconfigure(cfg config.PrivacyConfig) error {
	enabled, err := buildEnabled(cfg.Kinds)
	if err != nil {
		return fmt.Errorf("failed to configure rules: %w", err)
	}

	fields := make(map[string]masking.Kind, len(cfg.Fields))
	for field, name := range cfg.Fields {
		kind, err := masking.ParseKind(name)
		if err != nil {
			return fmt.Errorf("failed to configure field %s: %w", field, err)
		}
		fields[normalizeField(field)] = kind
	}

	m.mu.Lock()
	m.config = cfg
	m.enabled = enabled
	m.fields = fields
	m.mu.Unlock()

	return nil
}

// buildEnabled enables the listed kinds; "all" enables every kind
// WatchConfig reloads the privacy section whenever loader's file changes.
// Invalid configurations are logged and the current one stays active.
func (m *Masker) WatchConfig(loader *config.Loader) {
	loader.Watch(func(next *config.Config) {
		if err := m.Reconfigure(next.Privacy); err != nil {
			m.logger.Error("Rejected privacy configuration", zap.Error(err))
			return
		}
		m.logger.Info("Privacy configuration reloaded", zap.Strings("enabled_rules", m.GetEnabledRules()))
	}, func(err error) {
		m.logger.Error("Configuration reload failed", zap.Error(err))
	})
}

func buildEnabled(names []string) (map[masking.Kind]bool, error) {
	enabled := make(map[masking.Kind]bool)
	for _, kind := range masking.Kinds() {
		enabled[kind] = false
	}

	for _, name := range names {
		if name == "all" {
			for _, kind := range masking.Kinds() {
				enabled[kind] = true
			}
			continue
		}

		kind, err := masking.ParseKind(name)
		if err != nil {
			return nil, err
		}
		enabled[kind] = true
	}

	return enabled, nil
}

func normalizeField(field string) string {
	return strings.ToLower(strings.TrimSpace(field))
}

// ProcessValue masks one value of the given kind. Values of disabled kinds,
// or any value while privacy is disabled, are returned unchanged.
func (m *Masker) ProcessValue(ctx context.Context, kind masking.Kind, value *string) (Result, error) {
	if !kind.Valid() {
		return Result{Kind: kind, Value: value}, fmt.Errorf("%w: %q", masking.ErrUnknownKind, string(kind))
	}

	out, masked := m.apply(ctx, SourceAPI, "", kind, value)
	return Result{Kind: kind, Value: out, Masked: masked}, nil
}

// MaskField masks value if field is mapped to an enabled kind. The returned
// finding is nil when the field is not subject to masking.
func (m *Masker) MaskField(ctx context.Context, source, field string, value *string) (*string, *Finding) {
	kind, ok := m.FieldKind(field)
	if !ok {
		return value, nil
	}

	m.mu.RLock()
	active := m.config.Enabled && m.enabled[kind]
	m.mu.RUnlock()
	if !active {
		return value, nil
	}

	out, masked := m.apply(ctx, source, field, kind, value)
	return out, &Finding{Field: field, Kind: kind, Masked: masked}
}

// ProcessRecord masks every mapped field of a record. Unmapped fields are
// copied as they are. Findings are sorted by field name.
func (m *Masker) ProcessRecord(ctx context.Context, source string, record map[string]*string) RecordResult {
	result := RecordResult{
		Record:   make(map[string]*string, len(record)),
		Findings: make([]Finding, 0),
	}

	for field, value := range record {
		out, finding := m.MaskField(ctx, source, field, value)
		result.Record[field] = out
		if finding != nil {
			result.Findings = append(result.Findings, *finding)
		}
	}

	sort.Slice(result.Findings, func(i, j int) bool {
		return result.Findings[i].Field < result.Findings[j].Field
	})

	if len(result.Findings) > 0 {
		m.logger.Debug("Record processed",
			zap.String("source", source),
			zap.Int("fields", len(record)),
			zap.Int("findings", len(result.Findings)),
			zap.Int("masked", result.MaskedCount()),
		)
	}

	return result
}

// apply runs the masking function unless privacy or the kind is disabled
func (m *Masker) apply(ctx context.Context, source, field string, kind masking.Kind, value *string) (*string, bool) {
	m.mu.RLock()
	active := m.config.Enabled && m.enabled[kind]
	m.mu.RUnlock()

	if !active || value == nil {
		return value, false
	}

	out, err := masking.ApplyPtr(kind, value)
	if err != nil {
		// kind was validated by the caller
		return value, false
	}
	masked := *out != *value

	if ce := m.logger.Check(zap.DebugLevel, "Value processed"); ce != nil {
		ce.Write(
			zap.String("kind", string(kind)),
			zap.String("field", field),
			zap.String("source", source),
			zap.Bool("masked", masked),
			maskedValue(kind, *value),
		)
	}

	event := stats.Event{
		Kind:   string(kind),
		Field:  field,
		Source: source,
		Masked: masked,
		At:     time.Now(),
	}
	if err := m.recorder.Record(ctx, event); err != nil {
		m.logger.Warn("Failed to record masking event",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	return out, masked
}

// maskedValue is a log field holding only the masked form of value
func maskedValue(kind masking.Kind, value string) zap.Field {
	switch kind {
	case masking.KindEmail:
		return logger.Email("value", value)
	case masking.KindPaymentCard:
		return logger.PaymentCard("value", value)
	default:
		return logger.SSN("value", value)
	}
}

// FieldKind returns the kind configured for a record field
func (m *Masker) FieldKind(field string) (masking.Kind, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kind, ok := m.fields[normalizeField(field)]
	return kind, ok
}

// FieldRules returns a copy of the field to kind mapping
func (m *Masker) FieldRules() map[string]masking.Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]masking.Kind, len(m.fields))
	for k, v := range m.fields {
		out[k] = v
	}
	return out
}

// Enabled reports whether masking is switched on at all
func (m *Masker) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Enabled
}

// ProcessHeaders redacts sensitive HTTP headers
func (m *Masker) ProcessHeaders(headers map[string][]string) map[string][]string {
	m.mu.RLock()
	scrub := m.config.Enabled && m.config.HeaderScrubbing.Enabled
	sensitive := m.config.HeaderScrubbing.Headers
	m.mu.RUnlock()

	if !scrub {
		return headers
	}

	processed := make(map[string][]string, len(headers))
	for key, values := range headers {
		if isSensitiveHeader(key, sensitive) {
			processed[key] = []string{"[REDACTED]"}
			m.logger.Debug("Header scrubbed", zap.String("header", key))
		} else {
			processed[key] = values
		}
	}

	return processed
}

// isSensitiveHeader checks if a header should be scrubbed
func isSensitiveHeader(header string, sensitive []string) bool {
	headerLower := strings.ToLower(header)

	for _, s := range sensitive {
		if strings.Contains(headerLower, strings.ToLower(s)) {
			return true
		}
	}

	return false
}

// Rules returns every rule with its current state, in kind order
func (m *Masker) Rules() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := make([]Rule, 0, len(m.enabled))
	for _, kind := range masking.Kinds() {
		rules = append(rules, Rule{Kind: kind, Enabled: m.enabled[kind]})
	}
	return rules
}

// GetEnabledRules returns the names of the enabled kinds, in kind order
func (m *Masker) GetEnabledRules() []string {
	var enabled []string
	for _, rule := range m.Rules() {
		if rule.Enabled {
			enabled = append(enabled, string(rule.Kind))
		}
	}
	return enabled
}

// EnableRule enables a specific masking kind
func (m *Masker) EnableRule(name string) error {
	return m.setRule(name, true)
}

// DisableRule disables a specific masking kind
func (m *Masker) DisableRule(name string) error {
	return m.setRule(name, false)
}

func (m *Masker) setRule(name string, on bool) error {
	kind, err := masking.ParseKind(name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownRule, name)
	}

	m.mu.Lock()
	m.enabled[kind] = on
	m.mu.Unlock()

	m.logger.Info("Masking rule updated", zap.String("rule", string(kind)), zap.Bool("enabled", on))
	return nil
}
