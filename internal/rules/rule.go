package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Comparison operators.
const (
	OpGreater = ">"
	OpLess    = "<"
	OpEqual   = "=="
)

// Ranges is the set of accepted evaluation windows, shortest first.
var Ranges = []string{"1m", "5m", "15m", "1h"}

// Fields maps each measurement to the fields it reports.
var Fields = map[string][]string{
	"dht11":  {"temperature", "humidity"},
	"bmp280": {"temperature", "pressure", "pressure_sea_level"},
	"mq135":  {"ppm", "adc_raw"},
	"ldr":    {"ldr_raw"},
}

// Measurements returns the known measurement names, sorted.
func Measurements() []string {
	names := make([]string, 0, len(Fields))
	for name := range Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuleID identifies a stored rule. The backend may send it as a JSON number
// or string; numeric ids are sent back as numbers.
type RuleID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *RuleID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = RuleID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rule id must be a number or string: %w", err)
	}
	*id = RuleID(s)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (id RuleID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// String returns the id text.
func (id RuleID) String() string { return string(id) }

// Rule is one threshold automation rule.
type Rule struct {
	ID            RuleID  `json:"id,omitempty"`
	Name          string  `json:"name"`
	Measurement   string  `json:"measurement"`
	Field         string  `json:"field"`
	Filter        string  `json:"filter"`
	Range         string  `json:"range"`
	Operator      string  `json:"operator"`
	Threshold     float64 `json:"threshold"`
	ActionTopic   string  `json:"action_topic"`
	ActionPayload string  `json:"action_payload"`
}

// Validate checks every field and reports all problems at once.
func (r Rule) Validate() error {
	var errs []string

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, "name is required")
	}

	fields, known := Fields[r.Measurement]
	switch {
	case r.Measurement == "":
		errs = append(errs, "measurement is required")
	case !known:
		errs = append(errs, fmt.Sprintf("unknown measurement %q", r.Measurement))
	case !slices.Contains(fields, r.Field):
		errs = append(errs, fmt.Sprintf("field %q is not reported by %s", r.Field, r.Measurement))
	}

	if !slices.Contains(Ranges, r.Range) {
		errs = append(errs, fmt.Sprintf("range must be one of %s", strings.Join(Ranges, ", ")))
	}

	switch r.Operator {
	case OpGreater, OpLess, OpEqual:
	default:
		errs = append(errs, fmt.Sprintf("operator must be %s, %s or %s", OpGreater, OpLess, OpEqual))
	}

	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		errs = append(errs, "threshold must be a finite number")
	}
	if r.ActionTopic == "" {
		errs = append(errs, "action_topic is required")
	}
	if r.ActionPayload == "" {
		errs = append(errs, "action_payload is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(errs, "; "))
	}
	return nil
}

// Describe renders the rule as a single readable line.
func (r Rule) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "IF mean(%s.%s) %s %s OVER LAST %s",
		r.Measurement, r.Field, r.Operator,
		strconv.FormatFloat(r.Threshold, 'f', -1, 64), r.Range)
	if r.Filter != "" {
		fmt.Fprintf(&b, " WHERE %s", r.Filter)
	}
	fmt.Fprintf(&b, " THEN -> %s, %q", r.ActionTopic, r.ActionPayload)
	return b.String()
}
