package assessment

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the value shape of a field.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindList
	KindAttachments
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindAttachments:
		return "attachments"
	default:
		return "unknown"
	}
}

// Strategy decides how a field is compared by the Detector.
type Strategy string

const (
	// StrategyScalar flags a change when the serialized values differ.
	StrategyScalar Strategy = "scalar"
	// StrategySet compares multi-select values as sets, ignoring order.
	StrategySet Strategy = "set"
	// StrategyExcluded never compares the field. Used for binary attachments.
	StrategyExcluded Strategy = "excluded"
)

// FieldSpec is one row of the field table.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Strategy Strategy
	Tracked  bool
}

// FieldTable maps every Fields member to its comparison strategy and whether
// a change to it counts as a revision-worthy edit.
type FieldTable struct {
	specs []FieldSpec
	index map[string]int
}

func scalar(name string, kind Kind, tracked bool) FieldSpec {
	return FieldSpec{Name: name, Kind: kind, Strategy: StrategyScalar, Tracked: tracked}
}

func multiSelect(name string) FieldSpec {
	return FieldSpec{Name: name, Kind: KindList, Strategy: StrategySet, Tracked: true}
}

// DefaultFieldTable returns the built-in table. Every Fields member appears
// exactly once so that adding a field forces a tracking decision.
func DefaultFieldTable() *FieldTable {
	return newFieldTable([]FieldSpec{
		scalar("name", KindString, true),
		scalar("age", KindString, true),
		scalar("gender", KindString, true),

		scalar("airwayPatent", KindBool, true),
		scalar("airwayObstruction", KindString, true),
		multiSelect("airwayInterventions"),

		scalar("respiratoryRate", KindString, true),
		scalar("spO2", KindString, true),
		scalar("oxygenSupport", KindString, true),
		scalar("breathSounds", KindString, true),
		multiSelect("breathingConcerns"),

		scalar("heartRate", KindString, true),
		scalar("bloodPressure", KindString, true),
		scalar("capillaryRefill", KindString, true),
		scalar("pulseQuality", KindString, true),
		scalar("bleeding", KindBool, true),
		scalar("bleedingLocation", KindString, true),

		scalar("gcs", KindString, true),
		scalar("pupils", KindString, true),
		scalar("motorResponse", KindString, true),
		multiSelect("neurologicalConcerns"),

		scalar("temperature", KindString, true),
		scalar("skinCondition", KindString, true),
		multiSelect("injuries"),
		scalar("exposureConcerns", KindString, true),

		scalar("location", KindString, true),
		scalar("additionalNotes", KindString, true),
		{Name: "photos", Kind: KindAttachments, Strategy: StrategyExcluded},

		scalar("outcome", KindString, true),
		scalar("outcomeNotes", KindString, true),
		// Derived from the outcome change itself.
		scalar("outcomeTimestamp", KindString, false),
		scalar("timeOfDeath", KindString, true),
	})
}

func newFieldTable(specs []FieldSpec) *FieldTable {
	t := &FieldTable{specs: specs, index: make(map[string]int, len(specs))}
	for i, s := range specs {
		t.index[s.Name] = i
	}
	return t
}

// Specs returns a copy of all rows in declaration order.
func (t *FieldTable) Specs() []FieldSpec {
	return append([]FieldSpec(nil), t.specs...)
}

// Lookup returns the row for name.
func (t *FieldTable) Lookup(name string) (FieldSpec, bool) {
	i, ok := t.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return t.specs[i], true
}

// WithOverrides returns a copy of t with the Tracked flag replaced for the
// named fields. Unknown names and attempts to track excluded fields fail.
func (t *FieldTable) WithOverrides(tracked map[string]bool) (*FieldTable, error) {
	specs := t.Specs()
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		i, ok := t.index[name]
		if !ok {
			return nil, fmt.Errorf("field table override: unknown field %q", name)
		}
		if specs[i].Strategy == StrategyExcluded && tracked[name] {
			return nil, fmt.Errorf("field table override: %q is excluded from comparison and cannot be tracked", name)
		}
		specs[i].Tracked = tracked[name]
	}
	return newFieldTable(specs), nil
}

// LoadFieldOverrides reads a YAML document of `fieldName: true|false` pairs.
func LoadFieldOverrides(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field table overrides: %w", err)
	}
	overrides := map[string]bool{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse field table overrides %s: %w", path, err)
	}
	return overrides, nil
}

// ValidateTable checks that t and the Fields struct describe the same set of
// fields with compatible kinds.
func ValidateTable(t *FieldTable) error {
	typ := reflect.TypeOf(Fields{})
	seen := make(map[string]bool, typ.NumField())
	var problems []string

	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		name := jsonName(sf)
		if name == "" {
			continue
		}
		seen[name] = true
		spec, ok := t.Lookup(name)
		if !ok {
			problems = append(problems, fmt.Sprintf("field %q has no tracking decision", name))
			continue
		}
		if want := kindOf(sf.Type); want != spec.Kind {
			problems = append(problems, fmt.Sprintf("field %q declared as %s but is %s", name, spec.Kind, want))
		}
		if spec.Strategy == StrategySet && spec.Kind != KindList {
			problems = append(problems, fmt.Sprintf("field %q uses set comparison but is not a list", name))
		}
	}
	for _, s := range t.specs {
		if !seen[s.Name] {
			problems = append(problems, fmt.Sprintf("table entry %q does not match any field", s.Name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("field table: %s", strings.Join(problems, "; "))
	}
	return nil
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return sf.Name
	}
	return name
}

func kindOf(t reflect.Type) Kind {
	switch t.Kind() {
	case reflect.Bool:
		return KindBool
	case reflect.Slice:
		if t.Elem().Kind() == reflect.String {
			return KindList
		}
		return KindAttachments
	default:
		return KindString
	}
}

// SetField assigns a textual value to the named field. Lists are given as
// comma-separated items; bools accept anything strconv.ParseBool does.
func (t *FieldTable) SetField(f *Fields, name, value string) error {
	spec, ok := t.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidInput, name)
	}

	var v any
	switch spec.Kind {
	case KindString:
		v = strings.TrimSpace(value)
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: field %q expects true or false", ErrInvalidInput, name)
		}
		v = b
	case KindList:
		items := []string{}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		v = items
	default:
		return fmt.Errorf("%w: field %q cannot be set from text", ErrInvalidInput, name)
	}

	raw, err := fieldValues(*f)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode field %q: %w", name, err)
	}
	raw[name] = encoded

	merged, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	var out Fields
	if err := json.Unmarshal(merged, &out); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrInvalidInput, name, err)
	}
	*f = out
	return nil
}

// fieldValues serializes f into its per-field JSON encodings. Fields omitted
// by `omitempty` are absent from the map.
func fieldValues(f Fields) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	values := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return values, nil
}

// FieldText renders the named field for display. Lists are joined with
// ", "; absent fields render as "".
func FieldText(f Fields, name string) string {
	raw, err := fieldValues(f)
	if err != nil {
		return ""
	}
	v, ok := raw[name]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	var items []string
	if json.Unmarshal(v, &items) == nil {
		return strings.Join(items, ", ")
	}
	return string(v)
}
