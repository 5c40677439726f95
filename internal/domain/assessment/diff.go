package assessment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Detector computes which tracked fields differ between two snapshots.
type Detector struct {
	table *FieldTable
}

// NewDetector validates table against the Fields struct and returns a
// Detector driven by it.
func NewDetector(table *FieldTable) (*Detector, error) {
	if table == nil {
		table = DefaultFieldTable()
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	return &Detector{table: table}, nil
}

// MustDetector is NewDetector for the built-in table, which is known to be
// valid.
func MustDetector() *Detector {
	d, err := NewDetector(DefaultFieldTable())
	if err != nil {
		panic(err)
	}
	return d
}

// Table returns the detector's field table.
func (d *Detector) Table() *FieldTable { return d.table }

// Diff returns the sorted names of tracked fields whose values differ.
// It depends only on its two inputs.
func (d *Detector) Diff(old, new Fields) []string {
	oldVals, err := fieldValues(old)
	if err != nil {
		// Fields holds only strings, bools and byte slices; encoding cannot fail.
		panic(fmt.Sprintf("diff: %v", err))
	}
	newVals, err := fieldValues(new)
	if err != nil {
		panic(fmt.Sprintf("diff: %v", err))
	}

	changed := []string{}
	for _, spec := range d.table.specs {
		if !spec.Tracked {
			continue
		}
		switch spec.Strategy {
		case StrategyScalar:
			if !bytes.Equal(oldVals[spec.Name], newVals[spec.Name]) {
				changed = append(changed, spec.Name)
			}
		case StrategySet:
			if !sameSet(oldVals[spec.Name], newVals[spec.Name]) {
				changed = append(changed, spec.Name)
			}
		}
	}
	sort.Strings(changed)
	return changed
}

func sameSet(a, b json.RawMessage) bool {
	sa, sb := toSet(a), toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for item := range sa {
		if _, ok := sb[item]; !ok {
			return false
		}
	}
	return true
}

func toSet(raw json.RawMessage) map[string]struct{} {
	var items []string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &items)
	}
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}
