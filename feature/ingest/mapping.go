package ingest

import (
	"sort"
	"strings"

	"card-inventory/core/apperr"
)

// Target fields of a column mapping.
const (
	FieldName       = "name"
	FieldSet        = "set"
	FieldQuantity   = "quantity"
	FieldCardNumber = "card_number"
	FieldVariant    = "variant"
	FieldCondition  = "condition"
	FieldLocation   = "location"
	FieldCost       = "cost"
	FieldLanguage   = "language"
	FieldSKU        = "sku"
)

var (
	requiredFields = []string{FieldName, FieldSet, FieldQuantity}
	knownFields    = map[string]bool{
		FieldName: true, FieldSet: true, FieldQuantity: true,
		FieldCardNumber: true, FieldVariant: true, FieldCondition: true,
		FieldLocation: true, FieldCost: true, FieldLanguage: true, FieldSKU: true,
	}
)

// Mapping maps a file column header to a target field.
type Mapping map[string]string

// columns resolves the mapping against a header row into field -> column index.
func (m Mapping) columns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}

	cols := make(map[string]int, len(m))
	var problems []string
	for column, field := range m {
		field = strings.ToLower(strings.TrimSpace(field))
		if !knownFields[field] {
			problems = append(problems, "unknown target field "+quote(field))
			continue
		}
		if _, dup := cols[field]; dup {
			problems = append(problems, "field "+quote(field)+" is mapped twice")
			continue
		}
		i, ok := index[normalizeHeader(column)]
		if !ok {
			problems = append(problems, "column "+quote(column)+" is not in the header")
			continue
		}
		cols[field] = i
	}
	for _, f := range requiredFields {
		if _, ok := cols[f]; !ok && !mappedButBroken(m, f) {
			problems = append(problems, "required field "+quote(f)+" is not mapped")
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, apperr.Validationf("invalid mapping: %s", strings.Join(problems, "; "))
	}
	return cols, nil
}

// mappedButBroken reports whether f is a mapping target whose column failed to
// resolve; the column problem is reported instead.
func mappedButBroken(m Mapping, f string) bool {
	for _, field := range m {
		if strings.ToLower(strings.TrimSpace(field)) == f {
			return true
		}
	}
	return false
}

// ParseMapping parses "column=field" pairs, as given on the command line.
func ParseMapping(pairs []string) (Mapping, error) {
	m := make(Mapping, len(pairs))
	for _, p := range pairs {
		column, field, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(column) == "" || strings.TrimSpace(field) == "" {
			return nil, apperr.Validationf("invalid mapping %q, want column=field", p)
		}
		m[strings.TrimSpace(column)] = strings.TrimSpace(field)
	}
	return m, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func quote(s string) string {
	return `"` + s + `"`
}

// headerMapping maps every header column named after a target field to that
// field. It is used when a submission carries no mapping.
func headerMapping(header []string) Mapping {
	m := make(Mapping)
	for _, h := range header {
		if f := normalizeHeader(h); knownFields[f] {
			m[h] = f
		}
	}
	return m
}
