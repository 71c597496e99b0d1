package project

import (
	"strconv"
	"strings"
)

// Filterable text fields for the dashboard search box.
const (
	FieldClientEmail = "client_email"
	FieldClientName  = "client_name"
	FieldSiteAddress = "site_address"
	FieldCity        = "city"
	FieldProjectArea = "project_area"
)

// Area comparison operators.
const (
	AreaLess    = "lt"
	AreaEqual   = "eq"
	AreaGreater = "gt"
)

// DefaultPageSize bounds how many records a view renders at once.
const DefaultPageSize = 25

// FilterOptions narrows an already-fetched listing. All of it runs in
// memory; the backend query is never re-issued when these change.
type FilterOptions struct {
	// Field selects which column Term is matched against. Empty or
	// unknown fields fall back to client_email.
	Field string
	// Term is matched as a case-insensitive substring. Empty means no
	// text filtering.
	Term string
	// AreaOperator is one of lt/eq/gt. Applied only when AreaValue
	// parses as a number.
	AreaOperator string
	// AreaValue is the raw user input for the area comparison. A value
	// that does not parse disables the comparison entirely.
	AreaValue string
	// PageSize truncates the result to the first N records. Zero or
	// negative means DefaultPageSize.
	PageSize int
}

// ApplyFilter narrows records per opts and returns a fresh slice. The input
// is never mutated, so re-applying the same options is a no-op on the result.
func ApplyFilter(records []Project, opts FilterOptions) []Project {
	out := make([]Project, 0, len(records))

	term := strings.ToLower(strings.TrimSpace(opts.Term))
	areaValue, areaErr := strconv.ParseFloat(strings.TrimSpace(opts.AreaValue), 64)
	compareArea := opts.AreaValue != "" && areaErr == nil

	for _, rec := range records {
		if term != "" {
			value, ok := fieldValue(rec, opts.Field)
			if !ok || !strings.Contains(strings.ToLower(value), term) {
				continue
			}
		}
		if compareArea && !matchArea(rec.ProjectArea, opts.AreaOperator, areaValue) {
			continue
		}
		out = append(out, rec)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if len(out) > pageSize {
		out = out[:pageSize]
	}
	return out
}

// fieldValue extracts the text to match for a record. ok is false when the
// record has no value for the field; such records are excluded while a term
// is active.
func fieldValue(rec Project, field string) (string, bool) {
	switch field {
	case FieldClientName:
		return rec.ClientName, rec.ClientName != ""
	case FieldSiteAddress:
		return rec.SiteAddress, rec.SiteAddress != ""
	case FieldCity:
		return rec.City, rec.City != ""
	case FieldProjectArea:
		if rec.ProjectArea == nil {
			return "", false
		}
		return strconv.FormatFloat(*rec.ProjectArea, 'f', -1, 64), true
	default:
		return rec.ClientEmail, rec.ClientEmail != ""
	}
}

// matchArea compares a record's project area against value. A record
// without an area counts as 0, so eq=0 finds unset areas.
func matchArea(area *float64, operator string, value float64) bool {
	recorded := 0.0
	if area != nil {
		recorded = *area
	}
	switch operator {
	case AreaLess:
		return recorded < value
	case AreaGreater:
		return recorded > value
	default:
		return recorded == value
	}
}
