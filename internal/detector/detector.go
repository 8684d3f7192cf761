// Package detector scans code submissions for sensitive data.
//
// Detection is two-tier. A field-name match (for example a variable called
// api_key) yields a POTENTIAL flag. When the category's value pattern also
// matches on the same line, and the matched value is not a placeholder, the
// field is upgraded with a CONFIRMED flag.
package detector

import (
	"strings"

	"github.com/0x6d61/sec360/internal/catalog"
)

// Tier classifies how strong a flag is.
type Tier string

const (
	Potential Tier = "POTENTIAL"
	Confirmed Tier = "CONFIRMED"
)

// Flag is a single detected indicator.
type Flag struct {
	Category  catalog.Category `json:"category"`
	Tier      Tier             `json:"tier"`
	FieldName string           `json:"field_name"`
	Value     string           `json:"value,omitempty"` // redacted, CONFIRMED only
	Line      int              `json:"line"`
}

// Result is the output of one scan. It must not be modified after Detect
// returns it.
type Result struct {
	LinesOfCode   int                      `json:"lines_of_code"`
	Flags         []Flag                   `json:"flags"`
	FieldCount    int                      `json:"field_count"`
	DataCount     int                      `json:"data_count"`
	CategoryTally map[catalog.Category]int `json:"category_tally"`
}

// Detect scans code against every rule in cat.
//
// Flags are ordered by line, then by canonical category order, then by the
// position of the field on the line. A (category, field, line) triple yields
// at most one flag per tier. FieldCount and DataCount count distinct field
// names case-insensitively across the whole submission, so a variable that
// is repeated on several lines is listed on each line but counted once.
func Detect(code string, cat *catalog.Catalog) *Result {
	res := &Result{
		Flags:         []Flag{},
		CategoryTally: make(map[catalog.Category]int),
	}
	if code == "" || cat == nil {
		return res
	}

	rules := cat.Rules()
	seen := make(map[flagKey]struct{})
	potential := make(map[string]struct{})
	confirmed := make(map[string]struct{})

	for i, line := range splitLines(code) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		res.LinesOfCode++
		lineNo := i + 1

		for _, rule := range rules {
			fields := fieldNames(rule, line)
			if len(fields) == 0 {
				continue
			}
			value, hasValue := matchValue(rule, line)
			if hasValue && cat.IsPlaceholder(value) {
				hasValue = false
			}

			for _, field := range fields {
				lower := strings.ToLower(field)
				key := flagKey{category: rule.Category, field: lower, line: lineNo}

				if _, dup := seen[key.with(Potential)]; !dup {
					seen[key.with(Potential)] = struct{}{}
					potential[lower] = struct{}{}
					res.Flags = append(res.Flags, Flag{
						Category:  rule.Category,
						Tier:      Potential,
						FieldName: field,
						Line:      lineNo,
					})
				}

				if !hasValue {
					continue
				}
				if _, dup := seen[key.with(Confirmed)]; dup {
					continue
				}
				seen[key.with(Confirmed)] = struct{}{}
				confirmed[lower] = struct{}{}
				res.CategoryTally[rule.Category]++
				res.Flags = append(res.Flags, Flag{
					Category:  rule.Category,
					Tier:      Confirmed,
					FieldName: field,
					Value:     Redact(value),
					Line:      lineNo,
				})
			}
		}
	}

	res.FieldCount = len(potential)
	res.DataCount = len(confirmed)
	return res
}

type flagKey struct {
	category catalog.Category
	field    string
	line     int
	tier     Tier
}

func (k flagKey) with(t Tier) flagKey {
	k.tier = t
	return k
}

// fieldNames returns the field names captured by rule's field pattern on
// line, in order of appearance.
func fieldNames(rule catalog.Rule, line string) []string {
	matches := rule.FieldPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) < 2 || m[1] == "" {
			continue
		}
		names = append(names, m[1])
	}
	return names
}

// matchValue returns the first value matched by rule's value pattern on
// line. Capture group 1 is preferred over the whole match.
func matchValue(rule catalog.Rule, line string) (string, bool) {
	m := rule.ValuePattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	if len(m) > 1 && m[1] != "" {
		return m[1], true
	}
	return m[0], true
}

func splitLines(code string) []string {
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Redact masks a sensitive value for storage, keeping at most the first four
// characters.
func Redact(value string) string {
	r := []rune(value)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	masked := len(r) - 4
	if masked > 8 {
		masked = 8
	}
	return string(r[:4]) + strings.Repeat("*", masked)
}
