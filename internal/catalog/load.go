package catalog

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// defaultCatalog is the catalog shipped with the binary. It is used when no
// catalog path is configured.
//
//go:embed default_catalog.yaml
var defaultCatalog []byte

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	PlaceholderPattern string              `yaml:"placeholder_pattern"`
	Categories         map[string]ruleFile `yaml:"categories"`
}

type ruleFile struct {
	FieldPattern string   `yaml:"field_pattern"`
	ValuePattern string   `yaml:"value_pattern"`
	FieldWeight  *float64 `yaml:"field_weight"`
	DataWeight   *float64 `yaml:"data_weight"`
	Multiplier   *float64 `yaml:"multiplier"`
	Advice       string   `yaml:"advice"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// DefaultSource returns the raw YAML of the embedded catalog.
func DefaultSource() []byte {
	out := make([]byte, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

// Load reads and validates a catalog file. An empty path selects the
// embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidCatalog, path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes and validates catalog YAML. Unknown keys, unknown
// categories, unparsable patterns and out-of-range weights are all rejected
// with an error wrapping ErrInvalidCatalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidCatalog)
		}
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("%w: no categories defined", ErrInvalidCatalog)
	}

	sum := sha256.Sum256(data)
	cat := &Catalog{
		version:    "sha256:" + hex.EncodeToString(sum[:])[:12],
		byCategory: make(map[Category]int, len(f.Categories)),
	}

	if f.PlaceholderPattern != "" {
		re, err := regexp.Compile(f.PlaceholderPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: placeholder_pattern: %v", ErrInvalidCatalog, err)
		}
		cat.placeholder = re
	}

	for name, rf := range f.Categories {
		category, ok := ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidCatalog, name)
		}
		rule, err := compileRule(category, rf)
		if err != nil {
			return nil, err
		}
		if _, dup := cat.byCategory[category]; dup {
			return nil, fmt.Errorf("%w: category %s defined twice", ErrInvalidCatalog, category)
		}
		cat.byCategory[category] = -1
		cat.rules = append(cat.rules, rule)
	}

	sort.Slice(cat.rules, func(i, j int) bool {
		return cat.rules[i].Category.Index() < cat.rules[j].Category.Index()
	})
	for i, r := range cat.rules {
		cat.byCategory[r.Category] = i
	}

	return cat, nil
}

func compileRule(category Category, rf ruleFile) (Rule, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: category %s: %s", ErrInvalidCatalog, category, fmt.Sprintf(format, args...))
	}

	if rf.FieldPattern == "" {
		return Rule{}, invalid("field_pattern is required")
	}
	if rf.ValuePattern == "" {
		return Rule{}, invalid("value_pattern is required")
	}
	fieldRe, err := regexp.Compile(rf.FieldPattern)
	if err != nil {
		return Rule{}, invalid("field_pattern: %v", err)
	}
	if fieldRe.NumSubexp() < 1 {
		return Rule{}, invalid("field_pattern must capture the field name in group 1")
	}
	valueRe, err := regexp.Compile(rf.ValuePattern)
	if err != nil {
		return Rule{}, invalid("value_pattern: %v", err)
	}

	if rf.FieldWeight == nil || rf.DataWeight == nil {
		return Rule{}, invalid("field_weight and data_weight are required")
	}
	multiplier := 1.0
	if rf.Multiplier != nil {
		multiplier = *rf.Multiplier
	}
	switch {
	case *rf.FieldWeight < 0:
		return Rule{}, invalid("field_weight must be >= 0, got %v", *rf.FieldWeight)
	case *rf.DataWeight < 0:
		return Rule{}, invalid("data_weight must be >= 0, got %v", *rf.DataWeight)
	case *rf.DataWeight < *rf.FieldWeight:
		return Rule{}, invalid("data_weight (%v) must not be lower than field_weight (%v)", *rf.DataWeight, *rf.FieldWeight)
	case multiplier <= 0:
		return Rule{}, invalid("multiplier must be > 0, got %v", multiplier)
	}

	return Rule{
		Category:     category,
		FieldPattern: fieldRe,
		ValuePattern: valueRe,
		FieldWeight:  *rf.FieldWeight,
		DataWeight:   *rf.DataWeight,
		Multiplier:   multiplier,
		Advice:       rf.Advice,
	}, nil
}
