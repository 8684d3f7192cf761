// Package catalog holds the pattern catalog that drives sensitive-data
// detection and the per-category weights used by risk scoring.
//
// A Catalog is immutable once loaded. Every pattern is compiled and every
// weight validated at load time so that a bad catalog is rejected before the
// engine serves a single submission.
package catalog

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidCatalog is returned when a catalog cannot be read, parsed or
// validated. It is fatal at startup.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Category identifies a class of sensitive data.
type Category string

const (
	APIKey     Category = "API_KEY"
	Token      Category = "TOKEN"
	Password   Category = "PASSWORD"
	SSN        Category = "SSN"
	CreditCard Category = "CREDIT_CARD"
	Email      Category = "EMAIL"
	Phone      Category = "PHONE"
	Medical    Category = "MEDICAL"
	PII        Category = "PII"
	GDPR       Category = "GDPR"
	Compliance Category = "COMPLIANCE"
	Hostname   Category = "HOSTNAME"
	InternalIP Category = "INTERNAL_IP"
	SessionID  Category = "SESSION_ID"
)

// Categories lists every category in canonical order. Detection iterates
// categories in this order, which keeps flag ordering deterministic.
var Categories = []Category{
	APIKey, Token, Password, SSN, CreditCard, Email, Phone,
	Medical, PII, GDPR, Compliance, Hostname, InternalIP, SessionID,
}

var categoryIndex = func() map[Category]int {
	m := make(map[Category]int, len(Categories))
	for i, c := range Categories {
		m[c] = i
	}
	return m
}()

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryIndex[c]
	return ok
}

// Index returns the canonical position of c, or -1 when c is unknown.
func (c Category) Index() int {
	if i, ok := categoryIndex[c]; ok {
		return i
	}
	return -1
}

// ParseCategory converts a case-insensitive name into a Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.Valid()
}

// Rule is the compiled detection and weighting configuration for one
// category.
type Rule struct {
	Category     Category
	FieldPattern *regexp.Regexp // capture group 1 is the field name
	ValuePattern *regexp.Regexp // capture group 1, when present, is the value
	FieldWeight  float64        // points per distinct POTENTIAL field
	DataWeight   float64        // points per distinct CONFIRMED field
	Multiplier   float64
	Advice       string
}

// Catalog is an immutable, validated set of rules.
type Catalog struct {
	version     string
	rules       []Rule
	byCategory  map[Category]int
	placeholder *regexp.Regexp
}

// Version returns a short digest of the catalog source. It is recorded with
// every persisted session so that scores can be traced to the rules that
// produced them.
func (c *Catalog) Version() string {
	return c.version
}

// Rules returns the rules in canonical category order. The returned slice is
// a copy; compiled regexps are safe for concurrent use.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Rule returns the rule configured for category.
func (c *Catalog) Rule(category Category) (Rule, bool) {
	i, ok := c.byCategory[category]
	if !ok {
		return Rule{}, false
	}
	return c.rules[i], true
}

// Len returns the number of configured categories.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// IsPlaceholder reports whether value looks like a placeholder
// ("YOUR_API_KEY", "<token>", "${SECRET}") rather than real data.
func (c *Catalog) IsPlaceholder(value string) bool {
	if c.placeholder == nil {
		return false
	}
	return c.placeholder.MatchString(strings.TrimSpace(value))
}
