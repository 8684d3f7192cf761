package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/detector"
)

// Normalization controls how benign line count dampens the score. A Share of
// the subtotal is divided by 1 + Damping*L/(L+HalfLines), which is never
// below 1, so normalization can only lower the score. L counts only lines
// without confirmed data: more benign lines never raise the score, and more
// confirmed data never lowers it.
type Normalization struct {
	Share     float64 `yaml:"share" json:"share"`
	Damping   float64 `yaml:"damping" json:"damping"`
	HalfLines float64 `yaml:"half_saturation_lines" json:"half_saturation_lines"`
}

// DefaultNormalization returns the stock line normalization.
func DefaultNormalization() Normalization {
	return Normalization{Share: 0.5, Damping: 1.0, HalfLines: 50}
}

// Validate checks the parameter ranges.
func (n Normalization) Validate() error {
	if n.Share < 0 || n.Share > 1 {
		return fmt.Errorf("scoring: normalization share must be in [0,1], got %v", n.Share)
	}
	if n.Damping < 0 {
		return fmt.Errorf("scoring: normalization damping must be >= 0, got %v", n.Damping)
	}
	if n.HalfLines <= 0 {
		return fmt.Errorf("scoring: half_saturation_lines must be > 0, got %v", n.HalfLines)
	}
	return nil
}

// Apply normalizes subtotal for a submission with benign non-blank lines.
func (n Normalization) Apply(subtotal float64, benign int) float64 {
	l := float64(benign)
	if l < 0 {
		l = 0
	}
	d := 1 + n.Damping*l/(l+n.HalfLines)
	return subtotal*(1-n.Share) + subtotal*n.Share/d
}

// Penalty is one scored (category, field, tier) entry. Points already
// include the category multiplier.
type Penalty struct {
	Category catalog.Category `json:"category"`
	Field    string           `json:"field"`
	Tier     detector.Tier    `json:"tier"`
	Points   float64          `json:"points"`
}

// Recommendation is the catalog advice for a category that contributed to
// the score.
type Recommendation struct {
	Category catalog.Category `json:"category"`
	Advice   string           `json:"advice"`
}

// SessionStats is the aggregate history of a session. It never influences
// the per-submission score.
type SessionStats struct {
	Submissions int `json:"submissions"`
	BestScore   int `json:"best_score"`
	LowestScore int `json:"lowest_score"`
}

// Observe returns the stats after one more scored submission.
func (s SessionStats) Observe(score int) SessionStats {
	if s.Submissions == 0 {
		return SessionStats{Submissions: 1, BestScore: score, LowestScore: score}
	}
	out := s
	out.Submissions++
	if score > out.BestScore {
		out.BestScore = score
	}
	if score < out.LowestScore {
		out.LowestScore = score
	}
	return out
}

// Breakdown is the scored form of one detection result.
type Breakdown struct {
	RawScore              float64                      `json:"raw_score"`
	FinalScore            int                          `json:"final_score"`
	RiskLevel             RiskLevel                    `json:"risk_level"`
	LinesOfCode           int                          `json:"lines_of_code"`
	BenignLines           int                          `json:"benign_lines"`
	Subtotal              float64                      `json:"subtotal"`
	CategoryContributions map[catalog.Category]float64 `json:"category_contributions"`
	Penalties             []Penalty                    `json:"penalties"`
	Recommendations       []Recommendation             `json:"recommendations,omitempty"`
	Session               SessionStats                 `json:"session"`
}

// Scorer computes Breakdowns. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	catalog       *catalog.Catalog
	thresholds    Thresholds
	normalization Normalization
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithThresholds overrides the risk level bands.
func WithThresholds(t Thresholds) Option {
	return func(s *Scorer) {
		s.thresholds = t
	}
}

// WithNormalization overrides the line normalization parameters.
func WithNormalization(n Normalization) Option {
	return func(s *Scorer) {
		s.normalization = n
	}
}

// NewScorer creates a Scorer backed by the weights in cat.
func NewScorer(cat *catalog.Catalog, opts ...Option) *Scorer {
	s := &Scorer{
		catalog:       cat,
		thresholds:    DefaultThresholds(),
		normalization: DefaultNormalization(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Thresholds returns the configured risk bands.
func (s *Scorer) Thresholds() Thresholds {
	return s.thresholds
}

// Score computes the breakdown for res. The result depends only on res,
// history and the scorer's configuration.
func (s *Scorer) Score(res *detector.Result, history SessionStats) *Breakdown {
	var penalties []Penalty
	lines, benign := 0, 0
	if res != nil {
		penalties = s.penalties(res.Flags)
		lines = res.LinesOfCode
		benign = lines - confirmedLines(res.Flags)
	}

	bd := s.Replay(penalties, benign)
	bd.LinesOfCode = lines
	bd.Recommendations = s.recommendations(bd.CategoryContributions)
	bd.Session = history.Observe(bd.FinalScore)
	return bd
}

// Replay rebuilds the numeric part of a breakdown from a stored penalty list
// and benign line count, without re-running detection. LinesOfCode is left
// for the caller to fill in.
func (s *Scorer) Replay(penalties []Penalty, benign int) *Breakdown {
	if benign < 0 {
		benign = 0
	}
	bd := &Breakdown{
		BenignLines:           benign,
		CategoryContributions: make(map[catalog.Category]float64),
		Penalties:             penalties,
	}
	if bd.Penalties == nil {
		bd.Penalties = []Penalty{}
	}
	for _, p := range penalties {
		bd.CategoryContributions[p.Category] += p.Points
		bd.Subtotal += p.Points
	}
	bd.RawScore = s.normalization.Apply(bd.Subtotal, benign)
	bd.FinalScore = Clamp(bd.RawScore)
	bd.RiskLevel = s.thresholds.Level(bd.FinalScore)
	return bd
}

// penalties emits one entry per distinct (category, field, tier) in first
// detection order.
func (s *Scorer) penalties(flags []detector.Flag) []Penalty {
	type key struct {
		category catalog.Category
		field    string
		tier     detector.Tier
	}
	seen := make(map[key]struct{}, len(flags))
	out := make([]Penalty, 0, len(flags))

	for _, f := range flags {
		k := key{f.Category, strings.ToLower(f.FieldName), f.Tier}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		rule, ok := s.catalog.Rule(f.Category)
		if !ok {
			continue
		}
		weight := rule.FieldWeight
		if f.Tier == detector.Confirmed {
			weight = rule.DataWeight
		}
		out = append(out, Penalty{
			Category: f.Category,
			Field:    f.FieldName,
			Tier:     f.Tier,
			Points:   weight * rule.Multiplier,
		})
	}
	return out
}

// confirmedLines counts the distinct lines carrying confirmed data.
func confirmedLines(flags []detector.Flag) int {
	lines := make(map[int]struct{})
	for _, f := range flags {
		if f.Tier == detector.Confirmed {
			lines[f.Line] = struct{}{}
		}
	}
	return len(lines)
}

func (s *Scorer) recommendations(contrib map[catalog.Category]float64) []Recommendation {
	var out []Recommendation
	for _, c := range catalog.Categories {
		if contrib[c] <= 0 {
			continue
		}
		rule, ok := s.catalog.Rule(c)
		if !ok || rule.Advice == "" {
			continue
		}
		out = append(out, Recommendation{Category: c, Advice: rule.Advice})
	}
	return out
}

// Clamp rounds raw to the nearest integer and clamps it into [0,100].
func Clamp(raw float64) int {
	if math.IsNaN(raw) {
		return 0
	}
	r := math.Round(raw)
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	default:
		return int(r)
	}
}
