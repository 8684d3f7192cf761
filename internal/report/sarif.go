package report

import (
	"context"
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/engine"
	"github.com/0x6d61/sec360/internal/scoring"
)

const informationURI = "https://github.com/0x6d61/sec360"

// defaultRuleLevel is every rule's default. Each result carries its own
// level, which depends on the flag tier and the file's risk.
const defaultRuleLevel = "warning"

// SARIFReporter outputs SARIF 2.1.0 with one rule per category.
type SARIFReporter struct {
	// IncludePotential also reports field-name-only flags as notes.
	IncludePotential bool
}

// Format returns "sarif".
func (r *SARIFReporter) Format() string {
	return "sarif"
}

// Generate writes a SARIF log for result to w.
func (r *SARIFReporter) Generate(ctx context.Context, result *engine.ScanResult, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	log, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("report: create sarif log: %w", err)
	}
	run := sarif.NewRunWithInformationURI("sec360", informationURI)
	rules := make(map[string]*sarif.ReportingDescriptor)

	for _, f := range result.Files {
		advice := make(map[string]string, len(f.Score.Recommendations))
		for _, rec := range f.Score.Recommendations {
			advice[string(rec.Category)] = rec.Advice
		}

		for _, fl := range f.Detection.Flags {
			if fl.Tier == detector.Potential && !r.IncludePotential {
				continue
			}
			ruleID := string(fl.Category)
			rule, ok := rules[ruleID]
			if !ok {
				description := advice[ruleID]
				if description == "" {
					description = fmt.Sprintf("Sensitive data of type %s", fl.Category)
				}
				rule = run.AddRule(ruleID).
					WithDescription(description).
					WithDefaultConfiguration(&sarif.ReportingConfiguration{
						Level: defaultRuleLevel,
					})
				rules[ruleID] = rule
			}
			level := sarifLevel(fl.Tier, f.Score.RiskLevel)

			location := sarif.NewLocation().WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.Path)).
					WithRegion(sarif.NewRegion().WithStartLine(fl.Line)),
			)
			res := sarif.NewRuleResult(rule.ID).
				WithMessage(sarif.NewTextMessage(flagMessage(fl))).
				WithLevel(level).
				WithLocations([]*sarif.Location{location})
			run.AddResult(res)
		}
	}
	log.AddRun(run)

	return log.PrettyWrite(w)
}

func flagMessage(fl detector.Flag) string {
	if fl.Tier == detector.Confirmed {
		return fmt.Sprintf("%s value assigned to %q (%s)", fl.Category, fl.FieldName, fl.Value)
	}
	return fmt.Sprintf("field %q looks like %s", fl.FieldName, fl.Category)
}

// sarifLevel maps a flag to a SARIF level. Confirmed data is an error once
// the file is at least HIGH risk.
func sarifLevel(tier detector.Tier, level scoring.RiskLevel) string {
	if tier == detector.Potential {
		return "note"
	}
	switch level {
	case scoring.High, scoring.Critical:
		return "error"
	default:
		return "warning"
	}
}
