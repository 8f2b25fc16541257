package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shivanishrees/malscan/internal/domain/analysis"
)

// overrideKeywords force a MALICIOUS verdict when any collected flag
// contains one of them, regardless of score or confidence.
var overrideKeywords = []string{
	"malicious",
	"trojan",
	"ransomware",
	"virus",
	"worm",
	"spyware",
}

// ModuleSummary is the condensed per-module view attached to the result.
type ModuleSummary struct {
	Status     analysis.ModuleStatus `json:"status"`
	RiskScore  *int                  `json:"risk_score,omitempty"`
	Confidence float64               `json:"confidence"`
	DurationMS int64                 `json:"duration_ms"`
}

// Result is the output of one scoring pass.
type Result struct {
	RiskScore      *int                     `json:"risk_score,omitempty"`
	Confidence     float64                  `json:"confidence"`
	Verdict        analysis.Verdict         `json:"verdict"`
	Explanation    string                   `json:"explanation"`
	Recommendation string                   `json:"recommendation"`
	Flags          []string                 `json:"flags,omitempty"`
	ModuleSummary  map[string]ModuleSummary `json:"module_summary"`
}

// Score aggregates a (possibly partial) module result set into a risk
// score, confidence, and verdict. It is a pure function: same inputs,
// same output, no side effects.
func Score(results map[string]analysis.ModuleOutput, cfg Config) Result {
	var (
		weightedSum     float64
		activeWeight    float64
		completed       int
		missingCritical int
		missingOther    int
		collected       []string
	)

	for name, mc := range cfg.Modules {
		if !mc.Enabled {
			continue
		}
		out, reported := results[name]
		if reported && out.Usable() {
			weightedSum += mc.Weight * float64(*out.RiskScore)
			activeWeight += mc.Weight
			completed++
			collected = append(collected, out.Flags...)
			continue
		}
		if mc.Critical {
			missingCritical++
		} else {
			missingOther++
		}
	}

	var riskScore *int
	if activeWeight > 0 {
		v := int(math.Round(weightedSum / activeWeight))
		riskScore = &v
	}

	confidence := 0.0
	if total := cfg.EnabledWeight(); total > 0 {
		confidence = activeWeight / total
	}
	confidence -= float64(missingCritical) * cfg.Confidence.CriticalPenalty
	confidence -= float64(missingOther) * cfg.Confidence.NonCriticalPenalty
	confidence = clamp01(confidence)

	flags := dedupe(collected)
	verdict := resolveVerdict(riskScore, confidence, flags, cfg)

	res := Result{
		RiskScore:     riskScore,
		Confidence:    confidence,
		Verdict:       verdict,
		Flags:         flags,
		ModuleSummary: summarize(results),
	}
	res.Explanation = explain(res, completed, cfg)
	res.Recommendation = Recommend(verdict, riskScore)
	return res
}

func resolveVerdict(score *int, confidence float64, flags []string, cfg Config) analysis.Verdict {
	for _, f := range flags {
		lower := strings.ToLower(f)
		for _, kw := range overrideKeywords {
			if strings.Contains(lower, kw) {
				return analysis.VerdictMalicious
			}
		}
	}

	if score == nil || confidence < cfg.Confidence.MinimumRequired {
		return analysis.VerdictUnknown
	}

	t := cfg.Thresholds
	s := *score
	switch {
	case s >= 0 && s <= t.SafeMax:
		return analysis.VerdictSafe
	case s >= t.SuspiciousMin && s <= t.SuspiciousMax:
		return analysis.VerdictSuspicious
	case s >= t.MaliciousMin && s <= 100:
		return analysis.VerdictMalicious
	default:
		return analysis.VerdictUnknown
	}
}

func explain(res Result, completed int, cfg Config) string {
	switch res.Verdict {
	case analysis.VerdictSafe:
		return fmt.Sprintf("No significant threat indicators found. Risk score %d/100 with %.0f%% confidence across %d completed modules.",
			*res.RiskScore, res.Confidence*100, completed)
	case analysis.VerdictSuspicious:
		return fmt.Sprintf("Some threat indicators were observed (%d flags). Risk score %d/100 with %.0f%% confidence across %d completed modules. Handle with caution.",
			len(res.Flags), *res.RiskScore, res.Confidence*100, completed)
	case analysis.VerdictMalicious:
		if res.RiskScore != nil {
			return fmt.Sprintf("Strong threat indicators detected (%d flags). Risk score %d/100 with %.0f%% confidence across %d completed modules. Do not open this file.",
				len(res.Flags), *res.RiskScore, res.Confidence*100, completed)
		}
		return fmt.Sprintf("A module reported a known-malicious indicator (%d flags). Do not open this file.", len(res.Flags))
	default:
		if res.RiskScore == nil {
			return "No analysis data is available for this file. Treat it as untrusted."
		}
		return fmt.Sprintf("Insufficient data for a reliable verdict: confidence %.0f%% is below the required %.0f%%. Treat this file as untrusted.",
			res.Confidence*100, cfg.Confidence.MinimumRequired*100)
	}
}

func summarize(results map[string]analysis.ModuleOutput) map[string]ModuleSummary {
	out := make(map[string]ModuleSummary, len(results))
	for name, r := range results {
		out[name] = ModuleSummary{
			Status:     r.Status,
			RiskScore:  r.RiskScore,
			Confidence: r.Confidence,
			DurationMS: r.DurationMS,
		}
	}
	return out
}

func dedupe(flags []string) []string {
	seen := make(map[string]struct{}, len(flags))
	var out []string
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
