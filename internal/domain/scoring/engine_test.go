package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shivanishrees/malscan/internal/domain/analysis"
	"github.com/shivanishrees/malscan/internal/domain/scoring"
)

func intp(v int) *int { return &v }

func completed(name string, score int, flags ...string) analysis.ModuleOutput {
	return analysis.ModuleOutput{
		ModuleName: name,
		Status:     analysis.ModuleCompleted,
		RiskScore:  intp(score),
		Confidence: 0.9,
		Flags:      flags,
		DurationMS: 12,
	}
}

func testConfig() scoring.Config {
	return scoring.Default()
}

func TestAllZeroScoresYieldSafe(t *testing.T) {
	cfg := testConfig()
	results := map[string]analysis.ModuleOutput{
		"static_analysis": completed("static_analysis", 0),
		"threat_intel":    completed("threat_intel", 0),
		"behavioral":      completed("behavioral", 0),
	}

	res := scoring.Score(results, cfg)
	require.NotNil(t, res.RiskScore)
	require.Equal(t, 0, *res.RiskScore)
	require.Equal(t, analysis.VerdictSafe, res.Verdict)
	require.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestRansomwareFlagForcesMalicious(t *testing.T) {
	cfg := testConfig()
	results := map[string]analysis.ModuleOutput{
		"static_analysis": completed("static_analysis", 1, "Ransomware_note_pattern"),
		"threat_intel":    completed("threat_intel", 0),
		"behavioral":      completed("behavioral", 0),
	}

	res := scoring.Score(results, cfg)
	// Override keyword wins over a numerically safe score.
	require.Equal(t, analysis.VerdictMalicious, res.Verdict)
}

func TestLowConfidenceYieldsUnknownEvenInMaliciousBand(t *testing.T) {
	cfg := testConfig()
	// Only the non-critical module reports: active weight 0.25, two missing
	// critical modules push confidence well below the minimum.
	results := map[string]analysis.ModuleOutput{
		"behavioral": completed("behavioral", 95),
	}

	res := scoring.Score(results, cfg)
	require.NotNil(t, res.RiskScore)
	require.Equal(t, 95, *res.RiskScore)
	require.Less(t, res.Confidence, cfg.Confidence.MinimumRequired)
	require.Equal(t, analysis.VerdictUnknown, res.Verdict)
	require.Contains(t, res.Explanation, "Insufficient data")
}

func TestNoModulesReportingYieldsUnknown(t *testing.T) {
	res := scoring.Score(map[string]analysis.ModuleOutput{}, testConfig())
	require.Nil(t, res.RiskScore)
	require.Equal(t, analysis.VerdictUnknown, res.Verdict)
	require.Equal(t, 0.0, res.Confidence)
	require.Contains(t, res.Explanation, "No analysis data")
}

func TestMissingCriticalModuleCostsExactPenalty(t *testing.T) {
	cfg := testConfig()
	full := map[string]analysis.ModuleOutput{
		"static_analysis": completed("static_analysis", 10),
		"threat_intel":    completed("threat_intel", 10),
		"behavioral":      completed("behavioral", 10),
	}
	withoutCritical := map[string]analysis.ModuleOutput{
		"static_analysis": completed("static_analysis", 10),
		"behavioral":      completed("behavioral", 10),
	}

	base := scoring.Score(full, cfg)
	degraded := scoring.Score(withoutCritical, cfg)

	// Base confidence drops by the lost weight (0.40) plus the critical
	// penalty (0.20).
	expected := base.Confidence - 0.40 - cfg.Confidence.CriticalPenalty
	require.InDelta(t, expected, degraded.Confidence, 1e-9)
}

func TestTimedOutModuleDoesNotContribute(t *testing.T) {
	cfg := testConfig()
	score := 90
	results := map[string]analysis.ModuleOutput{
		"static_analysis": completed("static_analysis", 40),
		"threat_intel":    completed("threat_intel", 40),
		"behavioral": {
			ModuleName: "behavioral",
			Status:     analysis.ModuleTimeout,
			// A straggler's score must be ignored for any non-usable status.
			RiskScore:  &score,
			DurationMS: 10000,
		},
	}

	res := scoring.Score(results, cfg)
	require.NotNil(t, res.RiskScore)
	require.Equal(t, 40, *res.RiskScore)

	// Equivalent to the module never reporting.
	delete(results, "behavioral")
	same := scoring.Score(results, cfg)
	require.Equal(t, *same.RiskScore, *res.RiskScore)
	require.InDelta(t, same.Confidence, res.Confidence, 1e-9)
}

func TestNotFoundWithScoreContributes(t *testing.T) {
	cfg := testConfig()
	results := map[string]analysis.ModuleOutput{
		"threat_intel": {
			ModuleName: "threat_intel",
			Status:     analysis.ModuleNotFound,
			RiskScore:  intp(50),
			Confidence: 0.3,
		},
	}

	res := scoring.Score(results, cfg)
	require.NotNil(t, res.RiskScore)
	require.Equal(t, 50, *res.RiskScore)
}

func TestScenarioHighRiskWithTimeout(t *testing.T) {
	cfg := testConfig()
	results := map[string]analysis.ModuleOutput{
		"static_analysis": completed("static_analysis", 90),
		"threat_intel":    completed("threat_intel", 85, "known_malicious_signature"),
		"behavioral": {
			ModuleName: "behavioral",
			Status:     analysis.ModuleTimeout,
			DurationMS: 10000,
			Error:      "module exceeded its time budget",
		},
	}

	res := scoring.Score(results, cfg)
	require.NotNil(t, res.RiskScore)
	require.Equal(t, 87, *res.RiskScore) // round((90*0.35 + 85*0.40) / 0.75)
	require.InDelta(t, 0.70, res.Confidence, 1e-9)
	require.Equal(t, analysis.VerdictMalicious, res.Verdict)
	require.Contains(t, res.Flags, "known_malicious_signature")
}

func TestScenarioAllLowScores(t *testing.T) {
	cfg := testConfig()
	results := map[string]analysis.ModuleOutput{
		"static_analysis": completed("static_analysis", 20),
		"threat_intel":    completed("threat_intel", 20),
		"behavioral":      completed("behavioral", 20),
	}

	res := scoring.Score(results, cfg)
	require.Equal(t, 20, *res.RiskScore)
	require.InDelta(t, 1.0, res.Confidence, 1e-9)
	require.Equal(t, analysis.VerdictSafe, res.Verdict)
}

func TestFlagsDeduplicated(t *testing.T) {
	cfg := testConfig()
	results := map[string]analysis.ModuleOutput{
		"static_analysis": completed("static_analysis", 50, "packed_binary", "double_extension"),
		"threat_intel":    completed("threat_intel", 50, "packed_binary"),
		"behavioral":      completed("behavioral", 50, "double_extension"),
	}

	res := scoring.Score(results, cfg)
	require.ElementsMatch(t, []string{"packed_binary", "double_extension"}, res.Flags)
}

func TestBandBoundariesInclusive(t *testing.T) {
	cfg := testConfig()
	cases := []struct {
		score   int
		verdict analysis.Verdict
	}{
		{0, analysis.VerdictSafe},
		{29, analysis.VerdictSafe},
		{30, analysis.VerdictSuspicious},
		{69, analysis.VerdictSuspicious},
		{70, analysis.VerdictMalicious},
		{100, analysis.VerdictMalicious},
	}
	for _, tc := range cases {
		results := map[string]analysis.ModuleOutput{
			"static_analysis": completed("static_analysis", tc.score),
			"threat_intel":    completed("threat_intel", tc.score),
			"behavioral":      completed("behavioral", tc.score),
		}
		res := scoring.Score(results, cfg)
		require.Equalf(t, tc.verdict, res.Verdict, "score %d", tc.score)
	}
}

func TestValidateRejectsBandGap(t *testing.T) {
	cfg := scoring.Default()
	cfg.Thresholds.SuspiciousMin = 45 // leaves a gap above safe_max

	_, err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateWarnsOnWeightSum(t *testing.T) {
	cfg := scoring.Default()
	m := cfg.Modules["behavioral"]
	m.Weight = 0.5
	cfg.Modules["behavioral"] = m

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
}

func TestRecommendations(t *testing.T) {
	require.Contains(t, scoring.Recommend(analysis.VerdictMalicious, intp(90)), "Delete")
	require.Contains(t, scoring.Recommend(analysis.VerdictSuspicious, intp(40)), "Quarantine")
	require.Contains(t, scoring.Recommend(analysis.VerdictSafe, intp(5)), "safe")
	require.Contains(t, scoring.Recommend(analysis.VerdictUnknown, nil), "quarantined")
}
