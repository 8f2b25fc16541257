package scoring

import "github.com/shivanishrees/malscan/internal/domain/analysis"

// Recommend maps a verdict and score to the action a caller should take.
// An UNKNOWN verdict always recommends quarantine, never execution.
func Recommend(verdict analysis.Verdict, score *int) string {
	switch verdict {
	case analysis.VerdictMalicious:
		return "Delete immediately. High risk malware detected."
	case analysis.VerdictSuspicious:
		return "Quarantine the file and avoid execution."
	case analysis.VerdictSafe:
		return "File appears safe. No action required."
	default:
		if score != nil && *score >= 70 {
			return "Delete immediately. High risk malware detected."
		}
		return "Keep the file quarantined until it can be re-analyzed."
	}
}
