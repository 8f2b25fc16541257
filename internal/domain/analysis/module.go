package analysis

import "context"

// ModuleStatus enum for a single provider's outcome.
type ModuleStatus string

const (
	ModuleCompleted ModuleStatus = "COMPLETED"
	ModuleFailed    ModuleStatus = "FAILED"
	ModuleTimeout   ModuleStatus = "TIMEOUT"
	ModuleNotFound  ModuleStatus = "NOT_FOUND"
)

// ModuleInput is the request-scoped descriptor shared read-only by every
// provider invoked for one analysis.
type ModuleInput struct {
	AnalysisID AnalysisID        `json:"analysis_id"`
	FileHash   string            `json:"file_hash"`
	FileName   string            `json:"file_name"`
	FileSize   int64             `json:"file_size"`
	FileType   string            `json:"file_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Complete reports whether all required fields are present. Providers use
// this to fail softly instead of raising on malformed input.
func (in ModuleInput) Complete() bool {
	return in.AnalysisID != "" && in.FileHash != "" && in.FileName != "" &&
		in.FileSize >= 0 && in.FileType != ""
}

// ModuleOutput is produced once per module per analysis.
// A COMPLETED output always carries a score; any other status must not
// contribute to the weighted sum (NOT_FOUND may still carry one for
// reputation-style providers that report a neutral baseline).
type ModuleOutput struct {
	ModuleName string         `json:"module_name"`
	Status     ModuleStatus   `json:"status"`
	RiskScore  *int           `json:"risk_score,omitempty"`
	Confidence float64        `json:"confidence"`
	Flags      []string       `json:"flags,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// Usable reports whether the output carries a score the scoring engine may
// fold into the weighted sum.
func (o ModuleOutput) Usable() bool {
	if o.RiskScore == nil {
		return false
	}
	return o.Status == ModuleCompleted || o.Status == ModuleNotFound
}

// FailedOutput builds the canonical failure result for a provider.
func FailedOutput(name, reason string, durationMS int64) ModuleOutput {
	return ModuleOutput{
		ModuleName: name,
		Status:     ModuleFailed,
		Confidence: 0,
		DurationMS: durationMS,
		Error:      reason,
	}
}

// TimeoutOutput builds the canonical timeout result recorded when a provider
// exceeds its time budget.
func TimeoutOutput(name string, durationMS int64) ModuleOutput {
	return ModuleOutput{
		ModuleName: name,
		Status:     ModuleTimeout,
		Confidence: 0,
		DurationMS: durationMS,
		Error:      "module exceeded its time budget",
	}
}

// Module is the capability contract every analysis provider implements.
// Execute must always return; it must absorb its own failures into a FAILED
// output rather than panic past the orchestrator. Timeouts are imposed
// externally through ctx.
type Module interface {
	Name() string
	Execute(ctx context.Context, in ModuleInput) ModuleOutput
}
