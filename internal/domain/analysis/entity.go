package analysis

import (
	"time"
)

// AnalysisID identifier type
type AnalysisID string

// Status enum for the analysis lifecycle.
// PENDING → IN_PROGRESS → {COMPLETED, FAILED}; terminal states are final.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Verdict enum. UNKNOWN is the Zero-Trust default: a file is untrusted
// until analysis evidence justifies anything else.
type Verdict string

const (
	VerdictSafe       Verdict = "SAFE"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictMalicious  Verdict = "MALICIOUS"
	VerdictUnknown    Verdict = "UNKNOWN"
)

// ZeroTrustExplanation is carried by every record until scoring replaces it.
const ZeroTrustExplanation = "Analysis has not completed. Treat this file as untrusted until a verdict is available."

// FileDescriptor identifies the submitted file.
type FileDescriptor struct {
	Hash string `json:"file_hash"`
	Name string `json:"file_name"`
	Size int64  `json:"file_size"`
	Type string `json:"file_type"`
}

// Aggregate Root: AnalysisRecord, one per submitted file-analysis request.
// Mutated exclusively by the orchestrator; read by callers through the
// repository.
type AnalysisRecord struct {
	ID             AnalysisID              `json:"id"`
	File           FileDescriptor          `json:"file"`
	Status         Status                  `json:"status"`
	RiskScore      *int                    `json:"risk_score,omitempty"`
	Confidence     float64                 `json:"confidence"`
	Verdict        Verdict                 `json:"verdict"`
	Explanation    string                  `json:"explanation"`
	Recommendation string                  `json:"recommendation,omitempty"`
	Flags          []string                `json:"flags,omitempty"`
	ModuleResults  map[string]ModuleOutput `json:"module_results"`
	InitiatedAt    time.Time               `json:"initiated_at"`
	CompletedAt    *time.Time              `json:"completed_at,omitempty"`
}

// NewRecord creates a fresh PENDING record with the Zero-Trust defaults.
func NewRecord(id AnalysisID, file FileDescriptor, now time.Time) *AnalysisRecord {
	return &AnalysisRecord{
		ID:            id,
		File:          file,
		Status:        StatusPending,
		Verdict:       VerdictUnknown,
		Explanation:   ZeroTrustExplanation,
		ModuleResults: map[string]ModuleOutput{},
		InitiatedAt:   now,
	}
}

// Clone returns a deep copy so that callers never alias the stored record.
func (r *AnalysisRecord) Clone() *AnalysisRecord {
	cp := *r
	if r.RiskScore != nil {
		v := *r.RiskScore
		cp.RiskScore = &v
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Flags = append([]string(nil), r.Flags...)
	cp.ModuleResults = make(map[string]ModuleOutput, len(r.ModuleResults))
	for k, v := range r.ModuleResults {
		cp.ModuleResults[k] = v
	}
	return &cp
}
