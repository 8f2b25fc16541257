// Package sandbox implements the behavioral analysis provider. It stands in
// for a detonation sandbox: behavior is simulated deterministically from the
// file hash so repeated submissions of the same content always observe the
// same events.
package sandbox

import (
	"context"
	"time"

	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
)

const moduleName = "behavioral"

// behavior is one simulated runtime observation.
type behavior struct {
	flag  string
	api   string
	score int
}

// The catalogue of behaviors the simulation can trigger. APIs mirror the
// calls real sandboxes flag for process injection and persistence.
var catalogue = []behavior{
	{flag: "process_injection", api: "CreateRemoteThread", score: 40},
	{flag: "memory_tampering", api: "WriteProcessMemory", score: 35},
	{flag: "persistence_registry", api: "RegSetValueEx", score: 25},
	{flag: "network_beacon", api: "InternetOpenUrl", score: 20},
	{flag: "shadow_copy_deletion", api: "vssadmin delete shadows", score: 45},
	{flag: "keylogging", api: "SetWindowsHookEx", score: 30},
	{flag: "self_delete", api: "MoveFileEx", score: 15},
	{flag: "crypto_api_burst", api: "CryptEncrypt", score: 35},
}

type Module struct {
	// Delay simulates detonation time; tests set it to zero.
	Delay time.Duration
}

func New() *Module { return &Module{Delay: 50 * time.Millisecond} }

func (m *Module) Name() string { return moduleName }

func (m *Module) Execute(ctx context.Context, in domain.ModuleInput) domain.ModuleOutput {
	start := time.Now()
	if !in.Complete() {
		return domain.FailedOutput(moduleName, "incomplete module input", time.Since(start).Milliseconds())
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			// The orchestrator records the timeout; returning here just
			// stops the abandoned simulation early.
			return domain.TimeoutOutput(moduleName, time.Since(start).Milliseconds())
		}
	}

	score := 0
	var flags []string
	var apis []string
	for i, b := range catalogue {
		if triggered(in.FileHash, i) {
			score += b.score
			flags = append(flags, b.flag)
			apis = append(apis, b.api)
		}
	}
	if score > 100 {
		score = 100
	}

	return domain.ModuleOutput{
		ModuleName: moduleName,
		Status:     domain.ModuleCompleted,
		RiskScore:  &score,
		Confidence: 0.7,
		Flags:      flags,
		Details: map[string]any{
			"suspicious_apis": apis,
			"events":          len(apis),
		},
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// triggered derives a stable pseudo-observation from one hash byte. A
// behavior fires when its byte of the hash lands in the top quarter of the
// value range, so most files trigger little or nothing.
func triggered(hash string, index int) bool {
	if hash == "" {
		return false
	}
	b := hash[(index*7)%len(hash)]
	return b >= 'c' && b <= 'f'
}
