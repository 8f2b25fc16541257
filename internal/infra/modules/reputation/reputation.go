// Package reputation implements the threat-intel analysis provider: a
// hash-reputation lookup over a seeded community database. Unknown hashes
// produce a NOT_FOUND result with a neutral baseline score so the scoring
// engine can still weigh the module without treating silence as safety.
package reputation

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
)

const moduleName = "threat_intel"

// unknownBaseline is the neutral score reported for hashes absent from the
// database.
const unknownBaseline = 50

// Entry holds community detection counts for one file hash.
type Entry struct {
	Malicious int `yaml:"malicious" json:"malicious"`
	Clean     int `yaml:"clean" json:"clean"`
}

type Module struct {
	entries map[string]Entry
}

// New creates the provider with an in-memory reputation set.
func New(entries map[string]Entry) *Module {
	if entries == nil {
		entries = map[string]Entry{}
	}
	return &Module{entries: entries}
}

// LoadSeedFile reads a YAML mapping of hash → detection counts.
func LoadSeedFile(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reputation seed %s: %w", path, err)
	}
	var entries map[string]Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse reputation seed %s: %w", path, err)
	}
	return entries, nil
}

func (m *Module) Name() string { return moduleName }

func (m *Module) Execute(_ context.Context, in domain.ModuleInput) domain.ModuleOutput {
	start := time.Now()
	if !in.Complete() {
		return domain.FailedOutput(moduleName, "incomplete module input", time.Since(start).Milliseconds())
	}

	entry, known := m.entries[in.FileHash]
	if !known || entry.Malicious+entry.Clean == 0 {
		score := unknownBaseline
		return domain.ModuleOutput{
			ModuleName: moduleName,
			Status:     domain.ModuleNotFound,
			RiskScore:  &score,
			Confidence: 0.3,
			Details:    map[string]any{"lookup": "miss"},
			DurationMS: time.Since(start).Milliseconds(),
		}
	}

	total := entry.Malicious + entry.Clean
	score := entry.Malicious * 100 / total

	var flags []string
	if entry.Malicious > 0 && score >= 70 {
		flags = append(flags, "known_malicious_signature")
	} else if entry.Malicious > 0 {
		flags = append(flags, "community_detections")
	}

	return domain.ModuleOutput{
		ModuleName: moduleName,
		Status:     domain.ModuleCompleted,
		RiskScore:  &score,
		Confidence: 0.9,
		Flags:      flags,
		Details: map[string]any{
			"detections": entry.Malicious,
			"clean_votes": entry.Clean,
		},
		DurationMS: time.Since(start).Milliseconds(),
	}
}
