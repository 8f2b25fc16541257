// Package static implements the static-heuristics analysis provider:
// filename, declared type, and size heuristics with indicator flags.
package static

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
)

const moduleName = "static_analysis"

// Extensions commonly abused by malware authors, with their heuristic
// score contribution.
var riskyExtensions = map[string]int{
	".exe": 35,
	".dll": 30,
	".scr": 45,
	".bat": 30,
	".cmd": 30,
	".js":  25,
	".vbs": 35,
	".ps1": 30,
	".jar": 20,
}

var documentExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".xlsx": true,
	".txt":  true,
}

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Name() string { return moduleName }

func (m *Module) Execute(_ context.Context, in domain.ModuleInput) domain.ModuleOutput {
	start := time.Now()
	if !in.Complete() {
		return domain.FailedOutput(moduleName, "incomplete module input", time.Since(start).Milliseconds())
	}

	score := 0
	var flags []string
	details := map[string]any{}

	ext := strings.ToLower(filepath.Ext(in.FileName))
	if pts, risky := riskyExtensions[ext]; risky {
		score += pts
		flags = append(flags, "risky_file_type")
		details["extension"] = ext
	}

	// safe_report.pdf.exe and friends.
	if hasDoubleExtension(in.FileName) {
		score += 30
		flags = append(flags, "double_extension")
	}

	// Declared type disagreeing with the extension is a classic masquerade.
	if ext != "" && in.FileType != "" && !typeMatchesExtension(in.FileType, ext) {
		score += 20
		flags = append(flags, "type_extension_mismatch")
		details["declared_type"] = in.FileType
	}

	switch {
	case in.FileSize == 0:
		score += 10
		flags = append(flags, "empty_file")
	case in.FileSize < 512 && !documentExtensions[ext]:
		// Droppers are often tiny.
		score += 10
		flags = append(flags, "unusually_small")
	}

	if strings.Contains(strings.ToLower(in.FileName), "crack") ||
		strings.Contains(strings.ToLower(in.FileName), "keygen") {
		score += 25
		flags = append(flags, "suspicious_name")
	}

	if score > 100 {
		score = 100
	}
	details["heuristic_count"] = len(flags)

	return domain.ModuleOutput{
		ModuleName: moduleName,
		Status:     domain.ModuleCompleted,
		RiskScore:  &score,
		Confidence: 0.8,
		Flags:      flags,
		Details:    details,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func hasDoubleExtension(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	inner := filepath.Ext(base)
	if inner == "" {
		return false
	}
	return documentExtensions[strings.ToLower(inner)]
}

func typeMatchesExtension(declared, ext string) bool {
	declared = strings.ToLower(declared)
	want := strings.TrimPrefix(ext, ".")
	if declared == want {
		return true
	}
	// MIME-style declarations.
	return strings.Contains(declared, want) || declared == fmt.Sprintf("application/%s", want)
}
