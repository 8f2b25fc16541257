// Package aianalyst implements an optional analysis provider that asks an
// LLM for a second opinion on the file descriptor. It is registered only
// when an API key is configured.
package aianalyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
)

const moduleName = "ai_analyst"

const maxTokens = 1024

const systemPrompt = `You are a malware triage analyst. Given a file descriptor
(hash, name, size, declared type) respond ONLY with a JSON object:
{"risk_score": <int 0-100>, "confidence": <float 0-1>, "flags": [<short indicator strings>], "summary": "<one sentence>"}.
Base your assessment on naming, type, and size patterns; never claim to have
inspected file content.`

type Module struct {
	client *openai.Client
	model  string
}

func New(apiKey, model string) *Module {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Module{client: openai.NewClient(apiKey), model: model}
}

func (m *Module) Name() string { return moduleName }

type assessment struct {
	RiskScore  int      `json:"risk_score"`
	Confidence float64  `json:"confidence"`
	Flags      []string `json:"flags"`
	Summary    string   `json:"summary"`
}

func (m *Module) Execute(ctx context.Context, in domain.ModuleInput) domain.ModuleOutput {
	start := time.Now()
	if !in.Complete() {
		return domain.FailedOutput(moduleName, "incomplete module input", time.Since(start).Milliseconds())
	}

	req := openai.ChatCompletionRequest{
		Model: m.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(in)},
		},
	}
	// Reasoning models take MaxCompletionTokens instead of MaxTokens.
	if strings.HasPrefix(m.model, "o1") || strings.HasPrefix(m.model, "o3") || strings.HasPrefix(m.model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.FailedOutput(moduleName, fmt.Sprintf("chat completion: %v", err), time.Since(start).Milliseconds())
	}
	if len(resp.Choices) == 0 {
		return domain.FailedOutput(moduleName, "empty completion", time.Since(start).Milliseconds())
	}

	var a assessment
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &a); err != nil {
		return domain.FailedOutput(moduleName, fmt.Sprintf("unparseable assessment: %v", err), time.Since(start).Milliseconds())
	}
	if a.RiskScore < 0 {
		a.RiskScore = 0
	}
	if a.RiskScore > 100 {
		a.RiskScore = 100
	}

	return domain.ModuleOutput{
		ModuleName: moduleName,
		Status:     domain.ModuleCompleted,
		RiskScore:  &a.RiskScore,
		Confidence: a.Confidence,
		Flags:      a.Flags,
		Details: map[string]any{
			"summary": a.Summary,
			"model":   m.model,
		},
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func userPrompt(in domain.ModuleInput) string {
	return fmt.Sprintf("hash=%s name=%q size=%d type=%s", in.FileHash, in.FileName, in.FileSize, in.FileType)
}
