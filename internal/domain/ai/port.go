package ai

import "context"

// Attachment is a binary file sent inline alongside a prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Request is a single gateway invocation. MaxAttempts is caller-supplied since
// different stages tolerate different budgets (a health probe uses 1).
type Request struct {
	Prompt      string
	Attachment  *Attachment
	MaxAttempts int
}

// Generator port for the AI provider gateway.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Fallback produces deterministic placeholder content for a stage when the
// provider is unavailable. Pure, synchronous, never fails.
type Fallback interface {
	Generate(stageName, fileLabel, mediaKind, jobDescription string) string
}
