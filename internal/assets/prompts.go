// Package assets provides embedded static assets for the application.
//
// Prompt text and report templates are stored as files under prompts/ and
// templates/ and embedded at compile time.
package assets

import (
	_ "embed"
	"strings"
)

// moderationPrompt asks the vision model for a child-safety verdict on one
// image, answered as a JSON object with is_safe, risk_type and description.
//
//go:embed prompts/moderation.txt
var moderationPrompt string

// moderationSystemPrompt is sent as the system instruction by providers that
// support one.
//
//go:embed prompts/moderation-system.txt
var moderationSystemPrompt string

// ReportTemplate is the html/template source for the risk report.
//
//go:embed templates/report.html.tmpl
var ReportTemplate string

// ModerationPrompt returns the per-image moderation instruction.
func ModerationPrompt() string {
	return strings.TrimSpace(moderationPrompt)
}

// ModerationSystemPrompt returns the system instruction for moderation calls.
func ModerationSystemPrompt() string {
	return strings.TrimSpace(moderationSystemPrompt)
}
