// Package jsonutil provides utilities for extracting and repairing JSON from
// vision model responses that may be wrapped in markdown code fences, embedded
// in prose, or written in a loose JavaScript-like object syntax.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoObject is returned when text contains no brace-delimited substring.
var ErrNoObject = errors.New("no JSON object found")

var (
	openFence  = regexp.MustCompile("```(?:json|JSON)?\\s*")
	closeFence = regexp.MustCompile("```\\s*$")
	firstObj   = regexp.MustCompile(`(?s)\{.*?\}`)
	bareKey    = regexp.MustCompile(`(?m)(^|[{,])(\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// StripMarkdownFences removes ```json ... ``` or ``` ... ``` markers from text
// and trims surrounding whitespace. Text without fences is returned trimmed.
func StripMarkdownFences(text string) string {
	text = openFence.ReplaceAllString(text, "")
	text = closeFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// FirstObject returns the first brace-delimited substring of text. The match is
// non-greedy, so for nested objects only the innermost leading span is returned.
func FirstObject(text string) (string, error) {
	m := firstObj.FindString(text)
	if m == "" {
		return "", ErrNoObject
	}
	return m, nil
}

// Repair quotes bare object keys and converts single quotes to double quotes,
// turning {is_safe: false, risk_type: '暴力'} into valid JSON.
func Repair(obj string) string {
	obj = bareKey.ReplaceAllString(obj, `$1$2"$3":`)
	return strings.ReplaceAll(obj, "'", `"`)
}

// Decode unmarshals strict JSON into a generic object.
func Decode(text string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		preview := text
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return nil, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	if out == nil {
		return nil, fmt.Errorf("invalid JSON: not an object (text: %s)", text)
	}
	return out, nil
}
