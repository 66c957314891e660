package jsonutil

import (
	"errors"
	"testing"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no fences", `  {"a":1}  `, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"inline fence", "```json {\"a\":1} ```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.input); got != tt.want {
				t.Errorf("StripMarkdownFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFirstObject(t *testing.T) {
	got, err := FirstObject(`结果如下 {is_safe: false} 以及 {other: 1}`)
	if err != nil {
		t.Fatalf("FirstObject() error = %v", err)
	}
	if got != `{is_safe: false}` {
		t.Errorf("FirstObject() = %q, want %q", got, `{is_safe: false}`)
	}

	if _, err := FirstObject("no braces here"); !errors.Is(err, ErrNoObject) {
		t.Errorf("FirstObject() error = %v, want ErrNoObject", err)
	}
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single line bare keys",
			input: `{is_safe: false, risk_type: '暴力', description: 'x'}`,
			want:  `{"is_safe": false, "risk_type": "暴力", "description": "x"}`,
		},
		{
			name:  "multi line bare keys",
			input: "{\n  is_safe: true,\n  description: 'ok'\n}",
			want:  "{\n  \"is_safe\": true,\n  \"description\": \"ok\"\n}",
		},
		{
			name:  "already quoted",
			input: `{"is_safe": true}`,
			want:  `{"is_safe": true}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Repair(tt.input); got != tt.want {
				t.Errorf("Repair() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	obj, err := Decode(`{"is_safe": true, "n": 2}`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if obj["is_safe"] != true {
		t.Errorf("is_safe = %v, want true", obj["is_safe"])
	}

	for _, bad := range []string{`{is_safe: true}`, `null`, `[1,2]`} {
		if _, err := Decode(bad); err == nil {
			t.Errorf("Decode(%q) expected error", bad)
		}
	}
}
