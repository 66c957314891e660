package classify

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"typed provider error", &ProviderError{Category: CategoryBilling}, CategoryBilling},
		{"wrapped provider error", fmt.Errorf("call: %w", &ProviderError{Category: CategoryRateLimited}), CategoryRateLimited},
		{"http 429 text", errors.New("POST /chat/completions: 429 Too Many Requests"), CategoryRateLimited},
		{"arrears text", errors.New(`{"error":{"code":"1113","message":"您的账户已欠费，请充值后重试。"}}`), CategoryBilling},
		{"content filter text", errors.New(`{"error":{"code":"1301","message":"系统检测到输入或生成内容可能包含不安全或敏感内容"}}`), CategoryContentRejected},
		{"network", errors.New("dial tcp: i/o timeout"), CategoryOther},
		{"nil", nil, CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.want {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategorizeZhipu(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   Category
	}{
		{429, "1113", CategoryBilling},
		{429, "1302", CategoryRateLimited},
		{429, "1305", CategoryRateLimited},
		{400, "1301", CategoryContentRejected},
		{400, "1214", CategoryContentRejected},
		{500, "500", CategoryOther},
	}
	for _, tt := range tests {
		if got := categorizeZhipu(tt.status, tt.code, ""); got != tt.want {
			t.Errorf("categorizeZhipu(%d, %s) = %v, want %v", tt.status, tt.code, got, tt.want)
		}
	}
}

func TestCategorizeOpenAI(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   Category
	}{
		{429, "insufficient_quota", CategoryBilling},
		{429, "rate_limit_exceeded", CategoryRateLimited},
		{400, "content_policy_violation", CategoryContentRejected},
		{400, "invalid_image_format", CategoryOther},
		{503, "", CategoryOther},
	}
	for _, tt := range tests {
		if got := categorizeOpenAI(tt.status, tt.code, ""); got != tt.want {
			t.Errorf("categorizeOpenAI(%d, %s) = %v, want %v", tt.status, tt.code, got, tt.want)
		}
	}
}

func TestCategorizeGemini(t *testing.T) {
	tests := []struct {
		code    int
		status  string
		message string
		want    Category
	}{
		{429, "RESOURCE_EXHAUSTED", "Your prepayment credits are depleted.", CategoryBilling},
		{429, "RESOURCE_EXHAUSTED", "Quota exceeded for metric generate_content_requests", CategoryRateLimited},
		{400, "INVALID_ARGUMENT", "Request blocked for safety reasons", CategoryContentRejected},
		{400, "INVALID_ARGUMENT", "Unsupported MIME type", CategoryOther},
		{500, "INTERNAL", "internal error", CategoryOther},
	}
	for _, tt := range tests {
		if got := categorizeGemini(tt.code, tt.status, tt.message); got != tt.want {
			t.Errorf("categorizeGemini(%d, %q) = %v, want %v", tt.code, tt.message, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewZhipu("", ""), NewOpenAI("sk-test", "", ""), NewGemini("", ""))

	names := []string{}
	for _, p := range r.List() {
		names = append(names, p.Name())
	}
	want := []string{"gemini", "openai", "zhipu"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("List() names = %v, want %v", names, want)
	}

	p, err := r.Get("openai")
	if err != nil {
		t.Fatalf("Get(openai) error = %v", err)
	}
	if !p.IsConfigured() {
		t.Error("openai IsConfigured() = false, want true")
	}
	z, _ := r.Get("zhipu")
	if z.IsConfigured() {
		t.Error("zhipu IsConfigured() = true without key")
	}
	if _, err := r.Get("nope"); err == nil {
		t.Error("Get(nope) expected error")
	}
}
