package classify

import (
	"errors"
	"strings"
)

// Categorize returns the category of a provider failure. Typed
// *ProviderError values carry their own category; anything else is matched
// on its message.
func Categorize(err error) Category {
	if err == nil {
		return CategoryOther
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return categorizeMessage(err.Error())
}

// categorizeMessage is the fallback for errors without a status code, such as
// wrapped transport errors that still carry the provider's payload text.
func categorizeMessage(msg string) Category {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "insufficient_quota", "billing", "欠费", "arrears", "余额不足", "\"1113\""):
		return CategoryBilling
	case containsAny(lower, "content_policy", "content_filter", "1301", "不安全或敏感", "prohibited_content"):
		return CategoryContentRejected
	case containsAny(lower, "429", "rate limit", "too many requests", "resource exhausted", "resource_exhausted", "并发"):
		return CategoryRateLimited
	default:
		return CategoryOther
	}
}

// categorizeZhipu maps a Zhipu (BigModel) API error. Zhipu returns HTTP 429
// both for rate limiting and for an account in arrears (business code 1113),
// and HTTP 400 when its content filter rejects the input.
func categorizeZhipu(status int, code, message string) Category {
	switch {
	case code == "1113":
		return CategoryBilling
	case status == 429:
		return CategoryRateLimited
	case status == 400 || code == "1301":
		return CategoryContentRejected
	default:
		return categorizeMessage(message)
	}
}

// categorizeOpenAI maps an OpenAI API error.
func categorizeOpenAI(status int, code, message string) Category {
	switch {
	case code == "insufficient_quota" || code == "billing_hard_limit_reached":
		return CategoryBilling
	case status == 429:
		return CategoryRateLimited
	case status == 400 && (code == "content_policy_violation" || code == "content_filter"):
		return CategoryContentRejected
	case status >= 500:
		return CategoryOther
	default:
		return categorizeMessage(message)
	}
}

// categorizeGemini maps a Gemini API error. Quota exhaustion and rate
// limiting share HTTP 429 and RESOURCE_EXHAUSTED, so billing is detected from
// the message.
func categorizeGemini(code int, status, message string) Category {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "billing", "prepayment", "credits are depleted"):
		return CategoryBilling
	case code == 429 || status == "RESOURCE_EXHAUSTED":
		return CategoryRateLimited
	case code == 400 && containsAny(lower, "safety", "blocked", "prohibited"):
		return CategoryContentRejected
	default:
		return CategoryOther
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
