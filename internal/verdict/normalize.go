package verdict

import (
	"fmt"
	"strings"

	"github.com/fpang/video-screen/internal/jsonutil"
	"github.com/rs/zerolog/log"
)

// Placeholder values filled in when the model leaves a field empty.
const (
	UnknownRisk      = "未知风险"
	KeywordRisk      = "未知"
	NoDetails        = "无详细说明"
	PotentialRisk    = "检测到潜在风险"
	SentinelRiskType = "敏感内容"
	SentinelDetails  = "系统检测到可能的敏感内容"
)

// riskKeywords flag free text as unsafe when no JSON object is present.
var riskKeywords = []string{
	"不安全", "风险", "危险", "暴力", "恐怖", "血腥", "敏感", "不适", "违规", "违法",
	"unsafe", "violence", "violent", "terror", "gore", "sensitive", "illegal", "inappropriate", "danger", "risk",
}

var truthy = map[string]bool{"true": true, "1": true, "yes": true, "安全": true}

var noneMarkers = map[string]bool{"无": true, "none": true, "": true}

// Normalize converts raw model output into a Verdict. It never fails; when the
// text cannot be understood as structured data it falls back to a keyword scan.
//
// Layers, each tried only if the previous one fails:
//  1. strip code fences and parse strict JSON
//  2. take the first brace-delimited span, quote bare keys, swap single quotes, parse
//  3. keyword scan of the text
func Normalize(raw string) Verdict {
	text := jsonutil.StripMarkdownFences(raw)

	fields, err := jsonutil.Decode(text)
	if err != nil {
		fields = repairObject(text)
	}
	if fields == nil {
		return fromKeywords(text)
	}
	return fromFields(fields)
}

// NormalizeSafe is Normalize with panic recovery, for callers that must map an
// unexpected normalizer fault to a failed analysis instead of crashing.
func NormalizeSafe(raw string) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalize panicked: %v", r)
		}
	}()
	return Normalize(raw), nil
}

// Sentinel is the synthesized unsafe verdict returned when the classifier
// refuses to process an image.
func Sentinel() Verdict {
	return Verdict{IsSafe: false, RiskType: SentinelRiskType, Description: SentinelDetails}
}

func repairObject(text string) map[string]any {
	obj, err := jsonutil.FirstObject(text)
	if err != nil {
		return nil
	}
	fields, err := jsonutil.Decode(jsonutil.Repair(obj))
	if err != nil {
		log.Debug().Err(err).Msg("Could not repair model output, using keyword scan")
		return nil
	}
	return fields
}

func fromKeywords(text string) Verdict {
	lower := strings.ToLower(text)
	for _, kw := range riskKeywords {
		if strings.Contains(lower, kw) {
			return fill(Verdict{IsSafe: false, RiskType: KeywordRisk, Description: strings.TrimSpace(text)})
		}
	}
	return fill(Verdict{IsSafe: true, Description: strings.TrimSpace(text)})
}

func fromFields(fields map[string]any) Verdict {
	v := Verdict{
		IsSafe:      parseSafe(fields["is_safe"]),
		RiskType:    stringField(fields["risk_type"]),
		Description: stringField(fields["description"]),
	}
	return fill(v)
}

func fill(v Verdict) Verdict {
	if noneMarkers[strings.ToLower(strings.TrimSpace(v.RiskType))] {
		v.RiskType = ""
	}
	if !v.IsSafe && strings.TrimSpace(v.RiskType) == "" {
		v.RiskType = UnknownRisk
	}
	if strings.TrimSpace(v.Description) == "" {
		if v.IsSafe {
			v.Description = NoDetails
		} else {
			v.Description = PotentialRisk
		}
	}
	return v
}

func parseSafe(val any) bool {
	switch x := val.(type) {
	case nil:
		return true
	case bool:
		return x
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(x))]
	case float64:
		return x != 0
	default:
		return true
	}
}

func stringField(val any) string {
	switch x := val.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
