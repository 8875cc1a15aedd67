package service

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mairble/mairble-backend-go/internal/domain"
)

const (
	analysisMaxTokens   = 256
	analysisTemperature = 0.7
)

// Insight tags for results not produced by a clean model answer.
const (
	TagParsingIssue       = "Parsing Issue"
	TagParseFailed        = "Parse Failed"
	TagAnalysisError      = "Analysis Error"
	TagOverpriced         = "Overpriced vs Market"
	TagRevenueOpportunity = "Revenue Opportunity"
	TagMarketAligned      = "Market Aligned"
	TagFallbackAnalysis   = "Fallback Analysis"
)

var (
	codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

	embeddedObjects = []*regexp.Regexp{
		regexp.MustCompile(`\{[^{}]*"suggested_price"[^{}]*\}`),
		regexp.MustCompile(`(?s)\{.*?"suggested_price".*?\}`),
		regexp.MustCompile(`(?s)\{.*\}`),
	}

	fieldPrice       = regexp.MustCompile(`suggested_price["\s:]*(\d+(?:\.\d+)?)`)
	fieldConfidence  = regexp.MustCompile(`confidence["\s:]*(\d+)`)
	fieldExplanation = regexp.MustCompile(`explanation["\s:]*["']([^"']+)["']`)
	fieldInsightTag  = regexp.MustCompile(`insight_tag["\s:]*["']([^"']+)["']`)
)

// parseAnalysis extracts the recommendation fields from a model answer.
// Strict JSON is tried first, then JSON objects embedded in prose, then
// individual fields. The map always holds the four recommendation keys
// when a non-empty object was recovered.
func parseAnalysis(content string) map[string]any {
	clean := strings.TrimSpace(content)
	if m := codeFence.FindStringSubmatch(clean); m != nil {
		clean = m[1]
	}

	if obj, ok := decodeObject(clean); ok {
		return nonEmptyOr(obj, clean)
	}

	for _, re := range embeddedObjects {
		for _, match := range re.FindAllString(clean, -1) {
			if obj, ok := decodeObject(match); ok {
				return nonEmptyOr(obj, clean)
			}
		}
	}

	out := map[string]any{
		"suggested_price": nil,
		"confidence":      nil,
		"explanation":     nil,
		"insight_tag":     TagParsingIssue,
	}
	if m := fieldPrice.FindStringSubmatch(clean); m != nil {
		out["suggested_price"] = m[1]
	}
	if m := fieldConfidence.FindStringSubmatch(clean); m != nil {
		out["confidence"] = m[1]
	}
	if m := fieldExplanation.FindStringSubmatch(clean); m != nil {
		out["explanation"] = m[1]
	} else {
		out["explanation"] = truncateRunes(clean, 100)
	}
	if m := fieldInsightTag.FindStringSubmatch(clean); m != nil {
		out["insight_tag"] = m[1]
	}
	return out
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func nonEmptyOr(obj map[string]any, content string) map[string]any {
	if len(obj) > 0 {
		return obj
	}
	return map[string]any{
		"suggested_price": nil,
		"confidence":      nil,
		"explanation":     content,
		"insight_tag":     TagParseFailed,
	}
}

// resultFromContent turns a model answer into a PricingResult. Fields that
// cannot be coerced yield the "Analysis Error" result holding the current
// price.
func resultFromContent(night domain.NightData, content string) domain.PricingResult {
	parsed := parseAnalysis(content)

	res, err := coerceResult(night.Date, parsed)
	if err != nil {
		conf := 50
		return domain.PricingResult{
			Date:           night.Date,
			SuggestedPrice: night.YourPrice,
			Confidence:     &conf,
			Explanation:    strPtr("Analysis unavailable due to validation error: " + err.Error()),
			InsightTag:     strPtr(TagAnalysisError),
		}
	}
	return res
}

func coerceResult(date string, parsed map[string]any) (domain.PricingResult, error) {
	res := domain.PricingResult{Date: date}
	var err error

	if res.SuggestedPrice, err = toFloat(parsed["suggested_price"]); err != nil {
		return res, fmt.Errorf("suggested_price: %w", err)
	}
	if res.Confidence, err = toInt(parsed["confidence"]); err != nil {
		return res, fmt.Errorf("confidence: %w", err)
	}
	if res.Explanation, err = toString(parsed["explanation"]); err != nil {
		return res, fmt.Errorf("explanation: %w", err)
	}
	if res.InsightTag, err = toString(parsed["insight_tag"]); err != nil {
		return res, fmt.Errorf("insight_tag: %w", err)
	}
	return res, nil
}

// toFloat accepts JSON numbers and price strings such as "$1,234.50".
func toFloat(v any) (*float64, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &x, nil
	case string:
		s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(x)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", x)
		}
		return &f, nil
	default:
		return nil, nil
	}
}

// toInt accepts whole JSON numbers and digit strings.
func toInt(v any) (*int, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if x != math.Trunc(x) {
			return nil, nil
		}
		n := int(x)
		return &n, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", x)
		}
		return &n, nil
	default:
		return nil, nil
	}
}

func toString(v any) (*string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &x, nil
	default:
		return nil, fmt.Errorf("expected string, got %T", v)
	}
}

// RuleBasedAnalysis recommends a price from the gap between the host's
// price and the market average. It stands in when the LLM call fails.
func RuleBasedAnalysis(night domain.NightData) domain.PricingResult {
	res := domain.PricingResult{Date: night.Date}

	if night.YourPrice == nil || night.MarketAvgPrice == nil || *night.YourPrice == 0 || *night.MarketAvgPrice == 0 {
		res.SuggestedPrice = night.YourPrice
		res.Confidence = intPtr(50)
		res.Explanation = strPtr("OpenAI analysis unavailable. Consider market conditions and demand when pricing.")
		res.InsightTag = strPtr(TagFallbackAnalysis)
		return res
	}

	price, market := *night.YourPrice, *night.MarketAvgPrice
	gap := (price - market) / market * 100

	switch {
	case gap > 50:
		suggested := round2(market * 1.15)
		res.SuggestedPrice = &suggested
		res.Confidence = intPtr(85)
		res.Explanation = strPtr(fmt.Sprintf("Your price is %.0f%% above market. Suggest lowering to $%.0f for better booking chances.", gap, suggested))
		res.InsightTag = strPtr(TagOverpriced)
	case gap < -10:
		suggested := round2(market * 1.1)
		res.SuggestedPrice = &suggested
		res.Confidence = intPtr(80)
		res.Explanation = strPtr(fmt.Sprintf("You're underpricing by %.0f%%. Consider raising to $%.0f to capture more revenue.", math.Abs(gap), suggested))
		res.InsightTag = strPtr(TagRevenueOpportunity)
	default:
		res.SuggestedPrice = &price
		res.Confidence = intPtr(75)
		res.Explanation = strPtr(fmt.Sprintf("Your pricing is competitive vs market average of $%.0f. Hold steady.", market))
		res.InsightTag = strPtr(TagMarketAligned)
	}
	return res
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
