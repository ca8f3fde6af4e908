package journey

// Comparison summarizes the conversions of a rule-based and a transformer
// journey for the same customer.
type Comparison struct {
	RuleConversions        int     `json:"rule_conversions"`
	TransformerConversions int     `json:"transformer_conversions"`
	ImprovementPct         float64 `json:"improvement_pct"`
	RuleSteps              int     `json:"rule_steps"`
	TransformerSteps       int     `json:"transformer_steps"`
}

// Compare counts conversions in both journeys and computes the relative
// improvement of the transformer over the rule-based journey. The
// denominator is floored at 1, so zero rule-based conversions yield
// transformer conversions * 100 rather than an undefined percentage.
func Compare(rule, transformer Journey) Comparison {
	r := rule.Conversions()
	t := transformer.Conversions()
	return Comparison{
		RuleConversions:        r,
		TransformerConversions: t,
		ImprovementPct:         ImprovementPct(r, t),
		RuleSteps:              rule.Len(),
		TransformerSteps:       transformer.Len(),
	}
}

// ImprovementPct is (transformer - rule) / max(rule, 1) * 100.
func ImprovementPct(rule, transformer int) float64 {
	denom := rule
	if denom < 1 {
		denom = 1
	}
	return float64(transformer-rule) / float64(denom) * 100
}
