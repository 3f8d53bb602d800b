package assist

import "regexp"

// Placeholders substituted for sensitive spans.
const (
	PlaceholderIBAN       = "[IBAN]"
	PlaceholderPhone      = "[PHONE]"
	PlaceholderNationalID = "[NATIONAL_ID]"
	PlaceholderAccount    = "[ACCOUNT]"
)

// MaskRule replaces every match of Pattern with Placeholder.
type MaskRule struct {
	Name        string
	Pattern     *regexp.Regexp
	Placeholder string
}

// Masker removes personal data from transcript text before it leaves the
// process. Rules are applied in order, so broader patterns come last.
type Masker struct {
	rules []MaskRule
}

// NewMasker creates a masker with the given rules. With no rules it uses
// DefaultMaskRules.
func NewMasker(rules ...MaskRule) *Masker {
	if len(rules) == 0 {
		rules = DefaultMaskRules()
	}
	return &Masker{rules: rules}
}

// DefaultMaskRules covers IBANs, phone numbers, 9-digit national ID numbers
// (BSN, plain or dotted) and remaining long digit runs such as bank account
// or card numbers.
func DefaultMaskRules() []MaskRule {
	return []MaskRule{
		{
			Name:        "iban",
			Pattern:     regexp.MustCompile(`\b[A-Za-z]{2}\d{2}[ ]?[A-Za-z0-9]{4}(?:[ ]?\d{4}){1,7}(?:[ ]?\d{1,3})?\b`),
			Placeholder: PlaceholderIBAN,
		},
		{
			Name:        "phone",
			Pattern:     regexp.MustCompile(`(?:\+\d{1,3}|\b00\d{1,3})[ -]?(?:\(0\)[ -]?)?\d(?:[ -]?\d){7,10}\b|\b0\d(?:[ -]?\d){8}\b`),
			Placeholder: PlaceholderPhone,
		},
		{
			Name:        "national_id",
			Pattern:     regexp.MustCompile(`\b\d{9}\b|\b\d{4}\.\d{2}\.\d{3}\b`),
			Placeholder: PlaceholderNationalID,
		},
		{
			Name:        "account",
			Pattern:     regexp.MustCompile(`\b\d(?:[ .-]?\d){9,18}\b`),
			Placeholder: PlaceholderAccount,
		},
	}
}

// Mask returns text with every sensitive span replaced by its placeholder.
func (m *Masker) Mask(text string) string {
	for _, rule := range m.rules {
		text = rule.Pattern.ReplaceAllLiteralString(text, rule.Placeholder)
	}
	return text
}
