package privacy

import (
	"regexp"
	"strings"
)

// defaultKeywords are markers of credential and identity forms.
var defaultKeywords = []string{
	"password",
	"passwd",
	"passphrase",
	"username",
	"login",
	"pin",
	"token",
	"secret",
	"confirm password",
	"current password",
	"new password",
	"one-time code",
	"verification code",
	"security code",
	"cvv",
	"cvc",
	"credit card",
	"debit card",
	"card number",
	"bank account",
	"routing number",
	"iban",
	"social security",
	"ssn",
	"driver license",
	"passport",
	"id number",
	"employee id",
	"api key",
	"secret key",
	"private key",
	"recovery phrase",
	"seed phrase",
}

// keywordPattern matches kw as whole words, case-insensitively, with any
// run of spaces, hyphens or underscores between its words.
func keywordPattern(kw string) (*regexp.Regexp, error) {
	words := strings.Fields(strings.ToLower(kw))
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.Compile(`(?i)\b` + strings.Join(words, `[\s_-]+`) + `\b`)
}

var (
	ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	// digit groups separated by single spaces or hyphens
	digitRun = regexp.MustCompile(`\b\d+(?:[ -]\d+)*\b`)
)

// containsCardNumber reports a Luhn-valid card-like number. Within each run
// of digit groups every span of whole groups holding 13 to 19 digits is
// checked, so a card next to another number is still found.
func containsCardNumber(text string) bool {
	for _, run := range digitRun.FindAllString(text, -1) {
		groups := strings.FieldsFunc(run, func(r rune) bool { return r == ' ' || r == '-' })
		for i := range groups {
			digits := make([]byte, 0, 19)
			for _, g := range groups[i:] {
				digits = append(digits, g...)
				if len(digits) > 19 {
					break
				}
				if len(digits) >= 13 && luhnValid(digits) {
					return true
				}
			}
		}
	}
	return false
}

func luhnValid(digits []byte) bool {
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
