package extract

import (
	"regexp"
	"strings"
)

// phoneRe matches phone numbers as they appear in result snippets:
// an international prefix followed by grouped digits, the French
// 0X XX XX XX XX shape, or the US (XXX) XXX-XXXX shape.
var phoneRe = regexp.MustCompile(
	`(?:(?:\+|00)\d{1,3}[\s\-.]?|0\d[\s\-.]?)(?:[\s\-.]?\d{2,3}){4}` +
		`|0\d[\s\-]?\d{2}[\s\-]?\d{2}[\s\-]?\d{2}[\s\-]?\d{2}` +
		`|\(\d{3}\)[\s\-]?\d{3}[\s\-]?\d{4}`,
)

// FindPhone returns the first plausible phone number in text, in the form it
// appears on the page (separators preserved). Matches whose digit count
// falls outside 8-15 are rejected as false positives (dates, prices, ids).
func FindPhone(text string) string {
	for _, match := range phoneRe.FindAllString(text, -1) {
		if n := len(NormalizePhone(match)); n >= 8 && n <= 15 {
			return strings.TrimSpace(match)
		}
	}
	return ""
}

// NormalizePhone strips everything but digits and a leading plus, mapping a
// 00 international prefix to +. Used for validation and duplicate checks,
// never for storage.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}
	return cleaned
}
