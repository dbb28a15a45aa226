package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// titleIndicators are title fragments that mark an anti-automation
// challenge page.
var titleIndicators = []string{
	"captcha",
	"not a robot",
	"unusual traffic",
	"robot check",
	"verification",
}

// challengeMatchers select elements that only appear on challenge pages.
var challengeMatchers = compileAll(
	"#captcha-form",
	".g-recaptcha",
	"form[action*='sorry']",
	"input[name='captcha']",
	"#recaptcha-anchor",
)

// IsBlocked reports whether the rendered page is an anti-automation
// challenge rather than a results page. Checked in order of cheapness:
// final URL, title, then challenge-only DOM elements.
func IsBlocked(title, finalURL string, doc *goquery.Document) bool {
	if strings.Contains(finalURL, "/sorry/") {
		return true
	}

	lower := strings.ToLower(title)
	for _, indicator := range titleIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}

	if doc != nil {
		for _, m := range challengeMatchers {
			if doc.FindMatcher(m).Length() > 0 {
				return true
			}
		}
	}
	return false
}
