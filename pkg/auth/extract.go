package auth

import (
	"net/url"
	"regexp"
	"strings"
)

// Extraction is scraping: the provider exposes the values this package needs
// only inside interactive-login markup, and that markup drifts. Each field is
// therefore read through an ordered chain of extractor functions; the first
// strategy to yield a non-empty value wins, so new heuristics can be appended
// without touching the state machine.

// extractor pulls one field out of a response. Returns "" when the strategy
// does not apply.
type extractor func(tx *transaction, jar *cookieJar) string

func runExtractors(chain []extractor, tx *transaction, jar *cookieJar) string {
	for _, fn := range chain {
		if v := fn(tx, jar); v != "" {
			return v
		}
	}
	return ""
}

var (
	// The login form carries its anti-forgery token as a hidden input.
	csrfFormFieldPattern = regexp.MustCompile(`name="csrf_token"[^>]*value="([^"]+)"`)

	// B2C also embeds the token in the page settings object.
	csrfSettingsPattern = regexp.MustCompile(`"csrf"\s*:\s*"([^"]+)"`)

	// The transaction id threads one login attempt through the provider's
	// multi-page flow; it appears URL-embedded in the page body.
	transIDPattern = regexp.MustCompile(`StateProperties=[A-Za-z0-9_=-]+`)

	// Authorization code fallbacks for responses that render instead of
	// redirecting.
	codeInTextPattern     = regexp.MustCompile(`code=([A-Za-z0-9._-]+)`)
	redirectScriptPattern = regexp.MustCompile(`(?:window\.location(?:\.href)?|location\.replace\()\s*=?\s*['"]([^'"]*code=[^'"]*)['"]`)

	// Explicit failure markers the confirmation page is known to render.
	confirmErrorPattern = regexp.MustCompile(`(?i)error[_ ]?(?:code|description)|"status"\s*:\s*"4\d\d"`)
)

var csrfExtractors = []extractor{
	func(tx *transaction, _ *cookieJar) string {
		if m := csrfFormFieldPattern.FindStringSubmatch(tx.body); m != nil {
			return m[1]
		}
		return ""
	},
	func(tx *transaction, _ *cookieJar) string {
		if m := csrfSettingsPattern.FindStringSubmatch(tx.body); m != nil {
			return m[1]
		}
		return ""
	},
	// Fallback: a cookie whose name carries the CSRF marker
	// (x-ms-cpim-csrf on current B2C deployments).
	func(_ *transaction, jar *cookieJar) string {
		v, _ := jar.find(func(name string) bool {
			return strings.Contains(strings.ToLower(name), "csrf")
		})
		return v
	},
}

var transIDExtractors = []extractor{
	func(tx *transaction, _ *cookieJar) string {
		return transIDPattern.FindString(tx.body)
	},
}

var codeExtractors = []extractor{
	// Preferred: the confirmation step answers with a redirect whose
	// Location carries the code as a query parameter.
	func(tx *transaction, _ *cookieJar) string {
		if tx.location == "" {
			return ""
		}
		u, err := url.Parse(tx.location)
		if err != nil {
			return ""
		}
		return u.Query().Get("code")
	},
	// Some responses render the redirect target in the body instead.
	func(tx *transaction, _ *cookieJar) string {
		if m := codeInTextPattern.FindStringSubmatch(tx.body); m != nil {
			return m[1]
		}
		return ""
	},
	// Last resort: a client-side redirect script assignment.
	func(tx *transaction, _ *cookieJar) string {
		m := redirectScriptPattern.FindStringSubmatch(tx.body)
		if m == nil {
			return ""
		}
		u, err := url.Parse(m[1])
		if err != nil {
			return ""
		}
		return u.Query().Get("code")
	},
}
