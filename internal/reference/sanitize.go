package reference

import "strings"

var (
	sanitizer = strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		`'`, `\'`,
	)
	unsanitizer = strings.NewReplacer(
		`\\`, `\`,
		`\"`, `"`,
		`\'`, `'`,
	)
)

// Sanitize escapes backslashes, double quotes and single quotes so the value
// can be embedded literally in a quoted query string. Each such character
// gains exactly one escape. Apply it once per value: it is not idempotent,
// Sanitize(Sanitize(s)) != Sanitize(s) whenever s contains any of them.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

// Unsanitize reverses Sanitize, recovering the visible text.
func Unsanitize(s string) string {
	return unsanitizer.Replace(s)
}
