package reference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Graph theory", "Graph theory"},
		{"double quote", `On "Graphs"`, `On \"Graphs\"`},
		{"single quote", "Erdős's lemma", `Erdős\'s lemma`},
		{"backslash", `a\b`, `a\\b`},
		{"all three", `"\'`, `\"\\\'`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitize_OneEscapePerCharacter(t *testing.T) {
	in := `title with " and \ inside`
	out := Sanitize(in)

	assert.Equal(t, 1, strings.Count(out, `\"`))
	assert.Equal(t, 1, strings.Count(out, `\\`))
	assert.Equal(t, len(in)+2, len(out))
}

func TestUnsanitize_RoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		`On "Graphs"`,
		`C:\path\to\file`,
		`\"`,
		`\\\\`,
		`it's "quoted" \ mixed '`,
		`trailing backslash \`,
	}
	for _, in := range inputs {
		assert.Equal(t, in, Unsanitize(Sanitize(in)), "round trip of %q", in)
	}
}

func TestSanitize_NotIdempotent(t *testing.T) {
	once := Sanitize(`a\b "c"`)
	twice := Sanitize(once)

	assert.NotEqual(t, once, twice)
	assert.Equal(t, once, Unsanitize(twice))
	assert.Equal(t, "plain", Sanitize(Sanitize("plain")))
}
