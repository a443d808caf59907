package contact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() map[string]any {
	return map[string]any{
		"name":    "John Doe",
		"email":   "john@example.com",
		"message": "Hello, I would like to inquire about your services.",
	}
}

func fieldsOf(errs ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateAcceptsWellFormedSubmission(t *testing.T) {
	s, errs := Validate(validPayload())
	require.Empty(t, errs)
	assert.Equal(t, Submission{
		Name:    "John Doe",
		Email:   "john@example.com",
		Message: "Hello, I would like to inquire about your services.",
	}, s)
}

func TestValidateStripsScriptFromName(t *testing.T) {
	raw := map[string]any{
		"name":    "<script>alert(1)</script>Bob",
		"email":   "bob@example.com",
		"message": "This is a long enough test message.",
	}
	s, errs := Validate(raw)
	require.Empty(t, errs)
	assert.Equal(t, "Bob", s.Name)
}

func TestValidateMissingEmail(t *testing.T) {
	raw := validPayload()
	delete(raw, "email")

	_, errs := Validate(raw)
	require.Len(t, errs, 1)
	assert.Equal(t, "email", errs[0].Field)
	assert.Equal(t, "Email is required", errs[0].Message)
}

func TestValidateShortMessage(t *testing.T) {
	for _, msg := range []string{"", "hi", "   too short   ", "123456789"} {
		t.Run(msg, func(t *testing.T) {
			raw := validPayload()
			raw["message"] = msg

			s, errs := Validate(raw)
			assert.Equal(t, Submission{}, s)
			assert.Contains(t, fieldsOf(errs), "message")
		})
	}
}

func TestValidateRejectsMarkupOnlyMessage(t *testing.T) {
	for _, msg := range []string{
		"<script>stealCookies()</script>",
		"<p></p><p></p><p></p>hi",
		"&lt;b&gt;&lt;/b&gt;&lt;i&gt;&lt;/i&gt; ok",
	} {
		t.Run(msg, func(t *testing.T) {
			raw := validPayload()
			raw["message"] = msg

			s, errs := Validate(raw)
			assert.Equal(t, Submission{}, s)
			require.Len(t, errs, 1)
			assert.Equal(t, "message", errs[0].Field)
			assert.Equal(t, "Message must be at least 10 characters long", errs[0].Message)
		})
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	raw := map[string]any{
		"name":    "R2-D2",
		"email":   "not-an-email",
		"subject": strings.Repeat("s", 201),
		"message": strings.Repeat("m", 5001),
	}

	_, errs := Validate(raw)
	assert.Equal(t, []string{"name", "email", "subject", "message"}, fieldsOf(errs))
	assert.Equal(t, "Message must be less than 5000 characters", errs[3].Message)
}

func TestValidateFieldLimits(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
		want  bool
	}{
		{"name at limit", "name", strings.Repeat("a", 100), true},
		{"name over limit", "name", strings.Repeat("a", 101), false},
		{"name with accented letter", "name", "Seán O'Neil", false},
		{"name with hyphen", "name", "Mary-Jane O'Neil Jr.", true},
		{"name blank", "name", "   ", false},
		{"name not a string", "name", 42, false},
		{"email too long", "email", strings.Repeat("a", 64) + "@" + strings.Repeat("b", 63) + "." + strings.Repeat("c", 63) + "." + strings.Repeat("d", 63) + ".com", false},
		{"email plus tag", "email", "jane+site@example.co.uk", true},
		{"email without domain", "email", "jane@", false},
		{"subject at limit", "subject", strings.Repeat("s", 200), true},
		{"subject not a string is ignored", "subject", true, true},
		{"message at limit", "message", strings.Repeat("m", 5000), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validPayload()
			raw[tt.field] = tt.value

			_, errs := Validate(raw)
			if tt.want {
				assert.Empty(t, errs)
			} else {
				assert.Contains(t, fieldsOf(errs), tt.field)
			}
		})
	}
}

func TestValidateRejectsNonObject(t *testing.T) {
	for _, raw := range []any{nil, "text", []any{"a"}, 12.5} {
		_, errs := Validate(raw)
		require.Len(t, errs, 1)
		assert.Equal(t, "form", errs[0].Field)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []Submission{
		{Name: "  Bob  ", Email: " bob@example.com ", Message: "plain text message"},
		{Name: "Bob", Email: "b@example.com", Subject: "&lt;b&gt;bold&lt;/b&gt;", Message: "a &amp;lt;i&amp;gt; b"},
		{Name: "Al", Email: "a@example.com", Message: "<p>Hi <b>there</b></p> &quot;quoted&quot; &#x27;single&#x27;"},
		{Name: "Al", Email: "a@example.com", Message: "x <SCRIPT type=\"text/javascript\">steal()</SCRIPT> y"},
		{Name: "Al", Email: "a@example.com", Message: "I <3 Go & tags like <this"},
	}

	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %+v", in)
	}
}

func TestSanitizeText(t *testing.T) {
	tests := map[string]string{
		"<script>alert(1)</script>Bob":           "Bob",
		"<b>bold</b> move":                       "bold move",
		"&quot;hi&quot; &#x27;there&#x27;":       `"hi" 'there'`,
		"&lt;b&gt;decoded tags go too&lt;/b&gt;": "decoded tags go too",
		"  padded  ":                             "padded",
		"fish &amp; chips":                       "fish & chips",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeText(in), "input %q", in)
	}
}
