package contact

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	nameRegex  = regexp.MustCompile(`^[a-zA-Z\s\-'.]+$`)
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

	scriptBlockRegex = regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)
	tagRegex         = regexp.MustCompile(`<[^>]+>`)

	entityReplacements = [][2]string{
		{"&lt;", "<"},
		{"&gt;", ">"},
		{"&quot;", `"`},
		{"&#x27;", "'"},
		{"&amp;", "&"},
	}
)

const minMessageLength = 10

// Submission is a validated, markup-free contact form entry.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

// submissionInput is the typed view of the raw payload that the rules run on.
type submissionInput struct {
	Name    string `json:"name" validate:"required,max=100,personname"`
	Email   string `json:"email" validate:"required,contactemail,max=254"`
	Subject string `json:"subject" validate:"max=200"`
	Message string `json:"message" validate:"required,mintrimmed=10,max=5000"`
}

var fieldMessages = map[string]string{
	"name.required":      "Name is required",
	"name.max":           "Name contains invalid characters or is too long",
	"name.personname":    "Name contains invalid characters or is too long",
	"email.required":     "Email is required",
	"email.contactemail": "Please provide a valid email address",
	"email.max":          "Email must be less than 254 characters",
	"subject.max":        "Subject must be less than 200 characters",
	"message.required":   "Message is required",
	"message.mintrimmed": "Message must be at least 10 characters long",
	"message.max":        "Message must be less than 5000 characters",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	mustRegister(v, "personname", func(fl validator.FieldLevel) bool {
		// The character class applies to what will actually be kept.
		n := sanitizeText(fl.Field().String())
		return n != "" && nameRegex.MatchString(n)
	})
	mustRegister(v, "contactemail", func(fl validator.FieldLevel) bool {
		return emailRegex.MatchString(fl.Field().String())
	})
	mustRegister(v, "mintrimmed", func(fl validator.FieldLevel) bool {
		// Markup-only text counts as empty.
		return utf8.RuneCountInString(sanitizeText(fl.Field().String())) >= minMessageLength
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// Validate checks a decoded JSON payload against every field rule and returns
// either a sanitized Submission or the full list of violations.
func Validate(raw any) (Submission, ValidationErrors) {
	fields, ok := raw.(map[string]any)
	if !ok || fields == nil {
		return Submission{}, ValidationErrors{{Field: "form", Message: "Invalid form data"}}
	}

	in := submissionInput{
		Name:    stringField(fields, "name"),
		Email:   stringField(fields, "email"),
		Subject: stringField(fields, "subject"),
		Message: stringField(fields, "message"),
	}

	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Submission{}, ValidationErrors{{Field: "form", Message: "Invalid form data"}}
		}
		out := make(ValidationErrors, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Field:   fe.Field(),
				Message: messageFor(fe.Field(), fe.Tag()),
			})
		}
		return Submission{}, out
	}

	return Sanitize(Submission{
		Name:    in.Name,
		Email:   in.Email,
		Subject: in.Subject,
		Message: in.Message,
	}), nil
}

// stringField treats a non-string value the same as an absent one.
func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func messageFor(field, tag string) string {
	if msg, ok := fieldMessages[field+"."+tag]; ok {
		return msg
	}
	return "Invalid value"
}

// Sanitize strips markup from every field. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s Submission) Submission {
	return Submission{
		Name:    sanitizeText(s.Name),
		Email:   sanitizeText(s.Email),
		Subject: sanitizeText(s.Subject),
		Message: sanitizeText(s.Message),
	}
}

// sanitizeText removes script blocks and tags and decodes the common entities,
// repeating until nothing changes so decoded markup cannot survive.
func sanitizeText(s string) string {
	for {
		next := scriptBlockRegex.ReplaceAllString(s, "")
		next = tagRegex.ReplaceAllString(next, "")
		next = decodeEntities(next)
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

func decodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	for _, r := range entityReplacements {
		s = strings.ReplaceAll(s, r[0], r[1])
	}
	return s
}
