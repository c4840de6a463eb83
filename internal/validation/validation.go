package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"leadrelay/internal/constants"
	"leadrelay/internal/errors"
	"leadrelay/internal/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CoerceFields trims values and translates checkbox "on" into the localized
// affirmative. Only the literal "on" is translated.
func CoerceFields(fields models.FieldSet) models.FieldSet {
	var out models.FieldSet
	for _, f := range fields.Fields() {
		value := f.Value
		if value == constants.CheckboxOnValue {
			value = constants.CheckboxAffirmative
		}
		out.Set(strings.TrimSpace(f.Name), strings.TrimSpace(value))
	}
	return out
}

// ValidateEmail reports whether email looks like an address.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePhone requires at least MinPhoneDigits digits, ignoring formatting.
func ValidatePhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= constants.MinPhoneDigits
}

// ValidateFormType checks the form identifier supplied by the page.
func ValidateFormType(formType string) error {
	if len(formType) > constants.MaxFormTypeLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("form type too long (max %d characters)", constants.MaxFormTypeLength))
	}
	for _, r := range formType {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return errors.New(errors.ErrCodeInvalidInput,
				"form type must contain only letters, numbers, underscores, and dashes")
		}
	}
	return nil
}

// Validator checks lead forms against per-form required fields.
type Validator struct {
	required map[string][]string
}

// NewValidator builds a Validator. A nil map falls back to requiring a phone
// on every form.
func NewValidator(required map[string][]string) *Validator {
	if required == nil {
		required = map[string][]string{"*": {"phone"}}
	}
	return &Validator{required: required}
}

// ValidateSubmission checks coerced fields. Problems are reported per field
// in a single VALIDATION_FAILED error.
func (v *Validator) ValidateSubmission(fields models.FieldSet, formType string) error {
	if fields.Len() == 0 {
		return errors.NewValidationError(map[string]string{"fields": "form data is empty"})
	}
	if fields.Len() > constants.MaxFieldCount {
		return errors.NewValidationError(map[string]string{
			"fields": fmt.Sprintf("too many fields (max %d)", constants.MaxFieldCount),
		})
	}

	problems := make(map[string]string)

	for _, f := range fields.Fields() {
		if f.Name == "" {
			problems["fields"] = "field name cannot be empty"
			continue
		}
		if len(f.Value) > constants.MaxFieldLength {
			problems[f.Name] = fmt.Sprintf("value too long (max %d bytes)", constants.MaxFieldLength)
		}
	}

	for _, name := range v.requiredFor(formType) {
		if value, ok := fields.Get(name); !ok || value == "" {
			problems[name] = "required"
		}
	}

	if email, ok := fields.Get("email"); ok && email != "" && !ValidateEmail(email) {
		problems["email"] = "invalid format"
	}
	if phone, ok := fields.Get("phone"); ok && phone != "" && !ValidatePhone(phone) {
		problems["phone"] = fmt.Sprintf("must contain at least %d digits", constants.MinPhoneDigits)
	}
	if name, ok := fields.Get("name"); ok && name != "" && utf8.RuneCountInString(name) < constants.MinNameLength {
		problems["name"] = fmt.Sprintf("must be at least %d characters", constants.MinNameLength)
	}

	if len(problems) > 0 {
		return errors.NewValidationError(problems)
	}
	return nil
}

func (v *Validator) requiredFor(formType string) []string {
	if fields, ok := v.required[formType]; ok {
		return fields
	}
	return v.required["*"]
}
