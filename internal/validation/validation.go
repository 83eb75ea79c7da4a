package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"wagateway/internal/constants"
	"wagateway/internal/errors"
)

// NormalizePhoneNumber strips the leading "+" and common separators so the
// number matches the wa_id form the provider uses.
func NormalizePhoneNumber(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, phone)
}

// ValidatePhoneNumber checks an E.164 number in wa_id form (digits only).
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.NewValidationError("to", phone, "phone number cannot be empty")
	}

	if len(phone) < constants.MinPhoneNumberLength || len(phone) > constants.MaxPhoneNumberLength {
		return errors.NewValidationError("to", phone,
			fmt.Sprintf("phone number must be between %d and %d digits", constants.MinPhoneNumberLength, constants.MaxPhoneNumberLength))
	}

	for _, char := range phone {
		if !unicode.IsDigit(char) {
			return errors.NewValidationError("to", phone, "phone number must contain only digits")
		}
	}

	return nil
}

// ValidateMessageID validates message ID format and length
func ValidateMessageID(messageID string) error {
	if messageID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message ID cannot be empty")
	}

	if len(messageID) > constants.MaxMessageIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message ID too long (max %d characters)", constants.MaxMessageIDLength))
	}

	if strings.ContainsAny(messageID, "\x00\n\r\t") {
		return errors.New(errors.ErrCodeInvalidInput, "message ID contains invalid characters")
	}

	return nil
}

// ValidateTextBody checks a free-form message body against the provider limit.
func ValidateTextBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.NewValidationError("message", "", "message cannot be empty")
	}
	if n := utf8.RuneCountInString(body); n > constants.MaxTextBodyLength {
		return errors.NewValidationError("message", "",
			fmt.Sprintf("message too long: %d characters (max %d)", n, constants.MaxTextBodyLength))
	}
	return nil
}

// ValidateTemplateName accepts the provider's template naming: lowercase
// letters, digits and underscores.
func ValidateTemplateName(name string) error {
	if name == "" {
		return errors.NewValidationError("template_name", name, "template name cannot be empty")
	}
	if len(name) > constants.MaxTemplateNameLength {
		return errors.NewValidationError("template_name", name,
			fmt.Sprintf("template name too long (max %d characters)", constants.MaxTemplateNameLength))
	}
	for _, char := range name {
		if !(char >= 'a' && char <= 'z') && !unicode.IsDigit(char) && char != '_' {
			return errors.NewValidationError("template_name", name,
				"template name must contain only lowercase letters, digits and underscores")
		}
	}
	return nil
}

// ValidateTemplateParameters bounds the number of positional parameters.
func ValidateTemplateParameters(params []string) error {
	if len(params) > constants.MaxTemplateParameters {
		return errors.NewValidationError("parameters", fmt.Sprint(len(params)),
			fmt.Sprintf("too many template parameters (max %d)", constants.MaxTemplateParameters))
	}
	for i, p := range params {
		if strings.TrimSpace(p) == "" {
			return errors.NewValidationError("parameters", fmt.Sprint(i), "template parameters cannot be empty")
		}
	}
	return nil
}

// ValidateStringLength validates string length within bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	length := utf8.RuneCountInString(value)
	if length < minLength {
		return errors.NewValidationError(fieldName, value,
			fmt.Sprintf("must be at least %d characters", minLength))
	}
	if length > maxLength {
		return errors.NewValidationError(fieldName, value,
			fmt.Sprintf("must be at most %d characters", maxLength))
	}
	return nil
}
