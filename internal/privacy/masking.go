package privacy

import (
	"strings"

	"wagateway/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+962799123456" -> "+********3456"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	keep := constants.DefaultPhoneMaskLength
	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		return "+" + maskString(phone[1:], keep)
	}
	return maskString(phone, keep)
}

// MaskMessageID keeps the "wamid." prefix and the tail of a provider message
// id. Example: "wamid.HBgLOTYyNzk5MTIzNDU2FQIAEhgg" -> "wamid.****...Hhgg"
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(messageID, "wamid."); ok {
		return "wamid." + maskString(rest, constants.DefaultMessageIDLength)
	}
	return maskString(messageID, constants.DefaultMessageIDLength)
}

// MaskToken shows only the first and last 4 characters of a bearer token.
func MaskToken(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", 8) + token[len(token)-4:]
}

// MaskName keeps the first letter of each word of a contact name.
// Example: "Alice Smith" -> "A**** S****"
func MaskName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(w)
		words[i] = string(runes[0]) + strings.Repeat("*", len(runes)-1)
	}
	return strings.Join(words, " ")
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}

		switch k {
		case "phone", "phone_number", "from", "to", "wa_id", "recipient_id":
			masked[k] = MaskPhoneNumber(s)
		case "message_id", "messageId", "wamid":
			masked[k] = MaskMessageID(s)
		case "access_token", "token", "app_secret", "verify_token":
			masked[k] = MaskToken(s)
		case "contact_name", "name":
			masked[k] = MaskName(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
