package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 characters
// Example: "+7 999 111 22 33" -> "+***********2 33"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	return maskString(phone, 4)
}

// MaskEmail keeps the first character of the local part and the domain
// Example: "ivan.petrov@mail.ru" -> "i**********@mail.ru"
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return maskString(email, 0)
	}
	local, domain := email[:at], email[at:]
	return local[:1] + strings.Repeat("*", len(local)-1) + domain
}

// MaskChatID masks a bot chat identifier
// Example: "123456789" -> "*****6789"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}
	if strings.HasPrefix(chatID, "-") {
		return "-" + maskString(chatID[1:], 4)
	}
	return maskString(chatID, 4)
}

// MaskBotToken hides the secret half of a bot token ("<bot id>:<secret>")
// Example: "7232379773:AAGm...dxPA" -> "7232379773:***"
func MaskBotToken(token string) string {
	if token == "" {
		return ""
	}
	if i := strings.Index(token, ":"); i >= 0 {
		return token[:i] + ":***"
	}
	return "***"
}

// RedactToken replaces every occurrence of a secret inside s, e.g. in an
// error string that embeds a request URL.
func RedactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, MaskBotToken(token))
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

// MaskSensitiveFields applies appropriate masking to common form and logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "phone_number", "tel":
			masked[k] = MaskPhoneNumber(s)
		case "email", "mail":
			masked[k] = MaskEmail(s)
		case "chat_id", "chatId":
			masked[k] = MaskChatID(s)
		case "name", "message", "comment":
			masked[k] = maskString(s, 0)
		default:
			masked[k] = v
		}
	}
	return masked
}
