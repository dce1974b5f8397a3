package privacy

import (
	"strings"

	"campuswatch/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits.
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	keep := constants.DefaultPhoneMaskLength
	if strings.HasPrefix(phone, "+") {
		if len(phone) <= keep+1 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-keep-1) + phone[len(phone)-keep:]
	}

	if len(phone) <= keep {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-keep) + phone[len(phone)-keep:]
}

// MaskMessageID keeps the first and last few characters of a platform
// message ID so log lines stay correlatable without exposing the full ID.
func MaskMessageID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:4] + "..." + id[len(id)-4:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch k {
		case "phone", "phone_number", "from", "to", "reporter":
			if s, ok := v.(string); ok {
				masked[k] = MaskPhoneNumber(s)
			} else {
				masked[k] = v
			}
		case "message_id", "messageId", "msg_id":
			if s, ok := v.(string); ok {
				masked[k] = MaskMessageID(s)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}
	return masked
}
