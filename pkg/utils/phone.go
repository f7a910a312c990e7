package utils

import "strings"

// DefaultCountryCode is prepended when a local number starts with "0".
// The deployments this serves are Indonesian, hence 62.
const DefaultCountryCode = "62"

// NormalizePhone reduces a phone-ish string to bare digits with a country
// code: "+62 812-34" -> "6281234", "081234" -> "6281234".
func NormalizePhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	if strings.HasPrefix(digits, "0") {
		digits = DefaultCountryCode + digits[1:]
	}
	return digits
}

// WhatsAppChatID formats a contact for the WhatsApp gateway. Identifiers that
// already carry a server suffix (@c.us, @g.us, @lid) pass through untouched.
func WhatsAppChatID(contact string) string {
	if strings.Contains(contact, "@") {
		return contact
	}
	return NormalizePhone(contact) + "@c.us"
}

// SanitizePhone strips a WhatsApp server suffix in place, leaving the bare
// identifier ("6281234@c.us" -> "6281234").
func SanitizePhone(phone *string) {
	if phone == nil {
		return
	}
	if idx := strings.Index(*phone, "@"); idx >= 0 {
		*phone = (*phone)[:idx]
	}
}
