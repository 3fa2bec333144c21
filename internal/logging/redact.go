package logging

import "strings"

// RedactValue masks a secret, keeping a short prefix and suffix for
// identification.
func RedactValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "bearer ") {
		return "Bearer " + mask(trimmed[7:])
	}
	return mask(trimmed)
}

// RedactHeaders returns a copy of headers with credential values masked.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "authorization", "x-api-key", "x-goog-api-key", "api-key":
			out[k] = RedactValue(v)
		default:
			out[k] = v
		}
	}
	return out
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
