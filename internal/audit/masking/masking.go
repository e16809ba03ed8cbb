// Package masking redacts secret material before it lands in audit rows.
package masking

import "strings"

const maskToken = "****"

// MaskSecret hides the body of a secret while keeping its prefix and the
// last four characters, enough to correlate an entry with a known key.
// "zrv_live_key_ab_0123..cdef" becomes "zrv_live_key_ab_****cdef".
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
