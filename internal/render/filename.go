package render

import (
	"strings"
)

// maxFilenameLen bounds the sanitized stem so storage paths stay short.
const maxFilenameLen = 80

// Filename derives the artifact filename from the contractor name and the
// period label. The result is restricted to alphanumerics, underscores and
// hyphens; if sanitization empties the string entirely, "Unknown" is used.
func Filename(contractorName, periodLabel string) string {
	stem := sanitize(contractorName + "_" + periodLabel)
	if stem == "" {
		stem = "Unknown"
	}
	return stem + ".pdf"
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '_':
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > maxFilenameLen {
		out = out[:maxFilenameLen]
	}
	return strings.Trim(out, "_")
}
