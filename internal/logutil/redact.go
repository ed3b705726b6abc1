// Package logutil holds the identity-redaction helper: no log line may
// carry a raw push token or full email address.
package logutil

import "strings"

// RedactIdentity renders id (a username, which may be an email, or a
// raw push token) as a safe log identifier: first character of the
// email local part padded with bullets up to the @; for any other id
// longer than eight characters, its first eight characters; for a
// shorter id, its first character padded with bullets.
func RedactIdentity(id string) string {
	if id == "" {
		return "•"
	}
	if at := strings.IndexByte(id, '@'); at > 0 {
		domain := id[at:]
		return id[:1] + strings.Repeat("•", at-1) + domain
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id[:1] + strings.Repeat("•", len(id)-1)
}
