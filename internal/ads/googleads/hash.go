package googleads

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeAndHash lowercases s, strips surrounding whitespace and returns
// the hex-encoded SHA-256 digest. Private customer data must be hashed before
// upload, see https://support.google.com/google-ads/answer/7474263.
func NormalizeAndHash(s string) string {
	normalized := strings.ToLower(strings.TrimSpace(s))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeAndHashEmail applies the email-specific normalization Google Ads
// requires before hashing: for gmail.com and googlemail.com addresses every
// '.' in the local part is removed. Other domains are hashed as-is.
func NormalizeAndHashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))

	if at := strings.LastIndex(normalized, "@"); at > 0 {
		local, domain := normalized[:at], normalized[at+1:]
		if domain == "gmail.com" || domain == "googlemail.com" {
			normalized = strings.ReplaceAll(local, ".", "") + "@" + domain
		}
	}

	return NormalizeAndHash(normalized)
}
