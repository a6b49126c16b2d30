package acquire

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes the provided URL so that trivially
// different spellings of the same resource produce the same
// fingerprint. Scheme and host are lowercased, default ports are
// dropped, the fragment is discarded and query parameters are
// re-encoded in sorted order.
//
// Only absolute http(s) URLs are accepted; anything else is rejected
// as a validation failure.
func NormalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", newPipelineError(ValidationFailure, fmt.Sprintf("URL '%s' is malformed", raw), err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", newPipelineError(ValidationFailure, fmt.Sprintf("URL '%s' is not an absolute http(s) URL", raw), nil)
	}
	if parsed.Host == "" {
		return "", newPipelineError(ValidationFailure, fmt.Sprintf("URL '%s' has no host", raw), nil)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	if (scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}

	// url.Values.Encode emits keys in sorted order, which is what
	// makes query-parameter ordering irrelevant to the fingerprint.
	parsed.RawQuery = parsed.Query().Encode()

	return parsed.String(), nil
}

// Fingerprint derives the stable identity for a URL which keys the
// content cache and deduplicates persisted artifacts. The same URL
// (modulo normalization) always maps to the same fingerprint.
func Fingerprint(raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}
