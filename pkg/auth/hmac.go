// Package auth implements the constant-time bearer and HMAC request
// verification spec.md §4.8/§7/§8 requires for the control webhook and
// admin settings endpoints.
package auth

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // carrier's fixed signature scheme
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// ConstantTimeEqual compares two secrets without leaking timing
// information about where they first differ.
func ConstantTimeEqual(a, b string) bool {
	// subtle.ConstantTimeCompare requires equal-length slices to avoid a
	// length-based short circuit; hash both sides to a fixed length first
	// so callers never leak the secret's length either.
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}

// BearerMatches reports whether the presented token matches the expected
// shared secret, constant-time, and the expected secret is non-empty.
func BearerMatches(presented, expected string) bool {
	if expected == "" {
		return false
	}
	return ConstantTimeEqual(presented, expected)
}

// AdminBearerMatches additionally requires the admin secret to be at
// least 32 characters, per spec.md §4.8.
func AdminBearerMatches(presented, expected string) bool {
	if len(expected) < 32 {
		return false
	}
	return BearerMatches(presented, expected)
}

// SignPayload computes the hex-encoded HMAC-SHA256 of timestamp + "." + body
// under secret, matching the scheme the control webhook verifies against.
func SignPayload(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a signed control-webhook request: the signature (hex or
// base64 encoded) must match HMAC-SHA256(secret, timestamp+"."+body), and
// timestamp must be within toleranceSeconds of now.
func VerifyHMAC(secret, timestampStr string, body []byte, signature string, toleranceSeconds int, now time.Time) bool {
	if secret == "" || timestampStr == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return false
	}

	reqTime := time.Unix(ts, 0)
	delta := now.Sub(reqTime)
	if delta < 0 {
		delta = -delta
	}
	if delta > time.Duration(toleranceSeconds)*time.Second {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestampStr))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	if decoded, err := hex.DecodeString(signature); err == nil {
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return true
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil {
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return true
		}
	}
	return false
}

// VerifyCarrierSignature checks a carrier webhook request signature: the
// full request URL with sorted form-parameter key+value pairs appended is
// HMAC-SHA1'd under secret and base64-encoded, then compared constant-time
// against the presented signature. This is the carrier's fixed request
// -signing scheme (§4.5), independent of the HMAC-SHA256 envelope (C)/(H)
// use for the control webhook.
func VerifyCarrierSignature(secret, fullURL string, form url.Values, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := fullURL
	for _, k := range keys {
		for _, v := range form[k] {
			data += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(data))
	expected := mac.Sum(nil)

	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(decoded, expected) == 1
}
