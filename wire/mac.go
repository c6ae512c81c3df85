package wire

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by the Safe Browsing v2 MAC scheme, not used for anything security-sensitive beyond protocol compat.
	"encoding/base64"
)

// ComputeMAC returns the web-safe base64 HMAC-SHA1 digest of payload,
// keyed by clientKey, in the "...=" form the server sends (spec §6).
func ComputeMAC(clientKey, payload []byte) string {
	mac := hmac.New(sha1.New, clientKey)
	mac.Write(payload)
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyMAC reports whether digest is the correct web-safe base64
// HMAC-SHA1 of payload under clientKey.
func VerifyMAC(clientKey, payload []byte, digest string) bool {
	want := ComputeMAC(clientKey, payload)
	return hmac.Equal([]byte(want), []byte(digest))
}
