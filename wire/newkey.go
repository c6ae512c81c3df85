package wire

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// NewKeyResponse is the decoded body of a "newkey" request: the MAC
// client key (raw bytes, already base64-decoded) and the opaque wrapped
// key the client must echo back as "wrkey" on subsequent downloads.
type NewKeyResponse struct {
	ClientKey  []byte
	WrappedKey string
}

// ParseNewKeyResponse decodes the "clientkey:<n>:<base64>\nwrappedkey:<m>:<opaque>\n"
// framing of a newkey response (spec §6).
func ParseNewKeyResponse(body []byte) (NewKeyResponse, error) {
	var resp NewKeyResponse
	var haveClientKey, haveWrappedKey bool

	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return NewKeyResponse{}, fmt.Errorf("%w: newkey line %q", ErrMalformedChunk, line)
		}

		switch parts[0] {
		case "clientkey":
			decoded, err := base64.StdEncoding.DecodeString(parts[2])
			if err != nil {
				return NewKeyResponse{}, fmt.Errorf("wire: decode clientkey: %w", err)
			}
			resp.ClientKey = decoded
			haveClientKey = true
		case "wrappedkey":
			resp.WrappedKey = parts[2]
			haveWrappedKey = true
		}
	}

	if !haveClientKey || !haveWrappedKey {
		return NewKeyResponse{}, fmt.Errorf("%w: newkey response missing fields", ErrMalformedChunk)
	}

	return resp, nil
}
