package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// EventKind identifies one directive from an update response, after "i:"
// context has already been resolved against it.
type EventKind int

const (
	EventRedirect EventKind = iota
	EventDeleteAdd
	EventDeleteSub
	EventRekey
	EventReset
)

// Event is one directive from an update response, in the order it
// appeared in the response body (spec §5 ordering rule).
type Event struct {
	Kind  EventKind
	List  string // the "current list" in effect when this directive was read
	URL   string // EventRedirect
	HMAC  string // EventRedirect, optional per-payload HMAC
	Range string // EventDeleteAdd / EventDeleteSub
}

// UpdateResponse is the fully decoded text framing of one update response
// body (spec §4.3/§4.4).
type UpdateResponse struct {
	Events      []Event
	WaitSeconds int  // last n: value seen, 0 if none appeared
	HasWait     bool
	MACDigest   string // the m: digest, if the response carried one
	HasMAC      bool

	// UnMACedBody is the response body with the "m:" line removed, the
	// exact bytes the server's HMAC was computed over.
	UnMACedBody []byte
}

// ParseUpdateResponse decodes the line-oriented directive framing of an
// update response body. Tokens are whitespace-delimited per spec §4.3;
// in practice every server emits one directive per line.
func ParseUpdateResponse(body []byte) (*UpdateResponse, error) {
	resp := &UpdateResponse{UnMACedBody: stripMACLine(body)}

	currentList := ""
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	scanner.Split(bufio.ScanWords)

	for scanner.Scan() {
		tok := scanner.Text()
		key, rest, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}

		switch key {
		case "n":
			n, err := strconv.Atoi(rest)
			if err != nil {
				return nil, fmt.Errorf("wire: bad n: directive %q: %w", tok, err)
			}
			resp.WaitSeconds = n
			resp.HasWait = true
		case "i":
			currentList = rest
		case "u":
			url, hmac, _ := strings.Cut(rest, ",")
			resp.Events = append(resp.Events, Event{Kind: EventRedirect, List: currentList, URL: url, HMAC: hmac})
		case "ad":
			resp.Events = append(resp.Events, Event{Kind: EventDeleteAdd, List: currentList, Range: rest})
		case "sd":
			resp.Events = append(resp.Events, Event{Kind: EventDeleteSub, List: currentList, Range: rest})
		case "m":
			resp.MACDigest = rest
			resp.HasMAC = true
		case "e":
			if rest == "pleaserekey" {
				resp.Events = append(resp.Events, Event{Kind: EventRekey})
			}
		case "r":
			if rest == "pleasereset" {
				resp.Events = append(resp.Events, Event{Kind: EventReset, List: currentList})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wire: scan update response: %w", err)
	}

	return resp, nil
}

// stripMACLine removes the line beginning with "m:" from body, byte for
// byte, so the remainder is exactly what the server's HMAC covers.
func stripMACLine(body []byte) []byte {
	lines := bytes.Split(body, []byte("\n"))
	kept := make([][]byte, 0, len(lines))
	for _, line := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("m:")) {
			continue
		}
		kept = append(kept, line)
	}
	return bytes.Join(kept, []byte("\n"))
}
