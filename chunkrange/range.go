// Package chunkrange formats and parses the compact chunk-number range
// strings the update protocol exchanges for each (list, chunk-kind) pair,
// e.g. "1-3,5,7-11".
package chunkrange

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// validToken matches the wire grammar for a range string's character set.
// It does not itself guarantee well-formed tokens (that's Parse's job) but
// rejects anything a conforming server would never send.
var validToken = regexp.MustCompile(`^[\d\-,\s]*$`)

// Format renders a set of positive chunk numbers as the minimal compact
// range string the protocol expects: ascending, no overlaps, runs of two
// or more consecutive numbers collapsed to "N-M", everything else listed
// individually.
func Format(nums []int) string {
	if len(nums) == 0 {
		return ""
	}

	sorted := append([]int(nil), nums...)
	sort.Ints(sorted)

	var b strings.Builder
	start := sorted[0]
	prev := sorted[0]

	flush := func(end int) {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if start == end {
			b.WriteString(strconv.Itoa(start))
		} else {
			b.WriteString(strconv.Itoa(start))
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(end))
		}
	}

	for _, n := range sorted[1:] {
		if n == prev {
			continue // de-dup
		}
		if n == prev+1 {
			prev = n
			continue
		}
		flush(prev)
		start = n
		prev = n
	}
	flush(prev)

	return b.String()
}

// Parse expands a range string back into the set of chunk numbers it
// names. It rejects anything that doesn't match the wire grammar or whose
// tokens are out of order (N > M in "N-M").
func Parse(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !validToken.MatchString(s) {
		return nil, fmt.Errorf("chunkrange: invalid characters in %q", s)
	}

	var out []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if i := strings.IndexByte(tok, '-'); i >= 0 {
			lo, err := strconv.Atoi(tok[:i])
			if err != nil {
				return nil, fmt.Errorf("chunkrange: bad range start %q: %w", tok, err)
			}
			hi, err := strconv.Atoi(tok[i+1:])
			if err != nil {
				return nil, fmt.Errorf("chunkrange: bad range end %q: %w", tok, err)
			}
			if lo > hi {
				return nil, fmt.Errorf("chunkrange: descending range %q", tok)
			}
			for n := lo; n <= hi; n++ {
				out = append(out, n)
			}
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("chunkrange: bad token %q: %w", tok, err)
		}
		out = append(out, n)
	}

	return out, nil
}
