// Package canon implements the Safe Browsing v2 URL canonicalization and
// enumeration rules (spec §4.1): it reduces an arbitrary input URL to a
// single canonical form, then expands that form into the host-suffix and
// domain/path pattern sets the hasher needs.
//
// The algorithm follows the same shape as Google's own safebrowsing client
// (see letsencrypt/boulder's vendored copy in the reference pack) but is
// restated against the exact rule list in spec §4.1 rather than against
// Chrome's historical URL parser.
package canon

import (
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/usher2/sb2/internal/logger"
)

// Result is the canonicalized form of a URL plus the enumerations the
// Hasher and Lookup Engine need.
type Result struct {
	URI string // the canonical scheme://host/path[?query]

	// HostSuffixes are canonical_domain_suffixes(host): up to 3 entries,
	// or exactly 1 for a dotted-quad IPv4 literal host.
	HostSuffixes []string

	// Patterns is canonical(U): the cross product of domain forms and
	// path forms, each rendered as "host/path".
	Patterns []string
}

// maxDomainForms and maxPathForms bound the enumeration per spec §4.1.
const (
	maxDomainForms = 5
	maxPathForms   = 6
)

// Canonicalize reduces u to its canonical form and enumerates the
// suffix/pattern sets used by the hasher and the lookup engine. It fails
// closed: any step that would otherwise produce an invalid URI instead
// returns ok=false, never an error, per spec §4.1.
func Canonicalize(u string) (res Result, ok bool) {
	raw := trimRule1(u)
	raw = stripControlBeforeQuery(raw)
	raw = ensureScheme(raw)
	raw = dropFragment(raw)

	scheme, rest := splitScheme(raw)
	restNoQuery, query := splitQuery(rest)
	hostish, pathish := splitHostFromPath(restNoQuery)
	if hostish == "" {
		return Result{}, false
	}

	host, ok := normalizeHost(hostish)
	if !ok {
		return Result{}, false
	}
	if net.ParseIP(host) == nil && effectiveSuffixIsBareHost(host) {
		return Result{}, false
	}

	p := collapseSlashes(pathish)
	p = resolveDotSegments(p)
	if p == "" {
		p = "/"
	}
	p, ok = normalizePathEscaping(p)
	if !ok {
		return Result{}, false
	}

	uri := scheme + "://" + host + p
	if query != "" {
		uri += "?" + query
	}

	suffixes := hostSuffixes(host)
	patterns := patternsFor(host, p, query)

	return Result{URI: uri, HostSuffixes: suffixes, Patterns: patterns}, true
}

// trimRule1 trims ASCII whitespace (rule 1).
func trimRule1(s string) string {
	return strings.Trim(s, " \t\n\r\v\f")
}

// stripControlBeforeQuery removes CR/LF/TAB that appear before the '?'
// (rule 2); anything after '?' is left untouched.
func stripControlBeforeQuery(s string) string {
	head, sep, tail := cutByte(s, '?')
	head = strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t':
			return -1
		}
		return r
	}, head)
	if sep {
		return head + "?" + tail
	}
	return head
}

func cutByte(s string, b byte) (head string, found bool, tail string) {
	i := strings.IndexByte(s, b)
	if i < 0 {
		return s, false, ""
	}
	return s[:i], true, s[i+1:]
}

// ensureScheme prepends "http://" if no scheme is present (rule 3).
func ensureScheme(s string) string {
	scheme, _ := splitScheme(s)
	if scheme != "" {
		return s
	}
	return "http://" + strings.TrimPrefix(s, "//")
}

// dropFragment removes everything from the first '#' onward (rule 4).
func dropFragment(s string) string {
	head, _, _ := cutByte(s, '#')
	return head
}

// splitScheme splits "scheme://rest" into (scheme, rest). If no valid
// scheme prefix exists, scheme is "" and rest is the full input.
func splitScheme(s string) (scheme, rest string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' || c == '+' || c == '-' || c == '.':
			if i == 0 {
				return "", s
			}
		case c == ':':
			if strings.HasPrefix(s[i+1:], "//") {
				return strings.ToLower(s[:i]), s[i+3:]
			}
			return "", s
		default:
			return "", s
		}
	}
	return "", s
}

// splitHostFromPath splits "host[:port]/path..." (query already removed by
// splitQuery) into (hostish, "/path...").
func splitHostFromPath(s string) (hostish, path string) {
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// splitQuery splits "host[:port][/path]?query" into (everythingBeforeQuery,
// query) without the '?'. It runs on the whole post-scheme remainder, before
// the host/path split, so a query-bearing URL with no path at all (rule 7)
// still yields a query instead of being swallowed into the host.
func splitQuery(s string) (path, query string) {
	head, found, tail := cutByte(s, '?')
	if !found {
		return head, ""
	}
	return head, tail
}

// normalizeHost applies rules 8 (dotted-quad rewrite) and the host-escaping
// half of rule 9, plus IDNA normalization as described in SPEC_FULL.md.
func normalizeHost(hostish string) (string, bool) {
	host := hostish
	if i := strings.LastIndexByte(host, '@'); i >= 0 {
		host = host[i+1:]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			host = host[:i]
		}
	}
	if host == "" {
		return "", false
	}

	host = strings.Trim(host, ".")
	for strings.Contains(host, "..") {
		host = strings.ReplaceAll(host, "..", ".")
	}

	if isASCII(host) {
		host = strings.ToLower(host)
	} else if a, err := idna.ToASCII(strings.ToLower(host)); err == nil {
		host = a
	} else {
		logger.Debug.Printf("canon: idna.ToASCII(%q) failed: %s\n", host, err)
	}

	if dotted, ok := rewriteDottedDecimal(host); ok {
		return dotted, true
	}

	host = escapeHostBytes(host)

	return host, true
}

// rewriteDottedDecimal implements rule 8: an all-digit host is interpreted
// as a 32-bit integer and rewritten as a dotted quad, provided each octet
// fits in [0,255] (which it trivially does for any uint32).
func rewriteDottedDecimal(host string) (string, bool) {
	if host == "" {
		return "", false
	}
	for i := 0; i < len(host); i++ {
		if host[i] < '0' || host[i] > '9' {
			return "", false
		}
	}
	n, err := strconv.ParseUint(host, 10, 32)
	if err != nil {
		return "", false
	}
	ip := net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return ip.String(), true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// escapeHostBytes percent-escapes any byte in host that isn't a "safe" URL
// host character, per the non-allowed-byte half of rule 9.
func escapeHostBytes(host string) string {
	var b strings.Builder
	for i := 0; i < len(host); i++ {
		c := host[i]
		if isUnreservedHostByte(c) {
			b.WriteByte(c)
		} else {
			b.WriteString(upperPercentEscape(c))
		}
	}
	return b.String()
}

func isUnreservedHostByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '.', c == '-', c == '_', c == '[', c == ']', c == ':':
		return true
	}
	return false
}

func upperPercentEscape(c byte) string {
	const hex = "0123456789ABCDEF"
	return "%" + string(hex[c>>4]) + string(hex[c&0xf])
}

// collapseSlashes collapses repeated '/' in a path (rule 5). The caller
// only ever passes the path component, never the scheme separator, so
// there's no "://" to protect here.
func collapseSlashes(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// resolveDotSegments resolves "." and ".." path segments (rule 6),
// preserving a trailing slash.
func resolveDotSegments(p string) string {
	if p == "" {
		return p
	}
	trailingSlash := strings.HasSuffix(p, "/")
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	joined := "/" + strings.Join(out, "/")
	if trailingSlash && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

// normalizePathEscaping implements rule 9 for the path: percent-decode
// repeatedly until stable, then re-escape so that '#' becomes %23, double
// '%' sequences collapse correctly, and every escape is upper-case hex.
func normalizePathEscaping(p string) (string, bool) {
	decoded, ok := recursiveUnescape(p)
	if !ok {
		return "", false
	}
	return escapePath(decoded), true
}

func recursiveUnescape(s string) (string, bool) {
	const maxDepth = 1024
	for i := 0; i < maxDepth; i++ {
		next := unescapeOnce(s)
		if next == s {
			return s, true
		}
		s = next
	}
	return "", false
}

func unescapeOnce(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func escapePath(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '#', c == '%':
			b.WriteString(upperPercentEscape(c))
		case c < 0x20, c >= 0x7f, c == ' ':
			b.WriteString(upperPercentEscape(c))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// hostSuffixes implements canonical_domain_suffixes: up to 3 host forms
// (full host, last-3-labels, last-2-labels), or exactly the literal for a
// dotted-quad IPv4 host.
func hostSuffixes(host string) []string {
	if net.ParseIP(host) != nil {
		return []string{host}
	}

	labels := strings.Split(host, ".")
	out := []string{host}

	if len(labels) > 3 {
		out = append(out, strings.Join(labels[len(labels)-3:], "."))
	}
	if len(labels) > 2 {
		out = append(out, strings.Join(labels[len(labels)-2:], "."))
	}

	return dedupStrings(out)
}

// domainForms implements the domain half of canonical(U): up to 5
// right-most labels, progressively shortened by dropping leading labels,
// down to a 2-label minimum. An IPv4 literal host yields only itself.
func domainForms(host string) []string {
	if net.ParseIP(host) != nil {
		return []string{host}
	}

	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return []string{host}
	}

	start := 0
	if len(labels) > maxDomainForms {
		start = len(labels) - maxDomainForms
	}

	var out []string
	for i := start; i <= len(labels)-2; i++ {
		out = append(out, strings.Join(labels[i:], "."))
	}
	return out
}

// pathForms implements the path half of canonical(U): the original
// path+query, the path alone, and successive path prefixes ending in '/',
// up to 6 total entries.
func pathForms(path, query string) []string {
	out := make([]string, 0, maxPathForms)

	if query != "" {
		out = append(out, path+"?"+query)
	}
	out = append(out, path)

	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}

	for i := 1; i < len(segs) && len(out) < maxPathForms; i++ {
		out = append(out, "/"+strings.Join(segs[:i], "/")+"/")
	}
	if path != "/" && len(out) < maxPathForms {
		out = append(out, "/")
	}

	if len(out) > maxPathForms {
		out = out[:maxPathForms]
	}
	return dedupStrings(out)
}

func patternsFor(host, path, query string) []string {
	domains := domainForms(host)
	paths := pathForms(path, query)

	patterns := make([]string, 0, len(domains)*len(paths))
	for _, d := range domains {
		for _, p := range paths {
			patterns = append(patterns, d+p)
		}
	}
	return patterns
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// effectiveSuffixIsBareHost reports whether host, taken as a whole, is
// itself nothing more than an ICANN public suffix (e.g. "com", "co.uk").
// Such a host can never be a real registrable target; see SPEC_FULL.md §4.1.
// Unlisted single-label hosts (e.g. "host") are not rejected.
func effectiveSuffixIsBareHost(host string) bool {
	suffix, icann := publicsuffix.PublicSuffix(host)
	return icann && suffix == host
}
