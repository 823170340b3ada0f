// internal/rules/urlsplit.go
package rules

import "strings"

/*
 * URL splitting for the netloc and netpath variables.
 *
 * Works on the raw text and never fails or decodes: a path keeps its
 * percent escapes, and a URL net/url would reject (bad escape, space in the
 * host) still yields both parts. Follows the generic URI layout
 *
 *   scheme:[//netloc]path[;params][?query][#fragment]
 *
 * netloc keeps userinfo and port. For schemes that carry path parameters
 * (http, https, ftp, ...) parameters of the last path segment are cut off.
 */

// paramSchemes are the schemes whose last path segment may carry ;params.
var paramSchemes = map[string]bool{
	"": true, "ftp": true, "hdl": true, "prospero": true, "http": true,
	"imap": true, "https": true, "shttp": true, "rtsp": true, "rtsps": true,
	"rtspu": true, "sip": true, "sips": true, "mms": true, "sftp": true,
	"tel": true,
}

// splitURL returns the network location and path of raw.
func splitURL(raw string) (netloc, path string) {
	// Leading C0 controls and spaces are dropped, tabs and newlines removed
	rest := strings.TrimLeftFunc(raw, func(r rune) bool { return r <= ' ' })
	rest = strings.NewReplacer("\t", "", "\r", "", "\n", "").Replace(rest)

	scheme := ""
	if i := strings.IndexByte(rest, ':'); i > 0 && isScheme(rest[:i]) {
		scheme = strings.ToLower(rest[:i])
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		end := strings.IndexAny(rest, "/?#")
		if end < 0 {
			end = len(rest)
		}
		netloc, rest = rest[:end], rest[end:]
	}

	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}

	if paramSchemes[scheme] {
		rest = cutParams(rest)
	}
	return netloc, rest
}

func isScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// cutParams drops ;params from the last segment of path.
func cutParams(path string) string {
	if i := strings.IndexByte(path[strings.LastIndexByte(path, '/')+1:], ';'); i >= 0 {
		return path[:strings.LastIndexByte(path, '/')+1+i]
	}
	return path
}
