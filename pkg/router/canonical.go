package router

import (
	"errors"
	"net/url"
	"strings"
)

// CanonicalizeResult contains the result of path canonicalization.
type CanonicalizeResult struct {
	// Path is the canonicalized path (without query string).
	Path string

	// Query is the query string (without leading "?").
	Query string

	// Changed indicates if the path was modified during canonicalization.
	Changed bool
}

// Path canonicalization errors.
var (
	ErrInvalidPath           = errors.New("router: invalid path")
	ErrBackslashInPath       = errors.New("router: path contains backslash")
	ErrNullByteInPath        = errors.New("router: path contains null byte")
	ErrInvalidPercentEscape  = errors.New("router: invalid percent escape sequence")
	ErrPathEscapesRoot       = errors.New("router: path escapes root via ..")
	ErrEncodedSlashInSegment = errors.New("router: encoded slash (%2F) in non-catch-all segment")
)

// CanonicalizePath normalizes a URL path before resolution:
//   - Remove trailing slash (except for root "/")
//   - Collapse multiple slashes (/lineage//graph -> /lineage/graph)
//   - Remove "." segments
//   - Resolve ".." segments
//
// The following inputs are rejected with an error:
//   - Paths containing backslash (\)
//   - Paths containing NUL byte (%00)
//   - Invalid percent-escapes (e.g., %GG, %2)
//   - ".." that would escape root (e.g., /../secret)
//
// The input may include a query string, which is preserved but not
// canonicalized.
func CanonicalizePath(input string) (CanonicalizeResult, error) {
	if input == "" {
		return CanonicalizeResult{Path: "/", Changed: true}, nil
	}

	// Split path and query.
	path, query, _ := strings.Cut(input, "?")

	// SECURITY: Reject backslash.
	if strings.Contains(path, "\\") {
		return CanonicalizeResult{}, ErrBackslashInPath
	}

	// SECURITY: Reject NUL byte (both literal and encoded).
	if strings.Contains(path, "\x00") || strings.Contains(strings.ToUpper(path), "%00") {
		return CanonicalizeResult{}, ErrNullByteInPath
	}

	if strings.Contains(path, "%") {
		if err := validatePercentEscapes(path); err != nil {
			return CanonicalizeResult{}, err
		}
	}

	original := path

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	// Collapse multiple slashes.
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}

	segments := strings.Split(path, "/")
	var result []string

	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			// Pop the last segment, but never above root.
			if len(result) > 0 {
				result = result[:len(result)-1]
			} else {
				// SECURITY: ".." escapes root.
				return CanonicalizeResult{}, ErrPathEscapesRoot
			}
		default:
			result = append(result, seg)
		}
	}

	path = "/" + strings.Join(result, "/")

	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	return CanonicalizeResult{
		Path:    path,
		Query:   query,
		Changed: path != original,
	}, nil
}

// validatePercentEscapes checks that all percent-escapes are %XX with two
// hex digits.
func validatePercentEscapes(path string) error {
	i := 0
	for i < len(path) {
		if path[i] == '%' {
			if i+2 >= len(path) {
				return ErrInvalidPercentEscape
			}
			if !isHexDigit(path[i+1]) || !isHexDigit(path[i+2]) {
				return ErrInvalidPercentEscape
			}
			i += 3
		} else {
			i++
		}
	}
	return nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// DecodeSegment decodes a single path segment. For non-catch-all segments,
// a decoded "/" (an encoded %2F) is rejected as a path smuggling attempt.
func DecodeSegment(segment string, isCatchAll bool) (string, error) {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return "", ErrInvalidPercentEscape
	}

	// SECURITY: For non-catch-all segments, reject %2F (encoded slash).
	if !isCatchAll && strings.Contains(decoded, "/") {
		return "", ErrEncodedSlashInSegment
	}

	return decoded, nil
}

// CanonicalizeNavPath canonicalizes and validates a client-supplied
// navigation path. Navigation payloads must be relative paths:
//   - must start with "/"
//   - must not be a full URL (no "http://", "https://", "//")
//
// Returns the canonicalized path with query string, or an error.
func CanonicalizeNavPath(path string) (string, error) {
	// SECURITY: Reject absolute URLs to prevent open-redirect attacks.
	if strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "//") {
		return "", ErrInvalidPath
	}
	if !strings.HasPrefix(path, "/") {
		return "", ErrInvalidPath
	}

	result, err := CanonicalizePath(path)
	if err != nil {
		return "", err
	}

	if result.Query != "" {
		return result.Path + "?" + result.Query, nil
	}
	return result.Path, nil
}

// SplitPathAndQuery splits a path into path and query components. The
// query is returned without the leading "?".
func SplitPathAndQuery(input string) (path, query string) {
	path, query, _ = strings.Cut(input, "?")
	return path, query
}
