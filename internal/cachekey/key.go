// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cachekey computes the deterministic, filesystem-safe cache keys
// used to name on-disk cache entries, and the exponential-backoff
// sequence shared by the cross-process wait loops and the Windows
// busy-file retry loops.
package cachekey

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic use: only for filesystem naming, per spec.md §3
	"fmt"
	"net/url"
	"strings"

	"github.com/cachedjdk/cjdk/internal/cjdkerr"
)

// ForURL returns the cache key for rawURL: the lowercase SHA-1 hex digest
// of the URL's netloc and path components, normalized by percent-decoding
// then percent-re-encoding with the safe set "+-._" (spec.md §3). URLs
// carrying a query, params, or fragment are rejected, matching the
// Python original's urllib.parse-based check.
func ForURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", cjdkerr.ConfigError("invalid URL %q: %v", rawURL, err)
	}
	if u.RawQuery != "" || u.Fragment != "" || strings.Contains(u.Opaque, ";") {
		return "", cjdkerr.ConfigError("URL should not have parameters, query, or fragment: %s", rawURL)
	}
	// url.Parse folds ";params" (RFC 2396 "params", rare in practice, used
	// historically in things like ";type=a") into the path on Go's URL
	// type; detect it the same way the original's urlparse(...).params
	// check would, by looking for a ';' in the final path segment.
	if idx := strings.LastIndexByte(u.Path, '/'); idx >= 0 {
		if strings.Contains(u.Path[idx+1:], ";") {
			return "", cjdkerr.ConfigError("URL should not have parameters, query, or fragment: %s", rawURL)
		}
	} else if strings.Contains(u.Path, ";") {
		return "", cjdkerr.ConfigError("URL should not have parameters, query, or fragment: %s", rawURL)
	}

	trimmed := strings.Trim(u.Path, "/")
	var items []string
	items = append(items, u.Host)
	if trimmed != "" {
		items = append(items, strings.Split(trimmed, "/")...)
	}

	reencoded := make([]string, len(items))
	for i, item := range items {
		r, err := percentReencode(item)
		if err != nil {
			return "", cjdkerr.ConfigError("invalid percent encoding in URL component %q: %v", item, err)
		}
		reencoded[i] = r
	}
	normalized := strings.Join(reencoded, "/")

	h := sha1.New() //nolint:gosec
	h.Write([]byte(normalized))
	return strings.ToLower(fmt.Sprintf("%x", h.Sum(nil))), nil
}

// percentReencode decodes item and re-encodes it keeping "+-._" literal,
// matching the Python original's safe set; everything else Go's
// url.PathUnescape/QueryEscape would encode is percent-escaped uppercase
// hex, same as urllib.parse.quote.
func percentReencode(item string) (string, error) {
	decoded, err := url.PathUnescape(item)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 0; i < len(decoded); i++ {
		c := decoded[i]
		if isUnreservedOrSafe(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String(), nil
}

func isUnreservedOrSafe(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '+' || c == '-' || c == '.' || c == '_':
		return true
	default:
		return false
	}
}

// BackoffSeconds yields the sequence of sleep durations for exponential
// backoff bounded by maxTotal, per spec.md §4.1. Intervals start at
// initial, grow by factor each step, and are capped at maxInterval. The
// sum of all positive yielded values never exceeds maxTotal. The final
// value yielded is always the sentinel -1, signaling the caller should
// make one last attempt before giving up.
func BackoffSeconds(initial, maxInterval, maxTotal, factor float64) []float64 {
	if factor <= 1 {
		factor = 1.5
	}
	var out []float64
	total := 0.0
	next := initial
	for maxTotal > 0 {
		nextTotal := total + next
		if nextTotal > maxTotal {
			remaining := maxTotal - total
			if remaining > 0.01 {
				out = append(out, remaining)
			}
			break
		}
		out = append(out, next)
		total = nextTotal
		next *= factor
		if next > maxInterval {
			next = maxInterval
		}
	}
	out = append(out, -1)
	return out
}
