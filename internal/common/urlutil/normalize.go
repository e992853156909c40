package urlutil

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Normalize reduces a URL to canonical form for duplicate detection
// (registry §4.7 conflict check): lowercase scheme/host, default port
// stripped, path slash-collapsed, query sorted, fragment dropped.
// Adapted from the teacher's cache-key URL normalizer, minus the
// tracking-parameter stripping this domain has no use for.
func Normalize(rawURL string) (string, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid URL: missing host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(strings.TrimSuffix(u.Host, "."))

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	if u.Path == "" {
		u.Path = "/"
	}
	u.Path = collapseSlashes(u.Path)
	u.RawQuery = sortQuery(u.RawQuery)
	u.Fragment = ""

	return u.String(), nil
}

// ContentAddressedRef derives a stable path for a screenshot blob from the
// probed URL and a timestamp, the way the teacher derives cache keys from
// a normalized URL hash (internal/edge/hash/normalizer.go's Hash).
func ContentAddressedRef(rawURL string, unixNano int64) string {
	prefix := rawURL
	if len(prefix) > 48 {
		prefix = prefix[:48]
	}
	h := xxhash.Sum64String(fmt.Sprintf("%s|%d", prefix, unixNano))
	return fmt.Sprintf("%016x", h)
}

func collapseSlashes(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path
}

func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		for _, v := range values[k] {
			if v == "" {
				parts = append(parts, url.QueryEscape(k))
			} else {
				parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
	}
	return strings.Join(parts, "&")
}
