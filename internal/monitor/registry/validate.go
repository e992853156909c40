package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/watchvane/sentinel/internal/common/urlutil"
	"github.com/watchvane/sentinel/internal/monitor/model"
	"github.com/watchvane/sentinel/pkg/types"
)

const (
	minNameLen = 2
	maxNameLen = 100
	maxURLLen  = 2048
)

// validateName enforces spec.md §4.7's name rule: 2-100 chars, restricted
// to letters/digits/space/hyphen/underscore/period (the closest uncontroversial
// "allowed character class" reading of the spec's prose).
func validateName(name string) error {
	if len(name) < minNameLen || len(name) > maxNameLen {
		return model.NewValidationError("name", fmt.Sprintf("must be %d-%d characters", minNameLen, maxNameLen))
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ' ' || r == '-' || r == '_' || r == '.':
		default:
			return model.NewValidationError("name", "contains disallowed characters")
		}
	}
	return nil
}

// validateURL enforces HTTP/HTTPS scheme, a non-empty hostname, and (when
// production is true) rejects private/loopback IP literals per spec.md
// §4.7's "reject private/loopback hosts when running in production mode".
func validateURL(rawURL string, production bool) (normalized string, err error) {
	if len(rawURL) > maxURLLen {
		return "", model.NewValidationError("url", fmt.Sprintf("must be at most %d characters", maxURLLen))
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		if !strings.Contains(rawURL, "://") {
			u, err = url.Parse("https://" + rawURL)
		}
	}
	if err != nil {
		return "", model.NewValidationError("url", "malformed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", model.NewValidationError("url", "must be http or https")
	}
	hostname := u.Hostname()
	if hostname == "" {
		return "", model.NewValidationError("url", "missing hostname")
	}
	if production {
		if err := urlutil.ValidateHostNotPrivateIP(hostname); err != nil {
			return "", model.NewValidationError("url", "private/loopback hosts are not permitted")
		}
	}

	normalized, err = urlutil.Normalize(u.String())
	if err != nil {
		return "", model.NewValidationError("url", "could not normalize")
	}
	return normalized, nil
}

func validateGroup(g types.Group) error {
	if g == "" {
		return nil
	}
	if !types.ValidGroups[g] {
		return model.NewValidationError("group", "unrecognized group")
	}
	return nil
}

// validateDependencies enforces 24-hex opaque ids with no duplicates.
func validateDependencies(deps []string) error {
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		if !model.ValidID(d) {
			return model.NewValidationError("dependencies", fmt.Sprintf("malformed id %q", d))
		}
		if seen[d] {
			return model.NewValidationError("dependencies", fmt.Sprintf("duplicate dependency %q", d))
		}
		seen[d] = true
	}
	return nil
}
