package utils

import (
	"net/url"
	"strings"
)

// ResolveURL resolves href against base and returns it in a canonical form:
// lower-case scheme and host, no fragment. Hrefs that do not parse, and
// relative hrefs without a usable base, come back unchanged.
func ResolveURL(base, href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || href == "" {
		return href
	}
	if !u.IsAbs() {
		if base == "" {
			return href
		}
		bu, err := url.Parse(base)
		if err != nil {
			return href
		}
		u = bu.ResolveReference(u)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
