package mogilefs

import (
	"net/url"
	"strings"
)

// StorageURL returns the canonical storage location of key:
//
//	<scheme>://<host>/<base path segments>/d/<domain>/k/<key segments>
//
// Empty base path segments are dropped; key segments are kept as split on '/'.
func StorageURL(base *url.URL, domain, key string) *url.URL {
	segs := make([]string, 0, 8)
	for _, s := range strings.Split(base.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	segs = append(segs, "d", domain, "k")
	segs = append(segs, strings.Split(key, "/")...)

	u := *base
	u.Path = "/" + strings.Join(segs, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

// ParseStoragePath is the inverse of StorageURL for the path part below the
// base path: it accepts "/d/<domain>/k/<key...>".
func ParseStoragePath(p string) (domain, key string, ok bool) {
	p = strings.TrimPrefix(p, "/")
	rest, found := strings.CutPrefix(p, "d/")
	if !found {
		return "", "", false
	}
	domain, key, found = strings.Cut(rest, "/k/")
	if !found || domain == "" || key == "" {
		return "", "", false
	}
	return domain, key, true
}
