// Package uri provides the resource identifier exchanged with the extension host.
//
// URIs cross the RPC boundary as plain Components and are revived into URI
// values on arrival. URI is comparable and can be used as a map key.
package uri

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidURI is returned when a string cannot be parsed as a URI.
var ErrInvalidURI = errors.New("uri: invalid uri")

// Components is the structurally cloneable form of a URI.
type Components struct {
	Scheme    string `json:"scheme"`
	Authority string `json:"authority,omitempty"`
	Path      string `json:"path,omitempty"`
	Query     string `json:"query,omitempty"`
	Fragment  string `json:"fragment,omitempty"`
}

// URI is an immutable resource identifier.
type URI struct {
	scheme    string
	authority string
	path      string
	query     string
	fragment  string
}

// Revive turns wire components into a URI.
// A missing scheme defaults to "file" and a path under an authority is made absolute.
func Revive(c Components) URI {
	u := URI{
		scheme:    c.Scheme,
		authority: c.Authority,
		path:      c.Path,
		query:     c.Query,
		fragment:  c.Fragment,
	}
	if u.scheme == "" {
		u.scheme = "file"
	}
	if u.authority != "" && u.path != "" && !strings.HasPrefix(u.path, "/") {
		u.path = "/" + u.path
	}
	if (u.scheme == "file" || u.scheme == "http" || u.scheme == "https") && u.path == "" {
		u.path = "/"
	}
	return u
}

// ReviveOptional revives c when it is non-nil.
func ReviveOptional(c *Components) *URI {
	if c == nil {
		return nil
	}
	u := Revive(*c)
	return &u
}

// Parse parses a URI string such as "file:///a/b" or "git:/repo?{}".
func Parse(s string) (URI, error) {
	if s == "" {
		return URI{}, fmt.Errorf("%w: empty string", ErrInvalidURI)
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if parsed.Scheme == "" {
		return URI{}, fmt.Errorf("%w: missing scheme in %q", ErrInvalidURI, s)
	}
	return Revive(Components{
		Scheme:    parsed.Scheme,
		Authority: parsed.Host,
		Path:      parsed.Path,
		Query:     parsed.RawQuery,
		Fragment:  parsed.Fragment,
	}), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// File returns a file URI for the given filesystem path.
func File(p string) URI {
	if !filepath.IsAbs(p) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return URI{scheme: "file", path: p}
}

// Scheme returns the URI scheme.
func (u URI) Scheme() string { return u.scheme }

// Authority returns the URI authority.
func (u URI) Authority() string { return u.authority }

// Path returns the URI path.
func (u URI) Path() string { return u.path }

// Query returns the raw query string.
func (u URI) Query() string { return u.query }

// Fragment returns the URI fragment.
func (u URI) Fragment() string { return u.fragment }

// IsZero reports whether u is the zero URI.
func (u URI) IsZero() bool { return u == URI{} }

// FSPath returns the filesystem path for file URIs.
func (u URI) FSPath() string {
	return filepath.FromSlash(u.path)
}

// WithQuery returns a copy of u with the query replaced.
func (u URI) WithQuery(q string) URI {
	u.query = q
	return u
}

// WithPath returns a copy of u with the path replaced.
func (u URI) WithPath(p string) URI {
	u.path = p
	return u
}

// Join returns u with the slash-separated elements appended to its path.
func (u URI) Join(elem ...string) URI {
	parts := append([]string{u.path}, elem...)
	u.path = path.Join(parts...)
	return u
}

// Components returns the wire form of u.
func (u URI) Components() Components {
	return Components{
		Scheme:    u.scheme,
		Authority: u.authority,
		Path:      u.path,
		Query:     u.query,
		Fragment:  u.fragment,
	}
}

// String formats u as a URI string.
func (u URI) String() string {
	out := url.URL{
		Scheme:   u.scheme,
		Host:     u.authority,
		Path:     u.path,
		RawQuery: u.query,
		Fragment: u.fragment,
	}
	return out.String()
}

// RelativePath returns the slash-separated path of target relative to base.
// The second result is false when target is not under base.
func RelativePath(base, target URI) (string, bool) {
	if base.scheme != target.scheme || base.authority != target.authority {
		return "", false
	}
	b := strings.TrimSuffix(base.path, "/")
	if target.path == b {
		return "", true
	}
	if !strings.HasPrefix(target.path, b+"/") {
		return "", false
	}
	return strings.TrimPrefix(target.path, b+"/"), true
}

// IsEqualOrParent reports whether target equals base or lives under it.
func IsEqualOrParent(target, base URI) bool {
	_, ok := RelativePath(base, target)
	return ok
}
