package origin

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrEmpty             = errors.New("origin is empty")
	ErrNotAbsolute       = errors.New("origin must be an absolute URL")
	ErrUnsupportedScheme = errors.New("origin scheme must be http or https")
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Origin is a scheme+host+port triple. The zero value is not a valid origin.
type Origin struct {
	scheme string
	host   string
	port   string
}

// Parse extracts the origin of an absolute http(s) URL. The result
// serializes like a browser's URL.origin: lowercase scheme and host,
// default port omitted.
func Parse(raw string) (Origin, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Origin{}, ErrEmpty
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Origin{}, fmt.Errorf("parsing origin %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return Origin{}, fmt.Errorf("%w: %q", ErrNotAbsolute, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	defaultPort, ok := defaultPorts[scheme]
	if !ok {
		return Origin{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Origin{}, fmt.Errorf("%w: %q", ErrNotAbsolute, raw)
	}

	port := u.Port()
	if port == defaultPort {
		port = ""
	}

	return Origin{scheme: scheme, host: host, port: port}, nil
}

// MustParse is like Parse but panics on error (for use with known-good origins)
func MustParse(raw string) Origin {
	o, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return o
}

// FromReferrer returns the origin of a document referrer. An empty referrer
// is an error: browsers send none when the embedder's policy strips it.
func FromReferrer(referrer string) (Origin, error) {
	if strings.TrimSpace(referrer) == "" {
		return Origin{}, fmt.Errorf("referrer: %w", ErrEmpty)
	}
	return Parse(referrer)
}

// IsZero reports whether o is the zero Origin.
func (o Origin) IsZero() bool {
	return o.scheme == ""
}

// Equal is exact comparison of all three parts.
func (o Origin) Equal(other Origin) bool {
	return o == other
}

func (o Origin) String() string {
	if o.IsZero() {
		return ""
	}
	host := o.host
	if strings.Contains(host, ":") {
		// IPv6 literal
		host = "[" + host + "]"
	}
	if o.port == "" {
		return o.scheme + "://" + host
	}
	return o.scheme + "://" + net.JoinHostPort(o.host, o.port)
}

// MarshalText implements encoding.TextMarshaler
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Origin) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
