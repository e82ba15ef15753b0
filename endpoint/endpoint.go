package endpoint

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/luma/lantern/protocol"
)

type Scheme string

const (
	SchemePlain Scheme = "nats"
	SchemeTLS   Scheme = "tls"
)

var (
	ErrNoEndpoints       = errors.New("At least one endpoint is required")
	ErrUnsupportedScheme = errors.New("Scheme is not supported")
	ErrInvalidEndpoint   = errors.New("Endpoint is invalid")
)

// Endpoint is one server a client may connect to.
type Endpoint struct {
	Host     string
	Port     int
	Scheme   Scheme
	User     string
	Password string
}

// Parse reads `[scheme://][user[:password]@]host[:port]`. The scheme defaults
// to nats and the port to the protocol's registered port.
func Parse(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("Failed to parse endpoint: %w", ErrInvalidEndpoint)
	}

	if !strings.Contains(raw, "://") {
		raw = string(SchemePlain) + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("Failed to parse endpoint '%s': %v: %w", raw, err, ErrInvalidEndpoint)
	}

	scheme := Scheme(strings.ToLower(u.Scheme))
	if scheme != SchemePlain && scheme != SchemeTLS {
		return Endpoint{}, fmt.Errorf("Failed to parse endpoint '%s': %w", raw, ErrUnsupportedScheme)
	}

	if u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("Failed to parse endpoint '%s', missing host: %w", raw, ErrInvalidEndpoint)
	}

	ep := Endpoint{
		Host:   u.Hostname(),
		Port:   protocol.DefaultPort,
		Scheme: scheme,
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, fmt.Errorf("Failed to parse endpoint '%s', bad port: %w", raw, ErrInvalidEndpoint)
		}
		ep.Port = port
	}

	if u.User != nil {
		ep.User = u.User.Username()
		ep.Password, _ = u.User.Password()
	}

	return ep, nil
}

// Address is the `host:port` to dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) IsTLS() bool {
	return e.Scheme == SchemeTLS
}

// HasCredentials reports whether both user and password are set.
func (e Endpoint) HasCredentials() bool {
	return !protocol.IsBlank(e.User) && !protocol.IsBlank(e.Password)
}

// String never includes the password.
func (e Endpoint) String() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = SchemePlain
	}

	if e.User != "" {
		return fmt.Sprintf("%s://%s@%s", scheme, e.User, e.Address())
	}

	return fmt.Sprintf("%s://%s", scheme, e.Address())
}

// Directory is the ordered list of endpoints a client tries when connecting.
type Directory struct {
	endpoints []Endpoint
}

// NewDirectory copies endpoints, shuffling the copy when randomize is set.
func NewDirectory(endpoints []Endpoint, randomize bool) (*Directory, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	eps := make([]Endpoint, len(endpoints))
	copy(eps, endpoints)

	if randomize {
		rand.Shuffle(len(eps), func(i, j int) {
			eps[i], eps[j] = eps[j], eps[i]
		})
	}

	return &Directory{endpoints: eps}, nil
}

// ParseDirectory parses each entry of raws, splitting entries on commas.
func ParseDirectory(raws []string, randomize bool) (*Directory, error) {
	var endpoints []Endpoint

	for _, raw := range raws {
		for _, part := range strings.Split(raw, ",") {
			if protocol.IsBlank(part) {
				continue
			}

			ep, err := Parse(part)
			if err != nil {
				return nil, err
			}

			endpoints = append(endpoints, ep)
		}
	}

	return NewDirectory(endpoints, randomize)
}

// Endpoints returns a copy of the directory in connection order.
func (d *Directory) Endpoints() []Endpoint {
	eps := make([]Endpoint, len(d.endpoints))
	copy(eps, d.endpoints)
	return eps
}

func (d *Directory) Len() int {
	return len(d.endpoints)
}
