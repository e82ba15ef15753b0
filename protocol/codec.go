package protocol

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Codec encodes and decodes the JSON bodies of INFO and CONNECT lines.
type Codec interface {
	EncodeConnect(opts *ConnectOptions) ([]byte, error)
	DecodeConnect(data []byte) (*ConnectOptions, error)
	EncodeInfo(info *ServerInfo) ([]byte, error)
	DecodeInfo(data []byte) (*ServerInfo, error)
}

// DefaultCodec is used whenever a caller doesn't supply one.
var DefaultCodec Codec = JSONCodec{}

// JSONCodec writes bodies key by key, in the order servers document them, and
// reads them with every optional field falling back to its zero value.
type JSONCodec struct{}

type field struct {
	path  string
	value interface{}
}

func (JSONCodec) EncodeConnect(opts *ConnectOptions) ([]byte, error) {
	return setFields([]field{
		{"verbose", opts.Verbose},
		{"pedantic", opts.Pedantic},
		{"tls_required", opts.TLSRequired},
		{"auth_token", nullable(opts.AuthToken)},
		{"user", nullable(opts.User)},
		{"pass", nullable(opts.Pass)},
		{"name", nullable(opts.Name)},
		{"lang", opts.Lang},
		{"version", opts.Version},
		{"protocol", opts.Protocol},
		{"echo", opts.Echo},
		{"no_responders", opts.NoResponders},
		{"headers", opts.Headers},
	})
}

func (JSONCodec) DecodeConnect(data []byte) (*ConnectOptions, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("CONNECT body is not a JSON object: %w", ErrMalformedFrame)
	}

	doc := gjson.ParseBytes(data)

	return &ConnectOptions{
		Verbose:      doc.Get("verbose").Bool(),
		Pedantic:     doc.Get("pedantic").Bool(),
		TLSRequired:  doc.Get("tls_required").Bool(),
		AuthToken:    doc.Get("auth_token").String(),
		User:         doc.Get("user").String(),
		Pass:         doc.Get("pass").String(),
		Name:         doc.Get("name").String(),
		Lang:         doc.Get("lang").String(),
		Version:      doc.Get("version").String(),
		Protocol:     int(doc.Get("protocol").Int()),
		Echo:         doc.Get("echo").Bool(),
		NoResponders: doc.Get("no_responders").Bool(),
		Headers:      doc.Get("headers").Bool(),
	}, nil
}

func (JSONCodec) EncodeInfo(info *ServerInfo) ([]byte, error) {
	fields := []field{
		{"server_id", info.ServerID},
		{"version", info.Version},
	}

	if info.GoVersion != "" {
		fields = append(fields, field{"go", info.GoVersion})
	}

	fields = append(fields,
		field{"host", info.Host},
		field{"port", info.Port},
		field{"proto", info.Proto},
		field{"max_payload", info.MaxPayload},
		field{"tls_required", info.TLSRequired},
		field{"tls_verify", info.TLSVerify},
		field{"auth_required", info.AuthRequired},
	)

	if len(info.ConnectURLs) > 0 {
		fields = append(fields, field{"connect_urls", info.ConnectURLs})
	}

	if info.ClientID != nil {
		fields = append(fields, field{"client_id", *info.ClientID})
	}

	if info.LameDuckMode {
		fields = append(fields, field{"ldm", true})
	}

	return setFields(fields)
}

var requiredInfoFields = []string{"server_id", "version", "host", "port", "proto", "max_payload"}

func (JSONCodec) DecodeInfo(data []byte) (*ServerInfo, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("INFO body is not a JSON object: %w", ErrMalformedFrame)
	}

	doc := gjson.ParseBytes(data)

	for _, name := range requiredInfoFields {
		if !doc.Get(name).Exists() {
			return nil, fmt.Errorf("INFO body is missing %q: %w", name, ErrMalformedFrame)
		}
	}

	info := &ServerInfo{
		ServerID:     doc.Get("server_id").String(),
		Version:      doc.Get("version").String(),
		GoVersion:    doc.Get("go").String(),
		Host:         doc.Get("host").String(),
		Port:         int(doc.Get("port").Int()),
		Proto:        int(doc.Get("proto").Int()),
		MaxPayload:   doc.Get("max_payload").Int(),
		TLSRequired:  doc.Get("tls_required").Bool(),
		TLSVerify:    doc.Get("tls_verify").Bool(),
		AuthRequired: doc.Get("auth_required").Bool(),
		ConnectURLs:  []string{},
		LameDuckMode: doc.Get("ldm").Bool(),
	}

	for _, url := range doc.Get("connect_urls").Array() {
		info.ConnectURLs = append(info.ConnectURLs, url.String())
	}

	if id := doc.Get("client_id"); id.Exists() && id.Type == gjson.Number {
		clientID := id.Uint()
		info.ClientID = &clientID
	}

	return info, nil
}

func setFields(fields []field) (body []byte, err error) {
	body = []byte("{}")

	for _, f := range fields {
		if f.value == nil {
			body, err = sjson.SetRawBytes(body, f.path, []byte("null"))
		} else {
			body, err = sjson.SetBytes(body, f.path, f.value)
		}

		if err != nil {
			return nil, fmt.Errorf("Failed to encode %q: %w", f.path, err)
		}
	}

	return body, nil
}

// nullable maps blank strings to a JSON null.
func nullable(s string) interface{} {
	if IsBlank(s) {
		return nil
	}

	return s
}

var _ Codec = JSONCodec{}
