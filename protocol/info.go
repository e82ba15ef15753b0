package protocol

const (
	// DefaultPort is the registered port of the protocol.
	DefaultPort = 4222

	// ClientLang is sent as `lang` in every CONNECT.
	ClientLang = "go"
)

// ServerInfo is the capability record a server sends in its INFO line. It is
// never modified once parsed.
type ServerInfo struct {
	ServerID     string   `json:"server_id"`
	Version      string   `json:"version"`
	GoVersion    string   `json:"go,omitempty"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	Proto        int      `json:"proto"`
	MaxPayload   int64    `json:"max_payload"`
	TLSRequired  bool     `json:"tls_required"`
	TLSVerify    bool     `json:"tls_verify"`
	AuthRequired bool     `json:"auth_required"`
	ConnectURLs  []string `json:"connect_urls"`
	ClientID     *uint64  `json:"client_id,omitempty"`
	LameDuckMode bool     `json:"ldm"`
}

func (*ServerInfo) GetVerb() Verb { return INFO }

// ConnectOptions are the negotiable fields of a CONNECT body. Empty strings
// are sent as null.
type ConnectOptions struct {
	Verbose      bool   `json:"verbose"`
	Pedantic     bool   `json:"pedantic"`
	TLSRequired  bool   `json:"tls_required"`
	AuthToken    string `json:"auth_token"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	Name         string `json:"name"`
	Lang         string `json:"lang"`
	Version      string `json:"version"`
	Protocol     int    `json:"protocol"`
	Echo         bool   `json:"echo"`
	NoResponders bool   `json:"no_responders"`
	Headers      bool   `json:"headers"`
}
