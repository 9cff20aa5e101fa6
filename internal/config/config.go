// Package config loads server and client settings.
//
// Values are resolved with the following priority:
//  1. CLI flags (passed via Options) - highest priority
//  2. Environment variables, optionally seeded from a .env file
//  3. Defaults from the struct tags - lowest priority
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ServerConfig configures the relay server.
type ServerConfig struct {
	Host            string        `env:"HOST,default=0.0.0.0" validate:"required"`
	Port            int           `env:"PORT,default=8000" validate:"gte=1,lte=65535"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=*" validate:"required"`
	SendBuffer      int           `env:"SEND_BUFFER,default=256" validate:"gt=0"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=65536" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL,default=info" validate:"oneof=dev development debug info warn warning error production prod"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s" validate:"gt=0"`
}

// ServerOptions holds flag overrides. Zero values mean "not set".
type ServerOptions struct {
	Host           string
	Port           int
	AllowedOrigins string
	LogLevel       string
}

// LoadServer reads the server configuration.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	_ = godotenv.Load()

	var cfg ServerConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Port = opts.Port
	}
	if opts.AllowedOrigins != "" {
		cfg.AllowedOrigins = opts.AllowedOrigins
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return &cfg, nil
}

// Addr is the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Origins splits AllowedOrigins on commas.
func (c *ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// AllowsOrigin reports whether a websocket upgrade from origin is accepted.
// Requests without an Origin header (non-browser clients) are always allowed.
func (c *ServerConfig) AllowsOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range c.Origins() {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Default client values.
const (
	DefaultURL  = "ws://localhost:8000/ws"
	DefaultSTUN = "stun:stun.l.google.com:19302"
)

// ClientConfig configures the callrelay client commands.
type ClientConfig struct {
	URL        string `env:"CALLRELAY_URL,default=ws://localhost:8000/ws" validate:"required,url"`
	Codec      string `env:"CALLRELAY_CODEC,default=json" validate:"oneof=json msgpack"`
	STUNServer string `env:"STUN_SERVER,default=stun:stun.l.google.com:19302"`
	TURNServer string `env:"TURN_SERVER"`
	TURNUser   string `env:"TURN_USERNAME"`
	TURNPass   string `env:"TURN_PASSWORD"`
	ForceRelay bool   `env:"FORCE_RELAY"`
}

// ClientOptions holds flag overrides for ClientConfig.
type ClientOptions struct {
	URL        string
	Codec      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// LoadClient reads the client configuration.
func LoadClient(opts ClientOptions) (*ClientConfig, error) {
	_ = godotenv.Load()

	var cfg ClientConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	override(&cfg.URL, opts.URL)
	override(&cfg.Codec, opts.Codec)
	override(&cfg.STUNServer, opts.STUNServer)
	override(&cfg.TURNServer, opts.TURNServer)
	override(&cfg.TURNUser, opts.TURNUser)
	override(&cfg.TURNPass, opts.TURNPass)
	if opts.ForceRelay {
		cfg.ForceRelay = true
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return &cfg, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// GetSTUNServers returns STUN server URLs.
func (c *ClientConfig) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *ClientConfig) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turns:"), "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password.
func (c *ClientConfig) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// RoomsURL derives the HTTP rooms endpoint from the websocket URL.
func (c *ClientConfig) RoomsURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws") + "/rooms"
	u.RawQuery = ""
	return u.String(), nil
}
