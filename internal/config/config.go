package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIBaseURL     = "https://api.induk.shop"
	DefaultSocketURL      = "https://api.induk.shop/chat"
	DefaultReconnectDelay = 5 * time.Second
	DefaultHeartBeat      = 10 * time.Second
	DefaultLocale         = "ko"
	DefaultLogFile        = "shop-chat.log"
)

// Duration lets TOML files carry durations as "5s" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	d.Duration = v
	return nil
}

type Config struct {
	APIBaseURL     string   `toml:"api_base_url"`
	SocketURL      string   `toml:"socket_url"`
	AccessToken    string   `toml:"access_token"`
	RoomId         int64    `toml:"room_id"`
	ReconnectDelay Duration `toml:"reconnect_delay"`
	HeartBeat      Duration `toml:"heartbeat"`
	Locale         string   `toml:"locale"`
	DebugAddr      string   `toml:"debug_addr"`
	LogFile        string   `toml:"log_file"`
}

func Default() *Config {
	return &Config{
		APIBaseURL:     DefaultAPIBaseURL,
		SocketURL:      DefaultSocketURL,
		ReconnectDelay: Duration{DefaultReconnectDelay},
		HeartBeat:      Duration{DefaultHeartBeat},
		Locale:         DefaultLocale,
		LogFile:        DefaultLogFile,
	}
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api base url cannot be empty")
	}
	if err := validateURL(c.APIBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("api base url: %w", err)
	}
	if c.SocketURL == "" {
		return fmt.Errorf("socket url cannot be empty")
	}
	if err := validateURL(c.SocketURL, "http", "https", "ws", "wss"); err != nil {
		return fmt.Errorf("socket url: %w", err)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	if c.ReconnectDelay.Duration <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	if c.HeartBeat.Duration < 0 {
		return fmt.Errorf("heartbeat cannot be negative")
	}
	if c.RoomId < 0 {
		return fmt.Errorf("room id cannot be negative")
	}

	return nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("missing host in %q", raw)
			}
			return nil
		}
	}

	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}
