// Package config loads and validates the daemon configuration. The
// config file uses the same text format the config channel speaks, so
// one parser covers both.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kestreldns/kestrel/internal/data"
	"github.com/kestreldns/kestrel/internal/keyring"
	"github.com/kestreldns/kestrel/internal/logging"
)

// ServerConfig describes the query listeners.
type ServerConfig struct {
	// UDPAddresses and TCPAddresses are host:port listen addresses.
	UDPAddresses []string
	TCPAddresses []string

	// SyncOK enables the no-copy lookup path on UDP listeners.
	SyncOK bool

	// TCPRecvTimeout bounds the wait for each inbound TCP message.
	TCPRecvTimeout time.Duration
}

// MsgqConfig describes the message bus listener.
type MsgqConfig struct {
	Enabled bool
	Address string
}

// APIConfig describes the command API endpoint.
type APIConfig struct {
	Enabled bool
	Host    string
	Port    int
	Key     string
}

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig
	Msgq      MsgqConfig
	API       APIConfig
	StorePath string
	Logging   logging.Config
	Keys      *keyring.Ring

	// Zone is the static lookup table handed to the lookup provider.
	Zone *data.Element
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	tree, err := data.FromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return FromElement(tree)
}

// FromElement builds a Config from a parsed configuration tree.
func FromElement(tree *data.Element) (*Config, error) {
	if tree.GetType() != data.Map {
		return nil, errors.New("config root must be a map")
	}

	cfg := &Config{}
	cfg.Server.UDPAddresses = stringList(tree, "server/udp_addresses")
	cfg.Server.TCPAddresses = stringList(tree, "server/tcp_addresses")
	if v, ok := boolAt(tree, "server/sync_ok"); ok {
		cfg.Server.SyncOK = v
	}
	if ms, ok := intAt(tree, "server/tcp_recv_timeout_ms"); ok {
		cfg.Server.TCPRecvTimeout = time.Duration(ms) * time.Millisecond
	}

	if v, ok := boolAt(tree, "msgq/enabled"); ok {
		cfg.Msgq.Enabled = v
	}
	cfg.Msgq.Address = stringAt(tree, "msgq/address", "127.0.0.1:9912")

	if v, ok := boolAt(tree, "api/enabled"); ok {
		cfg.API.Enabled = v
	}
	cfg.API.Host = stringAt(tree, "api/host", "127.0.0.1")
	if port, ok := intAt(tree, "api/port"); ok {
		cfg.API.Port = int(port)
	} else {
		cfg.API.Port = 8053
	}
	cfg.API.Key = stringAt(tree, "api/key", "")

	cfg.StorePath = stringAt(tree, "store/path", "kestrel.db")

	cfg.Logging.Level = stringAt(tree, "logging/level", "INFO")
	cfg.Logging.Format = stringAt(tree, "logging/format", "text")
	if v, ok := boolAt(tree, "logging/include_pid"); ok {
		cfg.Logging.IncludePID = v
	}

	keys := keyring.NewRing()
	for _, spec := range stringList(tree, "tsig_keys") {
		k, err := keyring.ParseKeySpec(spec)
		if err != nil {
			return nil, fmt.Errorf("config tsig_keys: %w", err)
		}
		if !keys.Add(k) {
			return nil, fmt.Errorf("config tsig_keys: duplicate key name %q", k.Name)
		}
	}
	cfg.Keys = keys

	if zone, ok := tree.FindOK("zone"); ok {
		if zone.GetType() != data.Map {
			return nil, errors.New("config zone must be a map")
		}
		cfg.Zone = zone
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes the configuration and rejects unusable values.
func (cfg *Config) Validate() error {
	for _, addr := range append(append([]string{}, cfg.Server.UDPAddresses...), cfg.Server.TCPAddresses...) {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("bad listen address %q: %w", addr, err)
		}
	}
	if cfg.Server.TCPRecvTimeout < 0 {
		return errors.New("server.tcp_recv_timeout_ms must not be negative")
	}
	if cfg.Msgq.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Msgq.Address); err != nil {
			return fmt.Errorf("bad msgq address %q: %w", cfg.Msgq.Address, err)
		}
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return errors.New("api.port must be 1..65535")
	}
	if cfg.API.Enabled && cfg.API.Key == "" {
		return errors.New("api.key is required when the API is enabled")
	}
	if cfg.StorePath == "" {
		return errors.New("store.path must not be empty")
	}
	return nil
}

// APIAddr returns the host:port the command API listens on.
func (cfg *Config) APIAddr() string {
	return net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
}

func stringAt(tree *data.Element, path, fallback string) string {
	el, ok := tree.FindOK(path)
	if !ok {
		return fallback
	}
	if s, ok := el.GetString(); ok {
		return s
	}
	return fallback
}

func intAt(tree *data.Element, path string) (int32, bool) {
	el, ok := tree.FindOK(path)
	if !ok {
		return 0, false
	}
	return el.GetInt()
}

func boolAt(tree *data.Element, path string) (bool, bool) {
	el, ok := tree.FindOK(path)
	if !ok {
		return false, false
	}
	return el.GetBool()
}

func stringList(tree *data.Element, path string) []string {
	el, ok := tree.FindOK(path)
	if !ok {
		return nil
	}
	items, ok := el.GetList()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.GetString(); ok {
			out = append(out, s)
		}
	}
	return out
}
