// Package config loads and validates the operator-authored server settings.
// Settings live in a single JSON document; every field carries a usable
// default so an empty file yields a working local server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config models the JSON contract for server settings. It is shared with the
// schema generator so operators get a machine-readable document for
// validation and editor tooling.
type Config struct {
	Transport string `json:"transport,omitempty" jsonschema:"title=Transport kind,enum=websocket,enum=datagram,description=Network transport implementation to serve on"`
	Host      string `json:"host,omitempty" jsonschema:"title=Bind host,description=Interface address the listener binds to"`
	Port      int    `json:"port,omitempty" jsonschema:"title=Listen port,minimum=1,maximum=65535"`

	SharedSecret string `json:"sharedSecret,omitempty" jsonschema:"title=Admission secret,description=Pre-shared key clients must present to connect"`
	MaxPeers     int    `json:"maxPeers,omitempty" jsonschema:"title=Connection cap,minimum=1,description=Hard limit on simultaneous connections"`

	PacketsPerSecond float64 `json:"packetsPerSecond,omitempty" jsonschema:"title=Per-peer packet rate,minimum=1"`
	PacketBurst      int     `json:"packetBurst,omitempty" jsonschema:"title=Per-peer packet burst,minimum=1"`

	TickRate          int     `json:"tickRate,omitempty" jsonschema:"title=Simulation tick rate,minimum=1,maximum=240,description=Fixed authoritative ticks per second"`
	MaxPlayersPerZone int     `json:"maxPlayersPerZone,omitempty" jsonschema:"title=Zone instance cap,minimum=1"`
	ZoneIDs           []int32 `json:"zoneIds,omitempty" jsonschema:"title=Known zone ids,description=Zone ids clients may request to join"`

	Seed       int64  `json:"seed,omitempty" jsonschema:"title=Deterministic seed,description=Seed for spawn jitter and replay reproduction"`
	ReplayPath string `json:"replayPath,omitempty" jsonschema:"title=Replay output path,description=When set records simulation events for offline playback"`

	DiagnosticsPort int `json:"diagnosticsPort,omitempty" jsonschema:"title=Diagnostics HTTP port,description=Serves /healthz and /diagnostics when nonzero"`

	LogPath       string `json:"logPath,omitempty" jsonschema:"title=Log file path,description=When set logs rotate to this file instead of stderr"`
	LogMaxSizeMB  int    `json:"logMaxSizeMb,omitempty" jsonschema:"title=Log rotation size,minimum=1"`
	LogMaxBackups int    `json:"logMaxBackups,omitempty" jsonschema:"title=Rotated files kept,minimum=0"`
}

// Default returns the settings used when no file is supplied.
func Default() Config {
	return Config{
		Transport:         "websocket",
		Host:              "127.0.0.1",
		Port:              4000,
		SharedSecret:      "dev-secret",
		MaxPeers:          64,
		PacketsPerSecond:  120,
		PacketBurst:       240,
		TickRate:          60,
		MaxPlayersPerZone: 20,
		ZoneIDs:           []int32{1, 2, 3},
		LogMaxSizeMB:      32,
		LogMaxBackups:     3,
	}
}

// Load reads a JSON settings file and fills omitted fields from Default.
// An empty path returns Default unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch c.Transport {
	case "websocket", "datagram":
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.SharedSecret == "" {
		return fmt.Errorf("sharedSecret must not be empty")
	}
	if c.MaxPeers < 1 {
		return fmt.Errorf("maxPeers must be positive, got %d", c.MaxPeers)
	}
	if c.TickRate < 1 || c.TickRate > 240 {
		return fmt.Errorf("tickRate %d out of range", c.TickRate)
	}
	if c.MaxPlayersPerZone < 1 {
		return fmt.Errorf("maxPlayersPerZone must be positive, got %d", c.MaxPlayersPerZone)
	}
	if len(c.ZoneIDs) == 0 {
		return fmt.Errorf("at least one zone id is required")
	}
	seen := make(map[int32]bool, len(c.ZoneIDs))
	for _, id := range c.ZoneIDs {
		if seen[id] {
			return fmt.Errorf("duplicate zone id %d", id)
		}
		seen[id] = true
	}
	if c.PacketsPerSecond < 1 {
		return fmt.Errorf("packetsPerSecond must be at least 1")
	}
	if c.PacketBurst < 1 {
		return fmt.Errorf("packetBurst must be at least 1")
	}
	return nil
}
