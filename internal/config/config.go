// Package config holds the station configuration: role, ARQ mode, link and
// packet I/O selection, and the radio parameters reported to the operator.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Role selects which end of the radio link this process is.
type Role string

const (
	RoleBase   Role = "base"
	RoleMobile Role = "mobile"
)

// Mode selects the acknowledgment scheme of the ARQ.
type Mode string

const (
	ModeNAK Mode = "nak" // selective negative acknowledgment (default)
	ModeACK Mode = "ack" // positive acknowledgment of every frame
)

// Link kinds.
const (
	LinkWebRTC    = "webrtc"
	LinkWebSocket = "websocket"
	LinkQUIC      = "quic"
	LinkUDP       = "udp"
	LinkSerial    = "serial"
)

// PacketIO kinds.
const (
	PacketIOSpool = "spool"
)

// EnvConfigPath names the environment variable holding the JSON config path.
const EnvConfigPath = "RADIOLINK_CONFIG"

var ErrInvalid = errors.New("invalid config")

// Duration is a time.Duration that reads and writes "1ms" style strings.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Radio describes the transceiver settings of a station. The hardware is set
// up externally; these values are only reported.
type Radio struct {
	Address string `json:"address"`
	Channel int    `json:"channel"`
}

// Interface describes the virtual network interface packets come from.
type Interface struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Gateway string `json:"gateway,omitempty"`
}

// Link selects and parameterizes the frame carrier.
type Link struct {
	Kind   string   `json:"kind"`
	Listen string   `json:"listen,omitempty"` // local bind address
	Peer   string   `json:"peer,omitempty"`   // remote address or ws:// URL
	PIN    string   `json:"pin,omitempty"`    // rendezvous PIN (webrtc, websocket)
	STUN   []string `json:"stun,omitempty"`   // webrtc STUN servers; empty keeps the defaults
	Device string   `json:"device,omitempty"` // serial port
	Baud   int      `json:"baud,omitempty"`
	Loss   float64  `json:"loss,omitempty"` // emulated frame loss in [0,1)
}

// PacketIO selects where outbound packets come from and inbound ones go.
type PacketIO struct {
	Kind   string `json:"kind"`
	Outbox string `json:"outbox"`
	Inbox  string `json:"inbox"`
}

// Config stores every station parameter.
type Config struct {
	Role           Role      `json:"-"`
	Mode           Mode      `json:"mode"`
	ResendInterval Duration  `json:"resend_interval"`
	Debug          bool      `json:"debug"`
	StatusAddr     string    `json:"status_addr,omitempty"`
	Radio          Radio     `json:"radio"`
	Interface      Interface `json:"interface"`
	Link           Link      `json:"link"`
	PacketIO       PacketIO  `json:"packetio"`
}

// Default returns the built-in configuration for role.
func Default(role Role) *Config {
	cfg := &Config{
		Role:           role,
		Mode:           ModeNAK,
		ResendInterval: Duration{time.Millisecond},
		Link: Link{
			Kind: LinkWebRTC,
			Baud: 9600,
		},
		PacketIO: PacketIO{
			Kind:   PacketIOSpool,
			Outbox: fmt.Sprintf("spool/%s/outbox", role),
			Inbox:  fmt.Sprintf("spool/%s/inbox", role),
		},
	}

	switch role {
	case RoleBase:
		cfg.Radio = Radio{Address: "BAS", Channel: 76}
		cfg.Interface = Interface{Name: "tun0", Address: "192.168.2.1/24"}
		cfg.Link.Listen = ":7400"
	case RoleMobile:
		cfg.Radio = Radio{Address: "MOB", Channel: 100}
		cfg.Interface = Interface{Name: "tun0", Address: "192.168.2.2/24", Gateway: "192.168.2.1"}
		cfg.Link.Peer = "ws://127.0.0.1:7400/ws"
	}

	return cfg
}

// Load returns the defaults for role overlaid with the JSON file at path.
// An empty path yields the defaults.
func Load(role Role, path string) (*Config, error) {
	cfg := Default(role)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the station depends on.
func (c *Config) Validate() error {
	if c.Role != RoleBase && c.Role != RoleMobile {
		return fmt.Errorf("%w: role %q", ErrInvalid, c.Role)
	}
	if c.Mode != ModeNAK && c.Mode != ModeACK {
		return fmt.Errorf("%w: mode %q (want nak or ack)", ErrInvalid, c.Mode)
	}
	if c.ResendInterval.Duration <= 0 {
		return fmt.Errorf("%w: resend_interval must be positive", ErrInvalid)
	}
	if c.Link.Loss < 0 || c.Link.Loss >= 1 {
		return fmt.Errorf("%w: link.loss must be in [0,1)", ErrInvalid)
	}

	switch c.Link.Kind {
	case LinkWebRTC, LinkWebSocket, LinkQUIC:
		if c.Role == RoleBase && c.Link.Listen == "" {
			return fmt.Errorf("%w: link.listen is required on the base", ErrInvalid)
		}
		if c.Role == RoleMobile && c.Link.Peer == "" {
			return fmt.Errorf("%w: link.peer is required on the mobile", ErrInvalid)
		}
	case LinkUDP:
		if c.Link.Listen == "" || c.Link.Peer == "" {
			return fmt.Errorf("%w: udp link needs listen and peer", ErrInvalid)
		}
	case LinkSerial:
		if c.Link.Device == "" || c.Link.Baud <= 0 {
			return fmt.Errorf("%w: serial link needs device and baud", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown link kind %q", ErrInvalid, c.Link.Kind)
	}

	if c.PacketIO.Kind != PacketIOSpool {
		return fmt.Errorf("%w: unknown packetio kind %q", ErrInvalid, c.PacketIO.Kind)
	}
	if c.PacketIO.Outbox == "" || c.PacketIO.Inbox == "" {
		return fmt.Errorf("%w: packetio needs outbox and inbox", ErrInvalid)
	}
	return nil
}
