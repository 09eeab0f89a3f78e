// Package config holds the node and simulation configuration.
//
// Values come from a TOML file and command-line flags through viper. Each
// struct follows the same lifecycle: InitDefaults fills unset fields,
// Validate rejects inconsistent values, and Sample renders a commented
// TOML block with the defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/1ureka/netlayer/internal/protocol"
)

// Link kinds a peer can be dialed with.
const (
	KindWS  = "ws"
	KindRTC = "rtc"
)

// Viper keys of the two config sections.
const (
	NodeSection = "node"
	SimSection  = "sim"
)

const (
	DefaultListen            = ":8080"
	DefaultMaxPayload        = 16 << 20
	DefaultStatsInterval     = 5 * time.Second
	DefaultReconnectInterval = 3 * time.Second
	DefaultSTUNServer        = "stun:stun.l.google.com:19302"
)

var ErrInvalid = errors.New("invalid config")

// Peer is a host this node dials on startup.
type Peer struct {
	Address protocol.Address `toml:"address" mapstructure:"address"`
	URL     string           `toml:"url" mapstructure:"url"`
	Kind    string           `toml:"kind" mapstructure:"kind" comment:"ws or rtc; inferred from the URL path when empty"`
}

// ParsePeer parses the "<address>=<url>" form used on the command line.
// A URL whose path ends in /rtc is dialed through WebRTC signaling.
func ParsePeer(s string) (Peer, error) {
	addr, raw, ok := strings.Cut(s, "=")
	if !ok {
		return Peer{}, fmt.Errorf("%w: peer %q is not <address>=<url>", ErrInvalid, s)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(addr), 10, 32)
	if err != nil {
		return Peer{}, fmt.Errorf("%w: peer address %q: %w", ErrInvalid, addr, err)
	}

	p := Peer{Address: protocol.Address(n), URL: strings.TrimSpace(raw)}
	p.InitDefaults()
	return p, p.Validate()
}

func (p *Peer) InitDefaults() {
	if p.Kind != "" {
		return
	}
	p.Kind = KindWS
	if u, err := url.Parse(p.URL); err == nil && strings.HasSuffix(u.Path, "/rtc") {
		p.Kind = KindRTC
	}
}

func (p *Peer) Validate() error {
	u, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("%w: peer %s url: %w", ErrInvalid, p.Address, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: peer %s url %q must use ws or wss", ErrInvalid, p.Address, p.URL)
	}
	if p.Kind != KindWS && p.Kind != KindRTC {
		return fmt.Errorf("%w: peer %s kind %q", ErrInvalid, p.Address, p.Kind)
	}
	return nil
}

// Node configures one host process.
type Node struct {
	Address           protocol.Address `toml:"address" mapstructure:"address" comment:"Address of this host (int32)"`
	Listen            string           `toml:"listen" mapstructure:"listen" comment:"HTTP listen address for /link, /rtc and /metrics; empty disables the listener"`
	Peers             []Peer           `toml:"peers" mapstructure:"peers" comment:"Hosts dialed on startup"`
	STUNServers       []string         `toml:"stun_servers" mapstructure:"stun_servers" comment:"STUN servers for WebRTC links"`
	MaxPayload        int              `toml:"max_payload" mapstructure:"max_payload" comment:"Largest accepted payload in bytes"`
	StatsInterval     time.Duration    `toml:"stats_interval" mapstructure:"stats_interval" comment:"Traffic report interval; 0 disables it"`
	ReconnectInterval time.Duration    `toml:"reconnect_interval" mapstructure:"reconnect_interval" comment:"Delay between dial attempts"`
}

func (c *Node) InitDefaults() {
	if c.MaxPayload == 0 {
		c.MaxPayload = DefaultMaxPayload
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.STUNServers == nil {
		c.STUNServers = []string{DefaultSTUNServer}
	}
	for i := range c.Peers {
		c.Peers[i].InitDefaults()
	}
}

func (c *Node) Validate() error {
	if c.MaxPayload <= 0 {
		return fmt.Errorf("%w: max_payload must be positive, got %d", ErrInvalid, c.MaxPayload)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("%w: reconnect_interval must be positive", ErrInvalid)
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("%w: stats_interval must not be negative", ErrInvalid)
	}

	seen := make(map[protocol.Address]bool, len(c.Peers))
	for i := range c.Peers {
		p := &c.Peers[i]
		if p.Address == c.Address {
			return fmt.Errorf("%w: peer %s is this host", ErrInvalid, p.Address)
		}
		if seen[p.Address] {
			return fmt.Errorf("%w: duplicate peer %s", ErrInvalid, p.Address)
		}
		seen[p.Address] = true
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Sim configures one simulation run.
type Sim struct {
	Hosts           int     `toml:"hosts" mapstructure:"hosts" comment:"Number of hosts, addressed 0..hosts-1"`
	Topology        string  `toml:"topology" mapstructure:"topology" comment:"line, ring, star, full or random"`
	EdgeProbability float64 `toml:"edge_probability" mapstructure:"edge_probability" comment:"Edge probability of the random topology"`
	Messages        int     `toml:"messages" mapstructure:"messages" comment:"Messages sent between random host pairs"`
	PayloadSize     int     `toml:"payload_size" mapstructure:"payload_size" comment:"Payload bytes per message"`
	MaxChunk        int     `toml:"max_chunk" mapstructure:"max_chunk" comment:"Largest chunk a link delivers at once"`
	MaxEvents       int     `toml:"max_events" mapstructure:"max_events" comment:"Event budget; undelivered messages count as in flight"`
	Seed            uint64  `toml:"seed" mapstructure:"seed" comment:"Random seed"`
}

// Topology names accepted by Sim.
var Topologies = []string{"line", "ring", "star", "full", "random"}

func (c *Sim) InitDefaults() {
	if c.Hosts == 0 {
		c.Hosts = 8
	}
	if c.Topology == "" {
		c.Topology = "ring"
	}
	if c.EdgeProbability == 0 {
		c.EdgeProbability = 0.3
	}
	if c.Messages == 0 {
		c.Messages = 100
	}
	if c.PayloadSize == 0 {
		c.PayloadSize = 32
	}
	if c.MaxChunk == 0 {
		c.MaxChunk = 16
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = 1_000_000
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

func (c *Sim) Validate() error {
	switch {
	case c.Hosts < 2:
		return fmt.Errorf("%w: hosts must be at least 2, got %d", ErrInvalid, c.Hosts)
	case !validTopology(c.Topology):
		return fmt.Errorf("%w: unknown topology %q", ErrInvalid, c.Topology)
	case c.EdgeProbability <= 0 || c.EdgeProbability > 1:
		return fmt.Errorf("%w: edge_probability must be in (0, 1]", ErrInvalid)
	case c.Messages < 0:
		return fmt.Errorf("%w: messages must not be negative", ErrInvalid)
	case c.PayloadSize < 0:
		return fmt.Errorf("%w: payload_size must not be negative", ErrInvalid)
	case c.MaxChunk < 1:
		return fmt.Errorf("%w: max_chunk must be positive", ErrInvalid)
	case c.MaxEvents < 1:
		return fmt.Errorf("%w: max_events must be positive", ErrInvalid)
	}
	return nil
}

func validTopology(name string) bool {
	for _, t := range Topologies {
		if t == name {
			return true
		}
	}
	return false
}

// LoadNode decodes the node section of v, applies defaults and validates.
func LoadNode(v *viper.Viper) (Node, error) {
	var c Node
	if err := v.UnmarshalKey(NodeSection, &c); err != nil {
		return Node{}, fmt.Errorf("decoding node config: %w", err)
	}
	c.InitDefaults()
	return c, c.Validate()
}

// LoadSim decodes the sim section of v, applies defaults and validates.
func LoadSim(v *viper.Viper) (Sim, error) {
	var c Sim
	if err := v.UnmarshalKey(SimSection, &c); err != nil {
		return Sim{}, fmt.Errorf("decoding sim config: %w", err)
	}
	c.InitDefaults()
	return c, c.Validate()
}

// ReadFile reads a TOML config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("loading config from %s: %w", path, err)
	}
	return nil
}

// Sample writes a commented TOML config with the defaults of the named
// section (NodeSection or SimSection).
func Sample(dst io.Writer, section string) error {
	var body any
	switch section {
	case NodeSection:
		c := Node{Listen: DefaultListen, StatsInterval: DefaultStatsInterval}
		c.Peers = []Peer{{Address: 2, URL: "ws://127.0.0.1:8081/link", Kind: KindWS}}
		c.InitDefaults()
		body = map[string]Node{NodeSection: c}
	case SimSection:
		var c Sim
		c.InitDefaults()
		body = map[string]Sim{SimSection: c}
	default:
		return fmt.Errorf("%w: unknown section %q", ErrInvalid, section)
	}

	enc := toml.NewEncoder(dst)
	enc.SetIndentTables(true)
	return enc.Encode(body)
}
