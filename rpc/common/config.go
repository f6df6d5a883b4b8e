package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// DefaultMaxFrameBytes is the default upper bound for the payload of a single frame (16 MiB)
const DefaultMaxFrameBytes = 16 * 1024 * 1024

// DefaultMaxConcurrentCommands is the default number of goroutines that execute the commands
// of one batch. A single frame can carry millions of commands.
const DefaultMaxConcurrentCommands = 256

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration structs (shared by server and client)
// --------------------------------------------------------------------------

// SocketConf holds socket options that apply to all stream transports
type SocketConf struct {
	WriteBufferSize int // SO_SNDBUF in bytes, 0 keeps the OS default
	ReadBufferSize  int // SO_RCVBUF in bytes, 0 keeps the OS default
}

// TCPConf holds options that only apply to tcp connections
type TCPConf struct {
	TCPNoDelay      bool // disable Nagle's algorithm
	TCPKeepAliveSec int  // keep-alive period, 0 disables keep-alive
	TCPLingerSec    int  // SO_LINGER in seconds, 0 keeps the OS default
}

// ServerTransportConfig configures the server side of the transport layer
type ServerTransportConfig struct {
	// Endpoint is the address to listen on (host:port for tcp, a socket path for unix)
	Endpoint string
	// MaxFrameBytes is the largest accepted frame payload, 0 means DefaultMaxFrameBytes
	MaxFrameBytes int
	// IdleTimeoutSecond closes a connection that does not send a request in time, 0 disables it
	IdleTimeoutSecond int64
	// WriteTimeoutSecond bounds writing a response, 0 disables it
	WriteTimeoutSecond int64

	SocketConf
	TCPConf
}

// ClientTransportConfig configures the client side of the transport layer
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	// MaxFrameBytes is the largest accepted response payload, 0 means DefaultMaxFrameBytes
	MaxFrameBytes int

	SocketConf
	TCPConf
}

// FrameLimit returns the configured frame limit or the default
func (c ServerTransportConfig) FrameLimit() int {
	if c.MaxFrameBytes <= 0 {
		return DefaultMaxFrameBytes
	}
	return c.MaxFrameBytes
}

// FrameLimit returns the configured frame limit or the default
func (c ClientTransportConfig) FrameLimit() int {
	if c.MaxFrameBytes <= 0 {
		return DefaultMaxFrameBytes
	}
	return c.MaxFrameBytes
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// StoreType selects the task store implementation used by the server
type StoreType string

const (
	StoreTypeLocal StoreType = "local" // in-memory, single node (lstore)
	StoreTypeRaft  StoreType = "raft"  // replicated with dragonboat (dstore)
)

// ParseStoreType converts a string to a StoreType
func ParseStoreType(s string) (StoreType, error) {
	switch StoreType(strings.ToLower(strings.TrimSpace(s))) {
	case StoreTypeLocal:
		return StoreTypeLocal, nil
	case StoreTypeRaft:
		return StoreTypeRaft, nil
	default:
		return "", fmt.Errorf("invalid store type %q (expected %q or %q)", s, StoreTypeLocal, StoreTypeRaft)
	}
}

// ServerConfig holds all configuration parameters of the task server.
type ServerConfig struct {
	// StoreType selects between the local and the replicated store
	StoreType StoreType
	ShardID   uint64

	// Dragonboat parameters (only used for StoreTypeRaft)
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// TimeoutSecond bounds a single raft proposal or read
	TimeoutSecond int64

	// Dispatcher settings
	CommandTimeoutSecond  int64 // 0 disables the per command timeout
	MaxConcurrentCommands int   // 0 runs all commands of a batch at once

	// Transport settings
	Transport ServerTransportConfig

	// MetricsEndpoint is the http address for /metrics, empty disables it
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// CommandTimeout returns the per command timeout as a duration (0 if disabled)
func (c *ServerConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	optionalSec := func(sec int64) string {
		if sec <= 0 {
			return "disabled"
		}
		return fmt.Sprintf("%d sec", sec)
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.Transport.FrameLimit()))
	addField("Idle Timeout", optionalSec(c.Transport.IdleTimeoutSecond))
	addField("Write Timeout", optionalSec(c.Transport.WriteTimeoutSecond))
	addField("Command Timeout", optionalSec(c.CommandTimeoutSecond))
	if c.MaxConcurrentCommands > 0 {
		addField("Max Concurrent Cmds", strconv.Itoa(c.MaxConcurrentCommands))
	} else {
		addField("Max Concurrent Cmds", "batch size")
	}
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Store
	addSection("Store")
	addField("Type", string(c.StoreType))

	if c.StoreType == StoreTypeRaft {
		addField("Shard ID", strconv.FormatUint(c.ShardID, 10))

		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		// Cluster configuration
		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	// TimeoutSecond bounds a single request/response exchange, 0 disables it
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// Timeout returns the request timeout as a duration (0 if disabled)
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.Transport.FrameLimit()))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
