package types

import (
	"fmt"
	"time"
)

// EventType classifies a connection lifecycle event.
type EventType string

const (
	EventConnect       EventType = "connect"
	EventAuthenticated EventType = "authenticated"
	EventDisconnect    EventType = "disconnect"
	EventAuthFailed    EventType = "auth_failed"
)

// SessionKey identifies one client connection attempt. The tuple is unique
// per live connection; the server reuses it only after the prior session
// closes.
type SessionKey struct {
	ClientIP   string
	ClientPort int
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s:%d", k.ClientIP, k.ClientPort)
}

// FilePosition tracks the read position in a monitored file. Inode is the
// rotation fingerprint; on filesystems without inodes it is zero and
// rotation is detected by size regression alone.
type FilePosition struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Inode  uint64 `json:"inode"`
}

// Record is anything a sink can persist.
type Record interface {
	Kind() string
}

// ConnectionEvent is the structured record emitted for one session
// transition. Optional fields are pointers so that absent data is stored
// as null, not zero.
type ConnectionEvent struct {
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
	EventType       EventType `json:"event_type" bson:"event_type"`
	ClientIP        string    `json:"client_ip" bson:"client_ip"`
	ClientPort      int       `json:"client_port" bson:"client_port"`
	Username        string    `json:"username,omitempty" bson:"username,omitempty"`
	VirtualIP       string    `json:"virtual_ip,omitempty" bson:"virtual_ip,omitempty"`
	BytesReceived   *int64    `json:"bytes_received,omitempty" bson:"bytes_received,omitempty"`
	BytesSent       *int64    `json:"bytes_sent,omitempty" bson:"bytes_sent,omitempty"`
	SessionDuration *int64    `json:"session_duration,omitempty" bson:"session_duration,omitempty"`
	ServerName      string    `json:"server_name,omitempty" bson:"server_name,omitempty"`
	ServerLocation  string    `json:"server_location,omitempty" bson:"server_location,omitempty"`
}

// Kind implements Record.
func (e *ConnectionEvent) Kind() string { return "connection_event" }

// Session returns the key of the session this event belongs to.
func (e *ConnectionEvent) Session() SessionKey {
	return SessionKey{ClientIP: e.ClientIP, ClientPort: e.ClientPort}
}

// DedupID derives the stable identifier used to suppress re-emission
// across restarts. The timestamp is truncated to the second so that a
// replayed batch produces identical identifiers.
func (e *ConnectionEvent) DedupID() string {
	return fmt.Sprintf("%s:%d/%s@%d", e.ClientIP, e.ClientPort, e.EventType, e.Timestamp.Unix())
}

// InterfaceAddr is one IPv4 assignment on a network interface.
type InterfaceAddr struct {
	IP      string `json:"ip" bson:"ip"`
	Netmask string `json:"netmask" bson:"netmask"`
}

// SystemStats is a point-in-time snapshot of host resource usage. A nil
// field means that metric could not be read when the sample was taken.
type SystemStats struct {
	Timestamp       time.Time                `json:"timestamp" bson:"timestamp"`
	CPUPercent      *float64                 `json:"cpu_percent,omitempty" bson:"cpu_percent,omitempty"`
	MemoryPercent   *float64                 `json:"memory_percent,omitempty" bson:"memory_percent,omitempty"`
	MemoryAvailable *uint64                  `json:"memory_available,omitempty" bson:"memory_available,omitempty"`
	DiskPercent     *float64                 `json:"disk_percent,omitempty" bson:"disk_percent,omitempty"`
	DiskFree        *uint64                  `json:"disk_free,omitempty" bson:"disk_free,omitempty"`
	Interfaces      map[string]InterfaceAddr `json:"interfaces,omitempty" bson:"interfaces,omitempty"`
	ServerName      string                   `json:"server_name,omitempty" bson:"server_name,omitempty"`
	ServerLocation  string                   `json:"server_location,omitempty" bson:"server_location,omitempty"`
}

// Kind implements Record.
func (s *SystemStats) Kind() string { return "system_stats" }
