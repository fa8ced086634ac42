package status

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/vpntrail/vpntrail/pkg/types"
)

// Traffic holds the per-client counters published in the status table.
type Traffic struct {
	CommonName    string
	Username      string
	VirtualIP     string
	BytesReceived int64
	BytesSent     int64
}

// Snapshot is one full parse of the server status file: every currently
// connected client keyed by its real address. The file is rewritten
// periodically by the server, so a snapshot is only ever read whole.
type Snapshot struct {
	clients map[types.SessionKey]Traffic
}

// Load reads and parses the status file at path. The caller decides how to
// degrade when the file is missing or unreadable; enrichment from a
// snapshot is always optional.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f), nil
}

// Parse extracts CLIENT_LIST rows from status file content. Rows it cannot
// interpret are skipped; the table header and routing sections carry no
// per-client counters.
func Parse(r io.Reader) *Snapshot {
	snap := &Snapshot{clients: make(map[types.SessionKey]Traffic)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "CLIENT_LIST,") {
			continue
		}

		// CLIENT_LIST,common_name,real_address,virtual_address,virtual_ipv6,
		// bytes_received,bytes_sent,connected_since,connected_since_t,username,...
		parts := strings.Split(line, ",")
		if len(parts) < 8 {
			continue
		}

		key, ok := parseRealAddress(parts[2])
		if !ok {
			continue
		}

		tr := Traffic{
			CommonName: parts[1],
			VirtualIP:  parts[3],
		}
		tr.BytesReceived, _ = strconv.ParseInt(parts[5], 10, 64)
		tr.BytesSent, _ = strconv.ParseInt(parts[6], 10, 64)
		if len(parts) > 9 && parts[9] != "UNDEF" {
			tr.Username = parts[9]
		}

		snap.clients[key] = tr
	}

	return snap
}

// Lookup returns the traffic counters for one connected client.
func (s *Snapshot) Lookup(key types.SessionKey) (Traffic, bool) {
	tr, ok := s.clients[key]
	return tr, ok
}

// Len returns the number of connected clients in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.clients)
}

func parseRealAddress(addr string) (types.SessionKey, bool) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return types.SessionKey{ClientIP: addr}, addr != ""
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return types.SessionKey{}, false
	}
	return types.SessionKey{ClientIP: addr[:i], ClientPort: port}, true
}
