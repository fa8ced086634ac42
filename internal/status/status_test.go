package status

import (
	"strings"
	"testing"

	"github.com/vpntrail/vpntrail/pkg/types"
)

const sampleStatus = `TITLE,OpenVPN 2.5.5 x86_64-pc-linux-gnu
TIME,2026-08-26 10:15:00,1787739300
HEADER,CLIENT_LIST,Common Name,Real Address,Virtual Address,Virtual IPv6 Address,Bytes Received,Bytes Sent,Connected Since,Connected Since (time_t),Username,Client ID,Peer ID
CLIENT_LIST,bob,203.0.113.7:51820,10.8.0.2,,148237,982113,2026-08-26 09:12:44,1787735564,bob,0,0
CLIENT_LIST,alice,198.51.100.23:40110,10.8.0.3,,55,1024,2026-08-26 10:01:02,1787738462,UNDEF,1,1
HEADER,ROUTING_TABLE,Virtual Address,Common Name,Real Address,Last Ref,Last Ref (time_t)
ROUTING_TABLE,10.8.0.2,bob,203.0.113.7:51820,2026-08-26 10:14:59,1787739299
GLOBAL_STATS,Max bcast/mcast queue length,1
END
`

func TestParseClientList(t *testing.T) {
	snap := Parse(strings.NewReader(sampleStatus))

	if snap.Len() != 2 {
		t.Fatalf("expected 2 clients, got %d", snap.Len())
	}

	tr, ok := snap.Lookup(types.SessionKey{ClientIP: "203.0.113.7", ClientPort: 51820})
	if !ok {
		t.Fatal("bob's session not found")
	}
	if tr.CommonName != "bob" || tr.Username != "bob" {
		t.Errorf("unexpected identity: %+v", tr)
	}
	if tr.VirtualIP != "10.8.0.2" {
		t.Errorf("virtual IP = %q", tr.VirtualIP)
	}
	if tr.BytesReceived != 148237 || tr.BytesSent != 982113 {
		t.Errorf("byte counters = %d/%d", tr.BytesReceived, tr.BytesSent)
	}
}

func TestParseUndefUsernameDropped(t *testing.T) {
	snap := Parse(strings.NewReader(sampleStatus))

	tr, ok := snap.Lookup(types.SessionKey{ClientIP: "198.51.100.23", ClientPort: 40110})
	if !ok {
		t.Fatal("alice's session not found")
	}
	if tr.Username != "" {
		t.Errorf("UNDEF username should map to empty, got %q", tr.Username)
	}
}

func TestParseMalformedRowsSkipped(t *testing.T) {
	content := "CLIENT_LIST,short\nCLIENT_LIST,x,not-an-address-at-all:port,v,,a,b,c\nEND\n"
	snap := Parse(strings.NewReader(content))
	if snap.Len() != 0 {
		t.Errorf("malformed rows must be skipped, got %d entries", snap.Len())
	}
}

func TestParseEmptyInput(t *testing.T) {
	snap := Parse(strings.NewReader(""))
	if snap.Len() != 0 {
		t.Errorf("expected empty snapshot, got %d", snap.Len())
	}
	if _, ok := snap.Lookup(types.SessionKey{ClientIP: "1.2.3.4", ClientPort: 1}); ok {
		t.Error("lookup on empty snapshot must miss")
	}
}
