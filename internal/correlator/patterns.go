package correlator

import (
	"regexp"
	"time"
)

// Line patterns for the OpenVPN server log. The daemon prefixes every line
// with a timestamp; none of these anchor to the start of the line so the
// prefix format does not matter.
const ipPort = `(\d{1,3}(?:\.\d{1,3}){3}):(\d+)`

var (
	// 203.0.113.7:51820 [bob] Peer Connection Initiated with [AF_INET]203.0.113.7:51820
	reConnect = regexp.MustCompile(ipPort + `\s+\[([^\]]+)\]\s+Peer Connection Initiated`)

	// MULTI: Learn: 10.8.0.2 -> bob/203.0.113.7:51820
	reLearn = regexp.MustCompile(`MULTI: Learn:\s+(\d{1,3}(?:\.\d{1,3}){3})\s+->\s+([^/\s]+)/` + ipPort)

	// MULTI: primary virtual IP for bob/203.0.113.7:51820: 10.8.0.2
	rePrimaryVIP = regexp.MustCompile(`MULTI: primary virtual IP for ([^/\s]+)/` + ipPort + `:\s+(\d{1,3}(?:\.\d{1,3}){3})`)

	// 203.0.113.7:51820 AUTH: Failed  (also matches the user/addr:port form)
	reAuthFailed = regexp.MustCompile(ipPort + `.*AUTH: Failed`)

	// bob/203.0.113.7:51820 SIGTERM[soft,remote-exit] received, client-instance exiting
	reDisconnect = regexp.MustCompile(`([^/\s]+)/` + ipPort + `\s+SIGTERM\[soft,remote-exit\]`)

	// Leading timestamp, either the daemon's default ctime form
	// ("Tue Aug 26 09:12:44 2026") or the ISO form some builds emit.
	reLineTime = regexp.MustCompile(`^(?:(\w{3} \w{3} +\d{1,2} \d{2}:\d{2}:\d{2} \d{4})|(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}))`)
)

// lineTimestamp parses the timestamp the daemon stamped on the line, if
// any. Stamped times are local server time.
func lineTimestamp(line string) (time.Time, bool) {
	m := reLineTime.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	if m[1] != "" {
		if t, err := time.ParseInLocation("Mon Jan _2 15:04:05 2006", m[1], time.Local); err == nil {
			return t, true
		}
	}
	if m[2] != "" {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", m[2], time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
