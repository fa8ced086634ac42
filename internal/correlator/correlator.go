package correlator

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/internal/status"
	"github.com/vpntrail/vpntrail/pkg/types"
)

// sessionState enumerates the lifecycle of one tracked session.
type sessionState int

const (
	stateNew sessionState = iota
	stateLearnedVIP
	stateAuthenticated
)

// session is the in-memory state for one live connection attempt. It is
// created on the connect line and removed on a terminal transition or by
// idle eviction.
type session struct {
	state     sessionState
	username  string
	virtualIP string
	startTime time.Time
	lastSeen  time.Time
}

// DefaultIdleTimeout evicts sessions that never reached a terminal
// transition, typically because the disconnect line fell on the far side
// of a missed rotation boundary.
const DefaultIdleTimeout = 24 * time.Hour

// Config holds correlator configuration.
type Config struct {
	ServerName     string
	ServerLocation string
	IdleTimeout    time.Duration
	Clock          func() time.Time
	Logger         *logging.Logger

	// Orphans counts correlation lines referencing an unknown session.
	// Optional; nil disables counting.
	Orphans prometheus.Counter
}

// Correlator merges the independent lines describing one session into
// structured events. It exclusively owns the live session table; only the
// log-correlation unit calls into it.
type Correlator struct {
	serverName     string
	serverLocation string
	idleTimeout    time.Duration
	clock          func() time.Time
	logger         *logging.Logger
	sessions       map[types.SessionKey]*session
	traffic        *status.Snapshot
	orphans        prometheus.Counter

	// Orphaned lines are a data anomaly, not a fault; cap the warning
	// volume so a replayed backlog cannot flood the log.
	warnLimit *rate.Limiter
}

// New creates a Correlator.
func New(cfg Config) *Correlator {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Correlator{
		serverName:     cfg.ServerName,
		serverLocation: cfg.ServerLocation,
		idleTimeout:    cfg.IdleTimeout,
		clock:          cfg.Clock,
		logger:         cfg.Logger.WithComponent("correlator"),
		sessions:       make(map[types.SessionKey]*session),
		orphans:        cfg.Orphans,
		warnLimit:      rate.NewLimiter(rate.Every(10*time.Second), 5),
	}
}

// SetTraffic installs the latest status-file snapshot, used to enrich
// disconnect events with byte counters.
func (c *Correlator) SetTraffic(snap *status.Snapshot) {
	c.traffic = snap
}

// ActiveSessions returns the number of tracked non-terminal sessions.
func (c *Correlator) ActiveSessions() int {
	return len(c.sessions)
}

// Consume feeds one raw log line through the state machine and returns the
// events it produced, usually none or one. Event timestamps come from the
// line itself where the daemon stamped one, so replaying a batch after a
// crash reproduces identical dedup identifiers; the clock is only a
// fallback. Lines that match no pattern are ignored; correlation lines
// with no matching session are dropped with a warning and never stop
// processing.
func (c *Correlator) Consume(line string) []*types.ConnectionEvent {
	ts, ok := lineTimestamp(line)
	if !ok {
		ts = c.clock()
	}
	ts = ts.Truncate(time.Second)

	if m := reDisconnect.FindStringSubmatch(line); m != nil {
		return c.onDisconnect(m, ts)
	}
	if m := rePrimaryVIP.FindStringSubmatch(line); m != nil {
		return c.onPrimaryVIP(m, ts)
	}
	if m := reLearn.FindStringSubmatch(line); m != nil {
		return c.onLearn(m)
	}
	if m := reAuthFailed.FindStringSubmatch(line); m != nil {
		return c.onAuthFailed(m, ts)
	}
	if m := reConnect.FindStringSubmatch(line); m != nil {
		return c.onConnect(m, ts)
	}
	return nil
}

// onConnect creates the session and emits connect immediately; the
// authentication outcome follows as a separate event.
func (c *Correlator) onConnect(m []string, ts time.Time) []*types.ConnectionEvent {
	key := sessionKey(m[1], m[2])

	if _, ok := c.sessions[key]; ok {
		// The server reuses an address:port pair only after the previous
		// session closed, so a second connect means its disconnect line
		// was lost. Start over from the fresh connect.
		c.warn("replacing stale session on repeated connect", key)
		delete(c.sessions, key)
	}

	c.sessions[key] = &session{
		state:     stateNew,
		username:  m[3],
		startTime: ts,
		lastSeen:  c.clock(),
	}

	return []*types.ConnectionEvent{c.event(types.EventConnect, key, ts, func(e *types.ConnectionEvent) {
		e.Username = m[3]
	})}
}

// onLearn records the virtual IP; no event until confirmation.
func (c *Correlator) onLearn(m []string) []*types.ConnectionEvent {
	key := sessionKey(m[3], m[4])
	s, ok := c.sessions[key]
	if !ok {
		c.orphan("learn line with no prior connect", key)
		return nil
	}

	s.virtualIP = m[1]
	if s.username == "" {
		s.username = m[2]
	}
	if s.state == stateNew {
		s.state = stateLearnedVIP
	}
	s.lastSeen = c.clock()
	return nil
}

// onPrimaryVIP confirms the learned virtual IP and emits authenticated.
// The line carries the address itself, so a session whose learn line was
// missed still authenticates correctly.
func (c *Correlator) onPrimaryVIP(m []string, ts time.Time) []*types.ConnectionEvent {
	key := sessionKey(m[2], m[3])
	s, ok := c.sessions[key]
	if !ok {
		c.orphan("primary virtual IP line with no prior connect", key)
		return nil
	}

	s.lastSeen = c.clock()
	if s.state == stateAuthenticated {
		return nil
	}

	s.virtualIP = m[4]
	if s.username == "" {
		s.username = m[1]
	}
	s.state = stateAuthenticated

	return []*types.ConnectionEvent{c.event(types.EventAuthenticated, key, ts, func(e *types.ConnectionEvent) {
		e.Username = s.username
		e.VirtualIP = s.virtualIP
	})}
}

// onAuthFailed is terminal from any non-terminal state.
func (c *Correlator) onAuthFailed(m []string, ts time.Time) []*types.ConnectionEvent {
	key := sessionKey(m[1], m[2])
	s, ok := c.sessions[key]
	if !ok {
		c.orphan("auth failure with no prior connect", key)
		return nil
	}

	delete(c.sessions, key)

	return []*types.ConnectionEvent{c.event(types.EventAuthFailed, key, ts, func(e *types.ConnectionEvent) {
		e.Username = s.username
	})}
}

// onDisconnect closes the session, computing the duration and attaching
// byte counters from the status snapshot when available. Absent counters
// stay nil, never zero.
func (c *Correlator) onDisconnect(m []string, ts time.Time) []*types.ConnectionEvent {
	key := sessionKey(m[2], m[3])
	s, ok := c.sessions[key]
	if !ok {
		c.orphan("disconnect with no prior connect", key)
		return nil
	}

	delete(c.sessions, key)

	username := s.username
	if username == "" {
		username = m[1]
	}
	duration := int64(ts.Sub(s.startTime) / time.Second)
	if duration < 0 {
		duration = 0
	}

	return []*types.ConnectionEvent{c.event(types.EventDisconnect, key, ts, func(e *types.ConnectionEvent) {
		e.Username = username
		e.VirtualIP = s.virtualIP
		e.SessionDuration = &duration
		if c.traffic != nil {
			if tr, ok := c.traffic.Lookup(key); ok {
				rx, tx := tr.BytesReceived, tr.BytesSent
				e.BytesReceived = &rx
				e.BytesSent = &tx
			}
		}
	})}
}

// EvictIdle removes sessions with no activity within the idle timeout.
// Their data is incomplete by construction, so no synthetic disconnect is
// emitted. Returns the number of evicted sessions.
func (c *Correlator) EvictIdle() int {
	now := c.clock()
	evicted := 0
	for key, s := range c.sessions {
		if now.Sub(s.lastSeen) > c.idleTimeout {
			delete(c.sessions, key)
			evicted++
			c.logger.Warn().
				Str("session", key.String()).
				Time("last_seen", s.lastSeen).
				Msg("Evicting idle session without terminal event")
		}
	}
	return evicted
}

func (c *Correlator) event(t types.EventType, key types.SessionKey, ts time.Time, fill func(*types.ConnectionEvent)) *types.ConnectionEvent {
	e := &types.ConnectionEvent{
		Timestamp:      ts,
		EventType:      t,
		ClientIP:       key.ClientIP,
		ClientPort:     key.ClientPort,
		ServerName:     c.serverName,
		ServerLocation: c.serverLocation,
	}
	fill(e)
	return e
}

// orphan accounts a correlation line whose session is unknown and warns
// about it. Orphans are dropped, never fatal.
func (c *Correlator) orphan(msg string, key types.SessionKey) {
	if c.orphans != nil {
		c.orphans.Inc()
	}
	c.warn(msg, key)
}

func (c *Correlator) warn(msg string, key types.SessionKey) {
	if c.warnLimit.Allow() {
		c.logger.Warn().Str("session", key.String()).Msg(msg)
	}
}

func sessionKey(ip, port string) types.SessionKey {
	p, _ := strconv.Atoi(port)
	return types.SessionKey{ClientIP: ip, ClientPort: p}
}
