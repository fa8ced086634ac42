package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vpntrail/vpntrail/internal/logging"
)

// vpnlogsim appends synthetic OpenVPN session lifecycles to a log file,
// for exercising the daemon against realistic input without a VPN
// server. It can also rotate the file mid-run to exercise the tailer's
// rotation handling.

var (
	outPath     = flag.String("out", "openvpn.log", "Log file to append to")
	statusPath  = flag.String("status", "", "Optional status file to rewrite with connected clients")
	sessionRate = flag.Int("rate", 10, "New sessions per minute")
	holdSeconds = flag.Int("hold", 30, "Seconds a session stays connected")
	failPercent = flag.Int("fail", 10, "Percent of sessions that fail authentication")
	duration    = flag.Int("duration", 300, "Run duration in seconds")
	rotateEvery = flag.Int("rotate", 0, "Rotate the log after this many lines (0 = never)")
)

const timeFormat = "Mon Jan _2 15:04:05 2006"

var usernames = []string{"alice", "bob", "carol", "dave", "erin", "frank"}

// Stats tracks generator statistics
type Stats struct {
	sessionsStarted  uint64
	sessionsFailed   uint64
	sessionsFinished uint64
	linesWritten     uint64
	rotations        uint64
	startTime        time.Time
}

func (s *Stats) Report() {
	elapsed := time.Since(s.startTime).Seconds()
	fmt.Printf("\n=== Generator Statistics ===\n")
	fmt.Printf("Duration: %.0f seconds\n", elapsed)
	fmt.Printf("Sessions Started: %d\n", atomic.LoadUint64(&s.sessionsStarted))
	fmt.Printf("Sessions Failed Auth: %d\n", atomic.LoadUint64(&s.sessionsFailed))
	fmt.Printf("Sessions Finished: %d\n", atomic.LoadUint64(&s.sessionsFinished))
	fmt.Printf("Lines Written: %d\n", atomic.LoadUint64(&s.linesWritten))
	fmt.Printf("Rotations: %d\n", atomic.LoadUint64(&s.rotations))
	fmt.Printf("============================\n\n")
}

type client struct {
	ip        string
	port      int
	username  string
	virtualIP string
	bytesRx   int64
	bytesTx   int64
	since     time.Time
}

type generator struct {
	logger    *logging.Logger
	stats     *Stats
	connected []client
	nextVIP   int
	lineCount int
}

func main() {
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  "info",
		Format: "console",
	})

	if err := run(logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g := &generator{
		logger:  logger,
		stats:   &Stats{startTime: time.Now()},
		nextVIP: 2,
	}

	interval := time.Minute / time.Duration(*sessionRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	reaper := time.NewTicker(time.Second)
	defer reaper.Stop()

	logger.Info().
		Str("out", *outPath).
		Int("rate", *sessionRate).
		Msg("Generating synthetic OpenVPN sessions")

	deadline := time.After(time.Duration(*duration) * time.Second)
	for {
		select {
		case <-ticker.C:
			if err := g.startSession(); err != nil {
				return err
			}
		case <-reaper.C:
			if err := g.closeExpired(); err != nil {
				return err
			}
		case <-deadline:
			logger.Info().Msg("Run duration reached")
			g.stats.Report()
			return nil
		case <-sigCh:
			logger.Info().Msg("Received shutdown signal")
			g.stats.Report()
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// startSession writes one connect line, then either an auth failure or
// the learn / primary-virtual-IP pair of an authenticated client.
func (g *generator) startSession() error {
	c := client{
		ip:       fmt.Sprintf("203.0.113.%d", 1+rand.Intn(254)),
		port:     20000 + rand.Intn(40000),
		username: usernames[rand.Intn(len(usernames))],
		since:    time.Now(),
	}
	atomic.AddUint64(&g.stats.sessionsStarted, 1)

	if rand.Intn(100) < *failPercent {
		atomic.AddUint64(&g.stats.sessionsFailed, 1)
		return g.write(
			fmt.Sprintf("%s:%d [%s] Peer Connection Initiated with [AF_INET]%s:%d", c.ip, c.port, c.username, c.ip, c.port),
			fmt.Sprintf("%s:%d TLS Auth Error: AUTH: Failed", c.ip, c.port),
		)
	}

	c.virtualIP = fmt.Sprintf("10.8.0.%d", g.nextVIP)
	g.nextVIP++
	if g.nextVIP > 254 {
		g.nextVIP = 2
	}
	c.bytesRx = int64(rand.Intn(1 << 20))
	c.bytesTx = int64(rand.Intn(1 << 22))
	g.connected = append(g.connected, c)

	if err := g.write(
		fmt.Sprintf("%s:%d [%s] Peer Connection Initiated with [AF_INET]%s:%d", c.ip, c.port, c.username, c.ip, c.port),
		fmt.Sprintf("MULTI: Learn: %s -> %s/%s:%d", c.virtualIP, c.username, c.ip, c.port),
		fmt.Sprintf("MULTI: primary virtual IP for %s/%s:%d: %s", c.username, c.ip, c.port, c.virtualIP),
	); err != nil {
		return err
	}
	return g.writeStatus()
}

// closeExpired disconnects sessions older than the hold time.
func (g *generator) closeExpired() error {
	cutoff := time.Now().Add(-time.Duration(*holdSeconds) * time.Second)
	var kept []client
	for _, c := range g.connected {
		if c.since.After(cutoff) {
			kept = append(kept, c)
			continue
		}
		atomic.AddUint64(&g.stats.sessionsFinished, 1)
		if err := g.write(
			fmt.Sprintf("%s/%s:%d SIGTERM[soft,remote-exit] received, client-instance exiting", c.username, c.ip, c.port),
		); err != nil {
			return err
		}
	}
	changed := len(kept) != len(g.connected)
	g.connected = kept
	if changed {
		return g.writeStatus()
	}
	return nil
}

// write appends stamped lines, rotating first when the threshold is hit.
func (g *generator) write(lines ...string) error {
	if *rotateEvery > 0 && g.lineCount >= *rotateEvery {
		if err := os.Rename(*outPath, *outPath+".1"); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to rotate %s: %w", *outPath, err)
		}
		g.lineCount = 0
		atomic.AddUint64(&g.stats.rotations, 1)
		g.logger.Info().Str("path", *outPath).Msg("Rotated log file")
	}

	f, err := os.OpenFile(*outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", *outPath, err)
	}
	defer f.Close()

	stamp := time.Now().Format(timeFormat)
	for _, line := range lines {
		if _, err := fmt.Fprintf(f, "%s %s\n", stamp, line); err != nil {
			return fmt.Errorf("failed to write %s: %w", *outPath, err)
		}
		g.lineCount++
		atomic.AddUint64(&g.stats.linesWritten, 1)
	}
	return nil
}

// writeStatus rewrites the status file with the connected client table.
func (g *generator) writeStatus() error {
	if *statusPath == "" {
		return nil
	}

	f, err := os.Create(*statusPath)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", *statusPath, err)
	}
	defer f.Close()

	now := time.Now()
	fmt.Fprintf(f, "OpenVPN CLIENT LIST\nUpdated,%s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(f, "HEADER,CLIENT_LIST,Common Name,Real Address,Virtual Address,Virtual IPv6 Address,Bytes Received,Bytes Sent,Connected Since,Connected Since (time_t),Username")
	for _, c := range g.connected {
		fmt.Fprintf(f, "CLIENT_LIST,%s,%s:%d,%s,,%d,%d,%s,%d,%s\n",
			c.username, c.ip, c.port, c.virtualIP,
			c.bytesRx, c.bytesTx,
			c.since.Format("2006-01-02 15:04:05"), c.since.Unix(), c.username)
	}
	fmt.Fprintln(f, "ROUTING TABLE")
	fmt.Fprintln(f, "GLOBAL STATS")
	fmt.Fprintln(f, "END")
	return nil
}
