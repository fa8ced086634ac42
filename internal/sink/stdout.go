package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vpntrail/vpntrail/pkg/types"
)

// StdoutSink prints records as JSON lines. Useful for dry runs and for
// piping into other tools.
type StdoutSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewStdoutSink creates a stdout sink. A nil writer means os.Stdout.
func NewStdoutSink(out io.Writer) *StdoutSink {
	if out == nil {
		out = os.Stdout
	}
	return &StdoutSink{out: out}
}

// Write implements Sink.
func (s *StdoutSink) Write(ctx context.Context, rec types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rec.Kind(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write %s: %w", rec.Kind(), err)
	}
	return nil
}

// Ping implements Sink.
func (s *StdoutSink) Ping(ctx context.Context) error { return ctx.Err() }

// Close implements Sink.
func (s *StdoutSink) Close(ctx context.Context) error { return nil }

// Name implements Sink.
func (s *StdoutSink) Name() string { return "stdout" }
