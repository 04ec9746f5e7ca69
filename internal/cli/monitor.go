package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"collectord/internal/config"
	"collectord/internal/transport"
	"collectord/internal/transport/wsbus"
	"collectord/pkg/types"
)

// monitorOptions configure one subscriber session.
type monitorOptions struct {
	URL       string
	Collector string
	Sub       string
	Pull      bool
	Stats     bool
	Raw       bool
	Count     int
}

func newMonitorCmd(opts *Options) *cobra.Command {
	mo := monitorOptions{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Subscribe to a collector and print its events",
		Example: "  collectord monitor --collector-name ecal --sub hits\n" +
			"  collectord monitor --pull --sub 'sub_events.#(producer==\"hcal\")' --raw",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			mo.Collector = cfg.CollectorName
			return fnMonitor(cmd.Context(), mo, logger, opts.stdout)
		},
	}
	f := cmd.Flags()
	f.StringVar(&mo.URL, "url", "ws://localhost:8080", "Collector base URL")
	f.String("collector-name", config.DefaultCollectorName, "Collector to subscribe to")
	f.StringVar(&mo.Sub, "sub", "", "Sub-event identifier; empty for the full event")
	f.BoolVar(&mo.Pull, "pull", false, "Request the latest event once and exit")
	f.BoolVar(&mo.Stats, "stats", false, "Also print STATS updates")
	f.BoolVar(&mo.Raw, "raw", false, "Print payloads instead of summaries")
	f.IntVar(&mo.Count, "count", 0, "Exit after this many events (0 runs until interrupted)")
	return cmd
}

// session is one registered subscriber connection.
type session struct {
	c    *wsbus.Client
	name string
	log  zerolog.Logger
}

func (s *session) op(o types.Operation) string { return types.OperationName(s.name, o) }

// register subscribes to the acknowledgement service, registers, and waits for
// the collector to confirm.
func (s *session) register(ctx context.Context) (transport.ClientID, error) {
	acks := make(chan transport.ClientID, 1)
	err := s.c.Subscribe(ctx, s.op(types.OpClientRegistered), func(p []byte) {
		id, err := transport.DecodeInt32(p)
		if err != nil || id <= 0 {
			return
		}
		select {
		case acks <- transport.ClientID(id):
		default:
		}
	})
	if err != nil {
		return 0, fmt.Errorf("subscribe registration service: %w", err)
	}
	if err := s.c.Command(s.op(types.OpClientRegistration), transport.EncodeInt32(1)); err != nil {
		return 0, err
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.c.Done():
		return 0, wsbus.ErrClosed
	case id := <-acks:
		return id, nil
	}
}

func (s *session) deregister() {
	if err := s.c.Command(s.op(types.OpClientRegistration), transport.EncodeInt32(0)); err != nil {
		s.log.Debug().Err(err).Msg("deregistration failed")
	}
}

func runMonitor(ctx context.Context, mo monitorOptions, logger zerolog.Logger, out io.Writer) error {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	c, err := wsbus.Dial(dctx, endpoint(mo.URL, "/ws"))
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()
	s := &session{c: c, name: mo.Collector, log: logger}

	if mo.Pull {
		b, err := c.Request(ctx, s.op(types.OpEventRawRequest), []byte(mo.Sub))
		if err != nil {
			return err
		}
		printEvent(out, mo.Raw, b)
		return nil
	}

	rctx, rcancel := context.WithTimeout(ctx, dialTimeout)
	id, err := s.register(rctx)
	rcancel()
	if err != nil {
		return err
	}
	defer s.deregister()
	logger.Info().Int32("client_id", int32(id)).Str("collector", mo.Collector).Msg("registered")

	if mo.Sub != "" {
		if err := c.Command(s.op(types.OpSubEventIdentifier), []byte(mo.Sub)); err != nil {
			return err
		}
	}

	var (
		mu   sync.Mutex
		seen int
		done = make(chan struct{})
	)
	var once sync.Once
	onEvent := func(p []byte) {
		if types.IsEmptySentinel(p) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if mo.Count > 0 && seen >= mo.Count {
			return
		}
		printEvent(out, mo.Raw, p)
		seen++
		if mo.Count > 0 && seen >= mo.Count {
			once.Do(func() { close(done) })
		}
	}
	// The value delivered on subscribe is a past broadcast; only count fresh
	// pushes once push mode is on.
	var fresh atomic.Bool
	if err := c.Subscribe(ctx, s.op(types.OpEventRawUpdate), func(p []byte) {
		if fresh.Load() {
			onEvent(p)
		}
	}); err != nil {
		return err
	}
	fresh.Store(true)
	if mo.Stats {
		if err := c.Subscribe(ctx, s.op(types.OpStats), func(p []byte) {
			mu.Lock()
			defer mu.Unlock()
			_, _ = fmt.Fprintf(out, "stats %s\n", p)
		}); err != nil {
			return err
		}
	}
	if err := c.Command(s.op(types.OpUpdateMode), transport.EncodeInt32(int32(types.ModePush))); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		return nil
	case <-c.Done():
		if err := c.Err(); err != nil && !errors.Is(err, wsbus.ErrClosed) {
			return fmt.Errorf("connection lost: %w", err)
		}
		return nil
	}
}

// printEvent writes one line per event: the payload with raw, otherwise a
// summary read from the encoded event.
func printEvent(out io.Writer, raw bool, p []byte) {
	if raw {
		_, _ = fmt.Fprintf(out, "%s\n", p)
		return
	}
	if types.IsEmptySentinel(p) {
		_, _ = fmt.Fprintln(out, "no event")
		return
	}
	if !gjson.ValidBytes(p) {
		_, _ = fmt.Fprintf(out, "event bytes=%d\n", len(p))
		return
	}
	res := gjson.GetManyBytes(p, "type", "trigger_n", "sub_events.#")
	_, _ = fmt.Fprintf(out, "event type=%s trigger=%s sub_events=%d bytes=%d\n",
		orDash(res[0].String()), orDash(res[1].String()), res[2].Int(), len(p))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
