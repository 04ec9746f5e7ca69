package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"collectord/internal/config"
	"collectord/internal/dataserver"
	"collectord/internal/source"
	"collectord/internal/transport/wsbus"
	"collectord/pkg/types"
)

// streamOptions configure one replay run.
type streamOptions struct {
	URL          string
	Collector    string
	Producer     string
	Sync         bool
	Sleep        time.Duration
	Skip         int
	Spill        int
	SpillPause   time.Duration
	Loop         bool
	FirstTrigger uint64
	KeepTriggers bool
}

func newStreamCmd(opts *Options) *cobra.Command {
	so := streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream <file-or-dir>",
		Short: "Replay recorded events into a collector",
		Example: "  collectord stream run-12.jsonl --collector-name ecal --sleep-time 10ms\n" +
			"  collectord stream ./spills --sync --producer hcal --simulate-spill 500 --loop",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			so.Collector = cfg.CollectorName
			return fnStream(cmd.Context(), args[0], so, logger, opts.stdout)
		},
	}
	f := cmd.Flags()
	f.StringVar(&so.URL, "url", "ws://localhost:8080", "Collector base URL")
	f.String("collector-name", config.DefaultCollectorName, "Collector to send events to")
	f.StringVar(&so.Producer, "producer", "", "Producer name (sync mode); generated by the server when empty")
	f.BoolVar(&so.Sync, "sync", false, "Send to the producer endpoint of a synchronizing collector")
	f.DurationVar(&so.Sleep, "sleep-time", 0, "Pause between two events")
	f.IntVar(&so.Skip, "skip-events", 0, "Skip this many events at the start of the stream")
	f.IntVar(&so.Spill, "simulate-spill", 0, "Send in bursts of this many events (0 disables)")
	f.DurationVar(&so.SpillPause, "spill-pause", time.Second, "Pause between two spills")
	f.BoolVar(&so.Loop, "loop", false, "Restart from the first file at the end of input")
	f.Uint64Var(&so.FirstTrigger, "first-trigger", 1, "Trigger number stamped on the first sent event")
	f.BoolVar(&so.KeepTriggers, "keep-triggers", false, "Send recorded trigger numbers unchanged")
	return cmd
}

// sender delivers one encoded event.
type sender interface {
	Send(payload []byte) error
	Close() error
}

// busSender sends events as collect commands over the subscriber bus.
type busSender struct {
	c    *wsbus.Client
	name string
}

func (b busSender) Send(payload []byte) error { return b.c.Command(b.name, payload) }
func (b busSender) Close() error              { return b.c.Close() }

func dialSender(ctx context.Context, so streamOptions) (sender, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if so.Sync {
		return dataserver.Dial(dctx, endpoint(so.URL, "/producers"), so.Producer)
	}
	c, err := wsbus.Dial(dctx, endpoint(so.URL, "/ws"))
	if err != nil {
		return nil, err
	}
	return busSender{c: c, name: types.OperationName(so.Collector, types.OpCollectRawEvent)}, nil
}

func runStream(ctx context.Context, path string, so streamOptions, logger zerolog.Logger, out io.Writer) error {
	files, err := source.Files(path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no event files in %s", path)
	}
	snd, err := dialSender(ctx, so)
	if err != nil {
		return err
	}
	defer snd.Close()

	r := &replay{opts: so, snd: snd, log: logger, trigger: so.FirstTrigger}
	for {
		for _, f := range files {
			if err := r.file(ctx, f); err != nil {
				if ctx.Err() != nil {
					break
				}
				return err
			}
		}
		if !so.Loop || ctx.Err() != nil {
			break
		}
	}
	_, _ = fmt.Fprintf(out, "sent %d events (skipped %d, invalid %d)\n", r.sent, r.skipped, r.invalid)
	return nil
}

// replay carries counters across files and loops.
type replay struct {
	opts    streamOptions
	snd     sender
	log     zerolog.Logger
	trigger uint64
	sent    int
	skipped int
	invalid int
	inSpill int
}

func (r *replay) file(ctx context.Context, path string) error {
	f, err := source.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r.log.Info().Str("file", path).Msg("replaying")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := f.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if source.IsLineError(err) {
			r.invalid++
			r.log.Warn().Err(err).Msg("skipping invalid line")
			continue
		}
		if err != nil {
			return err
		}
		if r.skipped < r.opts.Skip {
			r.skipped++
			continue
		}
		if err := r.send(ctx, raw); err != nil {
			return err
		}
	}
}

func (r *replay) send(ctx context.Context, raw []byte) error {
	payload := raw
	if !r.opts.KeepTriggers {
		stamped, err := source.Stamp(raw, r.trigger, r.opts.Producer)
		if err != nil {
			return err
		}
		payload = stamped
	}
	if err := r.snd.Send(payload); err != nil {
		return fmt.Errorf("send event %d: %w", r.sent, err)
	}
	r.sent++
	r.trigger++
	r.log.Debug().Int("sent", r.sent).Int("bytes", len(payload)).Msg("event sent")

	pause := r.opts.Sleep
	if r.opts.Spill > 0 {
		r.inSpill++
		if r.inSpill == r.opts.Spill {
			r.inSpill = 0
			r.log.Info().Int("sent", r.sent).Msg("end of spill")
			pause = r.opts.SpillPause
		}
	}
	return sleep(ctx, pause)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
