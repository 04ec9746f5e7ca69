package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"collectord/internal/collector"
	"collectord/internal/common/fsutil"
	"collectord/internal/config"
	"collectord/internal/dataserver"
	"collectord/internal/event"
	"collectord/internal/httpapi"
	"collectord/internal/logging"
	"collectord/internal/streamsync"
	"collectord/internal/transport/wsbus"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the collector",
		Example: "  collectord serve --collector-name ecal\n" +
			"  collectord serve --sync --max-pending 128 --addr :9090",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return fnServe(cmd.Context(), cfg, logger, opts.stdout)
		},
	}
	f := cmd.Flags()
	f.String("addr", config.DefaultAddr, "HTTP listen address")
	f.String("collector-name", config.DefaultCollectorName, "Collector name in the operation namespace")
	f.Bool("sync", false, "Accept producer streams on /producers and synchronize them by trigger number")
	f.String("composite-type", config.DefaultCompositeType, "Type of synchronized composite events")
	f.Int("max-pending", config.DefaultMaxPending, "Force an alignment round once a producer queue holds this many events")
	f.Duration("straggler-timeout", 2*time.Second, "Force an alignment round once the oldest queued event is this old (negative disables)")
	f.Bool("swagger", false, "Serve the API document under /swagger/")
	f.String("cors-origins", "", "Comma separated CORS origins (enables CORS)")
	f.String("stream-target", "", "Stream target recorded in the backup file (default: collector name)")
	f.String("backup-save-file", "", "With --sync, write the stream target to this file at startup")
	return cmd
}

// server bundles the collector's components for one serve run.
type server struct {
	hub  *collector.Hub
	bus  *wsbus.Server
	sync *streamsync.Synchronizer
	http *http.Server
	log  zerolog.Logger

	streamTarget string
	backupPath   string
}

func newServer(cfg config.Config, logger zerolog.Logger) *server {
	bus := wsbus.NewServer(wsbus.Config{
		SendBuffer:      cfg.WSSendBuffer,
		MaxMessageBytes: cfg.MaxBodyBytes,
		Logger:          logging.Component(logger, "wsbus"),
	})
	ser := event.NewJSONSerializer()
	hub := collector.NewWithConfig(collector.HubConfig{
		CollectorName:   cfg.CollectorName,
		Substrate:       bus,
		Serializer:      ser,
		AnnounceTimeout: cfg.AnnounceTimeoutDuration(),
		Logger:          &logger,
		Publisher:       collector.LogPublisher{Logger: logger},
	})
	s := &server{hub: hub, bus: bus, log: logger, streamTarget: cfg.StreamTarget, backupPath: cfg.BackupSaveFilePath}
	if s.streamTarget == "" {
		s.streamTarget = cfg.CollectorName
	}

	mounts := httpapi.Mounts{Bus: bus, Swagger: cfg.Swagger}
	if cfg.SyncEnabled {
		s.sync = streamsync.NewWithConfig(streamsync.Config{
			Sink:             hub,
			CompositeType:    cfg.CompositeType,
			MaxPending:       cfg.MaxPending,
			StragglerTimeout: cfg.StragglerTimeoutDuration(),
			Logger:           logging.Component(logger, "streamsync"),
		})
		hub.SetProducerSource(s.sync)
		mounts.Producers = dataserver.New(dataserver.Config{
			Receiver:        s.sync,
			Serializer:      ser,
			MaxMessageBytes: cfg.MaxBodyBytes,
			Logger:          logging.Component(logger, "dataserver"),
		})
	}

	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, cfg.CORSMethods, cfg.CORSHeaders)
	s.http = &http.Server{
		Handler:           httpapi.NewMux(hub, mounts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// run starts the hub, serves ln until ctx is done, then shuts down in order:
// pending composites, hub surface, bus connections, HTTP server.
func (s *server) run(ctx context.Context, ln net.Listener) error {
	if s.sync != nil && s.backupPath != "" {
		if err := writeStreamTarget(s.backupPath, s.streamTarget); err != nil {
			_ = ln.Close()
			return err
		}
		s.log.Info().Str("path", s.backupPath).Str("stream_target", s.streamTarget).Msg("stream target saved")
	}
	if err := s.hub.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if s.sync != nil {
		g.Go(func() error {
			s.sync.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		if s.sync != nil {
			s.sync.Flush()
		}
		if err := s.hub.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("hub stop")
		}
		s.bus.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(sctx)
	})
	return g.Wait()
}

func runServe(ctx context.Context, cfg config.Config, logger zerolog.Logger, out io.Writer) error {
	s := newServer(cfg, logger)
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("collector", cfg.CollectorName).
		Bool("sync", cfg.SyncEnabled).
		Msg("collectord listening")
	_, _ = fmt.Fprintf(out, "collectord listening on %s\n", ln.Addr())
	return s.run(ctx, ln)
}

// writeStreamTarget replaces the backup file at path with target.
func writeStreamTarget(path, target string) error {
	p, err := fsutil.Resolve(path)
	if err != nil {
		return fmt.Errorf("backup save file: %w", err)
	}
	if err := os.WriteFile(p, []byte(target), 0o644); err != nil {
		return fmt.Errorf("backup save file (%s) can not be opened for writing: %w", p, err)
	}
	return nil
}
