// Command sensorhub serves a device's sensors to any number of consumers.
//
// It reads a sensor board (serial, UDP, a PCAP replay or a built-in
// simulator), runs one reference-counted manager per sensor kind, and exposes
// debug routes on -listen and the gRPC health service on -grpc-listen.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"tailscale.com/tsweb"

	"github.com/banshee-data/sensorhub/internal/board"
	"github.com/banshee-data/sensorhub/internal/config"
	"github.com/banshee-data/sensorhub/internal/dispatch"
	"github.com/banshee-data/sensorhub/internal/health"
	"github.com/banshee-data/sensorhub/internal/monitoring"
	"github.com/banshee-data/sensorhub/internal/sensors"
	"github.com/banshee-data/sensorhub/internal/timeutil"
	"github.com/banshee-data/sensorhub/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON config file (optional; defaults apply when omitted)")
	devMode     = flag.Bool("dev", false, "Use the simulated sensor board regardless of the config source")
	listen      = flag.String("listen", "", "Debug HTTP listen address (overrides config, default :8081)")
	grpcListen  = flag.String("grpc-listen", "", "gRPC health listen address (overrides config, default :8082)")
	watch       = flag.String("watch", "", "Comma-separated sensors to log readings from, or \"all\"")
	trace       = flag.Bool("trace", false, "Log every reading (very verbose)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logs := monitoring.LogWriters{Ops: os.Stderr, Diag: os.Stderr}
	if *trace {
		logs.Trace = os.Stderr
	}
	monitoring.SetLogWriters(logs)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg, *devMode, *listen, *grpcListen)

	watched, err := parseWatch(*watch)
	if err != nil {
		log.Fatalf("invalid -watch: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("starting %s", version.String())
	if err := run(ctx, cfg, watched); err != nil {
		log.Fatalf("sensorhub: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads the config file at path, or returns an empty config when
// no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Empty(), nil
	}
	return config.Load(path)
}

// applyFlags lets command-line flags override the config file.
func applyFlags(cfg *config.Config, dev bool, listen, grpcListen string) {
	if dev {
		src := config.SourceSim
		cfg.Source = &src
	}
	if listen != "" {
		cfg.Listen = &listen
	}
	if grpcListen != "" {
		cfg.GRPCListen = &grpcListen
	}
}

// parseWatch parses the -watch list.
func parseWatch(s string) ([]sensors.Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.EqualFold(s, "all") {
		return append([]sensors.Kind(nil), sensors.AllKinds...), nil
	}
	var kinds []sensors.Kind
	for _, name := range strings.Split(s, ",") {
		k, err := sensors.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// openPort opens the board stream selected by the config.
func openPort(cfg *config.Config, clock timeutil.Clock) (board.Port, error) {
	switch cfg.GetSource() {
	case config.SourceSerial:
		return board.Open(cfg.GetSerialPath(), cfg.GetSerial())
	case config.SourceUDP:
		return board.ListenUDP(cfg.GetUDPAddress())
	case config.SourcePCAP:
		return board.OpenPCAP(cfg.GetPCAPFile(), cfg.GetPCAPUDPPort(), cfg.GetPCAPRealtime())
	case config.SourceSim:
		return board.NewSimulatedPort(clock, cfg.GetSimInterval(), sensors.SimSensors(cfg.GetSensors())), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.GetSource())
	}
}

// run opens the configured board and serves it until ctx is cancelled or a
// component fails.
func run(ctx context.Context, cfg *config.Config, watched []sensors.Kind) error {
	port, err := openPort(cfg, timeutil.RealClock{})
	if err != nil {
		return fmt.Errorf("failed to open %s board: %w", cfg.GetSource(), err)
	}
	return serve(ctx, cfg, port, watched)
}

// serve wires the board, the sensor hub and the servers together on port and
// blocks until ctx is cancelled or one of them fails. On the way out every
// sensor is stopped before the board monitor exits, so the stop commands
// reach the hardware.
func serve(ctx context.Context, cfg *config.Config, port board.Port, watched []sensors.Kind) error {
	b := board.New(port, sensors.Names(cfg.GetSensors()))
	defer b.Close()

	loop := dispatch.NewLoop()
	defer loop.Close()

	hub := sensors.NewHub(sensors.BoardDrivers(b), loop, cfg.GetRates())

	hs := health.NewServer()
	for _, m := range hub.Managers() {
		hs.Track(m)
	}

	// The monitor gets its own context: it must keep running until the hub
	// has stopped the sensors.
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := loop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("delivery loop: %w", err)
		}
		return nil
	})

	// run the monitor routine to manage IO on the board
	g.Go(func() error {
		err := b.Monitor(monitorCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to monitor board: %w", err)
		}
		log.Print("monitor routine terminated")
		return nil
	})

	g.Go(func() error {
		return hs.ListenAndServe(gctx, cfg.GetGRPCListen())
	})

	g.Go(func() error {
		return serveDebug(gctx, cfg.GetListen(), newDebugMux(hub, b, loop))
	})

	stopWatching := startWatching(hub, watched)

	g.Go(func() error {
		<-gctx.Done()
		stopWatching()
		if err := hub.Close(); err != nil {
			log.Printf("failed to stop sensors: %v", err)
		}
		stopMonitor()
		return nil
	})

	return g.Wait()
}

// newDebugMux mounts the tsweb debug routes for every component.
func newDebugMux(hub *sensors.Hub, b *board.Board, loop *dispatch.Loop) *http.ServeMux {
	mux := http.NewServeMux()
	debug := tsweb.Debugger(mux)
	debug.KV("version", version.String())
	debug.KVFunc("delivery queue", func() any { return loop.Pending() })
	hub.AttachDebug(debug)
	b.AttachDebug(debug)
	return mux
}

// serveDebug runs the debug HTTP server until ctx is cancelled.
func serveDebug(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("debug server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}
