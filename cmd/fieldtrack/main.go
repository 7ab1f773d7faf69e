// Command fieldtrack records GPS tracks from a serial NMEA receiver, keeps
// them in a local sqlite queue and syncs them to the remote session service
// when the network allows.
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
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/fieldtrack/internal/api"
	"github.com/banshee-data/fieldtrack/internal/config"
	"github.com/banshee-data/fieldtrack/internal/geo"
	"github.com/banshee-data/fieldtrack/internal/geosource"
	"github.com/banshee-data/fieldtrack/internal/httputil"
	"github.com/banshee-data/fieldtrack/internal/recorder"
	"github.com/banshee-data/fieldtrack/internal/remote"
	"github.com/banshee-data/fieldtrack/internal/store"
	"github.com/banshee-data/fieldtrack/internal/syncer"
	"github.com/banshee-data/fieldtrack/internal/timeutil"
	"github.com/banshee-data/fieldtrack/internal/track"
	"github.com/banshee-data/fieldtrack/internal/version"
	"github.com/banshee-data/fieldtrack/internal/wakelock"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "fieldtrack.db", "Path to the sqlite track queue")
	configPath  = flag.String("config", "", "Path to a JSON tuning file")
	gpsPort     = flag.String("gps-port", "/dev/ttyACM0", "Serial port of the NMEA GPS receiver")
	gpsBaud     = flag.Int("gps-baud", geosource.DefaultBaudRate, "Baud rate of the GPS receiver")
	nmeaFile    = flag.String("nmea-file", "", "Replay NMEA sentences from a file instead of the serial port")
	disableGPS  = flag.Bool("disable-gps", false, "Run without a GPS receiver (recording is refused)")
	userID      = flag.String("user-id", "", "Signed-in user id (empty means signed out)")
	userName    = flag.String("user-name", "", "Signed-in user display name")
	role        = flag.String("role", "technician", "Role of the signed-in user")
	remoteURL   = flag.String("remote-url", "", "Base URL of the remote session service (overrides config)")
	remoteToken = flag.String("remote-token", "", "Bearer token for the remote session service (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// gpsSource is what main needs from a receiver beyond the recorder's view.
type gpsSource interface {
	recorder.FixSource
	Monitor(ctx context.Context) error
	Close() error
	AttachAdminRoutes(mux *http.ServeMux)
}

func openSource(disabled bool, replayPath, port string, baud int) (gpsSource, error) {
	switch {
	case disabled:
		return geosource.Disabled{}, nil
	case replayPath != "":
		f, err := os.Open(replayPath)
		if err != nil {
			return nil, fmt.Errorf("open nmea replay file: %w", err)
		}
		return geosource.NewMux[*os.File](f, nil), nil
	default:
		return geosource.OpenSerial(port, geosource.PortOptions{BaudRate: baud})
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Empty(), nil
	}
	return config.Load(path)
}

// recorderOptions maps the tuning file onto recorder options.
func recorderOptions(cfg *config.Config) recorder.Options {
	return recorder.Options{
		Filter: track.Filter{
			MaxAccuracyMeters: cfg.GetMaxAccuracyMeters(),
			MinDistanceKm:     cfg.GetMinPointDistanceKm(),
		},
		StopOptions: geo.StopOptions{
			MinDurationMinutes: cfg.GetStopMinDurationMinutes(),
			RadiusKm:           cfg.GetStopRadiusKm(),
		},
		AllowedRoles:     cfg.GetAllowedRoles(),
		TickInterval:     cfg.GetTickInterval(),
		SnapshotInterval: cfg.GetSnapshotInterval(),
		Clock:            timeutil.RealClock{},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open track database: %v", err)
	}
	defer st.Close()

	source, err := openSource(*disableGPS, *nmeaFile, *gpsPort, *gpsBaud)
	if err != nil {
		log.Fatalf("failed to open gps receiver: %v", err)
	}
	defer source.Close()

	client := remote.NewClient(
		firstNonEmpty(*remoteURL, cfg.GetRemoteURL()),
		firstNonEmpty(*remoteToken, cfg.GetRemoteToken()),
		httputil.NewStandardClient(&http.Client{Timeout: cfg.GetSyncTimeout()}),
	)

	opts := recorderOptions(cfg)
	opts.Auth = recorder.StaticAuth{Who: recorder.Identity{UserID: *userID, UserName: *userName, Role: *role}}
	opts.Source = source
	opts.Store = st
	opts.Guard = wakelock.NewGuard(wakelock.NewInhibitPlatform())

	var svc *syncer.Service
	var apiSync api.Syncer
	if client.Configured() {
		svc = syncer.New(client, client, st, cfg.GetSyncTimeout())
		opts.Sync = svc
		opts.Remote = client
		apiSync = svc
	} else {
		log.Printf("no remote service configured; finished tracks stay in the local queue")
	}

	rec, err := recorder.New(opts)
	if err != nil {
		log.Fatalf("failed to create recorder: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s, err := rec.Recover(ctx); err != nil {
		log.Printf("failed to recover unfinished session: %v", err)
	} else if s != nil {
		log.Printf("recovered unfinished session %s (%d points), paused", s.ID, len(s.Points))
	}

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("gps monitor stopped: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if svc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			syncer.NewReconciler(svc, timeutil.RealClock{}, cfg.GetReconcileInterval()).Run(ctx)
			log.Print("reconcile routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(rec, apiSync).ServeMux()
		source.AttachAdminRoutes(mux)
		if err := st.AttachAdminRoutes(mux); err != nil {
			log.Printf("admin routes unavailable: %v", err)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	if err := rec.Close(); err != nil {
		log.Printf("failed to close recorder: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
