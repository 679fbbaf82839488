package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/catwatch/internal/alert"
	"github.com/ayusman/catwatch/internal/app"
	"github.com/ayusman/catwatch/internal/capture"
	"github.com/ayusman/catwatch/internal/config"
	"github.com/ayusman/catwatch/internal/detector"
	"github.com/ayusman/catwatch/internal/display"
	"github.com/ayusman/catwatch/internal/notify"
	"github.com/ayusman/catwatch/internal/server"
	"github.com/ayusman/catwatch/internal/snapshot"
	"github.com/ayusman/catwatch/internal/store"
	"github.com/ayusman/catwatch/internal/tray"
	"github.com/ayusman/catwatch/internal/validate"
)

func init() {
	// HighGUI windows and the tray both need the main OS thread.
	runtime.LockOSThread()
}

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	zerolog.SetGlobalLevel(cfg.Level())

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Cat detector stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log.Info().
		Str("mode", string(cfg.Mode)).
		Int("camera", cfg.CameraID).
		Int("fps", cfg.FPS).
		Dur("cooldown", cfg.Cooldown).
		Int("frame_skip", cfg.FrameSkip).
		Str("output", cfg.OutputDir).
		Msg("Starting cat detector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("Initializing webcam")
	cam := capture.NewCamera(cfg.CameraID)
	cam.SetFPS(cfg.FPS)
	if err := cam.Open(); err != nil {
		return fmt.Errorf("could not open webcam: %w", err)
	}
	defer cam.Close()

	log.Info().Msg("Loading cat detection model")
	det, err := detector.Choose(loaders(cfg)...)
	if err != nil {
		return err
	}
	defer det.Close()

	coordinator := alert.NewCoordinator(alert.Config{
		Cooldown:  cfg.Cooldown,
		Detector:  det.Name(),
		Snapshots: snapshot.NewWriter(cfg.OutputDir, nil),
	})

	if player, err := notify.NewSoundPlayer(cfg.SoundPath); err != nil {
		log.Warn().Err(err).Msg("Running without alert sound")
	} else {
		coordinator.AddNotifier(player)
	}

	var st *store.Store
	if cfg.DBPath != "" {
		st, err = store.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open alert history: %w", err)
		}
		defer st.Close()
		coordinator.AddNotifier(notify.NewRecorder(st))
	}

	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.NATSURL, 5*time.Second)
		if err != nil {
			log.Warn().Err(err).Msg("Running without NATS alerts")
		} else {
			defer nc.Drain()
			coordinator.AddNotifier(notify.NewNATSPublisher(nc, cfg.NATSSubject))
		}
	}

	displays := []display.Display{}
	if !cfg.Headless {
		displays = append(displays, display.NewWindow(display.DefaultTitle))
	}

	var serverDone <-chan struct{}
	if cfg.HTTPAddr != "" {
		hub := server.NewEventHub()
		stream := server.NewFrameStream()
		coordinator.AddNotifier(hub)
		displays = append(displays, stream)

		srv := server.New(server.Config{
			SnapshotDir: cfg.OutputDir,
			Store:       st,
			Events:      hub,
			Stream:      stream,
			Alerts:      coordinator,
			Detector:    det.Name(),
		})
		serverDone = serve(ctx, srv, cfg.HTTPAddr)
	}

	var validator *validate.Validator
	if cfg.Preset.Validate {
		validator = validate.New(validate.DefaultBounds())
	}

	a := app.New(app.Config{
		Camera:             cam,
		Detector:           det,
		Validator:          validator,
		Alerts:             coordinator,
		Display:            display.Tee(displays...),
		FrameSkip:          cfg.FrameSkip,
		RetryDelay:         cfg.RetryDelay,
		MaxCaptureFailures: cfg.MaxCaptureFailures,
	})

	printTips(cfg)

	if cfg.Tray {
		err = runWithTray(ctx, stop, a, coordinator)
	} else {
		err = a.Run(ctx)
	}

	// The loop can end on its own (quit key, camera loss), so cancel the
	// context to stop the server, then let it drain.
	stop()
	if serverDone != nil {
		<-serverDone
	}
	return err
}

// serve runs srv until ctx is done. The returned channel is closed once
// the server has shut down.
func serve(ctx context.Context, srv *server.Server, addr string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return done
}

// runWithTray gives the main thread to the tray and runs the loop beside it.
func runWithTray(ctx context.Context, stop context.CancelFunc, a *app.App, c *alert.Coordinator) error {
	t := tray.New()
	t.OnToggle(a.SetEnabled)
	t.OnQuit(stop)
	c.AddNotifier(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
		t.Quit()
	}()

	t.Run()
	stop()
	return <-errCh
}

// loaders returns the detector chain for the configured mode, most
// capable first.
func loaders(cfg *config.Config) []detector.Loader {
	cascade := detector.CascadeLoader(cfg.CascadePath, cfg.Preset.Cascade)
	if !cfg.Preset.Neural {
		return []detector.Loader{cascade}
	}

	nc := detector.DefaultNeuralConfig()
	nc.WeightsPath = cfg.YOLOWeights
	nc.ConfigPath = cfg.YOLOConfig
	nc.NamesPath = cfg.NamesPath
	return []detector.Loader{detector.NeuralLoader(nc), cascade}
}

func printTips(cfg *config.Config) {
	fmt.Println()
	fmt.Println("Tips for best detection:")
	fmt.Println("- Ensure good lighting")
	fmt.Println("- Cat should be facing the camera")
	fmt.Println("- Keep the camera steady")
	fmt.Println("- Cat's face should be clearly visible")
	fmt.Println()
	switch {
	case cfg.Tray:
		fmt.Println("Use the tray menu to quit.")
	case cfg.Headless:
		fmt.Println("Press Ctrl+C to quit.")
	default:
		fmt.Println("Press 'q' in the video window to quit.")
	}
	if cfg.HTTPAddr != "" {
		fmt.Printf("Alert API listening on %s (GET /api/alerts)\n", cfg.HTTPAddr)
	}
	fmt.Println()
}
