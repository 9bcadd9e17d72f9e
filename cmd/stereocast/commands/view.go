package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stereocast/internal/api"
	"stereocast/internal/config"
	"stereocast/internal/display"
	"stereocast/internal/logger"
	"stereocast/internal/stereo"
	"stereocast/internal/transport"
	"stereocast/internal/viewer"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Connect to a publisher and render the 3D presentation",
	Long: `Start the viewer: connects to a publisher, runs the render loop
(split → synthesize → present), serves the output as an MJPEG stream with
a browser control page, and exposes the mode/offset control API.

Mode and offset changes apply from the next render cycle without
interrupting playback.`,
	Example: `  # View the local publisher over websocket
  stereocast view

  # View a remote publisher over WebRTC
  stereocast view --publisher http://example.com:3030 --transport webrtc

  # Start in cross-eye mode with a larger depth offset
  stereocast view --mode side_by_side_cross_eye --offset 80`,
	RunE: runView,
}

func init() {
	viewCmd.Flags().String("publisher", "", "publisher URL (default http://localhost:3030)")
	viewCmd.Flags().String("listen", "", "control/presentation listen address (default :8080)")
	viewCmd.Flags().String("transport", "", "transport kind: websocket or webrtc")
	viewCmd.Flags().String("mode", "", "initial presentation mode")
	viewCmd.Flags().Int("offset", 0, "initial depth offset in pixels [10,100]")
	viper.BindPFlag("viewer.publisher_url", viewCmd.Flags().Lookup("publisher"))
	viper.BindPFlag("viewer.listen", viewCmd.Flags().Lookup("listen"))
	viper.BindPFlag("viewer.transport", viewCmd.Flags().Lookup("transport"))
	viper.BindPFlag("viewer.default_mode", viewCmd.Flags().Lookup("mode"))
	viper.BindPFlag("viewer.default_offset", viewCmd.Flags().Lookup("offset"))

	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}
	cfg := configMgr.Get()
	applyOverrides(&cfg)

	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("view")

	mode, err := stereo.ParseMode(cfg.Viewer.DefaultMode)
	if err != nil {
		return fmt.Errorf("bad default mode: %w", err)
	}
	store := stereo.NewStore(mode, cfg.Viewer.DefaultOffset)

	mjpeg := display.NewMJPEGOutput()
	if err := mjpeg.Start(); err != nil {
		return err
	}
	defer mjpeg.Stop()

	loop := viewer.NewLoop(viewer.Config{
		Transport:        transport.Kind(cfg.Viewer.Transport),
		Addr:             cfg.Viewer.PublisherURL,
		HandshakeTimeout: time.Duration(cfg.Viewer.HandshakeTimeout),
		QueueCapacity:    cfg.Viewer.QueueCapacity,
		DisplayFPS:       cfg.Viewer.DisplayFPS,
	}, store, mjpeg)

	server := api.NewServer(store, loop, mjpeg)
	go func() {
		if err := server.Start(cfg.Viewer.Listen); err != nil {
			log.Fatal().Err(err).Msg("Control server error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Stopping")
		loop.Stop()
		cancel()
	}()

	log.Info().
		Str("publisher", cfg.Viewer.PublisherURL).
		Str("listen", cfg.Viewer.Listen).
		Str("output", mjpeg.Name()).
		Msgf("Viewer starting, open http://localhost%s to watch", cfg.Viewer.Listen)

	// The render loop itself only exposes the Disconnected transition;
	// the bounded retry policy lives here.
	attempts := cfg.Viewer.ReconnectAttempts
	backoff := time.Duration(cfg.Viewer.ReconnectBackoff)
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = loop.Run(ctx)
		if loop.State() == viewer.StateStopped || ctx.Err() != nil {
			return nil
		}
		if attempt >= attempts {
			break
		}
		log.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max", attempts).
			Msg("Disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
	}

	if lastErr != nil {
		return fmt.Errorf("session ended: %w", lastErr)
	}
	return nil
}
