package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stereocast/internal/config"
	"stereocast/internal/logger"
	"stereocast/internal/publisher"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Serve a side-by-side 3D frame source to viewers",
	Long: `Start the publisher: paces a side-by-side frame source at its native rate
and serves it to viewers over WebSocket frames (/ws) or a WebRTC data
channel (signaled via POST /offer).

Without --frames-dir a synthetic stereo test pattern is published.`,
	Example: `  # Publish the built-in test pattern on the default port
  stereocast publish

  # Publish a directory of side-by-side frames at 24 fps
  stereocast publish --frames-dir ./frames --fps 24

  # Custom listen address
  stereocast publish --listen :3030`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().String("listen", "", "listen address (default :3030)")
	publishCmd.Flags().String("frames-dir", "", "directory of side-by-side image frames to loop")
	publishCmd.Flags().Int("fps", 0, "source frame rate")
	viper.BindPFlag("publisher.listen", publishCmd.Flags().Lookup("listen"))
	viper.BindPFlag("publisher.frames_dir", publishCmd.Flags().Lookup("frames-dir"))
	viper.BindPFlag("publisher.fps", publishCmd.Flags().Lookup("fps"))

	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}
	cfg := configMgr.Get()
	applyOverrides(&cfg)

	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("publish")

	var source publisher.Source
	if cfg.Publisher.FramesDir != "" {
		source, err = publisher.NewFileSource(cfg.Publisher.FramesDir, cfg.Publisher.FPS)
		if err != nil {
			return fmt.Errorf("failed to open frame source: %w", err)
		}
		log.Info().Str("dir", cfg.Publisher.FramesDir).Msg("Publishing frame directory")
	} else {
		source, err = publisher.NewPatternSource(cfg.Publisher.Width, cfg.Publisher.Height, cfg.Publisher.FPS)
		if err != nil {
			return fmt.Errorf("failed to create pattern source: %w", err)
		}
		log.Info().Msg("Publishing synthetic stereo test pattern")
	}

	pub, err := publisher.New(source)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubErr := make(chan error, 1)
	go func() { pubErr <- pub.Run(ctx) }()

	server := publisher.NewServer(pub)
	go func() {
		if err := server.Start(cfg.Publisher.Listen); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	log.Info().Str("listen", cfg.Publisher.Listen).Msg("Publisher is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("Shutting down")
		cancel()
		return nil
	case err := <-pubErr:
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
}

// applyOverrides folds viper-bound flag values into the loaded config.
func applyOverrides(cfg *config.Config) {
	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("publisher.listen"); v != "" {
		cfg.Publisher.Listen = v
	}
	if v := viper.GetString("publisher.frames_dir"); v != "" {
		cfg.Publisher.FramesDir = v
	}
	if v := viper.GetInt("publisher.fps"); v > 0 {
		cfg.Publisher.FPS = v
	}
	if v := viper.GetString("viewer.publisher_url"); v != "" {
		cfg.Viewer.PublisherURL = v
	}
	if v := viper.GetString("viewer.listen"); v != "" {
		cfg.Viewer.Listen = v
	}
	if v := viper.GetString("viewer.transport"); v != "" {
		cfg.Viewer.Transport = v
	}
	if v := viper.GetString("viewer.default_mode"); v != "" {
		cfg.Viewer.DefaultMode = v
	}
	if viper.IsSet("viewer.default_offset") {
		if v := viper.GetInt("viewer.default_offset"); v != 0 {
			cfg.Viewer.DefaultOffset = v
		}
	}
}
