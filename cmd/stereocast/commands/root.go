package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "stereocast",
		Short: "stereocast - live stereoscopic video with per-viewer 3D presentation",
		Long: `stereocast streams a side-by-side 3D video source to remote viewers and
lets each viewer pick a presentation format and depth offset independently,
applied in real time without interrupting playback.

Roles:
  publish   serve a side-by-side frame source over WebSocket or WebRTC
  view      connect to a publisher, render the chosen 3D presentation,
            and expose the live mode/offset controls

Presentation modes: side-by-side parallel, side-by-side cross-eye,
red/cyan anaglyph, green/magenta anaglyph.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/stereocast/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
