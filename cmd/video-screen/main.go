package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-screen/internal/config"
	"github.com/fpang/video-screen/internal/logging"
)

// Set at build time with -ldflags "-X main.version=... -X main.commitHash=...".
var (
	version    = "dev"
	commitHash = ""
)

// Global flags
var (
	configFlag   string
	logLevelFlag string
	providerFlag string
	modelFlag    string
)

// rootCmd is the main Cobra command for the video-screen CLI.
var rootCmd = &cobra.Command{
	Use:   "video-screen",
	Short: "Screen videos for unsafe content, one keyframe at a time",
	Long: `video-screen extracts scene-change keyframes from a video with ffmpeg, sends
each keyframe to a vision model for a content-safety verdict, and writes an HTML
risk report when any frame is judged unsafe.

Examples:
  video-screen screen ./clip.mp4
  video-screen screen ./clip.mp4 --sensitivity 0.5 --provider openai
  video-screen screen                 # pick a video with a file dialog
  video-screen providers --check
  video-screen history --limit 10
  video-screen mcp                    # serve the screen_video tool over stdio`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", config.DefaultPath(), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "Classification provider: zhipu, openai, gemini")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model name for the provider (empty uses the provider default)")

	rootCmd.AddCommand(screenCmd, providersCmd, historyCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, applies the global
// flags and initializes logging. Setup errors are fatal.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg, err := config.Load(configFlag)
	if err != nil {
		logging.Init(logLevelFlag)
		log.Fatal().Err(err).Str("path", configFlag).Msg("Failed to load configuration")
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if flags.Changed("provider") {
		cfg.Provider = providerFlag
	}
	if flags.Changed("model") {
		cfg.Model = modelFlag
	}

	logging.Init(cfg.LogLevel)
	log.Debug().Str("path", configFlag).Str("provider", cfg.Provider).Msg("Configuration loaded")
	return cfg
}
