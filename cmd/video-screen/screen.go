package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-screen/internal/app"
	"github.com/fpang/video-screen/internal/auth"
	"github.com/fpang/video-screen/internal/cli"
	"github.com/fpang/video-screen/internal/config"
	"github.com/fpang/video-screen/internal/lock"
	"github.com/fpang/video-screen/internal/logging"
)

// screen flags
var (
	sensitivityFlag  float64
	concurrencyFlag  int
	outputDirFlag    string
	noAIFlag         bool
	bundleFlag       bool
	storeFlag        string
	validateKeyFlag  bool
	failOnUnsafeFlag bool
	noProgressFlag   bool
)

var screenCmd = &cobra.Command{
	Use:   "screen [video]",
	Short: "Extract keyframes from a video and classify them",
	Long: `Screen runs one session: keyframes are extracted at scene changes, renamed to
their timestamp (HH-MM-SS.mmm), and classified at most --concurrency at a time.
If any frame is unsafe, an HTML report is written to <frames>/report/index.html.

Without a video argument a file dialog (or a terminal prompt) asks for one.
Exit status is 1 when extraction fails or the provider account runs out of
balance, and 2 with --fail-on-unsafe when any frame is unsafe.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runScreen,
}

func init() {
	f := screenCmd.Flags()
	f.Float64VarP(&sensitivityFlag, "sensitivity", "s", 0.3, "Scene-change threshold between 0.1 and 0.9 (lower finds more keyframes)")
	f.IntVarP(&concurrencyFlag, "concurrency", "c", 2, "Maximum classification requests in flight")
	f.StringVarP(&outputDirFlag, "output-dir", "o", "", "Write frames under this directory instead of next to the video")
	f.BoolVar(&noAIFlag, "no-ai", false, "Extract keyframes only, without classification")
	f.BoolVar(&bundleFlag, "bundle", false, "Also write report.zip with the report and unsafe frames")
	f.StringVar(&storeFlag, "store", "", "Session history store: sqlite, dynamodb, none")
	f.BoolVar(&validateKeyFlag, "validate-key", false, "Check the API key with a probe request before screening")
	f.BoolVar(&failOnUnsafeFlag, "fail-on-unsafe", false, "Exit with status 2 when any frame is unsafe")
	f.BoolVar(&noProgressFlag, "no-progress", false, "Do not draw the progress bar")
}

func applyScreenFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("sensitivity") {
		cfg.Sensitivity = sensitivityFlag
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = concurrencyFlag
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = outputDirFlag
		cfg.UseVideoDir = false
	}
	if noAIFlag {
		cfg.EnableAI = false
	}
	if flags.Changed("bundle") {
		cfg.Report.Bundle = bundleFlag
	}
	if flags.Changed("store") {
		cfg.Store.Driver = storeFlag
	}
}

// runScreen is the main execution logic for the screen command.
func runScreen(cmd *cobra.Command, args []string) {
	start := time.Now()
	cfg := loadConfig(cmd)
	applyScreenFlags(cmd, &cfg)

	instance, err := lock.Acquire(cfg.LockPort)
	if err != nil {
		log.Fatal().Err(err).Int("port", cfg.LockPort).Msg("Cannot start screening")
	}
	defer instance.Release()

	var videoPath string
	if len(args) > 0 {
		videoPath = args[0]
	} else {
		videoPath, err = cli.PickVideo()
		if errors.Is(err, cli.ErrCanceled) {
			log.Info().Msg("No video selected")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to select a video")
		}
	}
	videoPath = cli.ValidateVideoPath(videoPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var options []app.Option
	if !noProgressFlag {
		options = append(options, app.WithObserver(cli.NewProgress(os.Stderr)))
	}
	a, err := app.New(ctx, cfg, options...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	logStartup("screen", a, time.Since(start))

	if validateKeyFlag && cfg.EnableAI {
		if err := auth.Validate(ctx, a.Provider); err != nil {
			instance.Release()
			cli.HandleValidationError(err, a.Provider.Name())
		}
		log.Info().Str("provider", a.Provider.Name()).Msg("API key validated")
	}

	summary, err := a.Screener.Screen(ctx, videoPath)
	if summary != nil {
		fmt.Println()
		cli.PrintSummary(os.Stdout, summary)
	}
	if err != nil {
		log.Error().Err(err).Msg("Screening session ended with errors")
		exit(a, instance, 1)
	}
	if failOnUnsafeFlag && summary.Unsafe > 0 {
		exit(a, instance, 2)
	}
}

// exit releases resources that deferred calls would otherwise leak past
// os.Exit.
func exit(a *app.App, instance *lock.Lock, code int) {
	a.Close()
	instance.Release()
	os.Exit(code)
}

func logStartup(command string, a *app.App, initDuration time.Duration) {
	cfg := a.Config
	sl := logging.NewStartupLogger(command).
		Version(version).
		CommitHash(commitHash).
		Provider(a.Provider.DisplayName()).
		Feature("ai", cfg.EnableAI).
		Feature("providerReady", a.Client.Ready()).
		Feature("metrics", cfg.Metrics).
		Feature("bundle", cfg.Report.Bundle).
		Config("sensitivity", fmt.Sprintf("%.2f", cfg.Sensitivity)).
		Config("concurrency", fmt.Sprint(cfg.Concurrency)).
		Config("maxAttempts", fmt.Sprint(cfg.MaxAttempts)).
		Config("store", cfg.Store.Driver).
		InitDuration(initDuration)
	if src, ok := a.Sources[a.Provider.Name()]; ok {
		sl.Config("keySource", string(src))
	}
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		sl.Resource("history", cfg.Store.SQLitePath)
	case config.StoreDynamo:
		sl.Resource("dynamoTable", cfg.Store.DynamoTable)
	}
	sl.Resource("ssmParam", cfg.APIKeySSMParam).
		Resource("reportBucket", cfg.Report.S3Bucket).
		Log()
}
