package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-screen/internal/app"
	"github.com/fpang/video-screen/internal/cli"
	"github.com/fpang/video-screen/internal/store"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show past screening sessions, or the frames of one session",
	Args:  cobra.MaximumNArgs(1),
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Maximum sessions to list")
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	ctx := context.Background()

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session history")
	}
	defer st.Close()

	if len(args) == 1 {
		showSession(ctx, st, args[0])
		return
	}

	sessions, err := st.ListSessions(ctx, historyLimitFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list sessions")
	}
	if len(sessions) == 0 {
		fmt.Println("No screening sessions recorded yet.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tDURATION\tFRAMES\tUNSAFE\tFAILED\tVIDEO")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID, s.Started().Local().Format(time.DateTime), cli.FormatDurationShort(s.Duration()),
			s.Frames, s.Unsafe, s.Failed, s.VideoPath)
	}
	tw.Flush()
}

func showSession(ctx context.Context, st store.SessionStore, id string) {
	rec, err := st.GetSession(ctx, id)
	if err != nil {
		log.Fatal().Err(err).Str("session_id", id).Msg("Failed to load session")
	}
	if rec == nil {
		log.Fatal().Str("session_id", id).Msg("Session not found")
	}

	fmt.Printf("Session:     %s\n", rec.ID)
	fmt.Printf("Video:       %s\n", rec.VideoPath)
	fmt.Printf("Provider:    %s\n", rec.Provider)
	fmt.Printf("Sensitivity: %.2f\n", rec.Sensitivity)
	fmt.Printf("Started:     %s (%s)\n", rec.Started().Local().Format(time.DateTime), cli.FormatDurationShort(rec.Duration()))
	fmt.Printf("Frames:      %d  safe %d  unsafe %d  failed %d  skipped %d\n",
		rec.Frames, rec.Safe, rec.Unsafe, rec.Failed, rec.Skipped)
	if rec.AIDisabled {
		fmt.Println("AI analysis was disabled during the session")
	}
	if rec.ReportPath != "" {
		fmt.Printf("Report:      %s\n", rec.ReportPath)
	}
	if rec.Error != "" {
		fmt.Printf("Error:       %s\n", rec.Error)
	}

	frames, err := st.ListFrames(ctx, id)
	if err != nil {
		log.Fatal().Err(err).Str("session_id", id).Msg("Failed to load frames")
	}
	if len(frames) == 0 {
		return
	}
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tSTATUS\tRISK\tDESCRIPTION")
	for _, f := range frames {
		desc := f.Description
		if f.Error != "" {
			desc = f.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.FrameID, f.Status, f.RiskType, desc)
	}
	tw.Flush()
}
