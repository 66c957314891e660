package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/video-screen/internal/app"
	"github.com/fpang/video-screen/internal/auth"
	"github.com/fpang/video-screen/internal/cli"
)

var checkFlag bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List classification providers and whether each has an API key",
	Args:  cobra.NoArgs,
	Run:   runProviders,
}

func init() {
	providersCmd.Flags().BoolVar(&checkFlag, "check", false, "Send a probe image to every configured provider")
}

func runProviders(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	ctx := context.Background()

	reg, sources := app.Registry(ctx, cfg)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDISPLAY NAME\tKEY\tSELECTED\tSTATUS")
	for _, p := range reg.List() {
		key := "missing"
		if src, ok := sources[p.Name()]; ok {
			key = string(src)
		}
		selected := ""
		if p.Name() == cfg.Provider {
			selected = "*"
		}

		status := "-"
		if checkFlag && p.IsConfigured() {
			checkCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
			err := auth.Validate(checkCtx, p)
			cancel()
			if err != nil {
				status = cli.ValidationHint(err, p.Name())
			} else {
				status = "ok"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name(), p.DisplayName(), key, selected, status)
	}
	tw.Flush()

	if _, ok := sources[cfg.Provider]; !ok {
		fmt.Printf("\nNo key for %s: set %s, api_key in the config file, or run scripts/setup-gpg-credentials.sh\n",
			cfg.Provider, auth.EnvVar(cfg.Provider))
	}
}
