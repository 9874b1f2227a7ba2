package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newLogsCmd(a *app) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs RUN_ID",
		Short: "Print the pipeline log of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printLogs(cmd.Context(), args[0], follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "F", false, "Keep polling for new output until interrupted")

	return cmd
}

func (a *app) printLogs(ctx context.Context, runID string, follow bool) error {
	var printed string

	emit := func() error {
		text, ok, err := a.client.FetchLog(ctx, runID)
		if err != nil {
			return err
		}
		if !ok || text == printed {
			return nil
		}
		if strings.HasPrefix(text, printed) {
			fmt.Print(text[len(printed):])
		} else {
			fmt.Print(text)
		}
		printed = text
		return nil
	}

	if err := emit(); err != nil || !follow {
		return err
	}

	interval := a.cfg.Service.GetPollInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := emit(); err != nil && ctx.Err() == nil {
			a.logger.Debug("Log fetch failed",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
		timer.Reset(interval)
	}
}
