package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/stevedomin/termtable"

	"github.com/skypro1111/storyreel/internal/run"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List recent runs, or show one run in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.history == nil {
				return fmt.Errorf("run history is disabled (set history.path)")
			}

			if len(args) == 1 {
				r, err := a.history.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printRun(r)
				return nil
			}

			runs, err := a.history.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet")
				return nil
			}

			t := termtable.NewTable(nil, &termtable.TableOptions{
				Padding:      2,
				UseSeparator: false,
			})
			t.SetHeader([]string{"Run", "Status", "Style", "Scenes", "Duration", "Started", "Result"})
			for _, r := range runs {
				result := r.ResultURL
				if r.Error != nil {
					result = r.Error.Message
				}
				if len(result) > 60 {
					result = result[:57] + "..."
				}

				scenes := "auto"
				if r.SceneCount > 0 {
					scenes = fmt.Sprintf("%d", r.SceneCount)
				}

				t.AddRow([]string{
					r.ID,
					string(r.Status),
					r.Style,
					scenes,
					formatDuration(r.Duration()),
					r.StartedAt.Local().Format(time.DateTime),
					result,
				})
			}

			fmt.Println(t.Render())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of runs to list")

	return cmd
}

func printRun(r run.Run) {
	fmt.Printf("Run:       %s\n", r.ID)
	fmt.Printf("Status:    %s\n", r.Status)
	fmt.Printf("Style:     %s\n", r.Style)
	if r.SceneCount > 0 {
		fmt.Printf("Scenes:    %d\n", r.SceneCount)
	}
	fmt.Printf("Started:   %s\n", r.StartedAt.Local().Format(time.DateTime))
	fmt.Printf("Duration:  %s\n", formatDuration(r.Duration()))
	if r.ResultURL != "" {
		fmt.Printf("Video:     %s\n", r.ResultURL)
	}
	if r.Error != nil {
		fmt.Printf("Error:     %s (%s)\n", r.Error.Message, r.Error.Kind)
	}
	if r.LogText != "" {
		fmt.Printf("\n%s", r.LogText)
	}
}
