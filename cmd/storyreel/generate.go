package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/storyreel/internal/attachment"
	"github.com/skypro1111/storyreel/internal/audio"
	"github.com/skypro1111/storyreel/internal/run"
	"github.com/skypro1111/storyreel/internal/server"
	"github.com/skypro1111/storyreel/internal/style"
)

type generateOptions struct {
	text        string
	file        string
	photo       string
	voice       string
	recordVoice bool
	recordFor   time.Duration
	style       string
	scenes      int
	download    string
}

func newGenerateCmd(a *app) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Submit a story, photo and voice sample and follow the run until the video is ready",
		Example: `  storyreel generate --text "Once upon a time..." --photo me.jpg --voice me.wav --style noir --scenes 6
  storyreel generate --file story.md --photo me.jpg --record-voice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("scenes") {
				opts.scenes = a.cfg.Run.DefaultScenes
			}
			return a.generate(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.text, "text", "t", "", "Story text")
	f.StringVarP(&opts.file, "file", "f", "", "Story document (.txt, .md or .csv)")
	f.StringVarP(&opts.photo, "photo", "p", "", "Reference photo of the narrator")
	f.StringVarP(&opts.voice, "voice", "v", "", "Voice sample audio file")
	f.BoolVar(&opts.recordVoice, "record-voice", false, "Record the voice sample from the microphone")
	f.DurationVar(&opts.recordFor, "record-duration", 0, "Fixed recording length for --record-voice")
	f.StringVarP(&opts.style, "style", "s", "", "Art style key (see 'storyreel styles')")
	f.IntVarP(&opts.scenes, "scenes", "n", 0, "Number of scenes (0 lets the service decide)")
	f.StringVarP(&opts.download, "download", "o", "", "Download the finished video to this path")
	cmd.MarkFlagsMutuallyExclusive("voice", "record-voice")

	return cmd
}

func (a *app) generate(ctx context.Context, opts *generateOptions) error {
	var set attachment.Set

	set.SetText(strings.TrimSpace(opts.text))
	if opts.file != "" {
		f, err := attachment.LoadFile(opts.file)
		if err != nil {
			return err
		}
		if err := attachment.ValidateSourceFile(f); err != nil {
			return err
		}
		set.SetSourceFile(f)
	}
	if opts.photo != "" {
		f, err := attachment.LoadFile(opts.photo)
		if err != nil {
			return err
		}
		set.SetPhoto(f)
	}
	if opts.voice != "" {
		f, err := attachment.LoadFile(opts.voice)
		if err != nil {
			return err
		}
		set.SetVoice(f)
	}

	choice := opts.style
	if choice == "" {
		choice = a.cfg.Run.DefaultStyle
	}
	styleKey, err := style.Builtin().Resolve(choice)
	if err != nil {
		return err
	}
	if err := a.cfg.Run.CheckScenes(opts.scenes); err != nil {
		return err
	}

	// Check everything else before asking the user to speak
	if opts.recordVoice {
		pending := set.Snapshot()
		if missing := pending.Missing(); len(missing) > 1 || (len(missing) == 1 && missing[0] != attachment.SlotVoice.String()) {
			return fmt.Errorf("missing inputs: %s", strings.Join(missing, ", "))
		}

		rec, err := a.recordVoice(ctx, opts.recordFor)
		if err != nil {
			return err
		}
		set.SetVoice(&attachment.File{Name: rec.Asset.Name, Data: rec.Asset.Data, MIMEType: audio.WAVMimeType})
	}

	snapshot := set.Snapshot()
	if !snapshot.IsSubmittable() {
		return fmt.Errorf("missing inputs: %s", strings.Join(snapshot.Missing(), ", "))
	}

	var recorder run.Recorder
	if a.history != nil {
		recorder = a.history
	}
	orch := run.NewOrchestrator(a.client, run.Config{
		PollInterval: a.cfg.Service.GetPollInterval(),
	}, a.logger, a.metrics, recorder)
	defer orch.Close()

	if a.cfg.Status.Enabled {
		sources := server.Sources{Runs: orch, Stats: a.client, Gatherer: a.registry}
		if a.history != nil {
			sources.History = a.history
		}
		status := server.NewHTTPServer(a.cfg.Status, a.logger, a.cfg, sources, a.metrics)
		if err := status.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := status.Stop(shutdownCtx); err != nil {
				a.logger.Warn("Status server shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	updates := orch.Subscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderRun(updates)
	}()

	final, err := orch.Submit(ctx, snapshot, string(styleKey), opts.scenes)
	orch.Close()
	<-rendered

	if err != nil {
		return err
	}

	switch final.Status {
	case run.StatusSucceeded:
		fmt.Printf("\nVideo ready: %s\n", final.ResultURL)
		if opts.download != "" {
			return a.download(ctx, final.ResultURL, opts.download)
		}
		return nil
	case run.StatusFailed:
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("run %s failed (%s): %s", final.ID, final.Error.Kind, final.Error.Message)
	default:
		return fmt.Errorf("run %s ended in unexpected status %s", final.ID, final.Status)
	}
}

// renderRun prints status changes and new log output until updates is closed
func renderRun(updates <-chan run.Run) {
	var lastStatus run.Status
	var lastLog string

	for r := range updates {
		if r.Status != lastStatus && r.Status != run.StatusIdle {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", r.ID, statusLabel(r.Status))
			lastStatus = r.Status
		}

		if r.LogText != lastLog {
			if strings.HasPrefix(r.LogText, lastLog) {
				fmt.Print(r.LogText[len(lastLog):])
			} else {
				fmt.Print(r.LogText)
			}
			lastLog = r.LogText
		}
	}
}

func statusLabel(s run.Status) string {
	switch s {
	case run.StatusSubmitting:
		return "Submitting..."
	case run.StatusInProgress:
		return "Generating video..."
	case run.StatusSucceeded:
		return "Done"
	case run.StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

func (a *app) download(ctx context.Context, videoURL, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := a.client.DownloadVideo(ctx, videoURL, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to download video: %w", err)
	}

	fmt.Printf("Saved %s (%d bytes)\n", path, n)
	return nil
}
