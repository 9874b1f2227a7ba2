package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skypro1111/storyreel/internal/audio"
)

// silentRatio is the voiced frame share below which a recording is reported as silent
const silentRatio = 0.05

func newRecordCmd(a *app) *cobra.Command {
	var (
		output   string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice sample from the default microphone into a WAV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.recordVoice(cmd.Context(), duration)
			if err != nil {
				return err
			}

			if output == "" {
				output = rec.Asset.Name
			}
			if err := os.WriteFile(output, rec.Asset.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			fmt.Printf("Saved %s (%s, %d Hz, %d bytes)\n",
				output, formatDuration(rec.Duration), rec.SampleRate, len(rec.Asset.Data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output WAV path (default: generated name)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop automatically after this long (required without a terminal)")

	return cmd
}

// recordVoice captures one recording. With a terminal on stdin the user ends
// it with Enter; otherwise it runs for the given duration. Cancelling ctx
// discards the audio.
func (a *app) recordVoice(ctx context.Context, duration time.Duration) (*audio.Recording, error) {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if !interactive && duration <= 0 {
		return nil, fmt.Errorf("stdin is not a terminal: pass --duration to record for a fixed time")
	}

	handles, err := audio.NewTempHandles(a.cfg.Audio.PreviewDir)
	if err != nil {
		return nil, err
	}

	ctrl := audio.NewController(audio.NewPortAudioDevice(a.logger), handles, audio.CaptureConfig{
		FramesPerBuffer: a.cfg.Audio.FramesPerBuffer,
		QueueSize:       a.cfg.Audio.QueueSize,
		NamePrefix:      a.cfg.Audio.NamePrefix,
		VoiceThreshold:  a.cfg.Audio.VoiceThreshold,
	}, a.logger, a.metrics)
	defer ctrl.Close()

	if err := ctrl.Start(); err != nil {
		return nil, fmt.Errorf("microphone unavailable, check permissions: %w", err)
	}

	var stopCh <-chan time.Time
	if duration > 0 {
		stopCh = time.After(duration)
	}

	enter := make(chan struct{})
	if interactive {
		fmt.Fprintln(os.Stderr, "Recording... press Enter to stop, Ctrl-C to cancel")
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(enter)
		}()
	} else {
		fmt.Fprintf(os.Stderr, "Recording for %s...\n", duration)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			ctrl.Cancel()
			fmt.Fprintln(os.Stderr, "\nRecording cancelled")
			return nil, ctx.Err()

		case <-ticker.C:
			if interactive {
				fmt.Fprintf(os.Stderr, "\r%s  [%s]  %d Hz", formatDuration(ctrl.Elapsed()), levelBar(ctrl.Level().Current, 20), ctrl.SampleRate())
			}

		case <-enter:
			break wait

		case <-stopCh:
			break wait
		}
	}
	if interactive {
		fmt.Fprintln(os.Stderr)
	}

	rec, err := ctrl.Stop()
	if err != nil {
		return nil, err
	}

	// Close revokes the preview, so copy what callers need first
	out := *rec
	out.Asset.Data = append([]byte(nil), rec.Asset.Data...)
	out.Handle = nil

	a.logger.Debug("Voice sample captured",
		slog.String("name", out.Asset.Name),
		slog.Int("samples", out.Samples),
	)
	if out.Level.Frames > 0 && out.Level.VoicedRatio < silentRatio {
		fmt.Fprintln(os.Stderr, "Warning: the recording is almost silent, check the microphone input")
	}

	return &out, nil
}

func levelBar(level float64, width int) string {
	n := int(level*float64(width) + 0.5)
	n = max(0, min(n, width))
	return strings.Repeat("#", n) + strings.Repeat(" ", width-n)
}
