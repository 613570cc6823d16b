package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"solace-voice/internal/models"
	"solace-voice/internal/output"
	"solace-voice/internal/recorder"
)

type recordOptions struct {
	clientID string
	save     string
	yes      bool
	mock     bool
}

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice note and submit it for transcription",
		Long: "Record from the default microphone. Type p or r and press enter to pause or resume, " +
			"press enter on an empty line to stop, ctrl+c to discard.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), deps, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.clientID, "client", "c", "", "Client record the case note belongs to")
	cmd.Flags().StringVarP(&opts.save, "save", "o", "", "Also write the recording to this file")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Submit without asking")
	cmd.Flags().BoolVar(&opts.mock, "mock", false, "Use the offline mock transcriber")

	return cmd
}

// lines feeds stdin to the record loop. The channel closes on EOF.
func lines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
	}()
	return ch
}

func runRecord(ctx context.Context, deps *Dependencies, opts recordOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := output.NewFormatter(deps.Out)

	uploader, err := deps.NewUploader(deps.Config, opts.mock, deps.Logger)
	if err != nil {
		return err
	}
	device := deps.NewDevice(deps.Config, deps.Logger)

	updates := make(chan models.SessionSnapshot, 64)
	ctrl := recorder.New(device, uploader, opts.clientID, recorder.Options{
		MaxDuration: deps.Config.MaxDuration,
		Logger:      deps.Logger,
		OnChange: func(snap models.SessionSnapshot) {
			select {
			case updates <- snap:
			default:
			}
		},
	})
	defer ctrl.Reset()

	f.RequestingPermission(device.Name())
	snap := ctrl.Start(ctx)
	if snap.State != models.StateRecording {
		if ctx.Err() != nil {
			f.Discarded()
			return nil
		}
		f.Failed(snap.Error)
		return ErrReported
	}
	f.RecordingStarted()

	input := lines(deps.In)
	snap, done := captureLoop(ctx, ctrl, input, updates, f)
	if done {
		return nil
	}
	if snap.State != models.StateStopped {
		f.Failed(snap.Error)
		return ErrReported
	}
	f.RecordingStopped(snap.ElapsedSeconds, snap.Asset)

	if opts.save != "" {
		if err := os.WriteFile(opts.save, snap.Asset.Bytes, 0o644); err != nil {
			return fmt.Errorf("saving recording: %w", err)
		}
		f.AssetSaved(opts.save)
	}

	if !opts.yes {
		f.Confirm("Submit for transcription?")
		select {
		case answer := <-input:
			if answer == "n" || answer == "no" {
				f.Discarded()
				return nil
			}
		case <-ctx.Done():
			f.Discarded()
			return nil
		}
	}

	f.Uploading()
	snap = ctrl.Submit(ctx)
	if snap.State == models.StateSucceeded {
		f.Transcription(snap.Result)
		return nil
	}
	if ctx.Err() != nil {
		f.Discarded()
		return nil
	}
	f.Failed(snap.Error)
	return ErrReported
}

// captureLoop drives pause, resume and stop from input until the session
// leaves capture. done reports that the user discarded the recording.
func captureLoop(ctx context.Context, ctrl *recorder.Controller, input <-chan string, updates <-chan models.SessionSnapshot, f *output.Formatter) (models.SessionSnapshot, bool) {
	for {
		select {
		case <-ctx.Done():
			ctrl.Reset()
			f.Discarded()
			return models.SessionSnapshot{}, true

		case line, ok := <-input:
			if !ok {
				return ctrl.Stop(), false
			}
			switch line {
			case "p", "pause":
				if ctrl.Pause().State == models.StatePaused {
					f.Paused()
				}
			case "r", "resume":
				if ctrl.Resume().State == models.StateRecording {
					f.Resumed()
				}
			case "", "s", "stop":
				return ctrl.Stop(), false
			case "d", "discard":
				ctrl.Reset()
				f.Discarded()
				return models.SessionSnapshot{}, true
			}

		case snap := <-updates:
			switch snap.State {
			case models.StateRecording, models.StatePaused:
				f.Elapsed(snap.ElapsedSeconds, snap.State == models.StatePaused)
			case models.StateStopped, models.StateFailed:
				// max duration reached or the device failed
				return ctrl.Snapshot(), false
			}
		}
	}
}
