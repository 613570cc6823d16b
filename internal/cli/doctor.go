package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"solace-voice/internal/models"
	"solace-voice/internal/output"
)

type checker interface {
	Check() error
}

type healthProber interface {
	Health(ctx context.Context) (*models.VoiceHealth, error)
}

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			f := output.NewFormatter(deps.Out)
			cfg := deps.Config
			ok := true

			device := deps.NewDevice(cfg, deps.Logger)
			if c, isChecker := device.(checker); isChecker {
				if err := c.Check(); err != nil {
					f.SetupCheck("ffmpeg", false, err.Error())
					ok = false
				} else {
					f.SetupCheck("ffmpeg", true, "installed")
				}
			}
			f.SetupCheck("Microphone", true, device.Name()+", permission is requested when recording starts")

			if cfg.Path != "" {
				f.SetupCheck("Config file", true, cfg.Path)
			} else {
				f.SetupCheck("Config file", true, "none, using defaults and VOICENOTE_* variables")
			}

			if cfg.Token != "" {
				f.SetupCheck("Access token", true, "configured")
			} else {
				f.SetupCheck("Access token", false, "not set. Set VOICENOTE_TOKEN or add token to the config file")
				ok = false
			}

			uploader, err := deps.NewUploader(cfg, false, deps.Logger)
			if err != nil {
				f.SetupCheck("Transcription API", false, err.Error())
				ok = false
			} else if prober, canProbe := uploader.(healthProber); canProbe {
				probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				health, err := prober.Health(probeCtx)
				cancel()
				if err != nil {
					_, msg := kindAndMessage(err)
					f.SetupCheck("Transcription API", false, msg)
					ok = false
				} else {
					f.SetupCheck("Transcription API", true, cfg.APIBaseURL+" ("+health.Status+", "+health.Latency+")")
				}
			}

			if cfg.MaxDuration > 0 {
				f.SetupCheck("Max duration", true, output.FormatElapsed(cfg.MaxDuration))
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}
