// Package cli implements the voicenote terminal recorder.
package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solace-voice/internal/capture"
	"solace-voice/internal/config"
	"solace-voice/internal/transcription"
)

// ErrReported means the failure was already shown to the user.
var ErrReported = errors.New("failure already reported")

type Dependencies struct {
	Config *config.CLIConfig
	Logger *zap.Logger
	In     io.Reader
	Out    io.Writer
	// NewDevice and NewUploader build collaborators per command; tests swap them.
	NewDevice   func(cfg *config.CLIConfig, logger *zap.Logger) capture.Device
	NewUploader func(cfg *config.CLIConfig, mock bool, logger *zap.Logger) (transcription.Uploader, error)
}

// NewDependencies wires the real ffmpeg device and HTTP uploader.
func NewDependencies(cfg *config.CLIConfig, logger *zap.Logger) *Dependencies {
	return &Dependencies{
		Config:      cfg,
		Logger:      logger,
		In:          os.Stdin,
		Out:         os.Stdout,
		NewDevice:   DefaultDevice,
		NewUploader: DefaultUploader,
	}
}

func DefaultDevice(cfg *config.CLIConfig, logger *zap.Logger) capture.Device {
	return capture.NewFFmpegDevice(cfg.InputFormat, cfg.Input, logger)
}

// DefaultUploader returns the offline mock when mock is set, otherwise an
// HTTP uploader authenticated with the configured token.
func DefaultUploader(cfg *config.CLIConfig, mock bool, logger *zap.Logger) (transcription.Uploader, error) {
	if mock {
		m := transcription.NewMockUploader()
		m.MaxBytes = cfg.MaxUploadBytes
		return m, nil
	}
	if cfg.APIBaseURL == "" {
		return nil, errors.New("api_base_url is not set. Set VOICENOTE_API_BASE_URL or add it to the config file")
	}
	return transcription.NewHTTPUploader(transcription.Config{
		BaseURL:        cfg.APIBaseURL,
		TranscribePath: cfg.TranscribePath,
		HealthPath:     cfg.HealthPath,
		Timeout:        cfg.UploadTimeout,
		MaxBytes:       cfg.MaxUploadBytes,
	}, transcription.StaticToken(cfg.Token), logger), nil
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "voicenote",
		Short:         "Record voice notes and turn them into case notes",
		Long:          "Records a voice note from the microphone, uploads it for transcription and prints the resulting case note.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetIn(deps.In)
	rootCmd.SetOut(deps.Out)

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewUploadCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
