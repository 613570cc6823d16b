package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/models"
	"solace-voice/internal/output"
	"solace-voice/internal/transcription"
)

// voiceSessionUploader posts into an existing voice session instead of the
// default transcription path.
type voiceSessionUploader interface {
	UploadToVoiceSession(ctx context.Context, voiceSessionID string, asset *models.AudioAsset, clientID string) (*models.TranscriptionResult, error)
}

func NewUploadCmd(deps *Dependencies) *cobra.Command {
	var clientID, mimeType, voiceSession string
	var mock bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Transcribe an existing audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			f := output.NewFormatter(deps.Out)

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			if mimeType == "" {
				mimeType = transcription.MimeTypeForFile(path)
			}
			if mimeType == "" {
				return fmt.Errorf("cannot tell the audio format of %s, pass --mime (supported: %v)", filepath.Base(path), transcription.SupportedMimeTypes())
			}

			uploader, err := deps.NewUploader(deps.Config, mock, deps.Logger)
			if err != nil {
				return err
			}

			asset := models.NewAudioAsset(data, mimeType, filepath.Base(path))
			f.Uploading()

			var result *models.TranscriptionResult
			if voiceSession != "" {
				vs, ok := uploader.(voiceSessionUploader)
				if !ok {
					return errors.New("voice sessions need the HTTP uploader, drop --mock")
				}
				result, err = vs.UploadToVoiceSession(ctx, voiceSession, asset, clientID)
			} else {
				result, err = uploader.Upload(ctx, asset, clientID)
			}
			if err != nil {
				var sessionErr models.SessionError
				sessionErr.Kind, sessionErr.Message = kindAndMessage(err)
				f.Failed(&sessionErr)
				return ErrReported
			}

			f.Transcription(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&clientID, "client", "c", "", "Client record the case note belongs to")
	cmd.Flags().StringVar(&mimeType, "mime", "", "Audio MIME type (default: from the file extension)")
	cmd.Flags().StringVar(&voiceSession, "voice-session", "", "Upload into an existing voice session")
	cmd.Flags().BoolVar(&mock, "mock", false, "Use the offline mock transcriber")

	return cmd
}

func kindAndMessage(err error) (apperrors.Kind, string) {
	return apperrors.KindOf(err), apperrors.MessageOf(err)
}
