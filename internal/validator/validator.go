package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"solace-voice/internal/transcription"
)

// clientIDRegex matches the backend's client record ids.
var clientIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// validateClientID validates a target client id
func validateClientID(fl validator.FieldLevel) bool {
	return clientIDRegex.MatchString(fl.Field().String())
}

// validateAudioMime accepts any spelling of a MIME type the transcription
// endpoint supports, e.g. "audio/x-m4a" or "audio/webm;codecs=opus".
func validateAudioMime(fl validator.FieldLevel) bool {
	return transcription.IsSupported(transcription.NormalizeMimeType(fl.Field().String()))
}

// Register adds the custom validations to v.
func Register(v *validator.Validate) {
	_ = v.RegisterValidation("clientid", validateClientID)
	_ = v.RegisterValidation("audiomime", validateAudioMime)
}

// RegisterCustomValidators registers all custom validators with gin's validator
func RegisterCustomValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		Register(v)
	}
}
