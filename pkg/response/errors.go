package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "solace-voice/internal/errors"
)

// statusByKind maps failure kinds to the status the recorder API answers with.
var statusByKind = map[apperrors.Kind]int{
	apperrors.KindPermissionDenied:           http.StatusForbidden,
	apperrors.KindNoAudioCaptured:            http.StatusBadRequest,
	apperrors.KindUnsupportedFormat:          http.StatusUnsupportedMediaType,
	apperrors.KindPayloadTooLarge:            http.StatusRequestEntityTooLarge,
	apperrors.KindAuthFailure:                http.StatusUnauthorized,
	apperrors.KindTimeout:                    http.StatusGatewayTimeout,
	apperrors.KindNetworkFailure:             http.StatusBadGateway,
	apperrors.KindServerTranscriptionFailure: http.StatusBadGateway,
	apperrors.KindMalformedResponse:          http.StatusBadGateway,
	apperrors.KindDeviceBusy:                 http.StatusConflict,
	apperrors.KindDeviceFailure:              http.StatusInternalServerError,
}

// StatusForKind returns the HTTP status for a failure kind.
func StatusForKind(kind apperrors.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError writes err as an error response. Known sentinel errors keep their
// message; classified failures carry their kind; anything else is a 500.
func FromError(c *gin.Context, err error) {
	var te *apperrors.TranscriptionError
	switch {
	case errors.As(err, &te):
		Failure(c, te.Kind, te.Message)
	case errors.Is(err, apperrors.ErrSessionNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, apperrors.ErrSessionActive),
		errors.Is(err, apperrors.ErrDeviceBusy),
		errors.Is(err, apperrors.ErrDeviceDetached):
		Conflict(c, err.Error())
	case errors.Is(err, apperrors.ErrUnauthorized),
		errors.Is(err, apperrors.ErrInvalidToken),
		errors.Is(err, apperrors.ErrTokenExpired),
		errors.Is(err, apperrors.ErrMissingToken):
		Unauthorized(c, err.Error())
	case errors.Is(err, apperrors.ErrJournalDisabled):
		Error(c, http.StatusServiceUnavailable, err.Error())
	default:
		InternalError(c)
	}
}
