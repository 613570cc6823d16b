// Package handler exposes the recorder over HTTP and websockets.
package handler

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/middleware"
	"solace-voice/internal/models"
	"solace-voice/internal/service"
	"solace-voice/pkg/response"
)

// RecorderHandler handles HTTP requests for the user's recorder.
type RecorderHandler struct {
	service        service.RecorderServicer
	maxUploadBytes int64
}

// NewRecorderHandler creates a new RecorderHandler. maxUploadBytes <= 0
// leaves file size checks to the uploader.
func NewRecorderHandler(service service.RecorderServicer, maxUploadBytes int64) *RecorderHandler {
	return &RecorderHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// OpenSession godoc
// @Summary      Open a recorder
// @Description  Open the user's recorder in the idle state, replacing an idle or finished one
// @Tags         recorder
// @Accept       json
// @Produce      json
// @Param        request  body      models.OpenSessionRequest  false  "Target client"
// @Success      201      {object}  response.Response{data=models.SessionSnapshot}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions [post]
func (h *RecorderHandler) OpenSession(c *gin.Context) {
	var req models.OpenSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	snap, err := h.service.Open(c.Request.Context(), middleware.GetUserID(c), req.ClientID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, snap)
}

// GetSession godoc
// @Summary      Get the current session
// @Tags         recorder
// @Produce      json
// @Success      200  {object}  response.Response{data=models.SessionSnapshot}
// @Failure      401  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/current [get]
func (h *RecorderHandler) GetSession(c *gin.Context) {
	h.intent(c, h.service.Current)
}

// DiscardSession godoc
// @Summary      Discard the recorder
// @Description  Reset the current session and close the recorder, e.g. when the recording UI is dismissed
// @Tags         recorder
// @Success      204
// @Failure      401  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/current [delete]
func (h *RecorderHandler) DiscardSession(c *gin.Context) {
	if err := h.service.Discard(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		response.FromError(c, err)
		return
	}
	response.NoContent(c)
}

// Start godoc
// @Summary      Start recording
// @Description  Ask the connected browser for microphone access and start recording. Ignored unless idle.
// @Tags         recorder
// @Produce      json
// @Success      200  {object}  response.Response{data=models.SessionSnapshot}
// @Failure      401  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/current/start [post]
func (h *RecorderHandler) Start(c *gin.Context) {
	h.intent(c, h.service.Start)
}

// Pause godoc
// @Summary      Pause recording
// @Tags         recorder
// @Produce      json
// @Success      200  {object}  response.Response{data=models.SessionSnapshot}
// @Failure      404  {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/current/pause [post]
func (h *RecorderHandler) Pause(c *gin.Context) {
	h.intent(c, h.service.Pause)
}

// Resume godoc
// @Summary      Resume recording
// @Tags         recorder
// @Produce      json
// @Success      200  {object}  response.Response{data=models.SessionSnapshot}
// @Failure      404  {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/current/resume [post]
func (h *RecorderHandler) Resume(c *gin.Context) {
	h.intent(c, h.service.Resume)
}

// Stop godoc
// @Summary      Stop recording
// @Description  Stop capture and package the recording for preview and submission
// @Tags         recorder
// @Produce      json
// @Success      200  {object}  response.Response{data=models.SessionSnapshot}
// @Failure      404  {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/current/stop [post]
func (h *RecorderHandler) Stop(c *gin.Context) {
	h.intent(c, h.service.Stop)
}

// Submit godoc
// @Summary      Submit for transcription
// @Description  Upload the stopped recording and wait for the transcription and case note
// @Tags         recorder
// @Produce      json
// @Success      200  {object}  response.Response{data=models.SessionSnapshot}
// @Failure      404  {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/current/submit [post]
func (h *RecorderHandler) Submit(c *gin.Context) {
	h.intent(c, h.service.Submit)
}

// Reset godoc
// @Summary      Reset the session
// @Description  Cancel any in-flight work and return to a fresh idle session
// @Tags         recorder
// @Produce      json
// @Success      200  {object}  response.Response{data=models.SessionSnapshot}
// @Failure      404  {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/current/reset [post]
func (h *RecorderHandler) Reset(c *gin.Context) {
	h.intent(c, h.service.Reset)
}

func (h *RecorderHandler) intent(c *gin.Context, fn func(ctx context.Context, userID string) (models.SessionSnapshot, error)) {
	snap, err := fn(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, snap)
}

// ListHistory godoc
// @Summary      List finished sessions
// @Description  Retrieve the user's session journal, newest first
// @Tags         recorder
// @Produce      json
// @Param        page   query     int  false  "Page number (default: 1)"
// @Param        limit  query     int  false  "Items per page (default: 10, max: 50)"
// @Success      200    {object}  response.Response{data=models.SessionLogListResponse}
// @Failure      401    {object}  response.Response
// @Failure      503    {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/history [get]
func (h *RecorderHandler) ListHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	result, err := h.service.History(c.Request.Context(), middleware.GetUserID(c), page, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

// UploadFile godoc
// @Summary      Upload an existing recording
// @Description  Submit an audio file for transcription without recording it here
// @Tags         recorder
// @Accept       multipart/form-data
// @Produce      json
// @Param        audio     formData  file    true   "Audio file"
// @Param        clientId  formData  string  false  "Target client"
// @Param        mimeType  formData  string  false  "Overrides the part's content type"
// @Success      200       {object}  response.Response{data=models.TranscriptionResult}
// @Failure      400       {object}  response.Response
// @Failure      413       {object}  response.Response
// @Failure      415       {object}  response.Response
// @Failure      502       {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/uploads [post]
func (h *RecorderHandler) UploadFile(c *gin.Context) {
	var req models.UploadFileRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	header, err := c.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "audio file is required")
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		response.FromError(c, apperrors.Wrap(apperrors.KindPayloadTooLarge,
			fmt.Sprintf("recording is %d bytes, the limit is %d", header.Size, h.maxUploadBytes), apperrors.ErrPayloadTooLarge))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.InternalError(c)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.InternalError(c)
		return
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}

	result, err := h.service.SubmitFile(c.Request.Context(), middleware.GetUserID(c), &models.FileUpload{
		Data:     data,
		Filename: header.Filename,
		MimeType: mimeType,
		ClientID: req.ClientID,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}
