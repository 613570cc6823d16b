package models

import "encoding/json"

// TranscriptionResult is what the transcription endpoint returns for a
// successful upload. CaseNote is opaque and passed on verbatim.
type TranscriptionResult struct {
	Transcription string          `json:"transcription" example:"client arrived late"`
	CaseNote      json.RawMessage `json:"caseNote" swaggertype:"object"`
}

// VoiceHealth is the transcription service health report.
type VoiceHealth struct {
	Status  string `json:"status" example:"ok"`
	Latency string `json:"latency" example:"84ms"`
}

// FileUpload is an existing recording submitted without capture.
type FileUpload struct {
	Data     []byte
	Filename string
	MimeType string
	ClientID string
}
