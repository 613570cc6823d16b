package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetKey(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		session  string
		filename string
		expected string
	}{
		{"plain", "u1", "s1", "voice_note_1.webm", "voice-notes/u1/s1/voice_note_1.webm"},
		{"strips directories", "u1", "s1", "../../etc/voice_note_1.wav", "voice-notes/u1/s1/voice_note_1.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AssetKey(tt.userID, tt.session, tt.filename))
		})
	}
}

func TestS3Client_GetPresignedURL(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "recordings",
	}, nil)
	require.NoError(t, err)

	signed, err := client.GetPresignedURL(context.Background(), "voice-notes/u1/s1/a.webm", 10*time.Minute)

	require.NoError(t, err)
	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", parsed.Host)
	assert.True(t, strings.HasPrefix(parsed.Path, "/recordings/voice-notes/u1/s1/a.webm"), parsed.Path)
	assert.Equal(t, "600", parsed.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, parsed.Query().Get("X-Amz-Signature"))
}
