package rest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAudioUpload(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		result := ValidateAudioUpload(nil)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Audio file is required", result.Errors[0])
	})

	t.Run("accepted by mime type", func(t *testing.T) {
		result := ValidateAudioUpload(&AudioUpload{
			Bytes:        []byte("fake"),
			Filename:     "note.bin",
			DeclaredMime: "audio/mpeg",
		})
		assert.True(t, result.OK())
	})

	t.Run("accepted by extension alone", func(t *testing.T) {
		result := ValidateAudioUpload(&AudioUpload{
			Bytes:        []byte("fake"),
			Filename:     "NOTE.MP3",
			DeclaredMime: "application/octet-stream",
		})
		assert.True(t, result.OK(), "extension check is case-insensitive")
	})

	t.Run("accepted by sniffed content", func(t *testing.T) {
		// A minimal RIFF/WAVE header sniffs as audio/wav.
		wav := append([]byte("RIFF"), 0x24, 0, 0, 0)
		wav = append(wav, []byte("WAVEfmt ")...)
		result := ValidateAudioUpload(&AudioUpload{
			Bytes:        wav,
			Filename:     "upload.bin",
			DeclaredMime: "application/octet-stream",
		})
		assert.True(t, result.OK())
	})

	t.Run("rejected type", func(t *testing.T) {
		result := ValidateAudioUpload(&AudioUpload{
			Bytes:        []byte("%PDF-1.7"),
			Filename:     "report.pdf",
			DeclaredMime: "application/pdf",
		})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Unsupported file type. Supported types: mp3, wav, m4a, flac, ogg, mp4, webm", result.Errors[0])
	})

	t.Run("oversized file reports every violation", func(t *testing.T) {
		result := ValidateAudioUpload(&AudioUpload{
			Bytes:        bytes.Repeat([]byte("x"), MaxAudioUploadSize+1),
			Filename:     "report.pdf",
			DeclaredMime: "application/pdf",
		})
		assert.True(t, result.PayloadTooLarge)
		require.Len(t, result.Errors, 2)
		assert.Equal(t, "File too large. Maximum size is 25MB.", result.Errors[0])
	})
}

func TestValidateTTS(t *testing.T) {
	t.Run("missing text", func(t *testing.T) {
		_, _, result := ValidateTTS(TTSInput{})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Text is required and must be a string", result.Errors[0])
	})

	t.Run("non-string text", func(t *testing.T) {
		_, _, result := ValidateTTS(TTSInput{Text: 42.0})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Text is required and must be a string", result.Errors[0])
	})

	t.Run("whitespace-only text", func(t *testing.T) {
		_, _, result := ValidateTTS(TTSInput{Text: "   \n\t "})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Text cannot be empty", result.Errors[0])
	})

	t.Run("text at the limit passes", func(t *testing.T) {
		text, format, result := ValidateTTS(TTSInput{Text: strings.Repeat("a", MaxTTSTextLength)})
		assert.True(t, result.OK())
		assert.Len(t, text, MaxTTSTextLength)
		assert.Equal(t, "mp3", format, "format defaults to mp3")
	})

	t.Run("text over the limit", func(t *testing.T) {
		_, _, result := ValidateTTS(TTSInput{Text: strings.Repeat("a", MaxTTSTextLength+1)})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Text too long. Maximum length is 5000 characters.", result.Errors[0])
	})

	t.Run("length measured after trimming", func(t *testing.T) {
		padded := "  " + strings.Repeat("a", MaxTTSTextLength) + "  "
		_, _, result := ValidateTTS(TTSInput{Text: padded})
		assert.True(t, result.OK())
	})

	t.Run("bad format", func(t *testing.T) {
		_, _, result := ValidateTTS(TTSInput{Text: "hello", Format: "flac"})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Invalid format. Supported formats: mp3, wav", result.Errors[0])
	})

	t.Run("all violations reported together", func(t *testing.T) {
		_, _, result := ValidateTTS(TTSInput{Text: "", Format: "flac"})
		assert.Len(t, result.Errors, 2)
	})
}

func TestValidateConvert(t *testing.T) {
	t.Run("missing both", func(t *testing.T) {
		result := ValidateConvert(nil)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "File and target format are required", result.Errors[0])
	})

	t.Run("missing target", func(t *testing.T) {
		result := ValidateConvert(&DocumentUpload{Bytes: []byte("hi"), Filename: "a.txt"})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "File and target format are required", result.Errors[0])
	})

	t.Run("oversized", func(t *testing.T) {
		result := ValidateConvert(&DocumentUpload{
			Bytes:        bytes.Repeat([]byte("x"), MaxDocumentUploadSize+1),
			Filename:     "a.txt",
			TargetFormat: "md",
		})
		assert.True(t, result.PayloadTooLarge)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "File too large. Maximum size is 10MB.", result.Errors[0])
	})

	t.Run("valid", func(t *testing.T) {
		result := ValidateConvert(&DocumentUpload{Bytes: []byte("hi"), Filename: "a.txt", TargetFormat: "md"})
		assert.True(t, result.OK())
	})
}

func TestValidateScan(t *testing.T) {
	t.Run("valid targets", func(t *testing.T) {
		for _, tc := range []ScanInput{
			{Type: "url", Target: "https://example.com/login"},
			{Type: "domain", Target: "example.co.uk"},
			{Type: "ip", Target: "192.0.2.1"},
		} {
			assert.True(t, ValidateScan(tc).OK(), "%s %s", tc.Type, tc.Target)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		result := ValidateScan(ScanInput{Type: "email", Target: "a@b.com"})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Invalid type. Supported types: url, domain, ip", result.Errors[0])
	})

	t.Run("type mismatch", func(t *testing.T) {
		result := ValidateScan(ScanInput{Type: "ip", Target: "example.com"})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Target is not a valid ip", result.Errors[0])
	})

	t.Run("missing target and bad type stack", func(t *testing.T) {
		result := ValidateScan(ScanInput{Type: "email"})
		assert.Len(t, result.Errors, 2)
	})
}

func TestValidateGenerate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.True(t, ValidateGenerate(GenerateInput{Text: "Invoice ACME for 3 days of consulting"}).OK())
	})

	t.Run("missing text", func(t *testing.T) {
		result := ValidateGenerate(GenerateInput{Format: "markdown"})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Text is required", result.Errors[0])
	})

	t.Run("text too long", func(t *testing.T) {
		result := ValidateGenerate(GenerateInput{Text: strings.Repeat("a", 10001)})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Text too long. Maximum length is 10000 characters.", result.Errors[0])
	})

	t.Run("bad format", func(t *testing.T) {
		result := ValidateGenerate(GenerateInput{Text: "hi", Format: "pdf"})
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Invalid format. Supported formats: markdown, html", result.Errors[0])
	})
}
