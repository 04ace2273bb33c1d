package rest

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/usefreetools/toolbox/internal/scan"
)

// Upload limits.
const (
	MaxAudioUploadSize    = 25 << 20
	MaxDocumentUploadSize = 10 << 20
	MaxTTSTextLength      = 5000
)

// ValidationResult accumulates every violated rule for a request so the
// response can report all of them at once.
type ValidationResult struct {
	Errors          []string
	PayloadTooLarge bool
}

func (v *ValidationResult) add(message string) {
	v.Errors = append(v.Errors, message)
}

func (v ValidationResult) OK() bool {
	return len(v.Errors) == 0
}

var audioMimeTypes = map[string]bool{
	"audio/mpeg": true,
	"audio/mp3":  true,
	"audio/wav":  true,
	"audio/m4a":  true,
	"audio/flac": true,
	"audio/ogg":  true,
	"video/mp4":  true,
	"video/webm": true,
}

var audioExtRe = regexp.MustCompile(`(?i)\.(mp3|wav|m4a|flac|ogg|mp4|webm)$`)

// AudioUpload is the file part of a transcription request.
type AudioUpload struct {
	Bytes        []byte
	Filename     string
	DeclaredMime string
}

// ValidateAudioUpload checks presence, size and type of an uploaded audio
// file. A file passes the type check when either its MIME type or its
// filename extension matches a supported format; the MIME type may come
// from the multipart header or be sniffed from the content.
func ValidateAudioUpload(upload *AudioUpload) ValidationResult {
	var result ValidationResult

	if upload == nil || (len(upload.Bytes) == 0 && upload.Filename == "") {
		result.add("Audio file is required")
		return result
	}

	if len(upload.Bytes) > MaxAudioUploadSize {
		result.add("File too large. Maximum size is 25MB.")
		result.PayloadTooLarge = true
	}

	mime := upload.DeclaredMime
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if !audioMimeTypes[mime] && len(upload.Bytes) > 0 {
		mime = mimetype.Detect(upload.Bytes).String()
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
	}
	if !audioMimeTypes[mime] && !audioExtRe.MatchString(upload.Filename) {
		result.add("Unsupported file type. Supported types: mp3, wav, m4a, flac, ogg, mp4, webm")
	}

	return result
}

var ttsFormats = map[string]bool{
	"mp3": true,
	"wav": true,
}

// TTSInput is the decoded synthesis request before validation. Text is
// `any` so a non-string value is reported instead of failing the decode.
type TTSInput struct {
	Text   any    `json:"text"`
	Format string `json:"format"`
	Voice  string `json:"voice"`
}

// ValidateTTS checks the synthesis request and returns the normalized text
// and format alongside the violations.
func ValidateTTS(input TTSInput) (text, format string, result ValidationResult) {
	raw, isString := input.Text.(string)
	switch {
	case input.Text == nil || !isString:
		result.add("Text is required and must be a string")
	case strings.TrimSpace(raw) == "":
		result.add("Text cannot be empty")
	case len(strings.TrimSpace(raw)) > MaxTTSTextLength:
		result.add("Text too long. Maximum length is 5000 characters.")
	}

	format = input.Format
	if format == "" {
		format = "mp3"
	}
	if !ttsFormats[format] {
		result.add("Invalid format. Supported formats: mp3, wav")
	}

	return strings.TrimSpace(raw), format, result
}

// DocumentUpload is the file part of a conversion request.
type DocumentUpload struct {
	Bytes        []byte
	Filename     string
	MimeType     string
	TargetFormat string
}

// ValidateConvert checks the conversion request. Presence of both the file
// and the target format is a single combined rule.
func ValidateConvert(upload *DocumentUpload) ValidationResult {
	var result ValidationResult

	missingFile := upload == nil || (len(upload.Bytes) == 0 && upload.Filename == "")
	missingTarget := upload == nil || upload.TargetFormat == ""
	if missingFile || missingTarget {
		result.add("File and target format are required")
		return result
	}

	if len(upload.Bytes) > MaxDocumentUploadSize {
		result.add("File too large. Maximum size is 10MB.")
		result.PayloadTooLarge = true
	}

	return result
}

// ScanInput is the decoded scan request.
type ScanInput struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// ValidateScan checks the scan request: a known type and a target that is
// well-formed for that type.
func ValidateScan(input ScanInput) ValidationResult {
	var result ValidationResult

	if strings.TrimSpace(input.Target) == "" {
		result.add("Target is required")
	}
	switch input.Type {
	case scan.TypeURL, scan.TypeDomain, scan.TypeIP:
		if strings.TrimSpace(input.Target) != "" && !scan.ValidTarget(input.Type, input.Target) {
			result.add("Target is not a valid " + input.Type)
		}
	default:
		result.add("Invalid type. Supported types: url, domain, ip")
	}

	return result
}

// GenerateInput is the decoded document-generation request.
type GenerateInput struct {
	Text   string `json:"text" validate:"required,max=10000"`
	Format string `json:"format" validate:"omitempty,oneof=markdown html"`
}

var generateValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateGenerate checks a document-generation request.
func ValidateGenerate(input GenerateInput) ValidationResult {
	var result ValidationResult

	err := generateValidator.Struct(input)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		result.add("Invalid request body")
		return result
	}
	for _, fe := range fieldErrs {
		switch {
		case fe.Field() == "Text" && fe.Tag() == "required":
			result.add("Text is required")
		case fe.Field() == "Text" && fe.Tag() == "max":
			result.add("Text too long. Maximum length is 10000 characters.")
		case fe.Field() == "Format":
			result.add("Invalid format. Supported formats: markdown, html")
		default:
			result.add("Invalid request body")
		}
	}

	return result
}
