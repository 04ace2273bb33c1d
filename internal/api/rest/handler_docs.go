package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/usefreetools/toolbox/internal/docgen"
)

// handleConvert rewrites an uploaded document into the requested format and
// streams the result back as an attachment.
func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	upload, err := h.readDocumentUpload(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	if result := ValidateConvert(upload); !result.OK() {
		writeValidationErrors(w, result)
		return
	}

	converted, err := h.deps.Converter.Convert(r.Context(), docgen.File{
		Bytes:    upload.Bytes,
		Filename: upload.Filename,
		MimeType: upload.MimeType,
	}, upload.TargetFormat)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	w.Header().Set("Content-Type", converted.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(converted.Bytes)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", converted.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(converted.Bytes)
}

func (h *Handler) readDocumentUpload(r *http.Request) (*DocumentUpload, error) {
	if _, err := runWithTimeout(r.Context(), FormParseTimeout, func() (struct{}, error) {
		return struct{}{}, r.ParseMultipartForm(32 << 20)
	}); err != nil {
		return nil, err
	}

	target := r.FormValue("targetFormat")

	file, header, err := r.FormFile("file")
	if err != nil {
		return &DocumentUpload{TargetFormat: target}, nil
	}
	defer file.Close()

	data, err := bufferFile(r.Context(), file)
	if err != nil {
		return nil, err
	}

	// Prefer the declared part type; sniff the content when the client
	// sent none so the converter still sees HTML as HTML.
	mime := header.Header.Get("Content-Type")
	if mime == "" && len(data) > 0 {
		mime = mimetype.Detect(data).String()
	}

	return &DocumentUpload{
		Bytes:        data,
		Filename:     header.Filename,
		MimeType:     mime,
		TargetFormat: target,
	}, nil
}

// handleGenerate returns the endpoint for one document kind.
func (h *Handler) handleGenerate(kind docgen.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var input GenerateInput
		if err := h.readJSONBody(r, &input); err != nil {
			writeFault(w, r, err)
			return
		}

		if result := ValidateGenerate(input); !result.OK() {
			writeValidationErrors(w, result)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), UpstreamTimeout)
		defer cancel()

		doc, err := h.deps.Generator.Generate(ctx, kind, docgen.GenerateRequest{
			Text:   input.Text,
			Format: input.Format,
		})
		if err != nil {
			writeFault(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, GenerateResponse{
			Success:  true,
			Kind:     string(kind),
			Content:  doc.Content,
			Format:   doc.Format,
			Metadata: metadataSince(doc.Service, start),
		})
	}
}
