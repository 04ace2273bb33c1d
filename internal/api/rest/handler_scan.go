package rest

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// handleScan runs the heuristic rules (plus the reputation upstream when
// configured) against a url, domain or ip target.
func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var input ScanInput
	if err := h.readJSONBody(r, &input); err != nil {
		writeFault(w, r, err)
		return
	}
	input.Target = strings.TrimSpace(input.Target)

	if result := ValidateScan(input); !result.OK() {
		writeValidationErrors(w, result)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), UpstreamTimeout)
	defer cancel()

	result, err := h.deps.Scanner.Scan(ctx, input.Type, input.Target)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		Success:  true,
		Result:   result,
		Metadata: metadataSince(result.Service, start),
	})
}
