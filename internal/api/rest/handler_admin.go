package rest

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/schema"

	"github.com/usefreetools/toolbox/internal/auth"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// handleAdminLogin exchanges the admin key for a bearer token.
func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if h.deps.Admin == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "Admin access is not configured")
		return
	}

	var input AdminLoginRequest
	if err := h.readJSONBody(r, &input); err != nil {
		writeFault(w, r, err)
		return
	}

	pair, err := h.deps.Admin.Login(input.Key)
	switch {
	case errors.Is(err, auth.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "Admin access is not configured")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid admin key")
		return
	case err != nil:
		writeFault(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleAdminRateLimit lists the live rate-limit windows from the
// in-process store, sorted by key for stable paging.
func (h *Handler) handleAdminRateLimit(w http.ResponseWriter, r *http.Request) {
	if h.deps.Inspector == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "Rate-limit inspection requires the in-memory store")
		return
	}

	var query RateLimitQuery
	if err := queryDecoder.Decode(&query, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "Invalid query parameters")
		return
	}
	if query.Limit <= 0 || query.Limit > 500 {
		query.Limit = 100
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	snapshot := h.deps.Inspector.Snapshot()
	entries := make([]RateLimitEntry, 0, len(snapshot))
	for key, entry := range snapshot {
		if query.Prefix != "" && !strings.HasPrefix(key, query.Prefix) {
			continue
		}
		entries = append(entries, RateLimitEntry{
			Key:     key,
			Count:   entry.Count,
			ResetAt: entry.WindowResetAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	total := len(entries)
	if query.Offset >= total {
		entries = nil
	} else {
		end := query.Offset + query.Limit
		if end > total {
			end = total
		}
		entries = entries[query.Offset:end]
	}

	writeJSON(w, http.StatusOK, RateLimitListing{
		Success: true,
		Entries: entries,
		Total:   total,
	})
}

// handleAdminCachePurge drops the voice catalog cache so the next listing
// refetches from the upstream.
func (h *Handler) handleAdminCachePurge(w http.ResponseWriter, r *http.Request) {
	if h.deps.Voices != nil {
		h.deps.Voices.Purge()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
