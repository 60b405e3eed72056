package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	natspkg "github.com/brojonat/ledgerwire/service/nats"
	"github.com/brojonat/ledgerwire/service/schema"
	"github.com/brojonat/ledgerwire/service/tracker"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
)

// decodeResponse is the JSON response of the decode endpoint.
type decodeResponse struct {
	Name     string        `json:"name"`
	Variant  string        `json:"variant"`
	Tag      *wire.Tag     `json:"tag"`
	Envelope wire.Envelope `json:"envelope"`
}

// codecErrorResponse reports a codec failure with its classification.
type codecErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
	Path  string `json:"path,omitempty"`
}

// publishResponse is the JSON response of the publish endpoint.
type publishResponse struct {
	Subject   string              `json:"subject"`
	EventType string              `json:"event_type"`
	Progress  *tracker.Transition `json:"progress,omitempty"`
}

// handleDecode returns a handler that decodes a body against a catalog entry.
// POST /api/v1/decode/{name}?strict=true
// Responds with the canonical re-encoding of the decoded value.
func handleDecode(codec *wire.Codec, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		entry, err := schema.Lookup(name)
		if err != nil {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}

		c, err := codecForRequest(codec, r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		body, ok := readBody(w, r)
		if !ok {
			return
		}

		decoded, err := entry.Unmarshal(c, body)
		if err != nil {
			logger.Debug("decode rejected", "schema", name, "error", err)
			writeCodecError(w, err)
			return
		}

		logger.Debug("decoded", "schema", name, "variant", decoded.Variant)

		writeJSON(w, decodeResponse{
			Name:     decoded.Schema,
			Variant:  decoded.Variant,
			Tag:      decoded.Tag,
			Envelope: decoded.Envelope,
		}, http.StatusOK)
	})
}

// handleListFamilies returns a handler that lists the tag tables of every catalog entry.
// GET /api/v1/families
func handleListFamilies() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"schemas": schema.DescribeAll(),
		}, http.StatusOK)
	})
}

// handleGetFamily returns a handler that describes one catalog entry.
// GET /api/v1/families/{name}
func handleGetFamily() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry, err := schema.Lookup(r.PathValue("name"))
		if err != nil {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, entry.Describe(), http.StatusOK)
	})
}

// handlePublishEvent returns a handler that decodes an Event and publishes it to NATS.
// POST /api/v1/events
func handlePublishEvent(codec *wire.Codec, publisher natspkg.Publisher, tr *tracker.Tracker, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publisher == nil {
			writeError(w, "event publishing is not configured", http.StatusServiceUnavailable)
			return
		}

		c, err := codecForRequest(codec, r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		body, ok := readBody(w, r)
		if !ok {
			return
		}

		event, err := wallet.UnmarshalEvent(c, body)
		if err != nil {
			logger.Debug("event rejected", "error", err)
			writeCodecError(w, err)
			return
		}

		resp := publishResponse{
			Subject:   natspkg.Subject(event.AccountIndex),
			EventType: wire.VariantName(event.Event),
		}

		if err := publisher.PublishEvent(r.Context(), event); err != nil {
			logger.Error("failed to publish event",
				"account", event.AccountIndex,
				"event_type", resp.EventType,
				"error", err,
			)
			writeError(w, "failed to publish event", http.StatusBadGateway)
			return
		}

		// Only published events advance the tracker.
		if tr != nil {
			transition, err := tr.Observe(r.Context(), event)
			if err != nil {
				logger.Error("failed to track progress", "account", event.AccountIndex, "error", err)
			} else if transition.Result != tracker.ResultIgnored {
				resp.Progress = &transition
			}
		}

		logger.Info("event published",
			"account", event.AccountIndex,
			"event_type", resp.EventType,
		)

		writeJSON(w, resp, http.StatusAccepted)
	})
}

// handleGetProgress returns a handler that reports the last tracked stage of an account.
// GET /api/v1/progress/{account}
func handleGetProgress(tr *tracker.Tracker, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := natspkg.ParseAccount(r.PathValue("account"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		state, ok, err := tr.Current(r.Context(), account)
		if err != nil {
			logger.Error("failed to read progress", "account", account, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !ok {
			writeError(w, "no progress recorded for account", http.StatusNotFound)
			return
		}

		writeJSON(w, map[string]interface{}{
			"account": account,
			"state":   state,
		}, http.StatusOK)
	})
}

// codecForRequest applies the strict query parameter to the server codec.
func codecForRequest(codec *wire.Codec, r *http.Request) (*wire.Codec, error) {
	raw := r.URL.Query().Get("strict")
	if raw == "" {
		return codec, nil
	}
	strict, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New("invalid strict parameter: must be a boolean")
	}
	return codec.WithStrict(strict), nil
}

// readBody reads a size-limited request body. It writes the error response itself.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// writeCodecError maps a codec error to 422, or 400 when the body was not a JSON object.
func writeCodecError(w http.ResponseWriter, err error) {
	kind := wire.ErrorKind(err)
	status := http.StatusUnprocessableEntity
	if kind == wire.ErrKindMalformed {
		status = http.StatusBadRequest
	}
	field, path := wire.ErrorField(err)
	writeJSON(w, codecErrorResponse{
		Error: err.Error(),
		Kind:  kind,
		Field: field,
		Path:  path,
	}, status)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
