package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/knockout-app/knockout/internal/service"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Error maps business errors to their HTTP status 1:1 and hides anything
// unexpected behind an opaque 500.
func Error(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		slog.Warn("request rejected", "kind", svcErr.Kind.String(), "message", svcErr.Message)
		JSON(w, statusFor(svcErr.Kind), errorBody{Error: svcErr.Message, Kind: svcErr.Kind.String()})
		return
	}

	slog.Error("internal error", "error", err)
	JSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error", Kind: "internal"})
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("bad request", "message", msg, "error", err)
	} else {
		slog.Warn("bad request", "message", msg)
	}
	JSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "invalid_input"})
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	JSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error", Kind: "internal"})
}
