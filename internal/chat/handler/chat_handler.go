// Package handler serves POST /chat.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/chat/domain"
	"github.com/mairble/mairble-backend-go/internal/chat/service"
	maindomain "github.com/mairble/mairble-backend-go/internal/domain"
)

var tracer = otel.Tracer("chat/handler")

// maxBodyBytes bounds the chat request body.
const maxBodyBytes = 1 << 20

// ChatHandler returns the handler for POST /chat.
//
// Request:
//
//	{"message": "What are the next booking gaps?", "api_key": "...",
//	 "selected_property": {"id": "21f4...", "name": "Cliff House", "no_of_bedrooms": 3}}
//
// Response (200 OK):
//
//	{"response": "### Openings ...", "conversation_id": "9b1d...", "tools_used": ["get_unbooked_openings"]}
func ChatHandler(chatSvc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /chat")
		defer span.End()

		var req domain.ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, `invalid request body: expected {"message": "your message"}`)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		span.SetAttributes(attribute.Bool("chat.own_api_key", req.APIKey != ""))

		resp, err := chatSvc.ProcessMessage(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleServiceError maps domain errors to HTTP status codes.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var (
		validation    *maindomain.ErrValidation
		notConfigured *maindomain.ErrNotConfigured
		external      *maindomain.ErrExternalService
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, validation.Error())
	case errors.As(err, &notConfigured):
		logger.Warn("chat unavailable", zap.String("setting", notConfigured.Setting))
		writeError(w, http.StatusServiceUnavailable, notConfigured.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(external.Err))
		writeError(w, http.StatusBadGateway, "external service unavailable: "+external.Service)
	default:
		logger.Error("unexpected error in chat handler", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
