package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"shipquote/internal/apperr"
	"shipquote/internal/logger"
	"shipquote/internal/quote"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

// writeErrorJSON writes a standardized JSON error response:
// {"error": {"code": string, "message": string}}
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	writeErrorBody(w, status, errorBody{Code: code, Message: message})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": body})
}

// writeAppError renders an *apperr.Error using its code metadata. Server-side
// failures are logged; internal errors only expose the public message.
func writeAppError(ctx context.Context, log *logger.Logger, w http.ResponseWriter, err error) {
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "")
	}
	meta := apperr.MetadataFor(typed.Code())

	body := errorBody{Code: string(typed.Code()), Message: typed.Message(), Field: typed.Field()}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}
	if meta.HTTPStatus >= http.StatusInternalServerError && log != nil {
		log.Error(ctx, "request.failed", err)
	}
	if typed.Code() == apperr.CodeInternal {
		body.Message = meta.PublicMessage
	}
	if body.Message == "" {
		body.Message = meta.PublicMessage
	}
	writeErrorBody(w, meta.HTTPStatus, body)
}

// fromValidation maps a request validation failure to an API error carrying
// the offending field and its Spanish message.
func fromValidation(ve *quote.ValidationError) *apperr.Error {
	return apperr.New(apperr.CodeValidation, ve.Message).
		WithField(ve.Field).
		WithDetails(map[string]any{"value": ve.Value})
}

// fromServiceError classifies errors returned by the quote service.
func fromServiceError(err error) *apperr.Error {
	var ve *quote.ValidationError
	switch {
	case errors.As(err, &ve):
		return fromValidation(ve)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.CodeTimeout, err, "la cotización tardó demasiado, intenta de nuevo")
	default:
		return apperr.Wrap(apperr.CodeInternal, err, "")
	}
}
