package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"shipquote/internal/apperr"
	"shipquote/internal/quote"
)

const maxBodyBytes = 1 << 20

// quoteView is a quote as rendered to clients.
type quoteView struct {
	quote.Quote
	EstimatedDays string `json:"estimatedDays"`
}

type quoteResponse struct {
	Quotes   []quoteView     `json:"quotes"`
	Messages []quote.Message `json:"messages"`
	Cached   bool            `json:"cached"`
}

type quoteListResponse struct {
	Quotes []quoteView `json:"quotes"`
}

func viewsOf(quotes []quote.Quote) []quoteView {
	out := make([]quoteView, len(quotes))
	for i, q := range quotes {
		out[i] = quoteView{Quote: q, EstimatedDays: q.EstimatedDays()}
	}
	return out
}

func (s *Server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeAppError(ctx, s.log, w, apperr.Wrap(apperr.CodeInvalidJSON, err, "invalid json"))
		return
	}
	raw, err := normalizeQuoteRequest(body)
	if err != nil {
		msg := "invalid json"
		if errors.Is(err, ErrNotObject) {
			msg = ErrNotObject.Error()
		}
		writeAppError(ctx, s.log, w, apperr.Wrap(apperr.CodeInvalidJSON, err, msg))
		return
	}

	req, err := s.validator.Validate(raw)
	if err != nil {
		var ve *quote.ValidationError
		if errors.As(err, &ve) {
			s.log.Info(s.log.WithField(ctx, "field", ve.Field), "quote.request_invalid")
		}
		writeAppError(ctx, s.log, w, fromServiceError(err))
		return
	}

	res, err := s.svc.Handle(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// client went away
			return
		}
		writeAppError(ctx, s.log, w, fromServiceError(err))
		return
	}

	messages := res.Messages
	if messages == nil {
		messages = []quote.Message{}
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		Quotes:   viewsOf(res.Quotes),
		Messages: messages,
		Cached:   res.Cached,
	})
}

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeAppError(ctx, s.log, w, apperr.New(apperr.CodeValidation, "limit debe ser un entero positivo").WithField("limit"))
			return
		}
		limit = n
	}

	quotes, err := s.svc.History(ctx, limit)
	if err != nil {
		writeAppError(ctx, s.log, w, apperr.Wrap(apperr.CodeDependency, err, "no fue posible consultar el historial"))
		return
	}
	writeJSON(w, http.StatusOK, quoteListResponse{Quotes: viewsOf(quotes)})
}
