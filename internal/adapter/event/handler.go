// Package event adapts raw invocation payloads to the update service and
// renders every outcome as an HTTP-style response.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"binstatus/internal/domain"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Updater runs one status update.
type Updater interface {
	Execute(ctx context.Context, req domain.UpdateRequest) (*domain.UpdateResponse, error)
}

// Handler decodes payloads with an ordered list of decoders and runs the
// first request that decodes.
type Handler struct {
	svc      Updater
	decoders []Decoder
	logger   zerolog.Logger
	observe  func(schema string, statusCode int)
	timeout  time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithDecoders appends decoders tried after the built-in ones.
func WithDecoders(d ...Decoder) Option {
	return func(h *Handler) { h.decoders = append(h.decoders, d...) }
}

// WithLogger sets the logger. The global zerolog logger is used otherwise.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithObserver is called once per handled payload with the matched schema
// name (empty if none matched) and the response status code.
func WithObserver(fn func(schema string, statusCode int)) Option {
	return func(h *Handler) { h.observe = fn }
}

// WithTimeout bounds each update, including both store writes.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// NewHandler creates a Handler trying the direct schema, then the gateway
// envelope, then any decoders added with WithDecoders.
func NewHandler(svc Updater, opts ...Option) *Handler {
	h := &Handler{
		svc:      svc,
		decoders: []Decoder{DirectDecoder{}, GatewayDecoder{}},
		logger:   log.Logger,
		observe:  func(string, int) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var marshal = json.Marshal

// Handle never fails: every outcome is a response.
func (h *Handler) Handle(ctx context.Context, raw []byte) events.APIGatewayV2HTTPResponse {
	schema, resp := h.handle(ctx, raw)
	h.observe(schema, resp.StatusCode)
	return resp
}

func (h *Handler) handle(ctx context.Context, raw []byte) (string, events.APIGatewayV2HTTPResponse) {
	h.logger.Debug().RawJSON("payload", jsonOrNull(raw)).Msg("received event")

	var lastErr error
	for _, d := range h.decoders {
		req, err := d.Decode(raw)
		if errors.Is(err, ErrSchemaMismatch) {
			h.logger.Debug().Str("schema", d.Name()).Err(err).Msg("schema did not match")
			lastErr = err
			continue
		}

		var rerr *RequestError
		if errors.As(err, &rerr) {
			h.logger.Warn().Str("schema", d.Name()).Err(rerr).Msg("rejected request")
			return d.Name(), respond(http.StatusBadRequest, rerr.body())
		}
		if err != nil {
			h.logger.Warn().Str("schema", d.Name()).Err(err).Msg("rejected request")
			return d.Name(), respond(http.StatusBadRequest, map[string]any{
				"error":   "Invalid request",
				"details": err.Error(),
			})
		}

		h.logger.Info().Str("schema", d.Name()).Str("bin_id", req.BinID.String()).Int("status", req.Status.Int()).Msg("decoded request")
		return d.Name(), h.update(ctx, req)
	}

	details := "no decoders configured"
	if lastErr != nil {
		details = lastErr.Error()
	}
	h.logger.Error().Str("details", details).Msg("failed to deserialize event")
	return "", respond(http.StatusBadRequest, map[string]any{
		"error":           "Invalid request format",
		"details":         "Could not deserialize event: " + details,
		"expected_format": "Either API Gateway V2 HTTP API event or direct status update request",
	})
}

func (h *Handler) update(ctx context.Context, req domain.UpdateRequest) events.APIGatewayV2HTTPResponse {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.svc.Execute(ctx, req)
	if err != nil {
		h.logger.Error().Err(err).Str("bin_id", req.BinID.String()).Msg("status update failed")
		return respond(http.StatusInternalServerError, map[string]any{
			"error":   "Internal server error",
			"details": "Failed to process status update: " + err.Error(),
		})
	}

	h.logger.Info().Str("bin_id", req.BinID.String()).Str("message", resp.Message).Time("updated_at", resp.UpdatedAt).Msg("status update completed")
	return respond(http.StatusOK, resp)
}

func respond(code int, body any) events.APIGatewayV2HTTPResponse {
	b, err := marshal(body)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"Failed to serialize response"}`,
		}
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: code,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}

func jsonOrNull(raw []byte) []byte {
	if json.Valid(raw) {
		return raw
	}
	return []byte("null")
}
