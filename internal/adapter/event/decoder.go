package event

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"binstatus/internal/domain"
)

// ErrSchemaMismatch is wrapped by decoders when the payload is not of their
// shape. The handler then tries the next decoder.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Decoder turns a raw payload into an UpdateRequest. It returns an error
// wrapping ErrSchemaMismatch when the payload is not its schema, and a
// *RequestError when the schema matched but the content is invalid.
type Decoder interface {
	Name() string
	Decode(raw []byte) (domain.UpdateRequest, error)
}

// RequestError is a client error reported as a 400 response.
type RequestError struct {
	Message string
	Details string
	// AvailableParameters is included in the body when non-nil.
	AvailableParameters []string
}

func (e *RequestError) Error() string {
	return e.Message + ": " + e.Details
}

func (e *RequestError) body() map[string]any {
	b := map[string]any{"error": e.Message, "details": e.Details}
	if e.AvailableParameters != nil {
		b["available_parameters"] = e.AvailableParameters
	}
	return b
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, fmt.Sprintf(format, args...))
}

const statusDetails = "Status must be an integer between 0 and 10"

// parseFillLevel reads {"value": <int>} strictly.
func parseFillLevel(raw json.RawMessage) (domain.FillLevel, error) {
	var s struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &s); err != nil || len(s.Value) == 0 {
		return domain.FillLevel{}, &RequestError{Message: "Invalid status value", Details: statusDetails}
	}

	// Only a bare JSON integer is accepted; strings and fractions are not.
	var v any
	dec := json.NewDecoder(bytes.NewReader(s.Value))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return domain.FillLevel{}, &RequestError{Message: "Invalid status value", Details: statusDetails}
	}
	num, ok := v.(json.Number)
	if !ok {
		return domain.FillLevel{}, &RequestError{Message: "Invalid status value", Details: statusDetails}
	}
	n, err := num.Int64()
	if err != nil || n < domain.MinFillLevel || n > domain.MaxFillLevel {
		return domain.FillLevel{}, &RequestError{Message: "Invalid status value", Details: statusDetails}
	}

	fl, err := domain.NewFillLevel(int(n))
	if err != nil {
		return domain.FillLevel{}, &RequestError{Message: "Invalid status value: " + err.Error(), Details: statusDetails}
	}
	return fl, nil
}

func parseBinID(s string) (domain.BinID, error) {
	id, err := domain.ParseBinID(s)
	if err != nil {
		msg := err.Error()
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			msg = verr.Msg
		}
		return id, &RequestError{Message: "Invalid bin_id format: " + msg, Details: "The binId must be a valid UUID"}
	}
	return id, nil
}

// DirectDecoder accepts {"bin_id": "<uuid>", "status": {"value": <int>}}.
type DirectDecoder struct{}

// Name implements Decoder.
func (DirectDecoder) Name() string { return "direct" }

// Decode implements Decoder.
func (DirectDecoder) Decode(raw []byte) (domain.UpdateRequest, error) {
	var p struct {
		BinID  *string          `json:"bin_id"`
		Status *json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.UpdateRequest{}, mismatch("%v", err)
	}
	if p.BinID == nil {
		return domain.UpdateRequest{}, mismatch("missing field `bin_id`")
	}
	if p.Status == nil {
		return domain.UpdateRequest{}, mismatch("missing field `status`")
	}

	id, err := parseBinID(*p.BinID)
	if err != nil {
		return domain.UpdateRequest{}, err
	}
	status, err := parseFillLevel(*p.Status)
	if err != nil {
		return domain.UpdateRequest{}, err
	}
	return domain.UpdateRequest{BinID: id, Status: status}, nil
}

// GatewayDecoder accepts an HTTP API (payload v2) gateway envelope with the
// bin id in pathParameters and {"status": {"value": <int>}} as the body.
type GatewayDecoder struct{}

// Name implements Decoder.
func (GatewayDecoder) Name() string { return "gateway" }

// Decode implements Decoder.
func (GatewayDecoder) Decode(raw []byte) (domain.UpdateRequest, error) {
	var env struct {
		Version         *string           `json:"version"`
		RouteKey        *string           `json:"routeKey"`
		RawPath         *string           `json:"rawPath"`
		Headers         map[string]string `json:"headers"`
		PathParameters  map[string]string `json:"pathParameters"`
		Body            *string           `json:"body"`
		IsBase64Encoded bool              `json:"isBase64Encoded"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.UpdateRequest{}, mismatch("%v", err)
	}
	switch {
	case env.Version == nil:
		return domain.UpdateRequest{}, mismatch("missing field `version`")
	case env.RouteKey == nil:
		return domain.UpdateRequest{}, mismatch("missing field `routeKey`")
	case env.RawPath == nil:
		return domain.UpdateRequest{}, mismatch("missing field `rawPath`")
	case env.Headers == nil:
		return domain.UpdateRequest{}, mismatch("missing field `headers`")
	}

	rawID, ok := env.PathParameters["binId"]
	if !ok {
		params := make([]string, 0, len(env.PathParameters))
		for k := range env.PathParameters {
			params = append(params, k)
		}
		sort.Strings(params)
		return domain.UpdateRequest{}, &RequestError{
			Message:             "Missing binId in path parameters",
			Details:             "The request URL must include a binId parameter",
			AvailableParameters: params,
		}
	}

	body := []byte("{}")
	if env.Body != nil {
		body = []byte(*env.Body)
	}
	if env.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(string(body))
		if err != nil {
			return domain.UpdateRequest{}, invalidBody(err)
		}
		body = decoded
	}

	var b struct {
		Status *json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(body, &b); err != nil {
		return domain.UpdateRequest{}, invalidBody(err)
	}
	if b.Status == nil {
		return domain.UpdateRequest{}, invalidBody(errors.New("missing field `status`"))
	}

	status, err := parseFillLevel(*b.Status)
	if err != nil {
		return domain.UpdateRequest{}, err
	}
	id, err := parseBinID(rawID)
	if err != nil {
		return domain.UpdateRequest{}, err
	}
	return domain.UpdateRequest{BinID: id, Status: status}, nil
}

func invalidBody(err error) error {
	return &RequestError{
		Message: "Invalid request body: " + err.Error(),
		Details: "Request body must be a JSON object with a 'status' field containing a 'value' between 0 and 10",
	}
}
