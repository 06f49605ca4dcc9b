package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentstation/swarmcast/pkg/errors"
)

// envelope is the server response shape.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

// DecodeResponse decodes the envelope of resp and unmarshals its data into
// target. A nil target discards the data. Non-2xx responses and envelopes
// carrying an error become *errors.APIError.
func DecodeResponse(resp *http.Response, target any) error {
	defer func() { _ = resp.Body.Close() }()

	endpoint := resp.Request.Method + " " + resp.Request.URL.Path

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTransportError("", "read "+endpoint, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode/100 != 2 {
			return errors.NewAPIError(endpoint, resp.StatusCode, string(truncate(body)))
		}
		return errors.NewTransportError("", "decode "+endpoint, err)
	}

	if resp.StatusCode/100 != 2 || env.Error != nil {
		apiErr := errors.NewAPIError(endpoint, resp.StatusCode, http.StatusText(resp.StatusCode))
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}

	if target == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return errors.NewTransportError("", "decode "+endpoint, err)
	}
	return nil
}

// truncate bounds a raw error body for messages.
func truncate(b []byte) []byte {
	const maxBody = 256
	if len(b) > maxBody {
		return b[:maxBody]
	}
	return b
}
