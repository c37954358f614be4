package tankutility

import (
	"bytes"
	"encoding/json"
)

// utf8BOM is stripped by the fallback decoder.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode unmarshals an API response body into v.
//
// The Content-Type header is never consulted: the API labels some JSON
// responses as text/html or text/plain. When the body does not parse as-is,
// the fallback path trims it down to the outermost JSON value and tries
// again. Failure of both paths is an *APIError.
func (c *Client) decode(op string, body []byte, v any) error {
	err := json.Unmarshal(body, v)
	if err == nil {
		return nil
	}

	c.log().Warn("JSON decode failed, trying fallback", "op", op, "error", err)

	if cleaned, ok := extractJSON(body); ok {
		fallbackErr := json.Unmarshal(cleaned, v)
		if fallbackErr == nil {
			return nil
		}
		err = fallbackErr
	}

	c.log().Error("fallback JSON decoding failed", "op", op, "error", err)
	return &APIError{Op: op, Message: "failed to decode " + op + " response", Err: err}
}

// extractJSON strips a UTF-8 BOM, surrounding whitespace, and any bytes
// before the first '{' or '[' and after the matching last '}' or ']'.
// It reports false when no candidate JSON value remains.
func extractJSON(body []byte) ([]byte, bool) {
	b := bytes.TrimPrefix(body, utf8BOM)
	b = bytes.TrimSpace(b)

	start := bytes.IndexAny(b, "{[")
	if start < 0 {
		return nil, false
	}

	closer := byte('}')
	if b[start] == '[' {
		closer = ']'
	}
	end := bytes.LastIndexByte(b, closer)
	if end < start {
		return nil, false
	}

	return b[start : end+1], true
}
