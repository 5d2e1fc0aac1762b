package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const contentTypeJSON = "application/json"

// GetJSON calls target under the API root and decodes the JSON body into T.
func GetJSON[T any](ctx context.Context, c *Client, target string, requireAuth bool) (T, error) {
	resp, err := c.Call(ctx, target, requireAuth)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeJSON[T](resp)
}

// GetJSONForScopes calls the literal target with a credential for scopes
// and decodes the JSON body into T.
func GetJSONForScopes[T any](
	ctx context.Context,
	c *Client,
	target string,
	requireAuth bool,
	scopes []string,
) (T, error) {
	resp, err := c.CallForScopes(ctx, target, requireAuth, scopes)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeJSON[T](resp)
}

// PostJSON sends body as JSON and decodes the JSON response into Resp.
func PostJSON[Req, Resp any](ctx context.Context, c *Client, target string, body Req, requireAuth bool) (Resp, error) {
	var zero Resp

	payload, err := encodeJSON(body)
	if err != nil {
		return zero, err
	}

	resp, err := c.Post(ctx, target, contentTypeJSON, payload, requireAuth)
	if err != nil {
		return zero, err
	}
	return decodeJSON[Resp](resp)
}

// PutJSON sends body as JSON and decodes the JSON response into Resp.
func PutJSON[Req, Resp any](ctx context.Context, c *Client, target string, body Req, requireAuth bool) (Resp, error) {
	var zero Resp

	payload, err := encodeJSON(body)
	if err != nil {
		return zero, err
	}

	resp, err := c.Put(ctx, target, contentTypeJSON, payload, requireAuth)
	if err != nil {
		return zero, err
	}
	return decodeJSON[Resp](resp)
}

func encodeJSON(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("webapi: encode request: %w", err)
	}
	return bytes.NewReader(b), nil
}

// decodeJSON requires a 2xx response and decodes its body into T. A 401 that
// survived interpretation means the service rejected our credential. A 204
// or an empty body yields the zero T.
func decodeJSON[T any](resp *http.Response) (T, error) {
	var out T
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("webapi: read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return out, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return out, &ServiceError{StatusCode: resp.StatusCode, Reason: reasonPhrase(resp)}
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return out, nil
}
