package webapi

import (
	"fmt"
	"io"
	"net/http"
)

// ReadString drains and closes the response body.
func ReadString(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("webapi: read response body: %w", err)
	}
	return string(b), nil
}

// CopyTo streams the response body into w and closes it.
func CopyTo(resp *http.Response, w io.Writer) (int64, error) {
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("webapi: copy response body: %w", err)
	}
	return n, nil
}
