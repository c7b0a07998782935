package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// jsonCall is one POST of a JSON body to an embedding endpoint.
type jsonCall struct {
	// name prefixes every error ("ollama embedder").
	name string
	// url is the fully-qualified endpoint.
	url string
	// header carries auth headers; Content-Type is always set.
	header http.Header
	// body is marshalled as the request payload.
	body any
}

// errorDetail pulls the provider's error message out of a failed response
// body. It returns "" when the body carries none.
type errorDetail func(body []byte) string

// postJSON sends call with client and decodes a 2xx response into out.
// Non-2xx responses become statusError values carrying the provider message
// extracted by detail.
func postJSON(ctx context.Context, client *http.Client, call jsonCall, detail errorDetail, out any) error {
	payload, err := json.Marshal(call.body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", call.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", call.name, err)
	}
	for k, vs := range call.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", call.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := ""
		if detail != nil && len(raw) > 0 {
			msg = detail(raw)
		}
		return statusError(call.name, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", call.name, err)
	}
	return nil
}

// statusError formats a non-2xx response. detail is the provider's own error
// message when the body carried one.
func statusError(prefix string, status int, detail string) error {
	if detail == "" {
		detail = http.StatusText(status)
	}
	return fmt.Errorf("%s: HTTP %d: %s", prefix, status, detail)
}

// checkVectors verifies a provider returned one non-empty vector per input.
func checkVectors(name string, want int, vecs [][]float32) error {
	if len(vecs) != want {
		return fmt.Errorf("%s: expected %d embeddings, got %d", name, want, len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%s: empty embedding at index %d", name, i)
		}
	}
	return nil
}
