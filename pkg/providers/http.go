package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 512

// upstreamResult holds the response from a single upstream request.
type upstreamResult struct {
	statusCode int
	body       []byte
}

// postJSON sends payload to baseURL+path and returns the raw response.
func postJSON(ctx context.Context, client *http.Client, baseURL, path string, headers map[string]string, payload any) (*upstreamResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &upstreamResult{statusCode: resp.StatusCode, body: respBody}, nil
}

// call runs postJSON and converts transport and status failures into a ProviderError.
func call(ctx context.Context, client *http.Client, provider, baseURL, path string, headers map[string]string, payload any) ([]byte, error) {
	res, err := postJSON(ctx, client, baseURL, path, headers, payload)
	if err != nil {
		msg := err.Error()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
			msg = ctxErr.Error()
		}
		return nil, &ProviderError{Provider: provider, Message: msg, Cause: err}
	}
	if res.statusCode < 200 || res.statusCode >= 300 {
		msg := string(res.body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &ProviderError{Provider: provider, StatusCode: res.statusCode, Message: msg}
	}
	return res.body, nil
}

func malformed(provider, detail string) error {
	return &ProviderError{Provider: provider, Message: detail, Cause: ErrMalformedResponse}
}
