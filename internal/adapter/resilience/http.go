package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const maxReplyBody = 64 << 10

// PostJSON returns a Call that POSTs payload to url. The body is encoded once
// and replayed on every attempt; the active trace is propagated in headers.
func PostJSON(client *http.Client, url string, payload any) (Call, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	return func(ctx context.Context) (Reply, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return Reply{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := client.Do(req)
		if err != nil {
			return Reply{}, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
		if err != nil {
			return Reply{}, fmt.Errorf("read response: %w", err)
		}
		return Reply{StatusCode: resp.StatusCode, Body: data}, nil
	}, nil
}
