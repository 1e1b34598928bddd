package predictor

import (
	"context"
	"fmt"
	"strings"
	"time"

	xhttp "FinAgent/pkg/http"
)

// serviceBase posts JSON to the model service.
type serviceBase struct {
	baseURL string
	client  *xhttp.Client
}

func newServiceBase(baseURL string, timeout time.Duration) *serviceBase {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &serviceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (b *serviceBase) postJSON(ctx context.Context, path string, payload, dest any) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("model service url not configured")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postJSONWithRetry retries transient failures with a linear backoff.
// Client errors (4xx) are returned immediately.
func (b *serviceBase) postJSONWithRetry(ctx context.Context, path string, payload, dest any, attempts int) error {
	if attempts <= 1 {
		return b.postJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.postJSON(ctx, path, payload, dest)
		if err == nil || xhttp.IsClientError(err) {
			return err
		}
		if i == attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
