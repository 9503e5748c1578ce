package analytics

import (
	"context"
	"fmt"
	"time"

	xhttp "RiskGate/pkg/http"
	"RiskGate/pkg/retry"
)

// HTTPServiceBase is shared by the analytics components backed by a remote
// model service.
type HTTPServiceBase struct {
	client *xhttp.Client
}

func NewHTTPServiceBase(baseURL string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		client: xhttp.NewClient(xhttp.WithBaseURL(baseURL), xhttp.WithTimeout(timeout)),
	}
}

// PostJSON posts payload to path and decodes the answer into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.client.BaseURL() == "" {
		return fmt.Errorf("model service client not initialized")
	}
	return b.client.PostJSON(ctx, path, payload, dest)
}

// PostJSONWithRetry retries transport failures and 5xx/429 answers. Other
// client errors fail at once.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}, attempts int) error {
	return retry.Do(ctx, retry.Policy{Attempts: attempts, BaseDelay: 50 * time.Millisecond, MaxDelay: 500 * time.Millisecond},
		func(ctx context.Context) error {
			err := b.PostJSON(ctx, path, payload, dest)
			if err != nil && !xhttp.IsTemporary(err) {
				return retry.Permanent(err)
			}
			return err
		})
}
