package syncer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/facturio/facturio/internal/tenant"
)

// HTTPTransport delivers rendered entries to an accounting gateway over
// HTTP. The gateway receives one POST per item with the tenant and the
// entry reference carried in headers.
type HTTPTransport struct {
	Endpoint string
	Client   *http.Client
}

func (t *HTTPTransport) Transmit(ctx context.Context, scope tenant.Scope, reference string, payload []byte) error {
	if t == nil {
		return fmt.Errorf("transport not initialised")
	}
	endpoint := strings.TrimRight(t.Endpoint, "/")
	if endpoint == "" {
		return fmt.Errorf("sync endpoint required")
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/entries", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("X-Tenant-Id", strconv.FormatInt(scope.TenantID(), 10))
	req.Header.Set("X-Entry-Reference", reference)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("gateway response %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
