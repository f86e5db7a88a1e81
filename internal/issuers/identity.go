package issuers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/adobe/aio-tvm/internal/audit"
	"github.com/adobe/aio-tvm/internal/core"
)

const namespacesEndpoint = "/api/v1/namespaces"

var _ core.IdentityValidator = (*IdentityBackend)(nil)

// IdentityBackend validates tenant credentials by listing the namespaces
// attached to the credential.
type IdentityBackend struct {
	httpClient *http.Client
}

func NewIdentityBackend() *IdentityBackend {
	return &IdentityBackend{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Validate fails if the credential is rejected or is not linked to tenant.
func (b *IdentityBackend) Validate(ctx context.Context, apiHost, tenant, credential string) error {
	namespaces, err := b.ListNamespaces(ctx, apiHost, credential)
	if err != nil {
		return err
	}
	// a valid credential for tenant A must not grant access as tenant B
	if !slices.Contains(namespaces, tenant) {
		return core.AuthorizationError(
			"tenant %s is not linked to the credential, tenants linked to the credential are [%s]",
			tenant, strings.Join(namespaces, ","))
	}
	return nil
}

// ListNamespaces returns the namespaces attached to credential. Failures are
// upstream errors carrying the status code of the identity backend.
func (b *IdentityBackend) ListNamespaces(ctx context.Context, apiHost, credential string) ([]string, error) {
	url := strings.TrimRight(apiHost, "/") + namespacesEndpoint
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, core.UpstreamError(0, err, "identity backend error")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credential)))
	req.Header.Set("User-Agent", audit.CreateUserAgent(core.CorrelationID(ctx), "", "identity"))

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, core.UpstreamError(0, err, "identity backend error")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, core.UpstreamError(resp.StatusCode, upstreamMessage(resp), "identity backend error")
	}

	var namespaces []string
	if err := json.NewDecoder(resp.Body).Decode(&namespaces); err != nil {
		return nil, core.UpstreamError(0, fmt.Errorf("decoding response: %w", err), "identity backend error")
	}
	return namespaces, nil
}

func upstreamMessage(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	var decoded struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
		return fmt.Errorf("%s (status %d)", decoded.Error, resp.StatusCode)
	}
	return fmt.Errorf("unexpected status code %d", resp.StatusCode)
}
