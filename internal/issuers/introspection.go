package issuers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adobe/aio-tvm/internal/audit"
	"github.com/adobe/aio-tvm/internal/core"
)

const introspectionEndpoint = "/ims/validate_token/v1"

var _ Introspector = (*HTTPIntrospector)(nil)

// HTTPIntrospector introspects tokens using the identity provider's
// validate_token endpoint of the requested environment.
type HTTPIntrospector struct {
	// environments maps an environment name to the identity provider base URL.
	environments map[string]string
	clientID     string
	httpClient   *http.Client
}

type introspectionResponse struct {
	Valid bool `json:"valid"`
	Token struct {
		ClientID string `json:"client_id"`
		Scope    string `json:"scope"`
	} `json:"token"`
	Reason string `json:"reason,omitempty"`
}

func NewHTTPIntrospector(environments map[string]string, clientID string) *HTTPIntrospector {
	normalized := make(map[string]string, len(environments))
	for env, base := range environments {
		normalized[env] = strings.TrimRight(base, "/")
	}
	return &HTTPIntrospector{
		environments: normalized,
		clientID:     clientID,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (i *HTTPIntrospector) Introspect(ctx context.Context, environment, token string) (*TokenInfo, error) {
	base, ok := i.environments[environment]
	if !ok {
		return nil, fmt.Errorf("unknown environment '%s'", environment)
	}

	form := url.Values{}
	form.Set("type", "access_token")
	form.Set("token", token)
	if i.clientID != "" {
		form.Set("client_id", i.clientID)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", base+introspectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", audit.CreateUserAgent(core.CorrelationID(ctx), "", "gateway"))

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if !result.Valid {
		return nil, fmt.Errorf("token is not valid: %s", result.Reason)
	}

	var scopes []string
	for _, s := range strings.Split(result.Token.Scope, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return &TokenInfo{
		ClientID: result.Token.ClientID,
		Scopes:   scopes,
	}, nil
}
