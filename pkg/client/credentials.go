package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/adobe/aio-tvm/internal/api"
	"github.com/adobe/aio-tvm/internal/core"
)

// CredentialsRequest describes a credential request for one provider.
type CredentialsRequest struct {
	Provider string
	Tenant   string

	// Auth is the tenant credential, sent as Basic authorization.
	Auth string

	// GatewayToken is sent as a Bearer token in GatewayHeader, if set.
	GatewayToken  string
	GatewayHeader string

	// LeaseSeconds overrides the server default lease if positive.
	LeaseSeconds int

	// Params are additional provider specific params.
	Params map[string]any
}

// RequestCredentials asks the server for credentials. The envelope is
// returned as decoded JSON since its shape depends on the provider.
func (c *Client) RequestCredentials(ctx context.Context, cr CredentialsRequest) (map[string]any, string, error) {
	if cr.Provider == "" {
		return nil, "", fmt.Errorf("provider is required")
	}

	payload := make(map[string]any, len(cr.Params)+2)
	for k, v := range cr.Params {
		payload[k] = v
	}
	if cr.Tenant != "" {
		payload[core.ParamTenant] = cr.Tenant
	}
	if cr.LeaseSeconds > 0 {
		payload[core.ParamLeaseDuration] = cr.LeaseSeconds
	}

	path := strings.Replace(api.CredentialsRoute, "{provider}", cr.Provider, 1)
	url := c.url().setPath(path).build()

	req, err := newJSONRequest(ctx, http.MethodPost, url, payload)
	if err != nil {
		return nil, "", err
	}
	if cr.Auth != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(cr.Auth)))
	}
	if cr.GatewayToken != "" {
		header := cr.GatewayHeader
		if header == "" {
			header = "x-gw-ims-authorization"
		}
		req.Header.Set(header, "Bearer "+cr.GatewayToken)
	}

	var envelope map[string]any
	correlation, err := c.do(req, &envelope)
	return envelope, correlation, err
}
