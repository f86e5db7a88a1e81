package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Request parameter names shared by every credential generator.
const (
	ParamTenant          = "tenant"
	ParamAuthorization   = "authorization"
	ParamLeaseDuration   = "leaseDurationSeconds"
	ParamAllowList       = "allowList"
	ParamIdentityAPIHost = "identityApiHost"
	ParamDenyListURL     = "denyListUrl"
)

// Request is the raw, unvalidated input of a credential request.
type Request struct {
	// Provider selects the credential generator.
	Provider string

	// Params is the caller supplied key/value bag (query string and body).
	Params map[string]any

	// Headers holds the request headers with lower-cased keys.
	Headers map[string]string
}

// Header returns the header value for the given (case-insensitive) name.
func (r Request) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

// ValidatedRequest is a Request that passed schema validation.
// Params still contains every field, including provider specific ones.
type ValidatedRequest struct {
	Tenant          string
	Credential      string
	Lease           time.Duration
	AllowList       string
	IdentityAPIHost string
	DenyListURL     string

	Params map[string]any
}

// NewValidatedRequest extracts the common fields from already validated params.
func NewValidatedRequest(params map[string]any) (*ValidatedRequest, error) {
	lease, err := intParam(params, ParamLeaseDuration)
	if err != nil {
		return nil, err
	}
	return &ValidatedRequest{
		Tenant:          stringParam(params, ParamTenant),
		Credential:      stringParam(params, ParamAuthorization),
		Lease:           time.Duration(lease) * time.Second,
		AllowList:       stringParam(params, ParamAllowList),
		IdentityAPIHost: stringParam(params, ParamIdentityAPIHost),
		DenyListURL:     stringParam(params, ParamDenyListURL),
		Params:          params,
	}, nil
}

// WithTenant returns a copy of the request scoped to another tenant.
func (r *ValidatedRequest) WithTenant(tenant string) *ValidatedRequest {
	params := make(map[string]any, len(r.Params))
	for k, v := range r.Params {
		params[k] = v
	}
	params[ParamTenant] = tenant

	cp := *r
	cp.Tenant = tenant
	cp.Params = params
	return &cp
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func intParam(params map[string]any, key string) (int, error) {
	switch v := params[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("parameter %q is not an integer", key)
	}
}
