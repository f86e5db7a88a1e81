package issuers

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/util/cache"
	"k8s.io/utils/clock"

	"github.com/adobe/aio-tvm/internal/core"
)

const (
	DefaultGatewayHeader   = "x-gw-ims-authorization"
	DefaultGatewayCacheTTL = 5 * time.Minute

	bearerPrefix = "Bearer "
)

// DefaultGatewayScopes are the scopes a gateway token must carry.
var DefaultGatewayScopes = []string{"openid", "system"}

var _ core.GatewayTokenValidator = (*GatewayValidator)(nil)

// TokenInfo is the result of a successful token introspection.
type TokenInfo struct {
	ClientID string
	Scopes   []string
}

// Introspector validates a token against the identity provider of an environment.
type Introspector interface {
	Introspect(ctx context.Context, environment, token string) (*TokenInfo, error)
}

type GatewayOptions struct {
	// Header carrying the bearer token.
	Header string

	// ClientID is the client id the token must have been issued to.
	ClientID string

	// Scopes the token must carry.
	Scopes []string

	// CacheTTL is how long a successful validation is remembered.
	CacheTTL time.Duration

	Clock clock.Clock
}

// GatewayValidator validates the service level gateway token. Successful
// validations are cached per environment and token.
type GatewayValidator struct {
	header       string
	clientID     string
	scopes       []string
	ttl          time.Duration
	introspector Introspector
	cache        *cache.Expiring
}

func NewGatewayValidator(introspector Introspector, opts GatewayOptions) *GatewayValidator {
	if opts.Header == "" {
		opts.Header = DefaultGatewayHeader
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultGatewayScopes
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultGatewayCacheTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &GatewayValidator{
		header:       strings.ToLower(opts.Header),
		clientID:     opts.ClientID,
		scopes:       opts.Scopes,
		ttl:          opts.CacheTTL,
		introspector: introspector,
		cache:        cache.NewExpiringWithClock(opts.Clock),
	}
}

// Extract returns the bearer token of the gateway header. No network call is made.
func (v *GatewayValidator) Extract(req core.Request) (string, error) {
	value := req.Header(v.header)
	if value == "" {
		return "", core.AuthorizationError("missing %s header", v.header)
	}
	if !strings.HasPrefix(value, bearerPrefix) {
		return "", core.AuthorizationError("%s header is not a valid Bearer token", v.header)
	}
	token := strings.TrimSpace(strings.TrimPrefix(value, bearerPrefix))
	if token == "" {
		return "", core.AuthorizationError("%s header is not a valid Bearer token", v.header)
	}
	return token, nil
}

// Validate checks token in the given environment. A cached positive result
// short-circuits the introspection call.
func (v *GatewayValidator) Validate(ctx context.Context, token, environment string) error {
	logger := log.Ctx(ctx)
	key := environment + token

	if _, ok := v.cache.Get(key); ok {
		logger.Debug().Str("environment", environment).Msg("gateway token found in cache")
		return nil
	}

	info, err := v.introspector.Introspect(ctx, environment, token)
	if err != nil {
		logger.Debug().Err(err).Msg("gateway token introspection failed")
		return &core.Error{Class: core.ClassAuthorization, Message: "invalid gateway token", Err: err}
	}

	if v.clientID != "" && info.ClientID != v.clientID {
		return core.AuthorizationError("token client_id '%s' is not allowed", info.ClientID)
	}
	if missing := missingScopes(v.scopes, info.Scopes); len(missing) > 0 {
		return core.AuthorizationError("token is missing required scopes '%s'", strings.Join(missing, ","))
	}

	v.cache.Set(key, true, v.ttl)
	return nil
}

func missingScopes(required, actual []string) []string {
	have := make(map[string]struct{}, len(actual))
	for _, s := range actual {
		have[s] = struct{}{}
	}
	var missing []string
	for _, s := range required {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
