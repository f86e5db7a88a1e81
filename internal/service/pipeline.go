package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/audit"
	"github.com/adobe/aio-tvm/internal/authz"
	"github.com/adobe/aio-tvm/internal/core"
	"github.com/adobe/aio-tvm/internal/validation"
)

// Pipeline stages, as recorded in audit entries.
const (
	StageCredential   = "credential"
	StageValidation   = "validation"
	StageGateway      = "gateway_token"
	StageIdentity     = "identity"
	StageApprovedList = "approved_list"
	StageDenyList     = "deny_list"
	StageGenerate     = "generate"
)

const basicScheme = "Basic"

// Response is the outcome of one credential request.
type Response struct {
	StatusCode int
	Body       any
}

type ErrorBody struct {
	Error string `json:"error"`
}

// Dependencies are the collaborators shared by every pipeline of the process.
type Dependencies struct {
	// Gateway is nil when gateway token validation is disabled.
	Gateway            core.GatewayTokenValidator
	GatewayEnvironment string

	Identity core.IdentityValidator

	// DenyList may be nil, in which case the check is skipped.
	DenyList core.DenyListChecker

	Metrics core.MetricsRecorder
	Auditor core.Auditor
}

// Settings are the per provider parameters of a pipeline.
type Settings struct {
	LeaseMinSeconds int
	LeaseMaxSeconds int

	// Final params are supplied by the deployment and win over the caller.
	Final map[string]any

	// Defaults are used when the caller does not supply a value.
	Defaults map[string]any
}

// Pipeline authorizes credential requests for one provider and dispatches
// them to its generator.
type Pipeline struct {
	provider  string
	generator core.CredentialGenerator
	schema    *validation.Schema
	settings  Settings
	deps      Dependencies
}

func New(provider string, generator core.CredentialGenerator, deps Dependencies, settings Settings) (*Pipeline, error) {
	if generator == nil {
		return nil, fmt.Errorf("provider %q has no generator", provider)
	}
	if deps.Identity == nil {
		return nil, fmt.Errorf("identity validator is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Auditor == nil {
		deps.Auditor = audit.NewNoopAuditor()
	}

	fields := validation.BaseFields(settings.LeaseMinSeconds, settings.LeaseMaxSeconds)
	schema, err := validation.NewSchema(append(fields, generator.Fields()...)...)
	if err != nil {
		return nil, fmt.Errorf("building schema for provider %q: %w", provider, err)
	}

	return &Pipeline{
		provider:  provider,
		generator: generator,
		schema:    schema,
		settings:  settings,
		deps:      deps,
	}, nil
}

func (p *Pipeline) Provider() string {
	return p.provider
}

// ProcessRequest runs every stage in order and stops at the first failure.
// It never returns an error: failures are folded into the response.
func (p *Pipeline) ProcessRequest(ctx context.Context, req core.Request) Response {
	tenant, _ := req.Params[core.ParamTenant].(string)
	logCtx := log.Ctx(ctx).With().
		Str("provider", p.provider).
		Str("tenant", tenant)

	// the HTTP middleware already attaches the id to the request logger
	id := core.CorrelationID(ctx)
	if id == "" {
		id = xid.New().String()
		ctx = core.WithCorrelationID(ctx, id)
		logCtx = logCtx.Str("correlation_id", id)
	}
	logger := logCtx.Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().Msgf("start of request Id - %s", id)

	out := p.run(ctx, req)
	err, stage := out.err, out.stage
	status := StatusCode(err)

	var resp Response
	switch {
	case err == nil:
		resp = Response{StatusCode: status, Body: out.envelope}
	case status >= http.StatusInternalServerError:
		logger.Error().Err(err).Str("stage", stage).Msg("request failed")
		resp = Response{StatusCode: status, Body: ErrorBody{Error: ServerErrorMessage}}
	default:
		logger.Warn().Err(err).Str("stage", stage).Int("status", status).Msg("request rejected")
		resp = Response{StatusCode: status, Body: ErrorBody{Error: err.Error()}}
	}

	// metric labels only carry tenants confirmed by the identity backend
	p.deps.Metrics.RequestReceived(out.tenant)
	p.deps.Metrics.RequestCompleted(out.tenant, status)
	p.record(ctx, id, tenant, stage, status, err)

	logger.Info().Int("status", status).Msgf("end of request Id - %s", id)
	return resp
}

// outcome is the result of run. tenant is only set once the identity
// backend accepted the credential for it.
type outcome struct {
	envelope core.Envelope
	stage    string
	tenant   string
	err      error
}

func failed(stage string, err error) outcome {
	return outcome{stage: stage, err: err}
}

func (p *Pipeline) run(ctx context.Context, req core.Request) outcome {
	logger := log.Ctx(ctx)

	credential, err := extractCredential(req)
	if err != nil {
		return failed(StageCredential, err)
	}

	params := p.mergeParams(ctx, req.Params)
	params[core.ParamAuthorization] = credential

	validated, err := p.schema.Validate(params)
	if err != nil {
		return failed(StageValidation, err)
	}
	vreq, err := core.NewValidatedRequest(validated)
	if err != nil {
		return failed(StageValidation, core.StructuralError("%s", err.Error()))
	}

	if p.deps.Gateway != nil {
		token, err := p.deps.Gateway.Extract(req)
		if err != nil {
			return failed(StageGateway, err)
		}
		if err := p.deps.Gateway.Validate(ctx, token, p.deps.GatewayEnvironment); err != nil {
			return failed(StageGateway, err)
		}
		logger.Debug().Msg("gateway token is valid")
	}

	if err := p.deps.Identity.Validate(ctx, vreq.IdentityAPIHost, vreq.Tenant, vreq.Credential); err != nil {
		return failed(StageIdentity, err)
	}
	authenticated := outcome{tenant: vreq.Tenant}
	if !authz.IsAllowed(vreq.Tenant, vreq.AllowList) {
		return authenticated.fail(StageApprovedList, core.AuthorizationError("namespace %s is not approved", vreq.Tenant))
	}
	logger.Info().Msg("request is authorized")

	if p.deps.DenyList != nil && vreq.DenyListURL != "" {
		if err := p.deps.DenyList.Check(ctx, vreq.DenyListURL, vreq.Tenant, vreq.Lease); err != nil {
			var e *core.Error
			if errors.As(err, &e) && e.Class == core.ClassThrottle {
				return authenticated.fail(StageDenyList, err)
			}
			logger.Warn().Err(err).Msg("ignoring deny list failure")
		}
	}

	envelope, err := p.generator.Generate(ctx, vreq)
	if err != nil {
		var e *core.Error
		if errors.As(err, &e) && e.Class == core.ClassStructural {
			return authenticated.fail(StageGenerate, err)
		}
		return authenticated.fail(StageGenerate, core.ServerError(err, "generating %s credentials", p.generator.Type()))
	}
	logger.Info().Msg("credentials generated")
	authenticated.envelope = envelope
	return authenticated
}

func (o outcome) fail(stage string, err error) outcome {
	o.stage, o.err = stage, err
	return o
}

// mergeParams layers defaults, caller params and final params, in that order.
func (p *Pipeline) mergeParams(ctx context.Context, caller map[string]any) map[string]any {
	params := make(map[string]any, len(p.settings.Defaults)+len(caller)+len(p.settings.Final)+1)
	for k, v := range p.settings.Defaults {
		params[k] = v
	}
	for k, v := range caller {
		if _, final := p.settings.Final[k]; final {
			log.Ctx(ctx).Warn().Str("param", k).Msg("ignoring caller value for deployment param")
			continue
		}
		if k == core.ParamAuthorization {
			log.Ctx(ctx).Warn().Msg("ignoring authorization param, the header is used instead")
			continue
		}
		params[k] = v
	}
	for k, v := range p.settings.Final {
		params[k] = v
	}
	return params
}

func (p *Pipeline) record(ctx context.Context, id, tenant, stage string, status int, err error) {
	entry := core.AuditEntry{
		ID:         id,
		Time:       time.Now().UTC(),
		Action:     "credentials.issue",
		Tenant:     tenant,
		Provider:   p.provider,
		StatusCode: status,
		Granted:    err == nil,
		Stage:      stage,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if err := p.deps.Auditor.Log(entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to write audit log entry")
	}
}

// extractCredential reads the tenant credential from the Authorization
// header. Basic values are base64 decoded; values without a scheme are
// used as is, unless they start with the Basic scheme name.
func extractCredential(req core.Request) (string, error) {
	value := strings.TrimSpace(req.Header("authorization"))
	if value == "" {
		return "", core.MissingCredentialError("missing authorization header")
	}
	if len(value) >= len(basicScheme) && strings.EqualFold(value[:len(basicScheme)], basicScheme) {
		encoded, ok := strings.CutPrefix(value, basicScheme+" ")
		if !ok {
			return "", core.InvalidCredentialError("authorization header is not valid Basic credentials")
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil || len(decoded) == 0 {
			return "", core.InvalidCredentialError("authorization header is not valid Basic credentials")
		}
		return string(decoded), nil
	}
	if strings.ContainsAny(value, " \t") {
		return "", core.InvalidCredentialError("unsupported authorization scheme")
	}
	return value, nil
}

type noopMetrics struct{}

func (noopMetrics) RequestReceived(string)       {}
func (noopMetrics) RequestCompleted(string, int) {}
