package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/core"
)

const Type = "aws_s3"

const (
	DefaultTimeout = 20 * time.Second
	DefaultRegion  = "us-east-1"

	// TenantTagKey is the tag set on freshly created buckets.
	TenantTagKey = "tenant"

	// federation user names are limited to 32 characters
	maxFederationNameLength = 32
)

var _ core.CredentialGenerator = (*Generator)(nil)

// Params are the provider specific request params.
type Params struct {
	AccessKeyID     string `mapstructure:"awsAccessKeyId"`
	SecretAccessKey string `mapstructure:"awsSecretAccessKey"`
	BucketPrefix    string `mapstructure:"s3BucketPrefix"`
	Region          string `mapstructure:"bucketRegion"`
}

// Credentials are temporary credentials issued by the token service.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Backend is the object storage and token service used by the generator.
// CreateBucket returns core.ErrAlreadyExists if the bucket was created concurrently.
type Backend interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket string) error
	TagBucket(ctx context.Context, bucket string, tags map[string]string) error
	FederationToken(ctx context.Context, name, policy string, lease time.Duration) (*Credentials, error)
}

type BackendFactory func(p Params) (Backend, error)

type Envelope struct {
	AccessKeyID     string         `json:"accessKeyId"`
	SecretAccessKey string         `json:"secretAccessKey"`
	SessionToken    string         `json:"sessionToken"`
	Expiration      string         `json:"expiration"`
	Params          EnvelopeParams `json:"params"`
}

type EnvelopeParams struct {
	Bucket string `json:"Bucket"`
}

// Generator issues credentials scoped to a per-tenant bucket.
type Generator struct {
	newBackend BackendFactory
	timeout    time.Duration
}

type Option func(*Generator)

func WithBackendFactory(f BackendFactory) Option {
	return func(g *Generator) {
		g.newBackend = f
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.timeout = d
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{
		newBackend: NewAWSBackend,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Type() string {
	return Type
}

func (g *Generator) Fields() []core.Field {
	return []core.Field{
		{Name: "awsAccessKeyId", Type: core.FieldString, Required: true},
		{Name: "awsSecretAccessKey", Type: core.FieldString, Required: true},
		{Name: "s3BucketPrefix", Type: core.FieldString, Required: true},
		{Name: "bucketRegion", Type: core.FieldString},
	}
}

// BucketName returns the bucket used for tenant.
func BucketName(prefix, tenant string) string {
	return prefix + "-" + core.HashTenant(tenant)
}

// Generate runs under a watchdog: some misconfigurations make the provider
// hang instead of failing, so the call is abandoned after the timeout.
func (g *Generator) Generate(ctx context.Context, req *core.ValidatedRequest) (core.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		env *Envelope
		err error
	}
	done := make(chan result, 1)
	go func() {
		env, err := g.generate(ctx, req)
		done <- result{env: env, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.env, nil
	case <-ctx.Done():
		return nil, core.ServerError(ctx.Err(), "request timed out after %s", g.timeout)
	}
}

func (g *Generator) generate(ctx context.Context, req *core.ValidatedRequest) (*Envelope, error) {
	logger := log.Ctx(ctx)

	var p Params
	if err := core.DecodeParams(req.Params, &p); err != nil {
		return nil, core.ServerError(err, "invalid %s params", Type)
	}
	if p.Region == "" {
		p.Region = DefaultRegion
	}

	backend, err := g.newBackend(p)
	if err != nil {
		return nil, core.ServerError(err, "creating %s client", Type)
	}

	bucket := BucketName(p.BucketPrefix, req.Tenant)
	if err := ensureBucket(ctx, backend, bucket, req.Tenant); err != nil {
		return nil, core.ServerError(err, "preparing bucket")
	}
	logger.Debug().Str("bucket", bucket).Msg("bucket ready")

	policy, err := bucketPolicy(bucket)
	if err != nil {
		return nil, core.ServerError(err, "building policy")
	}

	creds, err := backend.FederationToken(ctx, federationName(req.Tenant), policy, req.Lease)
	if err != nil {
		return nil, core.ServerError(err, "getting federation token")
	}

	return &Envelope{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Expiration:      creds.Expiration.UTC().Format(time.RFC3339Nano),
		Params:          EnvelopeParams{Bucket: bucket},
	}, nil
}

func ensureBucket(ctx context.Context, backend Backend, bucket, tenant string) error {
	exists, err := backend.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := backend.CreateBucket(ctx, bucket); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			// another request created it in the meantime and tags it
			return nil
		}
		return fmt.Errorf("creating bucket: %w", err)
	}
	if err := backend.TagBucket(ctx, bucket, map[string]string{TenantTagKey: tenant}); err != nil {
		return fmt.Errorf("tagging bucket: %w", err)
	}
	return nil
}

func federationName(tenant string) string {
	if len(tenant) > maxFederationNameLength {
		return tenant[:maxFederationNameLength]
	}
	return tenant
}

type policyStatement struct {
	Sid      string   `json:"Sid"`
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

func bucketPolicy(bucket string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Sid:      "AllowList",
				Effect:   "Allow",
				Action:   []string{"s3:ListBucket"},
				Resource: []string{"arn:aws:s3:::" + bucket},
			},
			{
				Sid:    "AllowObjects",
				Effect: "Allow",
				Action: []string{
					"s3:PutObject",
					"s3:PutObjectAcl",
					"s3:GetObject",
					"s3:DeleteObject",
				},
				Resource: []string{"arn:aws:s3:::" + bucket + "/*"},
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
