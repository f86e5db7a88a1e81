package admin

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/adobe/aio-tvm/internal/core"
)

const Type = "admin"

// ParamRequestedTenant is the tenant the credentials are issued for.
// The authenticated tenant of an admin request is the administrator.
const ParamRequestedTenant = "requestedTenant"

// Keys of the composite envelope.
const (
	KeyObjectStorage = "awsS3"
	KeyBlobStorage   = "azureBlob"
	KeyDocumentDB    = "azureCosmos"
)

var _ core.CredentialGenerator = (*Generator)(nil)

// Envelope maps a provider key to its credential envelope.
type Envelope map[string]core.Envelope

type target struct {
	key       string
	generator core.CredentialGenerator
}

// Generator issues object storage, blob storage and document database
// credentials for a requested tenant at once.
type Generator struct {
	targets []target
}

func New(objectStorage, blobStorage, documentDB core.CredentialGenerator) *Generator {
	return &Generator{
		targets: []target{
			{key: KeyObjectStorage, generator: objectStorage},
			{key: KeyBlobStorage, generator: blobStorage},
			{key: KeyDocumentDB, generator: documentDB},
		},
	}
}

func (g *Generator) Type() string {
	return Type
}

func (g *Generator) Fields() []core.Field {
	fields := []core.Field{
		{Name: ParamRequestedTenant, Type: core.FieldString, Required: true, Min: core.Bound(3), Max: core.Bound(63)},
	}
	for _, t := range g.targets {
		fields = append(fields, t.generator.Fields()...)
	}
	return fields
}

// Generate runs all generators concurrently. If any of them fails the
// whole request fails.
func (g *Generator) Generate(ctx context.Context, req *core.ValidatedRequest) (core.Envelope, error) {
	requested, _ := req.Params[ParamRequestedTenant].(string)
	if requested == "" {
		return nil, core.StructuralError("missing %s", ParamRequestedTenant)
	}
	log.Ctx(ctx).Info().
		Str("admin", req.Tenant).
		Str("requested_tenant", requested).
		Msg("issuing credentials on behalf of tenant")

	scoped := req.WithTenant(requested)
	results := make([]core.Envelope, len(g.targets))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, t := range g.targets {
		eg.Go(func() error {
			env, err := t.generator.Generate(egCtx, scoped)
			if err != nil {
				return fmt.Errorf("%s: %w", t.key, err)
			}
			results[i] = env
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(Envelope, len(g.targets))
	for i, t := range g.targets {
		out[t.key] = results[i]
	}
	return out, nil
}
