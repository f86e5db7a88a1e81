package blob

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/core"
)

const RevokePresignType = "azure_revoke_presign"

var _ core.CredentialGenerator = (*RevokeGenerator)(nil)

// RevokeEnvelope is empty, success is signalled by the status code.
type RevokeEnvelope struct{}

// RevokeGenerator invalidates outstanding policy bound signatures of the
// tenant's private container by replacing its access policy.
type RevokeGenerator struct {
	newStore StoreFactory
	newID    func() string
}

func NewRevoke(f StoreFactory) *RevokeGenerator {
	if f == nil {
		f = NewAzureStore
	}
	return &RevokeGenerator{
		newStore: f,
		newID:    uuid.NewString,
	}
}

func (g *RevokeGenerator) Type() string {
	return RevokePresignType
}

func (g *RevokeGenerator) Fields() []core.Field {
	return accountFields()
}

func (g *RevokeGenerator) Generate(ctx context.Context, req *core.ValidatedRequest) (core.Envelope, error) {
	store, err := openStore(g.newStore, req.Params)
	if err != nil {
		return nil, err
	}

	private, _ := ContainerNames(req.Tenant)
	policyID := g.newID()
	if err := store.ResetAccessPolicy(ctx, private, policyID, false); err != nil {
		return nil, core.ServerError(err, "resetting access policy")
	}
	log.Ctx(ctx).Info().Str("container", private).Str("policy_id", policyID).Msg("access policy reset")
	return &RevokeEnvelope{}, nil
}
