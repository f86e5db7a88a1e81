package blob

import (
	"context"
	"time"

	"github.com/adobe/aio-tvm/internal/core"
)

const PresignType = "azure_presign"

const defaultPresignPermissions = "r"

var _ core.CredentialGenerator = (*PresignGenerator)(nil)

type PresignEnvelope struct {
	Signature string `json:"signature"`
}

type presignParams struct {
	BlobName        string `mapstructure:"blobName"`
	ExpiryInSeconds int    `mapstructure:"expiryInSeconds"`
	Permissions     string `mapstructure:"permissions"`
}

// PresignGenerator signs a single blob of the tenant's private container.
// Signatures are bound to the container's access policy so that
// RevokeGenerator can invalidate them.
type PresignGenerator struct {
	newStore StoreFactory
}

func NewPresign(f StoreFactory) *PresignGenerator {
	if f == nil {
		f = NewAzureStore
	}
	return &PresignGenerator{newStore: f}
}

func (g *PresignGenerator) Type() string {
	return PresignType
}

func (g *PresignGenerator) Fields() []core.Field {
	return append(accountFields(),
		core.Field{Name: "blobName", Type: core.FieldString, Required: true},
		core.Field{Name: "expiryInSeconds", Type: core.FieldInteger, Required: true, Min: core.Bound(2), Max: core.Bound(86400)},
		core.Field{Name: "permissions", Type: core.FieldString, Patterns: []string{`^.{1,3}$`, `^[rwd]*$`}},
	)
}

func (g *PresignGenerator) Generate(ctx context.Context, req *core.ValidatedRequest) (core.Envelope, error) {
	store, err := openStore(g.newStore, req.Params)
	if err != nil {
		return nil, err
	}

	var p presignParams
	if err := core.DecodeParams(req.Params, &p); err != nil {
		return nil, core.ServerError(err, "invalid presign params")
	}
	if p.Permissions == "" {
		p.Permissions = defaultPresignPermissions
	}

	private, _ := ContainerNames(req.Tenant)
	policyID, err := store.EnsureAccessPolicy(ctx, private, false)
	if err != nil {
		return nil, core.ServerError(err, "reading access policy of %s", private)
	}
	expiry := time.Now().Add(time.Duration(p.ExpiryInSeconds) * time.Second)

	signature, err := store.BlobSAS(private, p.BlobName, policyID, p.Permissions, expiry)
	if err != nil {
		return nil, core.ServerError(err, "signing blob")
	}
	return &PresignEnvelope{Signature: signature}, nil
}
