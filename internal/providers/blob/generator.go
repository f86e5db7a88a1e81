package blob

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/core"
)

const Type = "azure_blob"

var _ core.CredentialGenerator = (*Generator)(nil)

type Envelope struct {
	Expiration    string `json:"expiration"`
	SASURLPrivate string `json:"sasURLPrivate"`
	SASURLPublic  string `json:"sasURLPublic"`
}

// Generator issues signed URLs for the tenant's private and public container.
type Generator struct {
	newStore StoreFactory
	now      func() time.Time
}

type Option func(*Generator)

func WithStoreFactory(f StoreFactory) Option {
	return func(g *Generator) {
		g.newStore = f
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{
		newStore: NewAzureStore,
		now:      time.Now,
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
	return accountFields()
}

func (g *Generator) Generate(ctx context.Context, req *core.ValidatedRequest) (core.Envelope, error) {
	logger := log.Ctx(ctx)

	store, err := openStore(g.newStore, req.Params)
	if err != nil {
		return nil, err
	}

	private, public := ContainerNames(req.Tenant)
	metadata := map[string]string{"tenant": req.Tenant}

	// the signed URLs cannot create containers, so they are created here
	if err := ensureContainer(ctx, store, public, true, metadata); err != nil {
		return nil, err
	}
	if err := ensureContainer(ctx, store, private, false, metadata); err != nil {
		return nil, err
	}
	logger.Debug().Str("container", private).Msg("containers ready")

	privatePolicy, err := store.EnsureAccessPolicy(ctx, private, false)
	if err != nil {
		return nil, core.ServerError(err, "reading access policy of %s", private)
	}
	publicPolicy, err := store.EnsureAccessPolicy(ctx, public, true)
	if err != nil {
		return nil, core.ServerError(err, "reading access policy of %s", public)
	}

	now := g.now()
	expiry := now.Add(req.Lease)

	privateURL, err := store.ContainerSASURL(private, privatePolicy, expiry)
	if err != nil {
		return nil, core.ServerError(err, "signing private container")
	}
	publicURL, err := store.ContainerSASURL(public, publicPolicy, expiry)
	if err != nil {
		return nil, core.ServerError(err, "signing public container")
	}

	return &Envelope{
		Expiration:    core.ExpiresAt(now, req.Lease),
		SASURLPrivate: privateURL,
		SASURLPublic:  publicURL,
	}, nil
}

func ensureContainer(ctx context.Context, store Store, name string, public bool, metadata map[string]string) error {
	err := store.CreateContainer(ctx, name, public, metadata)
	if err == nil || errors.Is(err, core.ErrAlreadyExists) {
		return nil
	}
	return core.ServerError(err, "creating container %s", name)
}
