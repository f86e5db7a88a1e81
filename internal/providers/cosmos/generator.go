package cosmos

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/core"
)

const Type = "azure_cosmos"

// ExpirationMargin is subtracted from the advertised expiration so that it
// never overruns the lifetime of the permission, which may have been
// created by a concurrent request.
const ExpirationMargin = 300 * time.Second

const permissionModeAll = "All"

// status codes signalling that a concurrent request is creating the same resources
var raceCodes = map[int]struct{}{
	http.StatusConflict:        {},
	http.StatusTooManyRequests: {},
	449:                        {}, // retry with
}

var _ core.CredentialGenerator = (*Generator)(nil)

// Store manages users and permissions of one database.
// Failures carry the upstream status code (see core.UpstreamCode).
type Store interface {
	ReadPermission(ctx context.Context, userID, permissionID string, expiry time.Duration) (*Permission, error)
	CreateUser(ctx context.Context, userID string) error
	CreatePermission(ctx context.Context, userID string, p Permission, expiry time.Duration) (*Permission, error)
	ContainerLink(containerID string) string
}

type StoreFactory func(p Params) (Store, error)

type Params struct {
	Account     string `mapstructure:"azureCosmosAccount"`
	MasterKey   string `mapstructure:"azureCosmosMasterKey"`
	DatabaseID  string `mapstructure:"azureCosmosDatabaseId"`
	ContainerID string `mapstructure:"azureCosmosContainerId"`
}

// Endpoint returns the account endpoint.
func (p Params) Endpoint() string {
	return fmt.Sprintf("https://%s.documents.azure.com", p.Account)
}

type Envelope struct {
	ResourceToken string `json:"resourceToken"`
	Endpoint      string `json:"endpoint"`
	Expiration    string `json:"expiration"`
	DatabaseID    string `json:"databaseId"`
	ContainerID   string `json:"containerId"`
	PartitionKey  string `json:"partitionKey"`
}

// Generator issues a resource token limited to the tenant's partition of a
// shared container. The database and container must exist.
type Generator struct {
	newStore StoreFactory
	resolver *RaceResolver
	now      func() time.Time
}

type Option func(*Generator)

func WithStoreFactory(f StoreFactory) Option {
	return func(g *Generator) {
		g.newStore = f
	}
}

func WithRaceResolver(r *RaceResolver) Option {
	return func(g *Generator) {
		g.resolver = r
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{
		newStore: func(p Params) (Store, error) {
			return NewClient(p.Endpoint(), p.MasterKey, p.DatabaseID)
		},
		resolver: NewRaceResolver(),
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
	return []core.Field{
		{Name: "azureCosmosAccount", Type: core.FieldString, Required: true},
		{Name: "azureCosmosMasterKey", Type: core.FieldString, Required: true},
		{Name: "azureCosmosDatabaseId", Type: core.FieldString, Required: true},
		{Name: "azureCosmosContainerId", Type: core.FieldString, Required: true},
	}
}

// PartitionKey returns the hex encoding of tenant, which fits the restricted
// character set of ids.
func PartitionKey(tenant string) string {
	return hex.EncodeToString([]byte(tenant))
}

func (g *Generator) Generate(ctx context.Context, req *core.ValidatedRequest) (core.Envelope, error) {
	var p Params
	if err := core.DecodeParams(req.Params, &p); err != nil {
		return nil, core.ServerError(err, "invalid %s params", Type)
	}
	store, err := g.newStore(p)
	if err != nil {
		return nil, core.ServerError(err, "creating %s client", Type)
	}

	pk := PartitionKey(req.Tenant)
	userID := "user-" + pk
	permissionID := "permission-" + pk

	logger := log.Ctx(ctx).With().Str("user_id", userID).Logger()
	ctx = logger.WithContext(ctx)

	perm, err := g.issue(ctx, store, userID, Permission{
		ID:                   permissionID,
		Mode:                 permissionModeAll,
		Resource:             store.ContainerLink(p.ContainerID),
		ResourcePartitionKey: []string{pk},
	}, req.Lease)
	if err != nil {
		return nil, core.ServerError(err, "issuing resource token")
	}

	return &Envelope{
		ResourceToken: perm.Token,
		Endpoint:      p.Endpoint(),
		Expiration:    core.ExpiresAt(g.now(), req.Lease-ExpirationMargin),
		DatabaseID:    p.DatabaseID,
		ContainerID:   p.ContainerID,
		PartitionKey:  pk,
	}, nil
}

// issue reads the permission, creating user and permission on first use.
// When the creation races with a concurrent request the permission is re-read
// until it is visible.
func (g *Generator) issue(ctx context.Context, store Store, userID string, want Permission, lease time.Duration) (*Permission, error) {
	logger := log.Ctx(ctx)

	read := func(ctx context.Context) (*Permission, error) {
		return store.ReadPermission(ctx, userID, want.ID, lease)
	}

	perm, err := read(ctx)
	if err == nil {
		return perm, nil
	}
	if !core.IsNotFound(err) {
		return nil, fmt.Errorf("reading permission: %w", err)
	}

	logger.Debug().Msg("permission not found, creating user and permission")
	perm, err = create(ctx, store, userID, want, lease)
	if err == nil {
		return perm, nil
	}
	if !isRace(err) {
		return nil, err
	}

	logger.Info().Err(err).Msg("concurrent creation detected, waiting for permission")
	perm, err = g.resolver.Resolve(ctx, read)
	if err != nil {
		return nil, fmt.Errorf("resolving concurrent creation: %w", err)
	}
	return perm, nil
}

func create(ctx context.Context, store Store, userID string, want Permission, lease time.Duration) (*Permission, error) {
	// an existing user without permission is not a race, the permission is still ours to create
	if err := store.CreateUser(ctx, userID); err != nil && !isConflict(err) {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	perm, err := store.CreatePermission(ctx, userID, want, lease)
	if err != nil {
		return nil, fmt.Errorf("creating permission: %w", err)
	}
	return perm, nil
}

func isConflict(err error) bool {
	code, ok := core.UpstreamCode(err)
	return ok && code == http.StatusConflict
}

func isRace(err error) bool {
	code, ok := core.UpstreamCode(err)
	if !ok {
		return false
	}
	_, race := raceCodes[code]
	return race
}
