package blob

import (
	"context"
	"time"

	"github.com/adobe/aio-tvm/internal/core"
)

// Store is the blob storage account used by the generators.
type Store interface {
	// CreateContainer creates a container. It returns core.ErrAlreadyExists
	// if the container exists.
	CreateContainer(ctx context.Context, name string, public bool, metadata map[string]string) error

	// EnsureAccessPolicy returns the identifier of the container's stored
	// access policy. A container without one gets an empty policy with a
	// fresh identifier. public keeps anonymous blob read access.
	EnsureAccessPolicy(ctx context.Context, container string, public bool) (string, error)

	// ContainerSASURL returns a URL to the container signed with add, read,
	// create, delete, write and list permissions and bound to policyID.
	ContainerSASURL(name, policyID string, expiry time.Time) (string, error)

	// BlobSAS returns the encoded signature for a single blob, bound to
	// policyID. permissions is a combination of r, w and d.
	BlobSAS(container, blob, policyID, permissions string, expiry time.Time) (string, error)

	// ResetAccessPolicy replaces the stored access policy of a container
	// with an empty policy identified by policyID. Signatures bound to the
	// previous policy stop working.
	ResetAccessPolicy(ctx context.Context, container, policyID string, public bool) error
}

type StoreFactory func(p Params) (Store, error)

// Params are the storage account params shared by all blob generators.
type Params struct {
	Account   string `mapstructure:"azureStorageAccount"`
	AccessKey string `mapstructure:"azureStorageAccessKey"`
}

func accountFields() []core.Field {
	return []core.Field{
		{Name: "azureStorageAccount", Type: core.FieldString, Required: true},
		{Name: "azureStorageAccessKey", Type: core.FieldString, Required: true},
	}
}

// ContainerNames returns the private and public container of tenant.
// The tenant is hashed so it never shows up in a public name.
func ContainerNames(tenant string) (private, public string) {
	private = core.HashTenant(tenant)
	return private, private + "-public"
}

func openStore(factory StoreFactory, params map[string]any) (Store, error) {
	var p Params
	if err := core.DecodeParams(params, &p); err != nil {
		return nil, core.ServerError(err, "invalid storage params")
	}
	store, err := factory(p)
	if err != nil {
		return nil, core.ServerError(err, "creating storage client")
	}
	return store, nil
}
