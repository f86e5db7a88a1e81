package providers

import (
	"fmt"

	"github.com/adobe/aio-tvm/internal/config"
	"github.com/adobe/aio-tvm/internal/core"
	"github.com/adobe/aio-tvm/internal/providers/admin"
	"github.com/adobe/aio-tvm/internal/providers/blob"
	"github.com/adobe/aio-tvm/internal/providers/cosmos"
	"github.com/adobe/aio-tvm/internal/providers/s3"
)

// Types lists the supported generator types.
var Types = []string{
	s3.Type,
	blob.Type,
	blob.PresignType,
	blob.RevokePresignType,
	cosmos.Type,
	admin.Type,
}

// New returns a generator of the given type.
func New(typ string) (core.CredentialGenerator, error) {
	switch typ {
	case s3.Type:
		return s3.New(), nil
	case blob.Type:
		return blob.New(), nil
	case blob.PresignType:
		return blob.NewPresign(nil), nil
	case blob.RevokePresignType:
		return blob.NewRevoke(nil), nil
	case cosmos.Type:
		return cosmos.New(), nil
	case admin.Type:
		return admin.New(s3.New(), blob.New(), cosmos.New()), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", typ)
	}
}

// BuildRegistry builds one generator per configured provider, keyed by name.
func BuildRegistry(cfgs []config.ProviderConfig) (map[string]core.CredentialGenerator, error) {
	registry := make(map[string]core.CredentialGenerator)
	for _, cfg := range cfgs {
		gen, err := New(cfg.Type)
		if err != nil {
			return nil, fmt.Errorf("building provider %q: %w", cfg.Name, err)
		}
		registry[cfg.Name] = gen
	}
	return registry, nil
}
