package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/google/uuid"

	"github.com/adobe/aio-tvm/internal/core"
)

var _ Store = (*azureStore)(nil)

type azureStore struct {
	serviceURL string
	cred       *azblob.SharedKeyCredential
	client     *azblob.Client
}

// NewAzureStore builds a Store for the storage account in p, authenticated
// with the account's shared key.
func NewAzureStore(p Params) (Store, error) {
	cred, err := azblob.NewSharedKeyCredential(p.Account, p.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("creating shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", p.Account)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}
	return &azureStore{
		serviceURL: serviceURL,
		cred:       cred,
		client:     client,
	}, nil
}

func (s *azureStore) CreateContainer(ctx context.Context, name string, public bool, metadata map[string]string) error {
	opts := &container.CreateOptions{
		Metadata: make(map[string]*string, len(metadata)),
	}
	for k, v := range metadata {
		opts.Metadata[k] = to.Ptr(v)
	}
	if public {
		opts.Access = to.Ptr(container.PublicAccessTypeBlob)
	}

	_, err := s.client.CreateContainer(ctx, name, opts)
	if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("container %s: %w", name, core.ErrAlreadyExists)
	}
	return err
}

func (s *azureStore) EnsureAccessPolicy(ctx context.Context, name string, public bool) (string, error) {
	resp, err := s.client.ServiceClient().NewContainerClient(name).GetAccessPolicy(ctx, nil)
	if err != nil {
		return "", err
	}
	for _, si := range resp.SignedIdentifiers {
		if si != nil && si.ID != nil && *si.ID != "" {
			return *si.ID, nil
		}
	}
	id := uuid.NewString()
	if err := s.ResetAccessPolicy(ctx, name, id, public); err != nil {
		return "", err
	}
	return id, nil
}

func (s *azureStore) ContainerSASURL(name, policyID string, expiry time.Time) (string, error) {
	perms := sas.ContainerPermissions{
		Add:    true,
		Read:   true,
		Create: true,
		Delete: true,
		Write:  true,
		List:   true,
	}
	qp, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		ExpiryTime:    expiry.UTC(),
		Permissions:   perms.String(),
		ContainerName: name,
		Identifier:    policyID,
	}.SignWithSharedKey(s.cred)
	if err != nil {
		return "", err
	}
	return s.serviceURL + name + "?" + qp.Encode(), nil
}

func (s *azureStore) BlobSAS(containerName, blobName, policyID, permissions string, expiry time.Time) (string, error) {
	var perms sas.BlobPermissions
	for _, c := range permissions {
		switch c {
		case 'r':
			perms.Read = true
		case 'w':
			perms.Write = true
		case 'd':
			perms.Delete = true
		default:
			return "", fmt.Errorf("unsupported permission %q", c)
		}
	}
	qp, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		ExpiryTime:    expiry.UTC(),
		Permissions:   perms.String(),
		ContainerName: containerName,
		BlobName:      strings.TrimPrefix(blobName, "/"),
		Identifier:    policyID,
	}.SignWithSharedKey(s.cred)
	if err != nil {
		return "", err
	}
	return qp.Encode(), nil
}

// ResetAccessPolicy overwrites the whole ACL, which also resets the public
// access level, so it is set again for public containers.
func (s *azureStore) ResetAccessPolicy(ctx context.Context, containerName, policyID string, public bool) error {
	opts := &container.SetAccessPolicyOptions{
		ContainerACL: []*container.SignedIdentifier{
			{
				ID: to.Ptr(policyID),
				AccessPolicy: &container.AccessPolicy{
					Permission: to.Ptr(""),
				},
			},
		},
	}
	if public {
		opts.Access = to.Ptr(container.PublicAccessTypeBlob)
	}
	_, err := s.client.ServiceClient().NewContainerClient(containerName).SetAccessPolicy(ctx, opts)
	return err
}
