package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adobe/aio-tvm/internal/core"
)

type createCall struct {
	name     string
	public   bool
	metadata map[string]string
}

type fakeStore struct {
	params    Params
	createErr map[string]error
	policyErr error
	created   []createCall
	blobCalls []string

	// policies holds the stored access policy id per container
	policies map[string]string
	resets   []string
}

func (f *fakeStore) CreateContainer(_ context.Context, name string, public bool, metadata map[string]string) error {
	if err := f.createErr[name]; err != nil {
		return err
	}
	f.created = append(f.created, createCall{name: name, public: public, metadata: metadata})
	return nil
}

func (f *fakeStore) EnsureAccessPolicy(_ context.Context, name string, _ bool) (string, error) {
	if f.policyErr != nil {
		return "", f.policyErr
	}
	if f.policies == nil {
		f.policies = map[string]string{}
	}
	if _, ok := f.policies[name]; !ok {
		f.policies[name] = "initial-" + name
	}
	return f.policies[name], nil
}

func (f *fakeStore) ContainerSASURL(name, policyID string, expiry time.Time) (string, error) {
	return fmt.Sprintf("https://acc.blob.core.windows.net/%s?se=%d&si=%s", name, expiry.Unix(), policyID), nil
}

func (f *fakeStore) BlobSAS(container, blob, policyID, permissions string, _ time.Time) (string, error) {
	f.blobCalls = append(f.blobCalls, container+"/"+blob+":"+permissions)
	return "si=" + policyID + "&sp=" + permissions + "&sig=abc", nil
}

func (f *fakeStore) ResetAccessPolicy(_ context.Context, container, policyID string, _ bool) error {
	if f.policies == nil {
		f.policies = map[string]string{}
	}
	f.policies[container] = policyID
	f.resets = append(f.resets, container)
	return nil
}

func factoryFor(store *fakeStore) StoreFactory {
	return func(p Params) (Store, error) {
		store.params = p
		return store, nil
	}
}

func testRequest(extra map[string]any) *core.ValidatedRequest {
	params := map[string]any{
		"azureStorageAccount":   "acc",
		"azureStorageAccessKey": "key",
	}
	for k, v := range extra {
		params[k] = v
	}
	return &core.ValidatedRequest{Tenant: "ns1", Lease: time.Hour, Params: params}
}

func TestContainerNames(t *testing.T) {
	private, public := ContainerNames("ns1")
	assert.Equal(t, core.HashTenant("ns1"), private)
	assert.Equal(t, private+"-public", public)
	assert.NotContains(t, public, "ns1")
}

func TestGenerator_Generate(t *testing.T) {
	store := &fakeStore{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := New(WithStoreFactory(factoryFor(store)))
	g.now = func() time.Time { return now }

	env, err := g.Generate(context.Background(), testRequest(nil))
	require.NoError(t, err)

	assert.Equal(t, Params{Account: "acc", AccessKey: "key"}, store.params)

	private, public := ContainerNames("ns1")
	require.Len(t, store.created, 2)
	assert.Equal(t, createCall{name: public, public: true, metadata: map[string]string{"tenant": "ns1"}}, store.created[0])
	assert.Equal(t, createCall{name: private, public: false, metadata: map[string]string{"tenant": "ns1"}}, store.created[1])

	e := env.(*Envelope)
	assert.Equal(t, "2026-01-01T13:00:00Z", e.Expiration)
	assert.True(t, strings.Contains(e.SASURLPrivate, "/"+private+"?"))
	assert.True(t, strings.Contains(e.SASURLPublic, "/"+public+"?"))
	assert.Contains(t, e.SASURLPrivate, "si=initial-"+private)
	assert.Contains(t, e.SASURLPublic, "si=initial-"+public)
}

func TestGenerator_AccessPolicyFailure(t *testing.T) {
	store := &fakeStore{policyErr: errors.New("forbidden")}
	_, err := New(WithStoreFactory(factoryFor(store))).Generate(context.Background(), testRequest(nil))
	var cerr *core.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, core.ClassServer, cerr.Class)
}

func TestGenerator_ContainerAlreadyExists(t *testing.T) {
	private, public := ContainerNames("ns1")
	store := &fakeStore{createErr: map[string]error{
		public:  fmt.Errorf("container: %w", core.ErrAlreadyExists),
		private: fmt.Errorf("container: %w", core.ErrAlreadyExists),
	}}
	_, err := New(WithStoreFactory(factoryFor(store))).Generate(context.Background(), testRequest(nil))
	require.NoError(t, err)
}

func TestGenerator_CreateFailure(t *testing.T) {
	_, public := ContainerNames("ns1")
	store := &fakeStore{createErr: map[string]error{public: errors.New("forbidden")}}
	_, err := New(WithStoreFactory(factoryFor(store))).Generate(context.Background(), testRequest(nil))
	require.Error(t, err)
	var cerr *core.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, core.ClassServer, cerr.Class)
}

func TestPresignGenerator(t *testing.T) {
	private, _ := ContainerNames("ns1")

	t.Run("default permissions", func(t *testing.T) {
		store := &fakeStore{}
		env, err := NewPresign(factoryFor(store)).Generate(context.Background(),
			testRequest(map[string]any{"blobName": "file.txt", "expiryInSeconds": 60}))
		require.NoError(t, err)
		assert.Equal(t, []string{private + "/file.txt:r"}, store.blobCalls)
		assert.Equal(t, "si=initial-"+private+"&sp=r&sig=abc", env.(*PresignEnvelope).Signature)
	})

	t.Run("explicit permissions", func(t *testing.T) {
		store := &fakeStore{}
		_, err := NewPresign(factoryFor(store)).Generate(context.Background(),
			testRequest(map[string]any{"blobName": "dir/file.txt", "expiryInSeconds": 60, "permissions": "rwd"}))
		require.NoError(t, err)
		assert.Equal(t, []string{private + "/dir/file.txt:rwd"}, store.blobCalls)
	})
}

func TestRevokeGenerator(t *testing.T) {
	store := &fakeStore{}
	g := NewRevoke(factoryFor(store))
	g.newID = func() string { return "policy-1" }

	env, err := g.Generate(context.Background(), testRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, &RevokeEnvelope{}, env)

	private, _ := ContainerNames("ns1")
	assert.Equal(t, []string{private}, store.resets)
	assert.Equal(t, "policy-1", store.policies[private])
}

func TestRevokeGenerator_InvalidatesEarlierSignatures(t *testing.T) {
	store := &fakeStore{}
	presign := NewPresign(factoryFor(store))
	revoke := NewRevoke(factoryFor(store))
	revoke.newID = func() string { return "policy-2" }
	req := testRequest(map[string]any{"blobName": "file.txt", "expiryInSeconds": 60})

	before, err := presign.Generate(context.Background(), req)
	require.NoError(t, err)
	_, err = revoke.Generate(context.Background(), testRequest(nil))
	require.NoError(t, err)
	after, err := presign.Generate(context.Background(), req)
	require.NoError(t, err)

	private, _ := ContainerNames("ns1")
	assert.Contains(t, before.(*PresignEnvelope).Signature, "si=initial-"+private)
	assert.Contains(t, after.(*PresignEnvelope).Signature, "si=policy-2")
	assert.NotEqual(t, before.(*PresignEnvelope).Signature, after.(*PresignEnvelope).Signature)
	assert.Equal(t, "policy-2", store.policies[private])
}

func TestAzureStore_Signatures(t *testing.T) {
	store, err := NewAzureStore(Params{
		Account:   "acc",
		AccessKey: base64.StdEncoding.EncodeToString([]byte("not-a-real-key")),
	})
	require.NoError(t, err)
	expiry := time.Now().Add(time.Hour)

	url, err := store.ContainerSASURL("container", "policy-1", expiry)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://acc.blob.core.windows.net/container?"))
	assert.Contains(t, url, "sig=")
	assert.Contains(t, url, "sp=racwdl")
	assert.Contains(t, url, "si=policy-1")

	signature, err := store.BlobSAS("container", "file.txt", "policy-1", "rw", expiry)
	require.NoError(t, err)
	assert.Contains(t, signature, "sp=rw")
	assert.Contains(t, signature, "sig=")
	assert.Contains(t, signature, "si=policy-1")

	_, err = store.BlobSAS("container", "file.txt", "policy-1", "x", expiry)
	require.Error(t, err)
}

func TestNewAzureStore_InvalidKey(t *testing.T) {
	_, err := NewAzureStore(Params{Account: "acc", AccessKey: "%%% not base64"})
	require.Error(t, err)
}
