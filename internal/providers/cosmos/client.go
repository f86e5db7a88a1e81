package cosmos

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adobe/aio-tvm/internal/audit"
	"github.com/adobe/aio-tvm/internal/core"
)

const apiVersion = "2018-12-31"

var _ Store = (*Client)(nil)

// Permission is a document database permission resource.
type Permission struct {
	ID                   string   `json:"id"`
	Mode                 string   `json:"permissionMode"`
	Resource             string   `json:"resource"`
	ResourcePartitionKey []string `json:"resourcePartitionKey,omitempty"`

	// Token is the resource token, only set in responses.
	Token string `json:"_token,omitempty"`
}

// Client is a minimal REST client for the users and permissions of one
// database, authenticated with the account master key.
type Client struct {
	endpoint   string
	databaseID string
	key        []byte
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(endpoint, masterKey, databaseID string) (*Client, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}
	if databaseID == "" {
		return nil, fmt.Errorf("database id cannot be empty")
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		databaseID: databaseID,
		key:        key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}, nil
}

func (c *Client) databaseLink() string {
	return "dbs/" + c.databaseID
}

func (c *Client) userLink(userID string) string {
	return c.databaseLink() + "/users/" + userID
}

// ContainerLink returns the resource link of a container of the database.
func (c *Client) ContainerLink(containerID string) string {
	return c.databaseLink() + "/colls/" + containerID
}

// ReadPermission reads a permission and refreshes its resource token to
// be valid for expiry.
func (c *Client) ReadPermission(ctx context.Context, userID, permissionID string, expiry time.Duration) (*Permission, error) {
	link := c.userLink(userID) + "/permissions/" + permissionID
	var perm Permission
	if err := c.do(ctx, "GET", "permissions", link, link, nil, expiry, &perm); err != nil {
		return nil, err
	}
	return &perm, nil
}

func (c *Client) CreateUser(ctx context.Context, userID string) error {
	body := map[string]string{"id": userID}
	return c.do(ctx, "POST", "users", c.databaseLink(), c.databaseLink()+"/users", body, 0, nil)
}

func (c *Client) CreatePermission(ctx context.Context, userID string, p Permission, expiry time.Duration) (*Permission, error) {
	link := c.userLink(userID)
	var perm Permission
	if err := c.do(ctx, "POST", "permissions", link, link+"/permissions", p, expiry, &perm); err != nil {
		return nil, err
	}
	return &perm, nil
}

// do performs a request. resourceLink is the link used for signing, path the
// request path. Non 2xx responses are upstream errors carrying the status.
func (c *Client) do(
	ctx context.Context,
	verb, resourceType, resourceLink, path string,
	payload any,
	expiry time.Duration,
	result any,
) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshalling payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, verb, c.endpoint+"/"+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	date := c.now().UTC().Format(http.TimeFormat)
	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-version", apiVersion)
	req.Header.Set("Authorization", c.authorization(verb, resourceType, resourceLink, date))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", audit.CreateUserAgent(core.CorrelationID(ctx), "", "cosmos"))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if expiry > 0 {
		req.Header.Set("x-ms-documentdb-expiry-seconds", strconv.Itoa(int(expiry/time.Second)))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var decoded struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		reason := fmt.Errorf("unexpected status code %d", resp.StatusCode)
		if json.Unmarshal(data, &decoded) == nil && decoded.Code != "" {
			reason = fmt.Errorf("%s: %s", decoded.Code, decoded.Message)
		}
		return core.UpstreamError(resp.StatusCode, reason, "%s %s", verb, resourceLink)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// authorization computes the master key authorization header.
func (c *Client) authorization(verb, resourceType, resourceLink, date string) string {
	payload := strings.ToLower(verb) + "\n" +
		strings.ToLower(resourceType) + "\n" +
		resourceLink + "\n" +
		strings.ToLower(date) + "\n" +
		"\n"
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(payload))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return url.QueryEscape("type=master&ver=1.0&sig=" + signature)
}
