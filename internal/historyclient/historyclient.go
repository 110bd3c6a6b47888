// Package historyclient implements syncengine.Remote over the history
// store's REST facade (internal/store/httpapi), so history mode shares
// the same Engine/ResourceManager machinery realtime mode uses —
// swapping only which Remote a Factory is built with.
package historyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fioncat/csync-go/internal/digest"
	"github.com/fioncat/csync-go/internal/store"
	"github.com/fioncat/csync-go/internal/syncengine"
)

// Config describes how to reach a running httpapi.Server.
type Config struct {
	BaseURL  string
	Password string
	Owner    string // scopes GetLatest/Create calls to one device's history
}

// Client is a syncengine.Remote backed by HTTP calls to the history
// store's REST facade. Unlike internal/broker/client there is no
// background pull loop: ReadDigest/Read poll GetLatest on demand, since
// the REST facade has no push surface to piggyback on.
type Client struct {
	cfg    Config
	client *http.Client

	mu    sync.Mutex
	token string
}

func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func storeKind(k syncengine.Kind) store.Kind {
	switch k {
	case syncengine.KindImage:
		return store.KindImage
	case syncengine.KindFile:
		return store.KindFile
	default:
		return store.KindText
	}
}

// ReadDigest fetches the owner's latest resource of kind and returns its
// digest, or "" if none has ever been written.
func (c *Client) ReadDigest(ctx context.Context, kind syncengine.Kind) (string, error) {
	meta, ok, err := c.getLatest(ctx, kind)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return meta.Digest, nil
}

// Read fetches the owner's latest resource of kind and returns its blob
// payload in the same flat-byte encoding internal/syncengine's resource
// managers expect (the REST facade's GetBlob already returns the raw
// payload httpapi.handleCreateBlob was handed, so no re-encoding is
// needed here unlike internal/broker/client's wire-frame translation).
func (c *Client) Read(ctx context.Context, kind syncengine.Kind) ([]byte, error) {
	meta, ok, err := c.getLatest(ctx, kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	data, err := c.getBlob(ctx, meta.ID)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write creates a new resource revision carrying data, under this
// client's configured owner.
func (c *Client) Write(ctx context.Context, kind syncengine.Kind, data []byte) error {
	url := fmt.Sprintf("%s/api/v1/blobs?kind=%d&owner=%s", c.cfg.BaseURL, storeKind(kind), c.cfg.Owner)
	req, err := c.newRequest(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Digest", digest.Sum(data))

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("historyclient: create blob: HTTP %d", resp.StatusCode)
	}
	return nil
}

type metadataEnvelope struct {
	ID     int64  `json:"ID"`
	Digest string `json:"Digest"`
}

// getLatest lists the single most recent resource of kind for this
// client's owner. The REST facade has no dedicated "latest" route, so
// this asks for page size 1 under OrderPinThenRecency's default
// ordering, which spec.md defines as pin DESC, id DESC — close enough
// to "most recent" for an owner who pins at most the one thing they're
// actively syncing.
func (c *Client) getLatest(ctx context.Context, kind syncengine.Kind) (metadataEnvelope, bool, error) {
	k := storeKind(kind)
	url := fmt.Sprintf("%s/api/v1/metadata?kind=%d&owner=%s&limit=1", c.cfg.BaseURL, k, c.cfg.Owner)
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return metadataEnvelope{}, false, err
	}

	resp, err := c.do(req)
	if err != nil {
		return metadataEnvelope{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return metadataEnvelope{}, false, fmt.Errorf("historyclient: list metadata: HTTP %d", resp.StatusCode)
	}

	var page struct {
		Items []metadataEnvelope `json:"Items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return metadataEnvelope{}, false, err
	}
	if len(page.Items) == 0 {
		return metadataEnvelope{}, false, nil
	}
	return page.Items[0], true, nil
}

func (c *Client) getBlob(ctx context.Context, id int64) ([]byte, error) {
	url := fmt.Sprintf("%s/api/v1/blobs/%d", c.cfg.BaseURL, id)
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("historyclient: get blob: HTTP %d", resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body *bytes.Reader) (*http.Request, error) {
	if body == nil {
		return http.NewRequestWithContext(ctx, method, url, nil)
	}
	return http.NewRequestWithContext(ctx, method, url, body)
}

// do attaches the bearer token, logging in first on the first call (or
// after a prior 401), matching httpapi's auth middleware expectations.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	token, err := c.ensureToken(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()

		token, err := c.ensureToken(req.Context())
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return c.client.Do(req)
	}
	return resp, nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	body, err := json.Marshal(map[string]string{"password": c.cfg.Password})
	if err != nil {
		return "", err
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/v1/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("historyclient: login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("historyclient: login failed: HTTP %d", resp.StatusCode)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.token = loginResp.Token
	c.mu.Unlock()
	return loginResp.Token, nil
}
