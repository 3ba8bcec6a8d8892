// Package bluesky publishes posts to a Bluesky PDS over AT Protocol XRPC.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// ErrMissingCredentials is returned when the handle or app password is empty.
var ErrMissingCredentials = errors.New("bluesky: missing handle or app password")

// maxPostChars is the Bluesky post length limit.
const maxPostChars = 300

const imageAlt = "Lightning storm summary chart"

// Client implements engine.Publisher. Each Publish logs in with the app
// password, optionally uploads a PNG, then creates an app.bsky.feed.post
// record.
type Client struct {
	handle      string
	appPassword string
	httpClient  *http.Client
	baseURL     string
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewClient creates a Bluesky client against the given PDS host.
func NewClient(pdsURL, handle, appPassword string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) (*Client, error) {
	if handle == "" || appPassword == "" {
		return nil, ErrMissingCredentials
	}
	return &Client{
		handle:      handle,
		appPassword: appPassword,
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(pdsURL, "/"),
		clock:       clock,
		logger:      logger,
	}, nil
}

// Publish posts the text, with the image embedded when ImagePath is set.
func (c *Client) Publish(ctx context.Context, post domain.Post) error {
	sess, err := c.createSession(ctx)
	if err != nil {
		return err
	}

	record := feedPost{
		Type:      "app.bsky.feed.post",
		Text:      truncate(post.Text, maxPostChars),
		CreatedAt: c.clock.Now().UTC().Format(time.RFC3339Nano),
	}

	if post.ImagePath != "" {
		img, err := os.ReadFile(post.ImagePath)
		if err != nil {
			return fmt.Errorf("read image %s: %w", post.ImagePath, err)
		}
		blob, err := c.uploadBlob(ctx, sess.AccessJwt, img)
		if err != nil {
			return err
		}
		record.Embed = &imagesEmbed{
			Type:   "app.bsky.embed.images",
			Images: []embedImage{{Alt: imageAlt, Image: blob}},
		}
	}

	var out createRecordResponse
	req := createRecordRequest{Repo: sess.DID, Collection: "app.bsky.feed.post", Record: record}
	if err := c.xrpc(ctx, "com.atproto.repo.createRecord", sess.AccessJwt, "application/json", mustJSON(req), &out); err != nil {
		return err
	}

	c.logger.Debug("bluesky post created", "uri", out.URI, "with_image", post.ImagePath != "")
	return nil
}

func (c *Client) createSession(ctx context.Context) (session, error) {
	var s session
	body := mustJSON(map[string]string{"identifier": c.handle, "password": c.appPassword})
	if err := c.xrpc(ctx, "com.atproto.server.createSession", "", "application/json", body, &s); err != nil {
		return session{}, err
	}
	if s.AccessJwt == "" || s.DID == "" {
		return session{}, errors.New("bluesky: createSession returned no session")
	}
	return s, nil
}

func (c *Client) uploadBlob(ctx context.Context, token string, data []byte) (json.RawMessage, error) {
	var out uploadBlobResponse
	if err := c.xrpc(ctx, "com.atproto.repo.uploadBlob", token, "image/png", data, &out); err != nil {
		return nil, err
	}
	if len(out.Blob) == 0 {
		return nil, errors.New("bluesky: uploadBlob returned no blob")
	}
	return out.Blob, nil
}

// xrpc POSTs body to the named procedure and decodes the JSON reply into out.
func (c *Client) xrpc(ctx context.Context, method, token, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/xrpc/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var xe xrpcError
		if json.Unmarshal(raw, &xe) == nil && xe.Error != "" {
			return fmt.Errorf("%s: status %d: %s: %s", method, resp.StatusCode, xe.Error, xe.Message)
		}
		return fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, raw)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("bluesky: marshal request: %v", err))
	}
	return b
}

// XRPC request and response types.

type session struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type uploadBlobResponse struct {
	Blob json.RawMessage `json:"blob"`
}

type feedPost struct {
	Type      string       `json:"$type"`
	Text      string       `json:"text"`
	CreatedAt string       `json:"createdAt"`
	Embed     *imagesEmbed `json:"embed,omitempty"`
}

type imagesEmbed struct {
	Type   string       `json:"$type"`
	Images []embedImage `json:"images"`
}

type embedImage struct {
	Alt   string          `json:"alt"`
	Image json.RawMessage `json:"image"`
}

type createRecordRequest struct {
	Repo       string   `json:"repo"`
	Collection string   `json:"collection"`
	Record     feedPost `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}
