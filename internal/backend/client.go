package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/tabbridge/tabbridge/internal/cache"
	"github.com/tabbridge/tabbridge/internal/common/cnst"
	"github.com/tabbridge/tabbridge/internal/common/config"
	"github.com/tabbridge/tabbridge/internal/protocol"
	"github.com/tabbridge/tabbridge/internal/sse"
)

// Client issues authenticated conversation requests against the remote
// backend and streams decoded answer fragments back through a callback. The
// access token it acquires is cached process-wide; invalidating that one slot
// logs every tab out at once.
type Client struct {
	logger  *zap.Logger
	cfg     *config.BackendConfig
	cache   cache.Store
	decoder *sse.Decoder
	httpc   *http.Client
}

// conversationRequest is the wire shape of the backend conversation endpoint
type conversationRequest struct {
	Action          string             `json:"action"`
	Messages        []conversationTurn `json:"messages"`
	Model           string             `json:"model"`
	ParentMessageID string             `json:"parent_message_id"`
}

type conversationTurn struct {
	ID      string           `json:"id"`
	Role    string           `json:"role"`
	Content protocol.Content `json:"content"`
}

// NewClient creates a new session client
func NewClient(logger *zap.Logger, cfg *config.BackendConfig, store cache.Store) *Client {
	return &Client{
		logger:  logger.Named("backend"),
		cfg:     cfg,
		cache:   store,
		decoder: sse.NewDecoder(logger),
		httpc:   &http.Client{},
	}
}

// GetAccessToken resolves the shared bearer token, via the cache or a fresh
// session fetch. A failed fetch or a session body without an accessToken
// field both mean the user is not logged in, and surface as ErrUnauthorized.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	if token, ok := c.cache.Get(ctx, cnst.CacheKeyAccessToken); ok {
		return token, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.SessionURL, nil)
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Warn("session fetch failed", zap.Error(err))
		return "", cnst.ErrUnauthorized
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("session body read failed", zap.Error(err))
		return "", cnst.ErrUnauthorized
	}

	token := gjson.GetBytes(body, "accessToken").String()
	if token == "" {
		return "", cnst.ErrUnauthorized
	}

	if err := c.cache.Set(ctx, cnst.CacheKeyAccessToken, token, 0); err != nil {
		c.logger.Error("failed to cache access token", zap.Error(err))
	}
	return token, nil
}

// InvalidateToken clears the shared token slot. The key stays occupied until
// its timer fires, but an empty value already reads as absent.
func (c *Client) InvalidateToken(ctx context.Context) {
	if err := c.cache.Set(ctx, cnst.CacheKeyAccessToken, "", 0); err != nil {
		c.logger.Error("failed to invalidate access token", zap.Error(err))
	}
}

// LoginURL returns the backend's login page for the UI to navigate to.
func (c *Client) LoginURL() string {
	return c.cfg.LoginURL
}

// GetAnswer sends question to the backend and delivers every decoded answer
// event through onEvent, in arrival order. ErrUnauthorized (no obtainable
// token) is the only error returned; everything that goes wrong after the
// token is resolved is delivered in-band as an error-shaped event.
func (c *Client) GetAnswer(ctx context.Context, messageID, question string, onEvent func(*protocol.Message)) error {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return cnst.ErrUnauthorized
	}

	parentID, ok := c.cache.Get(ctx, cnst.CacheKeyConversationID)
	if !ok {
		parentID = uuid.New().String()
	}

	payload, err := json.Marshal(conversationRequest{
		Action: "next",
		Messages: []conversationTurn{{
			ID:   messageID,
			Role: "user",
			Content: protocol.Content{
				ContentType: "text",
				Parts:       []string{question},
			},
		}},
		Model:           c.cfg.Model,
		ParentMessageID: parentID,
	})
	if err != nil {
		c.logger.Error("conversation request not encodable", zap.Error(err))
		onEvent(protocol.ErrorMessage(err.Error()))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ConversationURL, bytes.NewReader(payload))
	if err != nil {
		c.logger.Error("conversation request not buildable", zap.Error(err))
		onEvent(protocol.ErrorMessage(err.Error()))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Warn("conversation request failed", zap.Error(err))
		onEvent(protocol.ErrorMessage(err.Error()))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("conversation request rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		onEvent(protocol.ErrorMessage(fmt.Sprintf("backend: %s", resp.Status)))
		return nil
	}

	done := false
	decodeErr := c.decoder.Decode(ctx, resp.Body, func(data string) {
		if done {
			return
		}
		if data == cnst.DoneSentinel {
			done = true
			onEvent(protocol.Done())
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			c.logger.Warn("undecodable answer fragment",
				zap.String("data", data),
				zap.Error(err))
			onEvent(protocol.ErrorMessage(err.Error()))
			return
		}
		onEvent(&msg)
	})
	if decodeErr != nil && !done {
		onEvent(protocol.ErrorMessage(decodeErr.Error()))
	}
	return nil
}
