package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tabbridge/tabbridge/internal/backend"
	"github.com/tabbridge/tabbridge/internal/common/cnst"
	"github.com/tabbridge/tabbridge/internal/protocol"
	"github.com/tabbridge/tabbridge/internal/tabstore"
	"github.com/tabbridge/tabbridge/pkg/metrics"
)

// Router is the top-level control loop: it accepts per-tab connections,
// routes inbound UI commands to the session client, and forwards answer
// events to both the tab's history and its live connection.
type Router struct {
	logger   *zap.Logger
	store    *tabstore.Store
	client   *backend.Client
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// NewRouter creates a new dispatch router
func NewRouter(logger *zap.Logger, store *tabstore.Store, client *backend.Client, m *metrics.Metrics) *Router {
	return &Router{
		logger:  logger.Named("router"),
		store:   store,
		client:  client,
		metrics: m,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				// The extension UI connects from arbitrary page origins.
				return true
			},
		},
	}
}

// RegisterRoutes registers the router's HTTP surface
func (r *Router) RegisterRoutes(e *gin.Engine) {
	e.GET("/ws", r.handleConnect)
	e.POST("/tabs/:id/toggle", r.handleToggle)
	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// handleConnect upgrades a tab's UI connection and runs its read loop. On
// (re)connect the current active flag is emitted, the retained history is
// replayed, and an asynchronous auth probe reports authorized/unauthorized.
func (r *Router) handleConnect(c *gin.Context) {
	tabID := c.Query("tab")
	if tabID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing tab parameter"})
		return
	}

	ws, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed",
			zap.String("tab", tabID),
			zap.Error(err))
		return
	}
	conn := newWSConnection(ws)
	defer conn.Close(context.Background())

	r.store.Attach(tabID, conn)
	r.metrics.TabConnected()
	defer r.metrics.TabDisconnected()
	r.logger.Info("tab connected", zap.String("tab", tabID))

	ctx := c.Request.Context()

	if err := conn.Send(ctx, protocol.SetActive(r.store.Active(tabID))); err != nil {
		r.logger.Error("failed to send active flag", zap.String("tab", tabID), zap.Error(err))
		return
	}
	if err := r.store.Replay(ctx, tabID, conn); err != nil {
		r.logger.Error("history replay failed", zap.String("tab", tabID), zap.Error(err))
		return
	}

	go r.probeAuth(ctx, tabID, conn)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			r.logger.Info("tab disconnected",
				zap.String("tab", tabID),
				zap.Error(err))
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Warn("undecodable inbound message",
				zap.String("tab", tabID),
				zap.ByteString("data", data))
			continue
		}
		r.handleInbound(ctx, tabID, conn, &msg)
	}
}

// probeAuth resolves the access token in the background and reports the
// outcome to the freshly connected tab.
func (r *Router) probeAuth(ctx context.Context, tabID string, conn tabstore.Connection) {
	status := protocol.StatusAuthorized
	if _, err := r.client.GetAccessToken(ctx); err != nil {
		status = protocol.StatusUnauthorized
	}
	if err := conn.Send(ctx, protocol.AuthStatus(status)); err != nil {
		r.logger.Debug("auth probe result not delivered",
			zap.String("tab", tabID),
			zap.Error(err))
	}
}

// handleInbound dispatches one UI command. Meta commands run inline;
// questions stream in their own goroutine so the read loop keeps draining
// the connection (a second question is rejected by the in-flight guard).
func (r *Router) handleInbound(ctx context.Context, tabID string, conn tabstore.Connection, msg *protocol.Message) {
	if msg.Type == protocol.TypeMeta {
		switch msg.Action {
		case protocol.ActionLogin:
			if err := conn.Send(ctx, protocol.Login(r.client.LoginURL())); err != nil {
				r.logger.Error("failed to send login url", zap.String("tab", tabID), zap.Error(err))
			}
		case protocol.ActionSetActive:
			if msg.Active != nil {
				r.store.SetActive(tabID, *msg.Active)
			}
		default:
			r.logger.Warn("unknown meta action",
				zap.String("tab", tabID),
				zap.String("action", msg.Action))
		}
	}

	if msg.Question != "" {
		// The answer stream outlives the connection that asked it:
		// detach from the request context so a UI reload mid-stream
		// does not abort the answer, and replay can deliver it whole.
		go r.handleQuestion(context.WithoutCancel(ctx), tabID, conn, msg.Question)
	}
}

// handleQuestion echoes the user's message, posts a thinking placeholder,
// then streams the backend's answer events into the history and down the
// tab's current connection. It runs to completion even if that connection
// goes away mid-stream; the finished answer reaches a reconnected UI via
// replay.
func (r *Router) handleQuestion(ctx context.Context, tabID string, conn tabstore.Connection, question string) {
	if !r.store.BeginQuestion(tabID) {
		r.metrics.QuestionDone("rejected")
		if err := conn.Send(ctx, protocol.ErrorMessage(cnst.ErrQuestionInFlight.Error())); err != nil {
			r.logger.Error("failed to reject question", zap.String("tab", tabID), zap.Error(err))
		}
		return
	}
	defer r.store.EndQuestion(tabID)

	r.post(ctx, tabID, protocol.UserEcho(uuid.New().String(), question))

	answerID := uuid.New().String()
	r.post(ctx, tabID, protocol.Thinking(answerID))

	err := r.client.GetAnswer(ctx, answerID, question, func(ev *protocol.Message) {
		r.metrics.StreamEvent()
		r.post(ctx, tabID, ev)
	})
	if err != nil {
		r.handleQuestionError(ctx, tabID, err)
		return
	}
	r.metrics.QuestionDone("ok")
}

// handleQuestionError is terminal for one inbound question: the shared token
// is force-invalidated, and an authorization failure is broadcast to every
// tracked tab, not only the one that asked.
func (r *Router) handleQuestionError(ctx context.Context, tabID string, err error) {
	r.logger.Error("question handling failed",
		zap.String("tab", tabID),
		zap.Error(err))

	r.client.InvalidateToken(ctx)

	if !errors.Is(err, cnst.ErrUnauthorized) {
		r.metrics.QuestionDone("error")
		return
	}

	r.metrics.QuestionDone("unauthorized")
	r.metrics.AuthFailure()
	for id, conn := range r.store.Connections() {
		if err := conn.Send(ctx, protocol.AuthStatus(protocol.StatusUnauthorized)); err != nil {
			r.logger.Debug("unauthorized broadcast not delivered",
				zap.String("tab", id),
				zap.Error(err))
		}
	}
}

// handleToggle maps the tab-level activation trigger to the tab's registered
// connection. A missing connection is a logged no-op.
func (r *Router) handleToggle(c *gin.Context) {
	tabID := c.Param("id")

	conn, err := r.store.Connection(tabID)
	if err != nil {
		r.logger.Warn("toggle for unknown tab",
			zap.String("tab", tabID),
			zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if err := conn.Send(c.Request.Context(), protocol.Toggle()); err != nil {
		r.logger.Error("failed to send toggle",
			zap.String("tab", tabID),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// post delivers msg to the tab's current connection and persists it into
// history. The connection is resolved per message, so a stream started on one
// connection keeps feeding whatever connection the tab has now. Delivery
// failures are logged but do not stop persistence: the history must stay
// authoritative so a reconnecting UI can catch up via replay.
func (r *Router) post(ctx context.Context, tabID string, msg *protocol.Message) {
	if conn, err := r.store.Connection(tabID); err == nil {
		if err := conn.Send(ctx, msg); err != nil {
			r.logger.Warn("message not delivered",
				zap.String("tab", tabID),
				zap.Error(err))
		}
	}
	r.store.Upsert(tabID, msg)
}
