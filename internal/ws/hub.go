package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/onepointltd/kbserver/internal/bus"
	"github.com/onepointltd/kbserver/internal/engine"
	"github.com/onepointltd/kbserver/internal/linkedin"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/repos"
	"github.com/onepointltd/kbserver/internal/search"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/tenant"
	"github.com/onepointltd/kbserver/internal/types"
)

// Client-sent event names.
const (
	EventRelevantDocuments = "relevant_documents"
	EventChatStream        = "chat_stream"
	EventExtractProfile    = "extract_profile_stream"
)

// Server-sent frame types.
const (
	FrameProgress     = "progress"
	FrameResponse     = "response"
	FrameStreamStart  = "stream_start"
	FrameStreamToken  = "stream_token"
	FrameStreamEnd    = "stream_end"
	FrameError        = "error"
	FrameProfileEnd   = "extract_profile_stream_end"
	FrameProfileError = "extract_profile_stream_error"
)

// Payload is the uniform body of every server-sent frame.
type Payload struct {
	Data      any    `json:"data"`
	RequestID string `json:"request_id,omitempty"`
}

type frame struct {
	Type string `json:"type"`
	Payload
}

// event is one client-sent message.
type event struct {
	Event    string          `json:"event"`
	Token    string          `json:"token"`
	Project  string          `json:"project"`
	Engine   string          `json:"engine,omitempty"`
	MaxDepth int             `json:"max_depth,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// socketConn serializes frame writes; gorilla permits a single writer.
type socketConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *socketConn) WriteFrame(frameType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, _ := payload.(Payload)
	return c.ws.WriteJSON(frame{Type: frameType, Payload: p})
}

// Hub owns the WebSocket endpoint: upgrade, per-event auth, dispatch, and
// optional cross-instance progress forwarding over redis.
type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader
	auth     services.AuthService
	tenants  *tenant.Service
	repos    *repos.Repos
	pipeline *search.Pipeline
	facade   *engine.Facade
	profiles *linkedin.Service
	bus      bus.ProgressBus

	mu      sync.Mutex
	writers map[string]FrameWriter // request id -> connection
}

func NewHub(allowedOrigins string, auth services.AuthService, tenants *tenant.Service, rp *repos.Repos, pipeline *search.Pipeline, facade *engine.Facade, profiles *linkedin.Service, progressBus bus.ProgressBus, baseLog *logger.Logger) *Hub {
	h := &Hub{
		log:      baseLog.With("service", "WSHub"),
		auth:     auth,
		tenants:  tenants,
		repos:    rp,
		pipeline: pipeline,
		facade:   facade,
		profiles: profiles,
		bus:      progressBus,
		writers:  make(map[string]FrameWriter),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed string) func(r *http.Request) bool {
	allowed = strings.TrimSpace(allowed)
	if allowed == "" || allowed == "*" {
		return func(*http.Request) bool { return true }
	}
	origins := make(map[string]bool)
	for _, o := range strings.Split(allowed, ",") {
		origins[strings.TrimSpace(o)] = true
	}
	return func(r *http.Request) bool {
		return origins[r.Header.Get("Origin")]
	}
}

// StartForwarder wires the redis bus into locally connected sockets so a
// frame published by another instance still reaches its client.
func (h *Hub) StartForwarder(ctx context.Context) error {
	if h.bus == nil {
		return nil
	}
	return h.bus.StartForwarder(ctx, func(m bus.Message) {
		h.mu.Lock()
		writer := h.writers[m.RequestID]
		h.mu.Unlock()
		if writer != nil {
			_ = writer.WriteFrame(FrameProgress, Payload{Data: m.Data, RequestID: m.RequestID})
		}
	})
}

func (h *Hub) register(requestID string, w FrameWriter) {
	h.mu.Lock()
	h.writers[requestID] = w
	h.mu.Unlock()
}

func (h *Hub) unregister(requestID string) {
	h.mu.Lock()
	delete(h.writers, requestID)
	h.mu.Unlock()
}

// Serve upgrades the request and runs the read loop. Handler errors are sent
// back as error frames; only a transport failure ends the session.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	sock := &socketConn{ws: conn}

	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("WebSocket read failed", "error", err)
			}
			return
		}
		go h.dispatch(c.Request.Context(), sock, ev)
	}
}

func (h *Hub) dispatch(ctx context.Context, sock *socketConn, ev event) {
	requestID := uuid.NewString()
	h.register(requestID, sock)
	defer h.unregister(requestID)

	var err error
	switch ev.Event {
	case EventRelevantDocuments:
		err = h.relevantDocuments(ctx, sock, ev, requestID)
	case EventChatStream:
		err = h.chatStream(ctx, sock, ev, requestID)
	case EventExtractProfile:
		if err = h.extractProfile(ctx, sock, ev, requestID); err != nil {
			_ = sock.WriteFrame(FrameProfileError, Payload{Data: err.Error(), RequestID: requestID})
			h.log.Error("Profile stream failed", "request_id", requestID, "error", err)
			return
		}
		return
	default:
		err = fmt.Errorf("unknown event %q", ev.Event)
	}
	if err != nil {
		h.log.Error("WebSocket event failed", "event", ev.Event, "request_id", requestID, "error", err)
		_ = sock.WriteFrame(FrameError, Payload{Data: err.Error(), RequestID: requestID})
	}
}

// resolve authenticates the event token and locates the tenant and project.
func (h *Hub) resolve(ctx context.Context, ev event, eng types.Engine) (schema, projectDir string, projectID int64, err error) {
	claims, err := h.auth.DecodeToken(ev.Token)
	if err != nil {
		return "", "", 0, err
	}
	tenantDir, err := h.tenants.ExtractTenantFolder(claims.Subject)
	if err != nil {
		return "", "", 0, err
	}
	schema = claims.Subject
	project := ev.Project
	if project == "" {
		return "", "", 0, fmt.Errorf("missing project")
	}
	projectDir, err = h.tenants.FindProjectFolder(tenantDir, eng, project)
	if err != nil {
		return "", "", 0, err
	}
	row, err := h.repos.Projects.FindByName(ctx, schema, eng, project)
	if err != nil {
		return "", "", 0, err
	}
	if row != nil {
		projectID = row.ID
	}
	return schema, projectDir, projectID, nil
}

func (h *Hub) relevantDocuments(ctx context.Context, sock *socketConn, ev event, requestID string) error {
	eng := types.EngineLight
	if ev.Engine != "" {
		parsed, err := types.ParseEngine(ev.Engine)
		if err != nil {
			return err
		}
		eng = parsed
	}
	var query types.DocumentSearchQuery
	if err := json.Unmarshal(ev.Data, &query); err != nil {
		return fmt.Errorf("bad query payload: %w", err)
	}
	if ev.MaxDepth > 0 {
		query.MaxDepth = ev.MaxDepth
	}
	schema, projectDir, projectID, err := h.resolve(ctx, ev, eng)
	if err != nil {
		return err
	}
	if projectID == 0 {
		return fmt.Errorf("project %q not indexed", ev.Project)
	}

	results, err := h.pipeline.RelevantDocuments(ctx, search.Input{
		Schema:     schema,
		ProjectID:  projectID,
		ProjectDir: projectDir,
		Engine:     eng,
		Query:      &query,
		Sink:       h.sink(sock, requestID),
		SinkFactory: func(searchID int64) types.ProgressSink {
			return NewPersistentSink(h.sink(sock, requestID), schema, searchID,
				h.repos.Keywords, h.repos.Relationships, h.log)
		},
	})
	if err != nil {
		return err
	}
	return sock.WriteFrame(FrameResponse, Payload{Data: results, RequestID: requestID})
}

func (h *Hub) chatStream(ctx context.Context, sock *socketConn, ev event, requestID string) error {
	var params types.SearchParams
	if err := json.Unmarshal(ev.Data, &params); err != nil {
		return fmt.Errorf("bad chat payload: %w", err)
	}
	params.Engine = types.EngineCache
	params.Stream = true

	_, projectDir, _, err := h.resolve(ctx, ev, types.EngineCache)
	if err != nil {
		return err
	}
	params.Context.ProjectDir = projectDir
	if params.ConversationID == "" {
		params.ConversationID = requestID
	}

	if err := sock.WriteFrame(FrameStreamStart, Payload{RequestID: requestID}); err != nil {
		return err
	}
	resp, err := h.facade.SearchStream(ctx, params, func(fragment string) {
		_ = sock.WriteFrame(FrameStreamToken, Payload{Data: fragment, RequestID: requestID})
	})
	if err != nil {
		return err
	}
	return sock.WriteFrame(FrameStreamEnd, Payload{Data: resp.Text, RequestID: requestID})
}

type profileQuery struct {
	LinkedInURL string `json:"linkedin_url"`
}

func (h *Hub) extractProfile(ctx context.Context, sock *socketConn, ev event, requestID string) error {
	var query profileQuery
	if err := json.Unmarshal(ev.Data, &query); err != nil {
		return fmt.Errorf("bad profile payload: %w", err)
	}
	if query.LinkedInURL == "" {
		return fmt.Errorf("missing linkedin_url")
	}
	eng := types.EngineLight
	if ev.Engine != "" {
		parsed, err := types.ParseEngine(ev.Engine)
		if err != nil {
			return err
		}
		eng = parsed
	}
	schema, _, projectID, err := h.resolve(ctx, ev, eng)
	if err != nil {
		return err
	}
	if projectID == 0 {
		return fmt.Errorf("project %q not indexed", ev.Project)
	}

	profile, err := h.profiles.ExtractProfile(ctx, schema, projectID, query.LinkedInURL, h.sink(sock, requestID))
	if err != nil {
		return err
	}
	return sock.WriteFrame(FrameProfileEnd, Payload{Data: profile, RequestID: requestID})
}

// sink builds the progress sink for one request: socket frames locally, plus
// redis publication when a bus is configured.
func (h *Hub) sink(sock *socketConn, requestID string) types.ProgressSink {
	local := NewSocketSink(sock, requestID, h.log)
	if h.bus == nil {
		return local
	}
	return &busSink{next: local, bus: h.bus, requestID: requestID}
}

type busSink struct {
	next      types.ProgressSink
	bus       bus.ProgressBus
	requestID string
}

func (s *busSink) Notify(message string) {
	s.next.Notify(message)
	_ = s.bus.Publish(context.Background(), bus.Message{RequestID: s.requestID, Data: message})
}
