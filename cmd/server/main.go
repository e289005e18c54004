package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatrelay/internal/otelutil"
	"chatrelay/internal/session"
	"chatrelay/internal/state"
	"chatrelay/internal/store"
	"chatrelay/internal/types"
	"chatrelay/pkg/protocol"
)

// Server wires the HTTP surface to the connection registry and the session
// validator.
type Server struct {
	router       *gin.Engine
	stateManager *state.Manager
	sessions     *session.TokenValidator
	users        *store.UserStore
	cfg          Config
}

func NewServer(cfg Config, users *store.UserStore, sessions *session.TokenValidator) *Server {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	s := &Server{
		router:       gin.Default(),
		stateManager: state.NewManager(),
		sessions:     sessions,
		users:        users,
		cfg:          cfg,
	}
	s.routes()
	return s
}

// Start launches the broadcast fan-out loop.
func (s *Server) Start() {
	go s.broadcastLoop()
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.cidMiddleware())
	r.Use(s.otelMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "chatrelay",
		})
	})

	r.GET("/api", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "chatrelay server",
			"version": "0.1.0",
		})
	})

	r.GET("/api/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.stateManager.GetStats())
	})

	r.POST("/signup", s.handleSignup)
	r.POST("/signin", s.handleSignin)
	r.GET("/logout", s.handleLogout)

	r.GET("/ws", s.handleWebSocket)

	if s.cfg.StaticDir != "" {
		r.Static("/static", s.cfg.StaticDir)
		r.StaticFile("/", filepath.Join(s.cfg.StaticDir, "index.html"))
	}
}

// handleWebSocket upgrades the request and runs the connection to
// completion. The session token travels in the login cookie, or in a query
// parameter for non-browser clients; it is resolved once here so a session
// that already carries a verified identity needs no extra round trip at
// join time.
func (s *Server) handleWebSocket(c *gin.Context) {
	token, err := c.Cookie(protocol.SessionCookieName)
	if err != nil {
		token = c.Query(protocol.TokenQueryParam)
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	connID := uuid.New().String()
	sess := &types.SessionContext{Token: token}
	if identity, ok, err := s.sessions.Resolve(c.Request.Context(), token); err != nil {
		log.Printf("session resolution failed for connection %s: %v", connID, err)
	} else if ok {
		sess.Identity = &identity
	}

	wsConn := &types.WebSocketConnection{
		Conn:         conn,
		ConnectionID: connID,
		Send:         make(chan []byte, s.cfg.SendBufferSize),
		Session:      sess,
	}
	s.stateManager.AddClient(wsConn)
	log.Printf("client connected: %s (connections=%d)", connID, s.stateManager.ClientCount())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cm := &ConnectionManager{
		wsConn:       wsConn,
		stateManager: s.stateManager,
		sessions:     s.sessions,
		connID:       connID,
	}

	go cm.writePump(ctx)
	go cm.heartbeatLoop(ctx, cancel)

	defer func() {
		// Unregister first so no new broadcast snapshot includes this
		// connection; deliveries already in flight fail silently.
		s.stateManager.RemoveClient(connID)
		log.Printf("client disconnected: %s (connections=%d)", connID, s.stateManager.ClientCount())
	}()

	cm.readPump(ctx)
}

// broadcastLoop drains the registry's message queue and fans each message
// out to a snapshot of every live connection, bound or not: connections that
// never completed the join handshake still receive messages, they just
// cannot send. Slow consumers are skipped, never waited on.
func (s *Server) broadcastLoop() {
	for msg := range s.stateManager.Messages() {
		data, err := json.Marshal(types.ChatEvent{
			Type:      string(types.EventMessage),
			Timestamp: time.Now(),
			Data:      msg,
		})
		if err != nil {
			log.Printf("failed to marshal broadcast: %v", err)
			continue
		}

		for _, entry := range s.stateManager.Snapshot() {
			select {
			case entry.Client.Send <- data:
			default:
				log.Printf("client %s send buffer full, skipping", entry.ConnectionID)
			}
		}
	}
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := otelutil.Init(); err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer otelutil.Flush()

	users, err := store.Open(cfg.BadgerFilepath)
	if err != nil {
		log.Fatalf("open user store: %v", err)
	}
	defer users.Close()

	sessions := session.NewTokenValidator([]byte(cfg.SessionSecret), users)

	s := NewServer(cfg, users, sessions)
	s.Start()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("server forced to shutdown: %v", err)
		}
	}()

	log.Printf("starting chatrelay server on %s (Ctrl+C to stop)", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("failed to start server:", err)
	}
}
