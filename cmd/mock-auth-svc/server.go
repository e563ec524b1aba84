package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/amoylab/tether/internal/auth/jwt"
	"github.com/amoylab/tether/internal/common/config"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const claimsKey = "claims"

type server struct {
	logger *zap.Logger
	cfg    *config.MockServerConfig
	tokens *jwt.Service
	users  map[string][]byte // username to bcrypt hash

	mu      sync.Mutex
	revoked map[string]time.Time // refresh token id to its expiry
}

func newServer(logger *zap.Logger, cfg *config.MockServerConfig, tokens *jwt.Service) *server {
	s := &server{
		logger:  logger.Named("mock"),
		cfg:     cfg,
		tokens:  tokens,
		users:   make(map[string][]byte, len(cfg.Users)),
		revoked: make(map[string]time.Time),
	}
	for name, password := range cfg.Users {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Warn("skipping user with unusable password", zap.String("username", name), zap.Error(err))
			continue
		}
		s.users[name] = hashed
	}
	return s
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("mock-auth-svc"))

	auth := r.Group("/auth")
	auth.POST("/login", s.handleLogin)
	auth.POST("/refresh", s.handleRefresh)
	auth.POST("/logout", s.handleLogout)

	api := r.Group("/api", s.requireAccessToken)
	api.GET("/profile", s.handleProfile)
	api.POST("/echo", s.handleEcho)

	return r
}

// handler serves /ws directly and everything else through gin. The
// WebSocket upgrade hijacks the connection, which gin's response writer
// refuses once the 101 status has been recorded.
func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/", s.router())
	return mux
}

func fail(c *gin.Context, status, code int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "msg": msg})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": data})
}

func (s *server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, http.StatusBadRequest, err.Error())
		return
	}
	hashed, exists := s.users[req.Username]
	if !exists || bcrypt.CompareHashAndPassword(hashed, []byte(req.Password)) != nil {
		fail(c, http.StatusOK, http.StatusForbidden, "invalid credentials")
		return
	}

	pair, err := s.tokens.GeneratePair(req.Username)
	if err != nil {
		fail(c, http.StatusInternalServerError, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("login", zap.String("username", req.Username))
	ok(c, pair)
}

func (s *server) handleRefresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, http.StatusBadRequest, err.Error())
		return
	}

	claims, err := s.tokens.ValidateToken(req.RefreshToken, jwt.KindRefresh)
	if err != nil || !s.revoke(claims) {
		fail(c, http.StatusUnauthorized, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	pair, err := s.tokens.GeneratePair(claims.Username)
	if err != nil {
		fail(c, http.StatusInternalServerError, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("refresh", zap.String("username", claims.Username))
	ok(c, pair)
}

func (s *server) handleLogout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	if claims, err := s.tokens.ValidateToken(req.RefreshToken, jwt.KindRefresh); err == nil {
		s.revoke(claims)
	}
	ok(c, nil)
}

// revoke marks a refresh token as used and reports whether it was still valid
func (s *server) revoke(claims *jwt.Claims) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	if _, used := s.revoked[claims.ID]; used {
		return false
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time
	return true
}

var errMissingToken = errors.New("missing token")

// authenticate validates the bearer access token of r
func (s *server) authenticate(r *http.Request) (*jwt.Claims, error) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return nil, errMissingToken
	}
	return s.tokens.ValidateToken(token, jwt.KindAccess)
}

func (s *server) requireAccessToken(c *gin.Context) {
	claims, err := s.authenticate(c.Request)
	if err != nil {
		fail(c, http.StatusUnauthorized, http.StatusUnauthorized, err.Error())
		return
	}
	c.Set(claimsKey, claims)
	c.Next()
}

func (s *server) handleProfile(c *gin.Context) {
	claims := c.MustGet(claimsKey).(*jwt.Claims)

	if s.cfg.RenewalWindow > 0 && time.Until(claims.ExpiresAt.Time) < s.cfg.RenewalWindow {
		renewed, err := s.tokens.GenerateToken(claims.Username, jwt.KindAccess)
		if err == nil {
			c.Header(s.cfg.RenewalHeader, renewed)
		}
	}
	ok(c, gin.H{"username": claims.Username, "expires_at": claims.ExpiresAt.Time})
}

func (s *server) handleEcho(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(body) {
		fail(c, http.StatusBadRequest, http.StatusBadRequest, "body must be JSON")
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(`{"code":200,"data":`+string(body)+`}`))
}

// handleWebSocket greets the client, answers ping with pong and echoes
// everything else
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(gin.H{"code": http.StatusUnauthorized, "msg": err.Error()})
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ctx := r.Context()
	welcome, _ := json.Marshal(gin.H{"event": "welcome", "payload": gin.H{"username": claims.Username}})
	if err := conn.Write(ctx, websocket.MessageText, welcome); err != nil {
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				s.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		if gjson.GetBytes(data, "event").String() == "ping" {
			if err := conn.Write(ctx, websocket.MessageText, []byte(`{"event":"pong"}`)); err != nil {
				return
			}
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}
