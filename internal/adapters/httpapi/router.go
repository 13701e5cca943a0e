// Package httpapi wires the gin engine: middleware chain, health check
// and the websocket entrypoint.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/syncdocs/presence/internal/adapters/ws"
	"github.com/syncdocs/presence/internal/auth"
	"github.com/syncdocs/presence/internal/config"
	"github.com/syncdocs/presence/internal/core"
	"github.com/syncdocs/presence/internal/domain"
)

// Pinger is what the health check needs from the store backing.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientTokenMiddleware keeps a stable per-browser token in the cookie
// session so reconnects of the same client correlate in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get("client_token").(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set("client_token", token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "httpapi").Msg("save client token")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// AuthMiddleware parses the externally-issued session token. The browser
// websocket API cannot set headers, so a token query parameter is
// accepted alongside the Authorization header.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		claims, err := verifier.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ws.ClaimsKey, claims)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, verifier *auth.Verifier, ctl *ws.Controller, store core.RoomStore, dir core.Directory) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	cookieStore := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("PresenceSession", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", healthHandler(store))

	api := r.Group("/api")
	api.Use(AuthMiddleware(verifier))

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "httpapi").Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		ctl.HandleWS(ctx, c)
	})

	api.GET("/rooms/:documentId", roomHandler(store, dir))

	log.Info().Str("module", "httpapi").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

func healthHandler(store core.RoomStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, ok := store.(Pinger); ok {
			if err := p.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// roomHandler serves the current room snapshot, used by clients to render
// the roster before joining. Gated on document membership, same as join.
func roomHandler(store core.RoomStore, dir core.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, err := strconv.ParseInt(c.Param("documentId"), 10, 64)
		if err != nil || documentID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad document id"})
			return
		}
		claimsVal, ok := c.Get(ws.ClaimsKey)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}
		claims := claimsVal.(auth.SessionClaims)
		member, err := dir.IsParticipant(c.Request.Context(), documentID, domain.UserID(claims.UserID))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory unreachable"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a document participant"})
			return
		}
		room, err := store.Get(c.Request.Context(), domain.RoomIDForDocument(documentID))
		if errors.Is(err, core.ErrRoomNotFound) {
			c.JSON(http.StatusOK, domain.NewRoomStateEvent(domain.NewRoom(documentID)))
			return
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unreachable"})
			return
		}
		c.JSON(http.StatusOK, domain.NewRoomStateEvent(room))
	}
}
