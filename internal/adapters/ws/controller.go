package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/syncdocs/presence/internal/app"
	"github.com/syncdocs/presence/internal/auth"
	"github.com/syncdocs/presence/internal/domain"
)

// ClaimsKey is where the auth middleware leaves the parsed session claims
// on the gin context.
const ClaimsKey = "session_claims"

const disconnectSweepTimeout = 10 * time.Second

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	RateLimit  int
	RateWindow time.Duration
}

type Controller struct {
	Coord    *app.Coordinator
	Relay    *app.Relay
	Registry *app.Registry
	Topics   *app.Topics
	Opts     Options
}

func NewController(coord *app.Coordinator, relay *app.Relay, reg *app.Registry, topics *app.Topics, opts Options) *Controller {
	return &Controller{Coord: coord, Relay: relay, Registry: reg, Topics: topics, Opts: opts}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and runs the connection until the client
// goes away. Identity comes from the claims middleware; the role claim is
// validated strictly, an unknown role is a client bug and gets rejected.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	claimsVal, ok := c.Get(ClaimsKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}
	claims := claimsVal.(auth.SessionClaims)

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role claim"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade")
		return
	}

	connID := uuid.NewString()
	uid := domain.UserID(claims.UserID)
	wsc := newWSConn(conn, ctl.Opts.SendBuffer)

	sess := &session{
		ctl:      ctl,
		connID:   connID,
		uid:      uid,
		username: claims.Username,
		role:     role,
		conn:     wsc,
		limiter:  newRateLimiter(ctl.Opts.RateLimit, ctl.Opts.RateWindow),
	}

	ctl.Registry.Track(connID, uid, wsc)
	if err := ctl.Topics.Rehydrate(ctx, connID, uid); err != nil {
		// The connection still works point-to-point; fan-out membership
		// catches up on the next explicit join.
		log.Error().Err(err).Str("module", "ws").Str("conn", connID).Msg("rehydrate")
	}
	log.Info().Str("module", "ws").Str("conn", connID).Int64("user", claims.UserID).Msg("connection open")

	connCtx, cancel := context.WithCancel(ctx)
	// Server shutdown cancels ctx; closing the socket unblocks readPump,
	// which otherwise sits in ReadMessage and never sees the context.
	go func() {
		<-connCtx.Done()
		wsc.Close()
	}()
	go sess.writePump(connCtx)
	go func() {
		defer cancel()
		sess.readPump(connCtx)
		ctl.teardown(connID)
	}()
}

// teardown runs the disconnect path: registry and topics first so no new
// fan-out targets this connection, then the room sweep with its own
// timeout so a slow store cannot pin the pump goroutine.
func (ctl *Controller) teardown(connID string) {
	ctl.Registry.Untrack(connID)
	ctl.Topics.DropConnection(connID)

	sweepCtx, cancel := context.WithTimeout(context.Background(), disconnectSweepTimeout)
	defer cancel()
	ctl.Coord.OnDisconnect(sweepCtx, connID)
	log.Info().Str("module", "ws").Str("conn", connID).Msg("connection closed")
}
