package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/deepgram/wsh/docs" // generated swagger docs
	"github.com/deepgram/wsh/src/apierr"
	"github.com/deepgram/wsh/src/handler"
)

// Options configures the router.
type Options struct {
	// Token is the shared bearer secret. Empty disables auth.
	Token string
	// AllowedOrigins is the exact-match Origin allow-list for WebSocket
	// upgrades.
	AllowedOrigins []string
	// DisableRequestLogging skips the logrus middleware (tests).
	DisableRequestLogging bool
}

// SetupRouter configures all routes for the terminal server API.
func SetupRouter(state *handler.State, opts Options) (*gin.Engine, *TicketStore) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(noCacheMiddleware())
	if !opts.DisableRequestLogging {
		r.Use(logrusMiddleware())
	}

	tickets := NewTicketStore()

	// Swagger documentation route
	r.GET("/swagger", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Initialize handlers
	sessionsHandler := handler.NewSessionsHandler(state)
	screenHandler := handler.NewScreenHandler(state)
	inputHandler := handler.NewInputHandler(state)
	overlayHandler := handler.NewOverlayHandler(state)
	panelHandler := handler.NewPanelHandler(state)
	serversHandler := handler.NewServersHandler(state)
	wsHandler := handler.NewWSHandler(state)

	// Health is exempt from auth.
	r.GET("/health", serversHandler.HandleHealth)

	// Ticket exchange is Bearer-only: tickets cannot mint tickets.
	r.POST("/auth/ws-ticket", RequireAuth(opts.Token, nil), func(c *gin.Context) {
		ticket, err := tickets.Create()
		if err != nil {
			abortWith(c, apierr.ChannelFull())
			return
		}
		c.JSON(http.StatusOK, gin.H{"ticket": ticket})
	})

	protected := r.Group("/")
	protected.Use(CheckWSOrigin(opts.AllowedOrigins))
	protected.Use(RequireAuth(opts.Token, tickets))
	protected.Use(handler.ProxyMiddleware(state))

	// Server identity and federation
	protected.GET("/server/info", serversHandler.HandleServerInfo)
	protected.GET("/servers", serversHandler.HandleListServers)
	protected.POST("/servers", serversHandler.HandleAddServer)
	protected.GET("/servers/:hostname", serversHandler.HandleGetServer)
	protected.DELETE("/servers/:hostname", serversHandler.HandleDeleteServer)

	// Session lifecycle
	protected.GET("/sessions", sessionsHandler.HandleListSessions)
	protected.POST("/sessions", sessionsHandler.HandleCreateSession)
	protected.GET("/sessions/:name", sessionsHandler.HandleGetSession)
	protected.PATCH("/sessions/:name", sessionsHandler.HandlePatchSession)
	protected.DELETE("/sessions/:name", sessionsHandler.HandleDeleteSession)

	// Terminal state
	protected.GET("/sessions/:name/screen", screenHandler.HandleGetScreen)
	protected.GET("/sessions/:name/scrollback", screenHandler.HandleGetScrollback)
	protected.GET("/sessions/:name/quiesce", screenHandler.HandleQuiesce)

	// Input routing
	protected.POST("/sessions/:name/input", inputHandler.HandleSendInput)
	protected.GET("/sessions/:name/input/mode", inputHandler.HandleGetInputMode)
	protected.POST("/sessions/:name/input/capture", inputHandler.HandleCapture)
	protected.POST("/sessions/:name/input/release", inputHandler.HandleRelease)

	// Overlays and screen mode
	protected.GET("/sessions/:name/overlay", overlayHandler.HandleList)
	protected.POST("/sessions/:name/overlay", overlayHandler.HandleCreate)
	protected.GET("/sessions/:name/overlay/:id", overlayHandler.HandleGet)
	protected.PUT("/sessions/:name/overlay/:id", overlayHandler.HandleUpdate)
	protected.PATCH("/sessions/:name/overlay/:id", overlayHandler.HandleMove)
	protected.DELETE("/sessions/:name/overlay/:id", overlayHandler.HandleDelete)
	protected.GET("/sessions/:name/screen_mode", overlayHandler.HandleGetScreenMode)
	protected.POST("/sessions/:name/screen_mode/enter_alt", overlayHandler.HandleEnterAlt)
	protected.POST("/sessions/:name/screen_mode/exit_alt", overlayHandler.HandleExitAlt)

	// Panels
	protected.GET("/sessions/:name/panel", panelHandler.HandleList)
	protected.POST("/sessions/:name/panel", panelHandler.HandleCreate)
	protected.GET("/sessions/:name/panel/:id", panelHandler.HandleGet)
	protected.PUT("/sessions/:name/panel/:id", panelHandler.HandleUpdate)
	protected.PATCH("/sessions/:name/panel/:id", panelHandler.HandlePatch)
	protected.DELETE("/sessions/:name/panel/:id", panelHandler.HandleDelete)
	protected.GET("/sessions/:name/panel_layout", panelHandler.HandleLayout)

	// WebSockets
	protected.GET("/ws/json", wsHandler.HandleControl)
	protected.GET("/sessions/:name/ws/json", wsHandler.HandleJSON)
	protected.GET("/sessions/:name/ws/raw", wsHandler.HandleRaw)

	return r, tickets
}
