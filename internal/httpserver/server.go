package httpserver

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/chadiek/telecare/internal/callctl"
	"github.com/chadiek/telecare/internal/config"
	"github.com/chadiek/telecare/internal/media"
	"github.com/chadiek/telecare/internal/middleware"
)

// Dialer places outbound calls for the make-call endpoint.
type Dialer interface {
	Place(ctx context.Context, number string) (string, error)
}

// Deps are the wired collaborators the HTTP layer exposes.
type Deps struct {
	Dialer Dialer
	// NewLoop builds a fresh media loop (with its own recognizer) for each
	// media-stream connection.
	NewLoop func() *media.Loop
}

// Server bundles the router and its dependencies.
type Server struct {
	Echo *echo.Echo
}

var upgrader = websocket.Upgrader{
	// Twilio does not send an Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type makeCallRequest struct {
	TargetPhone string `json:"target_phone"`
}

// New constructs the HTTP server with routes.
func New(cfg config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(middleware.TwilioAuth(func() string { return cfg.TwilioAuthToken }, "/incoming-call"))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.POST("/make-call", func(c echo.Context) error {
		var req makeCallRequest
		if err := c.Bind(&req); err != nil || req.TargetPhone == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "target_phone is required"})
		}
		callSID, err := deps.Dialer.Place(c.Request().Context(), req.TargetPhone)
		if err != nil {
			log.Printf("failed to place call: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to place call"})
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "call placed", "call_sid": callSID})
	})

	incomingCall := func(c echo.Context) error {
		redirected := c.QueryParam("redirected") == "true"
		doc, err := callctl.IncomingTwiML(c.Request().Host, redirected)
		if err != nil {
			log.Printf("failed to build incoming-call TwiML: %v", err)
			return c.String(http.StatusInternalServerError, "failed to build TwiML")
		}
		c.Response().Header().Set(echo.HeaderContentType, "application/xml")
		return c.String(http.StatusOK, doc)
	}
	e.GET("/incoming-call", incomingCall)
	e.POST("/incoming-call", incomingCall)

	e.GET("/media-stream", func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return err
		}
		loop := deps.NewLoop()
		if err := loop.Run(c.Request().Context(), conn); err != nil {
			log.Printf("media loop error: %v", err)
		}
		return nil
	})

	return &Server{Echo: e}
}
