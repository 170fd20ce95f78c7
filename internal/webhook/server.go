// Package webhook exposes the inbound messaging endpoint. Twilio posts form
// fields (From, Body); the reply travels back as TwiML. The handler itself is
// transport-agnostic: all side effects go through the command interpreter.
package webhook

import (
	"context"
	"encoding/xml"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"avisobot/pkg/logx"
)

// Handler is the single inbound entry point, implemented by command.Handler.
type Handler interface {
	HandleInbound(ctx context.Context, contact, body string) string
}

type Config struct {
	Addr string
}

type Server struct {
	e   *echo.Echo
	cfg Config
	h   Handler
	log logx.Logger
}

// twiml is the minimal messaging response Twilio expects.
type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func New(cfg Config, h Handler, log logx.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{e: e, cfg: cfg, h: h, log: log}
	e.GET("/", s.health)
	e.POST("/whatsapp", s.inbound)
	return s
}

func (s *Server) health(c echo.Context) error {
	return c.String(http.StatusOK, "avisobot OK")
}

func (s *Server) inbound(c echo.Context) error {
	from := c.FormValue("From")
	body := c.FormValue("Body")
	if from == "" {
		return c.String(http.StatusBadRequest, "missing From")
	}

	started := time.Now()
	reply := s.h.HandleInbound(c.Request().Context(), from, body)
	s.log.Debug("inbound handled",
		logx.String("from", from), logx.Duration("took", time.Since(started)))

	return c.XML(http.StatusOK, twiml{Message: reply})
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	err := s.e.Start(s.cfg.Addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
