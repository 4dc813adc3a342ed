// Package server exposes the voice-message flow to a browser chat view:
// one websocket per view drives its own recording controller, while plain
// HTTP routes serve recorded audio and the thread's messages.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/blob"
	"github.com/rubiojr/lunarvox/internal/capture"
	"github.com/rubiojr/lunarvox/internal/chat"
	"github.com/rubiojr/lunarvox/internal/recording"
	"github.com/rubiojr/lunarvox/internal/version"
)

// Options wires the server's collaborators.
type Options struct {
	Mic    capture.Microphone
	Blobs  *blob.Store
	Thread *chat.Thread
	// Controller options applied to every view's controller.
	Controller []recording.Option
	Logger     *zap.Logger
}

// Server is the chat view HTTP server.
type Server struct {
	echo   *echo.Echo
	opts   Options
	logger *zap.Logger
}

// New builds the echo app and its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, opts: opts, logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "lunarvox",
			"version": version.Version,
		})
	})

	s.echo.GET("/blobs/:ref", s.getBlob)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/messages", s.listMessages)
	v1.GET("/messages/:id/audio", s.getMessageAudio)

	s.echo.GET("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) getBlob(c echo.Context) error {
	ref := blob.Ref(c.Param("ref"))
	if !ref.Valid() {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_ref", Message: "Malformed blob reference"})
	}
	b, err := s.opts.Blobs.Get(ref)
	if errors.Is(err, blob.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: "Recording is no longer available"})
	}
	if err != nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, b.MIMEType, b.Data)
}

func (s *Server) listMessages(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_limit", Message: "limit must be a non-negative integer"})
		}
		limit = n
	}
	msgs, err := s.opts.Thread.Messages(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("list messages", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "Could not load messages"})
	}
	if msgs == nil {
		msgs = []*chat.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) getMessageAudio(c echo.Context) error {
	m, err := s.opts.Thread.Message(c.Request().Context(), c.Param("id"))
	if errors.Is(err, chat.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: "Message not found"})
	}
	if err != nil {
		s.logger.Error("get message", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "Could not load message"})
	}
	return c.Blob(http.StatusOK, m.MIMEType, m.Audio)
}
