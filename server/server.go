// Package server exposes the chat engine over HTTP. Each RPC is a
// POST route named after the operation, with JSON bodies. RPC-level
// failures are reported in the response's "error" field with HTTP 200;
// the HTTP status only reflects transport problems.
package server

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"chatman"
)

// errMalformedRequest is returned when a request body fails to parse.
// Not part of the engine's error taxonomy: a body that doesn't parse
// never reaches the engine.
const errMalformedRequest = "invalid request body"

// Server wraps a fiber app around a chat engine.
type Server struct {
	app    *fiber.App
	engine chatman.Service
	logger *slog.Logger
}

// New builds the HTTP server for engine. Call Listen to serve.
func New(engine chatman.Service, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	app := fiber.New(fiber.Config{
		AppName:               "chatmand",
		DisableStartupMessage: true,
		BodyLimit:             o.bodyLimit,
	})
	app.Use(recover.New())
	if o.requestLog {
		app.Use(fiberlogger.New())
	}

	s := &Server{
		app:    app,
		engine: engine,
		logger: o.logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	rpc := s.app.Group("/rpc")
	rpc.Post("/CreateAccount", s.handleCreateAccount)
	rpc.Post("/LogInAccount", s.handleLogInAccount)
	rpc.Post("/LogOutAccount", s.handleLogOutAccount)
	rpc.Post("/DeleteAccount", s.handleDeleteAccount)
	rpc.Post("/ListAccounts", s.handleListAccounts)
	rpc.Post("/SendMessage", s.handleSendMessage)
	rpc.Post("/DeliverUndeliveredMessages", s.handleDeliverUndeliveredMessages)
	rpc.Post("/AcknowledgeMessages", s.handleAcknowledgeMessages)

	s.app.Get("/healthz", s.handleHealth)
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server, letting active requests finish.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleCreateAccount(c *fiber.Ctx) error {
	var req CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(ErrorResponse{Error: errMalformedRequest})
	}
	_, err := s.engine.CreateAccount(c.Context(), req.Username)
	return c.JSON(ErrorResponse{Error: chatman.WireString(err)})
}

func (s *Server) handleLogInAccount(c *fiber.Ctx) error {
	var req LogInAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(ErrorResponse{Error: errMalformedRequest})
	}
	err := s.engine.LogIn(c.Context(), req.Username)
	return c.JSON(ErrorResponse{Error: chatman.WireString(err)})
}

func (s *Server) handleLogOutAccount(c *fiber.Ctx) error {
	var req LogOutAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(ErrorResponse{Error: errMalformedRequest})
	}
	err := s.engine.LogOut(c.Context(), req.Username)
	return c.JSON(ErrorResponse{Error: chatman.WireString(err)})
}

func (s *Server) handleDeleteAccount(c *fiber.Ctx) error {
	var req DeleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(ErrorResponse{Error: errMalformedRequest})
	}
	err := s.engine.DeleteAccount(c.Context(), req.Username)
	return c.JSON(ErrorResponse{Error: chatman.WireString(err)})
}

func (s *Server) handleListAccounts(c *fiber.Ctx) error {
	var req ListAccountsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(ListAccountsResponse{Error: errMalformedRequest})
	}
	accounts, err := s.engine.ListAccounts(c.Context(), req.TextWildcard)
	if err != nil {
		return c.JSON(ListAccountsResponse{Error: chatman.WireString(err)})
	}
	return c.JSON(ListAccountsResponse{Accounts: toWireAccounts(accounts)})
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(ErrorResponse{Error: errMalformedRequest})
	}
	_, err := s.engine.Send(c.Context(), chatman.SendRequest{
		SenderUsername:    req.SenderUsername,
		RecipientUsername: req.RecipientUsername,
		Body:              req.Message,
	})
	return c.JSON(ErrorResponse{Error: chatman.WireString(err)})
}

func (s *Server) handleDeliverUndeliveredMessages(c *fiber.Ctx) error {
	var req DeliverUndeliveredMessagesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(DeliverUndeliveredMessagesResponse{Error: errMalformedRequest})
	}
	msgs, err := s.engine.Deliver(c.Context(), chatman.DeliverRequest{
		Username: req.Username,
		LoggedIn: req.LoggedIn,
	})
	if err != nil {
		return c.JSON(DeliverUndeliveredMessagesResponse{Error: chatman.WireString(err)})
	}
	return c.JSON(DeliverUndeliveredMessagesResponse{Messages: toWireMessages(msgs)})
}

func (s *Server) handleAcknowledgeMessages(c *fiber.Ctx) error {
	var req AcknowledgeMessagesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(ErrorResponse{Error: errMalformedRequest})
	}
	_, err := s.engine.Acknowledge(c.Context(), refsFromWire(req.Messages))
	return c.JSON(ErrorResponse{Error: chatman.WireString(err)})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if !s.engine.IsConnected() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
		})
	}
	stats, err := s.engine.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
		})
	}
	return c.JSON(fiber.Map{
		"status":             "ok",
		"accounts":           stats.Accounts,
		"logged_in":          stats.LoggedIn,
		"pending_messages":   stats.PendingMessages,
		"delivered_messages": stats.DeliveredMessages,
	})
}
