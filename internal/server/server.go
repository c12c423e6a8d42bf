package server

import (
	"log"
	"net"
	"strings"

	"courier/internal/accounts"
	"courier/internal/models"
)

// Server dispatches one wire command per accepted connection through the
// account manager.
type Server struct {
	manager *accounts.Manager
}

// NewServer builds a server around the given account manager.
func NewServer(manager *accounts.Manager) *Server {
	return &Server{manager: manager}
}

// HandleConnection runs one session: read a single command line, dispatch
// it, write exactly one response, close. Callers run it in its own
// goroutine, one per accepted connection.
func (s *Server) HandleConnection(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	state := &models.SessionState{Conn: conn}
	s.handleSession(conn, state)
}

// Manager exposes the account manager (used by tests driving the session
// handler directly).
func (s *Server) Manager() *accounts.Manager {
	return s.manager
}

func (s *Server) sendResponse(conn net.Conn, response string) {
	log.Printf("Server: %s", sanitizeResponseForLogging(response))
	if !strings.HasSuffix(response, "\n") {
		response += "\n"
	}
	if _, err := conn.Write([]byte(response)); err != nil {
		log.Printf("Unable to write response, connection may be closed: %v", err)
	}
}

// sanitizeResponseForLogging keeps rendered inboxes and long bodies out of
// the log.
func sanitizeResponseForLogging(response string) string {
	if idx := strings.IndexByte(response, '\n'); idx != -1 {
		return response[:idx] + " [MULTILINE RESPONSE TRUNCATED]"
	}
	if len(response) > 200 {
		return response[:200] + "... [TRUNCATED]"
	}
	return response
}
