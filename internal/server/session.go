package server

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"courier/internal/message"
	"courier/internal/models"
	"courier/internal/protocol"
)

// readTimeout bounds how long a connection may sit idle before sending its
// command.
const readTimeout = 2 * time.Minute

// forwardMarker is prepended to a message body when it is forwarded.
const forwardMarker = "FW: "

// handleSession reads one command line from the connection and dispatches
// it. Exactly one response is written per accepted connection.
func (s *Server) handleSession(conn net.Conn, state *models.SessionState) {
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		log.Printf("There was a problem reading from the connection: %v", err)
		return
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	log.Printf("Client: %s", line)

	cmd, err := protocol.Decode(line)
	if err != nil {
		log.Printf("Command not recognized: %q", line)
		s.sendResponse(conn, protocol.CmdNotRecognized)
		return
	}

	switch cmd := cmd.(type) {
	case protocol.Auth:
		cap, err := s.manager.Authenticate(cmd.Name, cmd.Secret)
		if err != nil {
			log.Printf("Authentication lookup failed: %v", err)
			s.sendResponse(conn, protocol.RespError)
			return
		}
		if cap == nil {
			s.sendResponse(conn, protocol.AuthInvalid)
			return
		}
		s.sendResponse(conn, protocol.AuthValid)

	case protocol.Disconnect:
		log.Printf("Client has ended further connections with the server")
		s.sendResponse(conn, protocol.DisconnectAck)

	case protocol.Hello:
		s.sendResponse(conn, protocol.HelloAck)

	case protocol.Read:
		if !s.authenticateSession(conn, state, cmd.Creds) {
			return
		}
		s.handleRead(conn, state)

	case protocol.Send:
		if !s.authenticateSession(conn, state, cmd.Creds) {
			return
		}
		s.handleSend(conn, cmd)

	case protocol.Forward:
		if !s.authenticateSession(conn, state, cmd.Creds) {
			return
		}
		s.handleForward(conn, state, cmd)

	case protocol.Delete:
		if !s.authenticateSession(conn, state, cmd.Creds) {
			return
		}
		s.handleDelete(conn, state, cmd)
	}
}

// authenticateSession verifies the credentials embedded in a composite
// command and stores the resulting capability on the session state. On
// failure it writes the response itself and reports false.
func (s *Server) authenticateSession(conn net.Conn, state *models.SessionState, creds protocol.Creds) bool {
	cap, err := s.manager.Authenticate(creds.Name, creds.Secret)
	if err != nil {
		log.Printf("Authentication lookup failed: %v", err)
		s.sendResponse(conn, protocol.RespError)
		return false
	}
	if cap == nil {
		s.sendResponse(conn, protocol.AuthInvalid)
		return false
	}
	state.Account = creds.Name
	state.Capability = cap
	return true
}

func (s *Server) handleRead(conn net.Conn, state *models.SessionState) {
	store, err := s.manager.GetMessages(state.Capability, state.Account)
	if err != nil {
		log.Printf("Unable to send messages for account %s: %v", state.Account, err)
		s.sendResponse(conn, protocol.RespError)
		return
	}
	log.Printf("Sending messages for account %s", state.Account)
	s.sendResponse(conn, store.Render())
}

func (s *Server) handleSend(conn net.Conn, cmd protocol.Send) {
	msg := message.New(cmd.Sender, cmd.Recipient, cmd.Body)
	delivered, err := s.manager.StoreMessage(cmd.Recipient, msg)
	if err != nil {
		log.Printf("Failed to store message for %s: %v", cmd.Recipient, err)
		s.sendResponse(conn, protocol.RespError)
		return
	}
	if !delivered {
		s.sendResponse(conn, protocol.Undeliverable)
		return
	}
	log.Printf("Storing message in account %s", cmd.Recipient)
	s.sendResponse(conn, protocol.Delivered)
}

func (s *Server) handleForward(conn net.Conn, state *models.SessionState, cmd protocol.Forward) {
	index, err := strconv.Atoi(cmd.Index)
	if err != nil {
		s.sendResponse(conn, protocol.NotValidValue)
		return
	}

	store, err := s.manager.GetMessages(state.Capability, state.Account)
	if err != nil {
		log.Printf("Unable to load messages for account %s: %v", state.Account, err)
		s.sendResponse(conn, protocol.RespError)
		return
	}

	original, err := store.Get(index)
	if err != nil {
		if errors.Is(err, message.ErrOutOfRange) {
			log.Printf("No message with index value %d", index)
			s.sendResponse(conn, protocol.IndexOutOfBounds)
			return
		}
		s.sendResponse(conn, protocol.RespError)
		return
	}

	// The forwarded copy keeps the original sender and timestamp; only the
	// recipient and the marked-up body change.
	forwarded := original
	forwarded.Recipient = cmd.Recipient
	forwarded.Body = forwardMarker + original.Body

	delivered, err := s.manager.StoreMessage(cmd.Recipient, forwarded)
	if err != nil {
		log.Printf("Failed to store forwarded message for %s: %v", cmd.Recipient, err)
		s.sendResponse(conn, protocol.RespError)
		return
	}
	if !delivered {
		s.sendResponse(conn, protocol.Undeliverable)
		return
	}
	log.Printf("Storing message in account %s", cmd.Recipient)
	s.sendResponse(conn, protocol.Delivered)
}

func (s *Server) handleDelete(conn net.Conn, state *models.SessionState, cmd protocol.Delete) {
	if cmd.Target == protocol.DeleteAll {
		cleared, err := s.manager.ClearMessages(state.Capability, state.Account)
		if err != nil || !cleared {
			log.Printf("Clear messages operation not successful for %s: %v", state.Account, err)
			s.sendResponse(conn, protocol.RespError)
			return
		}
		s.sendResponse(conn, protocol.Deleted)
		return
	}

	index, err := strconv.Atoi(cmd.Target)
	if err != nil {
		s.sendResponse(conn, protocol.NotValidValue)
		return
	}

	if err := s.manager.RemoveMessage(state.Capability, state.Account, index); err != nil {
		if errors.Is(err, message.ErrOutOfRange) {
			log.Printf("No message with index value %d", index)
			s.sendResponse(conn, protocol.IndexOutOfBounds)
			return
		}
		log.Printf("Failed to remove message %d for %s: %v", index, state.Account, err)
		s.sendResponse(conn, protocol.RespError)
		return
	}
	s.sendResponse(conn, protocol.Deleted)
}
