package models

import (
	"net"

	"courier/internal/accounts"
)

// SessionState tracks one accepted connection through its single command
// dispatch. Authentication never outlives the session: the capability is
// issued while dispatching one command and dropped with the state.
type SessionState struct {
	Conn       net.Conn
	Account    string
	Capability *accounts.Capability
}
