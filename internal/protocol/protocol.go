package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Response tokens sent back to clients. These are part of the wire contract
// and must not change.
const (
	AuthValid        = "AUTH_VALID"
	AuthInvalid      = "AUTH_INVALID"
	Delivered        = "DELIVERED"
	Undeliverable    = "UNDELIVERABLE"
	Deleted          = "DELETED"
	IndexOutOfBounds = "INDEX_OUT_OF_BOUNDS"
	NotValidValue    = "NOT_VALID_VALUE"
	RespError        = "ERROR"
	HelloAck         = "HELLO"
	DisconnectAck    = "DISCONNECT"

	// Sent when an inbound line does not decode to any known command.
	CmdNotRecognized = "Command not recognized. Command must conform to required protocol"
)

// DeleteAll is the DELETE target that clears the whole inbox.
const DeleteAll = "ALL"

// ErrCommandNotRecognized is returned by Decode for lines that do not match
// the command grammar.
var ErrCommandNotRecognized = errors.New("command not recognized")

// Command is the closed set of wire commands. Exactly the types in this
// package implement it; dispatch is by type switch.
type Command interface {
	Encode() string
	command()
}

// Creds is the account name / secret pair embedded in every composite
// command. The server holds no authentication state between requests, so
// each privileged command carries its own credentials.
type Creds struct {
	Name   string
	Secret string
}

// Auth requests a bare credential check.
type Auth struct {
	Creds
}

// Disconnect ends the session; the server acknowledges then closes.
type Disconnect struct{}

// Hello is a liveness probe.
type Hello struct{}

// Read asks for the authenticated account's rendered inbox.
type Read struct {
	Creds
}

// Send delivers a new message to Recipient's inbox.
type Send struct {
	Creds
	Sender    string
	Recipient string
	Body      string
}

// Forward re-delivers the message at Index from the authenticated account's
// inbox to Recipient. Index stays a string so the handler can distinguish
// non-numeric input from an out-of-range one.
type Forward struct {
	Creds
	Recipient string
	Index     string
}

// Delete removes the message at Target, or every message when Target is ALL.
type Delete struct {
	Creds
	Target string
}

func (Auth) command()       {}
func (Disconnect) command() {}
func (Hello) command()      {}
func (Read) command()       {}
func (Send) command()       {}
func (Forward) command()    {}
func (Delete) command()     {}

func (c Auth) Encode() string {
	return fmt.Sprintf("AUTH %s %s", c.Name, c.Secret)
}

func (Disconnect) Encode() string { return "DISCONNECT" }

func (Hello) Encode() string { return "HELLO" }

func (c Read) Encode() string {
	return fmt.Sprintf("AUTH %s %s READ", c.Name, c.Secret)
}

func (c Send) Encode() string {
	return fmt.Sprintf("AUTH %s %s SEND SENDER %s RECIP %s MESSAGE %s",
		c.Name, c.Secret, c.Sender, c.Recipient, c.Body)
}

func (c Forward) Encode() string {
	return fmt.Sprintf("AUTH %s %s FORWARD RECIP %s %s",
		c.Name, c.Secret, c.Recipient, c.Index)
}

func (c Delete) Encode() string {
	return fmt.Sprintf("AUTH %s %s DELETE %s", c.Name, c.Secret, c.Target)
}

// Decode parses one wire line into a Command. The grammar is fixed-offset,
// split on single spaces:
//
//	AUTH <name> <secret>
//	AUTH <name> <secret> READ
//	AUTH <name> <secret> SEND SENDER <s> RECIP <r> MESSAGE <word>...
//	AUTH <name> <secret> FORWARD RECIP <r> <index>
//	AUTH <name> <secret> DELETE <index|ALL>
//	DISCONNECT
//	HELLO
//
// A message body may contain spaces only because it is always the suffix of
// the line.
func Decode(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, ErrCommandNotRecognized
	}
	parts := strings.Split(line, " ")

	switch parts[0] {
	case "DISCONNECT":
		if len(parts) != 1 {
			return nil, ErrCommandNotRecognized
		}
		return Disconnect{}, nil
	case "HELLO":
		if len(parts) != 1 {
			return nil, ErrCommandNotRecognized
		}
		return Hello{}, nil
	case "AUTH":
		// fall through to the composite grammar below
	default:
		return nil, ErrCommandNotRecognized
	}

	if len(parts) < 3 {
		return nil, ErrCommandNotRecognized
	}
	creds := Creds{Name: parts[1], Secret: parts[2]}

	// Bare AUTH is a credential check with no action.
	if len(parts) == 3 {
		return Auth{Creds: creds}, nil
	}

	switch parts[3] {
	case "READ":
		if len(parts) != 4 {
			return nil, ErrCommandNotRecognized
		}
		return Read{Creds: creds}, nil
	case "SEND":
		// AUTH <name> <secret> SEND SENDER <s> RECIP <r> MESSAGE <word>...
		if len(parts) < 10 || parts[4] != "SENDER" || parts[6] != "RECIP" || parts[8] != "MESSAGE" {
			return nil, ErrCommandNotRecognized
		}
		return Send{
			Creds:     creds,
			Sender:    parts[5],
			Recipient: parts[7],
			Body:      strings.Join(parts[9:], " "),
		}, nil
	case "FORWARD":
		// AUTH <name> <secret> FORWARD RECIP <r> <index>
		if len(parts) != 7 || parts[4] != "RECIP" {
			return nil, ErrCommandNotRecognized
		}
		return Forward{Creds: creds, Recipient: parts[5], Index: parts[6]}, nil
	case "DELETE":
		// AUTH <name> <secret> DELETE <index|ALL>
		if len(parts) != 5 {
			return nil, ErrCommandNotRecognized
		}
		return Delete{Creds: creds, Target: parts[4]}, nil
	default:
		return nil, ErrCommandNotRecognized
	}
}
