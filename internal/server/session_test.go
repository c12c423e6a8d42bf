package server

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"courier/internal/accounts"
	"courier/internal/dao"
	"courier/internal/protocol"
)

// mockConn implements net.Conn for testing
type mockConn struct {
	readBuffer  []byte
	writeBuffer []byte
	readPos     int
	closed      bool
}

func newMockConn() *mockConn {
	return &mockConn{}
}

func (m *mockConn) Read(b []byte) (int, error) {
	if m.readPos >= len(m.readBuffer) {
		return 0, io.EOF
	}
	n := copy(b, m.readBuffer[m.readPos:])
	m.readPos += n
	return n, nil
}

func (m *mockConn) Write(b []byte) (int, error) {
	m.writeBuffer = append(m.writeBuffer, b...)
	return len(b), nil
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

func (m *mockConn) LocalAddr() net.Addr                { return nil }
func (m *mockConn) RemoteAddr() net.Addr               { return nil }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

func (m *mockConn) addReadData(data string) {
	m.readBuffer = append(m.readBuffer, []byte(data)...)
}

func (m *mockConn) writtenData() string {
	return string(m.writeBuffer)
}

// setupTestServer creates a server backed by an in-memory repository with
// two accounts: alice/pw1 and bob/pw2.
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	accountDAO, err := dao.NewSQLiteDAOInMemory()
	if err != nil {
		t.Fatalf("Failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		_ = accountDAO.Close()
	})

	manager, err := accounts.NewManager(accountDAO)
	if err != nil {
		t.Fatalf("Failed to create account manager: %v", err)
	}

	for name, secret := range map[string]string{"alice": "pw1", "bob": "pw2"} {
		created, err := manager.CreateAccount(name, secret)
		if err != nil || !created {
			t.Fatalf("Failed to create account %s, created=%v err=%v", name, created, err)
		}
	}

	return NewServer(manager)
}

// runCommand opens one mock connection, sends one command line, and returns
// the full response.
func runCommand(t *testing.T, s *Server, line string) string {
	t.Helper()
	conn := newMockConn()
	conn.addReadData(line + "\n")
	s.HandleConnection(conn)
	if !conn.closed {
		t.Error("Expected the connection to be closed after one command")
	}
	return conn.writtenData()
}

func TestSession_Hello(t *testing.T) {
	s := setupTestServer(t)
	response := runCommand(t, s, "HELLO")
	if response != protocol.HelloAck+"\n" {
		t.Errorf("Expected HELLO acknowledgement, got %q", response)
	}
}

func TestSession_Disconnect(t *testing.T) {
	s := setupTestServer(t)
	response := runCommand(t, s, "DISCONNECT")
	if response != protocol.DisconnectAck+"\n" {
		t.Errorf("Expected DISCONNECT acknowledgement, got %q", response)
	}
}

func TestSession_Auth(t *testing.T) {
	s := setupTestServer(t)

	if got := runCommand(t, s, "AUTH alice pw1"); got != protocol.AuthValid+"\n" {
		t.Errorf("Expected AUTH_VALID for correct secret, got %q", got)
	}
	if got := runCommand(t, s, "AUTH alice wrong"); got != protocol.AuthInvalid+"\n" {
		t.Errorf("Expected AUTH_INVALID for wrong secret, got %q", got)
	}
	if got := runCommand(t, s, "AUTH ghost pw"); got != protocol.AuthInvalid+"\n" {
		t.Errorf("Expected AUTH_INVALID for unknown account, got %q", got)
	}
}

func TestSession_UnrecognizedCommand(t *testing.T) {
	s := setupTestServer(t)
	response := runCommand(t, s, "MAKE ME A SANDWICH")
	if !strings.Contains(response, protocol.CmdNotRecognized) {
		t.Errorf("Expected command-not-recognized response, got %q", response)
	}
}

func TestSession_CompositeRequiresValidCredentials(t *testing.T) {
	s := setupTestServer(t)
	response := runCommand(t, s, "AUTH alice wrong READ")
	if response != protocol.AuthInvalid+"\n" {
		t.Errorf("Expected AUTH_INVALID for composite with bad credentials, got %q", response)
	}
}

func TestSession_ReadEmptyInbox(t *testing.T) {
	s := setupTestServer(t)
	response := runCommand(t, s, "AUTH alice pw1 READ")
	if !strings.Contains(response, "***no messages****") {
		t.Errorf("Expected the no-messages marker, got %q", response)
	}
}

func TestSession_SendAndRead(t *testing.T) {
	s := setupTestServer(t)

	response := runCommand(t, s, "AUTH alice pw1 SEND SENDER alice RECIP bob MESSAGE lunch at noon?")
	if response != protocol.Delivered+"\n" {
		t.Fatalf("Expected DELIVERED, got %q", response)
	}

	inbox := runCommand(t, s, "AUTH bob pw2 READ")
	if !strings.Contains(inbox, "Message: lunch at noon?") {
		t.Errorf("Expected delivered body in bob's inbox, got %q", inbox)
	}
	if !strings.Contains(inbox, "Sender: alice") {
		t.Errorf("Expected sender alice in bob's inbox, got %q", inbox)
	}
	if !strings.Contains(inbox, "Recipient: bob") {
		t.Errorf("Expected recipient bob in bob's inbox, got %q", inbox)
	}
}

func TestSession_SendToUnknownRecipient(t *testing.T) {
	s := setupTestServer(t)

	response := runCommand(t, s, "AUTH alice pw1 SEND SENDER alice RECIP ghost MESSAGE boo")
	if response != protocol.Undeliverable+"\n" {
		t.Errorf("Expected UNDELIVERABLE, got %q", response)
	}

	// The failed delivery must not create the ghost account
	if got := runCommand(t, s, "AUTH ghost anything"); got != protocol.AuthInvalid+"\n" {
		t.Errorf("Expected the ghost account to stay nonexistent, got %q", got)
	}
}

func TestSession_DeleteShiftsPositions(t *testing.T) {
	s := setupTestServer(t)

	for _, body := range []string{"zero", "one", "two"} {
		if got := runCommand(t, s, "AUTH alice pw1 SEND SENDER alice RECIP bob MESSAGE "+body); got != protocol.Delivered+"\n" {
			t.Fatalf("Delivery of %q failed: %q", body, got)
		}
	}

	if got := runCommand(t, s, "AUTH bob pw2 DELETE 1"); got != protocol.Deleted+"\n" {
		t.Fatalf("Expected DELETED, got %q", got)
	}

	inbox := runCommand(t, s, "AUTH bob pw2 READ")
	if strings.Contains(inbox, "Message: one") {
		t.Errorf("Expected 'one' to be deleted, got %q", inbox)
	}
	if !strings.Contains(inbox, "Message Id: 1\nRecipient: bob\nSender: alice") ||
		!strings.Contains(inbox, "Message: two") {
		t.Errorf("Expected 'two' to shift into position 1, got %q", inbox)
	}
	if strings.Contains(inbox, "Message Id: 2") {
		t.Errorf("Expected only 2 messages after deletion, got %q", inbox)
	}
}

func TestSession_DeleteAll(t *testing.T) {
	s := setupTestServer(t)

	if got := runCommand(t, s, "AUTH alice pw1 SEND SENDER alice RECIP bob MESSAGE one"); got != protocol.Delivered+"\n" {
		t.Fatalf("Delivery failed: %q", got)
	}
	if got := runCommand(t, s, "AUTH bob pw2 DELETE ALL"); got != protocol.Deleted+"\n" {
		t.Fatalf("Expected DELETED, got %q", got)
	}

	inbox := runCommand(t, s, "AUTH bob pw2 READ")
	if !strings.Contains(inbox, "***no messages****") {
		t.Errorf("Expected empty inbox after DELETE ALL, got %q", inbox)
	}
}

func TestSession_DeleteInvalidValues(t *testing.T) {
	s := setupTestServer(t)

	if got := runCommand(t, s, "AUTH bob pw2 DELETE x"); got != protocol.NotValidValue+"\n" {
		t.Errorf("Expected NOT_VALID_VALUE for a non-numeric index, got %q", got)
	}
	if got := runCommand(t, s, "AUTH bob pw2 DELETE 5"); got != protocol.IndexOutOfBounds+"\n" {
		t.Errorf("Expected INDEX_OUT_OF_BOUNDS for an out-of-range index, got %q", got)
	}
}

func TestSession_ForwardPrependsMarker(t *testing.T) {
	s := setupTestServer(t)

	if got := runCommand(t, s, "AUTH bob pw2 SEND SENDER bob RECIP alice MESSAGE original text"); got != protocol.Delivered+"\n" {
		t.Fatalf("Delivery failed: %q", got)
	}

	if got := runCommand(t, s, "AUTH alice pw1 FORWARD RECIP bob 0"); got != protocol.Delivered+"\n" {
		t.Fatalf("Expected DELIVERED for forward, got %q", got)
	}

	inbox := runCommand(t, s, "AUTH bob pw2 READ")
	if !strings.Contains(inbox, "Message: FW: original text") {
		t.Errorf("Expected forwarded body with marker, got %q", inbox)
	}
	if !strings.Contains(inbox, "Recipient: bob") {
		t.Errorf("Expected forwarded copy readdressed to bob, got %q", inbox)
	}
	// The original stays in alice's inbox untouched
	alice := runCommand(t, s, "AUTH alice pw1 READ")
	if !strings.Contains(alice, "Message: original text") || strings.Contains(alice, "FW:") {
		t.Errorf("Expected alice's copy to stay unmarked, got %q", alice)
	}
}

func TestSession_ForwardInvalidValues(t *testing.T) {
	s := setupTestServer(t)

	if got := runCommand(t, s, "AUTH alice pw1 FORWARD RECIP bob x"); got != protocol.NotValidValue+"\n" {
		t.Errorf("Expected NOT_VALID_VALUE for a non-numeric index, got %q", got)
	}
	if got := runCommand(t, s, "AUTH alice pw1 FORWARD RECIP bob 3"); got != protocol.IndexOutOfBounds+"\n" {
		t.Errorf("Expected INDEX_OUT_OF_BOUNDS for an out-of-range index, got %q", got)
	}
}

func TestSession_ForwardToUnknownRecipient(t *testing.T) {
	s := setupTestServer(t)

	if got := runCommand(t, s, "AUTH bob pw2 SEND SENDER bob RECIP alice MESSAGE hi"); got != protocol.Delivered+"\n" {
		t.Fatalf("Delivery failed: %q", got)
	}
	if got := runCommand(t, s, "AUTH alice pw1 FORWARD RECIP ghost 0"); got != protocol.Undeliverable+"\n" {
		t.Errorf("Expected UNDELIVERABLE, got %q", got)
	}
}

func TestSession_EmptyLineGetsNoResponse(t *testing.T) {
	s := setupTestServer(t)
	conn := newMockConn()
	conn.addReadData("\n")
	s.HandleConnection(conn)
	if conn.writtenData() != "" {
		t.Errorf("Expected no response to an empty line, got %q", conn.writtenData())
	}
}
