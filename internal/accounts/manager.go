package accounts

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"courier/internal/message"
)

// ErrUnauthorized is returned by privileged operations called without a
// valid capability for the target account.
var ErrUnauthorized = errors.New("operation requires authentication")

// DAO is the account repository contract the manager drives. GetAccount
// returns (nil, nil) when the account does not exist.
type DAO interface {
	GetAccount(name string) (*Account, error)
	PersistAccount(account *Account) error
	AccountExists(name string) (bool, error)
	ClearAll() error
}

// Manager orchestrates authentication and every inbox mutation. It is the
// sole caller of the repository and holds no per-session state: each
// privileged operation takes the capability returned by Authenticate.
//
// Mutations follow read-mutate-re-persist of the whole account record. A
// crash between the in-memory mutation and PersistAccount loses that
// mutation; this durability boundary is accepted. A per-account lock keeps
// concurrent read-mutate-persist cycles on the same account from losing
// updates; different accounts never contend.
type Manager struct {
	dao    DAO
	hasher Hasher
	issuer *capabilityIssuer

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewManager builds a manager with the SHA-256 hasher and a random
// per-process capability signing key.
func NewManager(dao DAO) (*Manager, error) {
	return NewManagerWithSigningKey(dao, nil, time.Minute)
}

// NewManagerWithSigningKey builds a manager with an explicit capability
// signing key and token lifetime (useful when the key must come from
// configuration).
func NewManagerWithSigningKey(dao DAO, signingKey []byte, ttl time.Duration) (*Manager, error) {
	issuer, err := newCapabilityIssuer(signingKey, ttl)
	if err != nil {
		return nil, err
	}
	return &Manager{
		dao:    dao,
		hasher: SHA256Hasher{},
		issuer: issuer,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// accountLock returns the mutex serializing read-mutate-persist cycles for
// one account name.
func (m *Manager) accountLock(name string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	lock, ok := m.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[name] = lock
	}
	return lock
}

// CreateAccount hashes the secret and persists a new account with an empty
// inbox. Returns false without side effects when the name already exists.
func (m *Manager) CreateAccount(name, secret string) (bool, error) {
	lock := m.accountLock(name)
	lock.Lock()
	defer lock.Unlock()

	exists, err := m.dao.AccountExists(name)
	if err != nil {
		return false, fmt.Errorf("failed to check account name %q: %v", name, err)
	}
	if exists {
		log.Printf("Account name %q already exists, refusing duplicate", name)
		return false, nil
	}

	account := NewAccount(name, m.hasher.Hash([]byte(secret)))
	if err := m.dao.PersistAccount(account); err != nil {
		return false, fmt.Errorf("failed to persist new account %q: %v", name, err)
	}
	log.Printf("Account created: %s", name)
	return true, nil
}

// Authenticate checks the secret against the stored digest and, on success,
// returns a capability for the account. Unknown accounts and digest
// mismatches both yield (nil, nil).
func (m *Manager) Authenticate(name, secret string) (*Capability, error) {
	account, err := m.dao.GetAccount(name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account %q: %v", name, err)
	}
	if account == nil {
		log.Printf("Unable to authenticate account %s: no such account", name)
		return nil, nil
	}
	if !m.hasher.Verify(m.hasher.Hash([]byte(secret)), account.SecretDigest) {
		log.Printf("Unable to authenticate account %s", name)
		return nil, nil
	}
	return m.issuer.issue(name)
}

// GetMessages returns the account's inbox. Requires a capability for name.
func (m *Manager) GetMessages(cap *Capability, name string) (*message.Store, error) {
	if !m.issuer.verify(cap, name) {
		return nil, ErrUnauthorized
	}
	account, err := m.dao.GetAccount(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %q: %v", name, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %q no longer exists", name)
	}
	return account.Inbox, nil
}

// StoreMessage delivers msg to the named recipient's inbox. No capability is
// required: this models mail delivery to any valid local account. Returns
// false when the recipient does not exist; the recipient's account is never
// created as a side effect.
func (m *Manager) StoreMessage(recipient string, msg message.Message) (bool, error) {
	lock := m.accountLock(recipient)
	lock.Lock()
	defer lock.Unlock()

	account, err := m.dao.GetAccount(recipient)
	if err != nil {
		return false, fmt.Errorf("failed to load account %q: %v", recipient, err)
	}
	if account == nil {
		log.Printf("Could not locate user %s", recipient)
		return false, nil
	}
	account.Inbox.Append(msg)
	if err := m.dao.PersistAccount(account); err != nil {
		return false, fmt.Errorf("failed to persist account %q: %v", recipient, err)
	}
	return true, nil
}

// RemoveMessage removes the message at index from the account's inbox and
// re-persists. Requires a capability for name.
func (m *Manager) RemoveMessage(cap *Capability, name string, index int) error {
	if !m.issuer.verify(cap, name) {
		return ErrUnauthorized
	}

	lock := m.accountLock(name)
	lock.Lock()
	defer lock.Unlock()

	account, err := m.dao.GetAccount(name)
	if err != nil {
		return fmt.Errorf("failed to load account %q: %v", name, err)
	}
	if account == nil {
		return fmt.Errorf("account %q no longer exists", name)
	}
	if _, err := account.Inbox.RemoveAt(index); err != nil {
		return err
	}
	if err := m.dao.PersistAccount(account); err != nil {
		return fmt.Errorf("failed to persist account %q: %v", name, err)
	}
	log.Printf("Message %d removed from %s", index, name)
	return nil
}

// ClearMessages empties the account's inbox and re-persists. Requires a
// capability for name. Returns true only if the inbox is empty afterward.
func (m *Manager) ClearMessages(cap *Capability, name string) (bool, error) {
	if !m.issuer.verify(cap, name) {
		return false, ErrUnauthorized
	}

	lock := m.accountLock(name)
	lock.Lock()
	defer lock.Unlock()

	account, err := m.dao.GetAccount(name)
	if err != nil {
		return false, fmt.Errorf("failed to load account %q: %v", name, err)
	}
	if account == nil {
		return false, fmt.Errorf("account %q no longer exists", name)
	}
	account.Inbox.Clear()
	if err := m.dao.PersistAccount(account); err != nil {
		return false, fmt.Errorf("failed to persist account %q: %v", name, err)
	}
	return account.Inbox.Len() == 0, nil
}
