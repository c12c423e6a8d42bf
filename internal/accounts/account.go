package accounts

import "courier/internal/message"

// Account is a named identity with a hashed secret and one owned inbox.
// Name and SecretDigest are immutable after creation; only inbox operations
// mutate the account.
type Account struct {
	Name         string
	SecretDigest []byte
	Inbox        *message.Store
}

// NewAccount builds an account with an empty inbox.
func NewAccount(name string, secretDigest []byte) *Account {
	return &Account{
		Name:         name,
		SecretDigest: secretDigest,
		Inbox:        message.NewStore(),
	}
}
