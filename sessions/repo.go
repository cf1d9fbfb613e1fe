package sessions

import "context"

// Repo is the durable copy of the session. There is only ever one record.
type Repo interface {
	// Load returns errors.ErrSessionNotFound when nothing is stored
	Load(ctx context.Context) (*Session, error)

	// Save replaces the stored record
	Save(ctx context.Context, session *Session) error

	// Delete removes the stored record; deleting nothing is not an error
	Delete(ctx context.Context) error
}
