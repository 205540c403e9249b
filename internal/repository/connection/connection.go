package connection

import "errors"

var (
	ErrNotFound      = errors.New("connection not found")
	ErrAlreadyExists = errors.New("connection already exists")
)

// Peer is the outbound side of a live connection.
type Peer interface {
	Send(msg any) error
	Close()
}
