package primary

import (
	"context"
)

// MessageSender writes one framed message to the peer
type MessageSender interface {
	Send(msgType byte, payload []byte) error
}

// Session is the reply path of one connection. Its reporter is stable for
// the connection lifetime.
type Session interface {
	MessageSender
	Reporter() JobReporter
}

// MessageHandler defines an interface for handling different message types
type MessageHandler interface {
	HandleMessage(ctx context.Context, session Session, payload []byte, clientID *string) error
}
