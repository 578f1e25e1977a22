package connectionmanager

import (
	"encoding/json"
	"sync"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/tcp/channel"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

// ConnectionManager tracks the channels of registered coordinators
type ConnectionManager struct {
	Connections map[string]channel.Channel
	ConnMutex   sync.RWMutex
	Logger      primary.Logger
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger primary.Logger) *ConnectionManager {
	return &ConnectionManager{
		Connections: make(map[string]channel.Channel),
		Logger:      logger,
	}
}

// RegisterClient registers a coordinator channel. A previous channel under
// the same id is closed.
func (cm *ConnectionManager) RegisterClient(clientID string, ch channel.Channel) {
	cm.ConnMutex.Lock()
	previous, exists := cm.Connections[clientID]
	cm.Connections[clientID] = ch
	cm.ConnMutex.Unlock()

	if exists && previous != ch {
		cm.Logger.Warn("Replacing existing client connection", "clientID", clientID)
		_ = previous.Close()
	}
}

// RemoveClient removes a client when its connection is closed
func (cm *ConnectionManager) RemoveClient(clientID string, ch channel.Channel) {
	cm.ConnMutex.Lock()
	defer cm.ConnMutex.Unlock()

	if current, ok := cm.Connections[clientID]; ok && current == ch {
		delete(cm.Connections, clientID)
	}
}

// GetConnection returns the channel of a specific client
func (cm *ConnectionManager) GetConnection(clientID string) (channel.Channel, bool) {
	cm.ConnMutex.RLock()
	defer cm.ConnMutex.RUnlock()

	ch, exists := cm.Connections[clientID]
	return ch, exists
}

// Clients returns the ids of the registered clients
func (cm *ConnectionManager) Clients() []string {
	cm.ConnMutex.RLock()
	defer cm.ConnMutex.RUnlock()

	ids := make([]string, 0, len(cm.Connections))
	for id := range cm.Connections {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll closes every registered channel
func (cm *ConnectionManager) CloseAll() {
	cm.ConnMutex.Lock()
	defer cm.ConnMutex.Unlock()

	for clientID, ch := range cm.Connections {
		if err := ch.Close(); err != nil {
			cm.Logger.Error("Failed to close connection", "clientID", clientID, "error", err)
		}
		delete(cm.Connections, clientID)
	}
}

// SendErrorMessage sends an error message to a client
func SendErrorMessage(sender primary.MessageSender, code int, message string) {
	errorData := defs.ErrorData{
		Code:    code,
		Message: message,
	}

	errorBytes, err := json.Marshal(errorData)
	if err != nil {
		// Can't do much if marshaling fails
		return
	}

	// Ignore errors here as the connection might be closing
	_ = sender.Send(defs.MsgError, errorBytes)
}
