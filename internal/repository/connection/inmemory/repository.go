package inmemory

import (
	"log/slog"
	"sync"

	"github.com/sharetube/tandem/internal/repository/connection"
)

type repo struct {
	peers  map[string]connection.Peer
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		peers:  make(map[string]connection.Peer),
		logger: logger,
	}
}

func (r *repo) Add(connectionId string, peer connection.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug("connection.inmemory.Add", "connection_id", connectionId)
	if _, ok := r.peers[connectionId]; ok {
		return connection.ErrAlreadyExists
	}

	r.peers[connectionId] = peer

	return nil
}

// Remove unregisters the peer and returns it. The peer is not closed.
func (r *repo) Remove(connectionId string) (connection.Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug("connection.inmemory.Remove", "connection_id", connectionId)
	peer, ok := r.peers[connectionId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	delete(r.peers, connectionId)

	return peer, nil
}

func (r *repo) Get(connectionId string) (connection.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.peers[connectionId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return peer, nil
}

func (r *repo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.peers)
}

// CloseAll closes every registered peer. Peers stay registered until their
// connection handler removes them.
func (r *repo) CloseAll() {
	r.mu.RLock()
	peers := make([]connection.Peer, 0, len(r.peers))
	for _, peer := range r.peers {
		peers = append(peers, peer)
	}
	r.mu.RUnlock()

	r.logger.Debug("connection.inmemory.CloseAll", "count", len(peers))
	for _, peer := range peers {
		peer.Close()
	}
}
