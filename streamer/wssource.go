package streamer

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/near/tx-indexer/primitives"
)

// WebsocketBlockSource pulls one JSON-encoded StreamerMessage per inbound
// websocket frame from a remote block-streaming endpoint. Every call to Next
// requests the next frame; fromHeight is sent as a "resume from" hint on
// (re)connect, since the websocket protocol itself carries no concept of a
// replayable cursor.
type WebsocketBlockSource struct {
	url string

	mu       sync.Mutex
	conn     *websocket.Conn
	resumeAt primitives.BlockHeight
}

// NewWebsocketBlockSource does not dial immediately; the first Next call
// connects lazily so construction never blocks on network I/O.
func NewWebsocketBlockSource(url string) *WebsocketBlockSource {
	return &WebsocketBlockSource{url: url}
}

func (s *WebsocketBlockSource) ensureConn(ctx context.Context, fromHeight primitives.BlockHeight) (*websocket.Conn, error) {
	if s.conn != nil && s.resumeAt == fromHeight {
		return s.conn, nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("streamer: dial block stream %s: %w", s.url, err)
	}
	if err := conn.WriteJSON(map[string]uint64{"from_height": uint64(fromHeight)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("streamer: send resume hint: %w", err)
	}
	s.conn = conn
	s.resumeAt = fromHeight
	return conn, nil
}

// Next implements BlockSource.
func (s *WebsocketBlockSource) Next(ctx context.Context, fromHeight primitives.BlockHeight) (primitives.StreamerMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.ensureConn(ctx, fromHeight)
	if err != nil {
		return primitives.StreamerMessage{}, err
	}

	var msg primitives.StreamerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		s.conn.Close()
		s.conn = nil
		return primitives.StreamerMessage{}, fmt.Errorf("streamer: read block stream frame: %w", err)
	}
	s.resumeAt = msg.Block.Height + 1
	return msg, nil
}

// LatestHeight implements BlockSource by requesting one frame and reporting
// its height; callers that need a lighter-weight head check should prefer a
// dedicated chain RPC instead.
func (s *WebsocketBlockSource) LatestHeight(ctx context.Context) (primitives.BlockHeight, error) {
	msg, err := s.Next(ctx, 0)
	if err != nil {
		return 0, err
	}
	return msg.Block.Height, nil
}

// Close releases the underlying connection, if any.
func (s *WebsocketBlockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
