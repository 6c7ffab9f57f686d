package streamer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	gojson "github.com/goccy/go-json"

	"github.com/near/tx-indexer/primitives"
)

// FileBlockSource reads newline-delimited JSON-encoded StreamerMessages from
// a file, in ascending height order. It is a development/test stand-in for
// a live chain source — CryptoHash's MarshalText/UnmarshalText make the JSON
// form human-writable ("0x..." hex) without a bespoke encoder.
type FileBlockSource struct {
	mu       sync.Mutex
	messages []primitives.StreamerMessage
}

// NewFileBlockSource loads every line of path as one StreamerMessage.
func NewFileBlockSource(path string) (*FileBlockSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("streamer: open block source file %s: %w", path, err)
	}
	defer f.Close()

	var messages []primitives.StreamerMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg primitives.StreamerMessage
		if err := gojson.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("streamer: decode block source line: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("streamer: read block source file %s: %w", path, err)
	}
	return &FileBlockSource{messages: messages}, nil
}

// Next implements BlockSource: it returns the first loaded message whose
// height is >= fromHeight, or ErrNoMoreBlocks once the file is exhausted.
func (s *FileBlockSource) Next(ctx context.Context, fromHeight primitives.BlockHeight) (primitives.StreamerMessage, error) {
	if err := ctx.Err(); err != nil {
		return primitives.StreamerMessage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.Block.Height >= fromHeight {
			return msg, nil
		}
	}
	return primitives.StreamerMessage{}, ErrNoMoreBlocks
}

// LatestHeight implements BlockSource.
func (s *FileBlockSource) LatestHeight(ctx context.Context) (primitives.BlockHeight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return 0, fmt.Errorf("streamer: file block source is empty")
	}
	return s.messages[len(s.messages)-1].Block.Height, nil
}
