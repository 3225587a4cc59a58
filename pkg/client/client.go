// Package client is the consumer side of the chat relay: it submits chat
// turns and folds the streamed reply into an in-memory transcript that
// can drive a live UI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// FailureReply replaces the open assistant message whenever a turn fails.
// Partially streamed text is discarded, not juxtaposed with the error.
const FailureReply = "Sorry, something went wrong. Please try again."

// Client issues chat turns against a relay server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the given server base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Conversation owns one transcript for the lifetime of a session. At most
// one turn is in flight at a time; SendMessage is a no-op while a prior
// stream is still open.
type Conversation struct {
	client   *Client
	onUpdate func(Transcript)

	mu         sync.Mutex
	transcript Transcript
	inFlight   bool
}

// NewConversation creates an empty conversation. onUpdate, when non-nil,
// receives every published transcript value; it runs on the caller's
// goroutine, potentially once per received fragment.
func NewConversation(client *Client, onUpdate func(Transcript)) *Conversation {
	return &Conversation{client: client, onUpdate: onUpdate}
}

// Transcript returns a snapshot of the current transcript.
func (c *Conversation) Transcript() Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.clone()
}

// SendMessage submits one chat turn and blocks until the reply stream
// ends. Whitespace-only input and calls made while a turn is in flight
// are no-ops. Failures never escape: the open assistant message is
// replaced with FailureReply instead.
func (c *Conversation) SendMessage(ctx context.Context, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	c.publish(func(t Transcript) Transcript {
		return append(t.clone(), Message{Role: RoleUser, Content: trimmed})
	})

	// The outbound payload is the transcript up to and including the new
	// user message; the placeholder below stays local.
	turn := c.Transcript()

	c.publish(func(t Transcript) Transcript {
		return append(t.clone(), Message{Role: RoleAssistant, Content: ""})
	})

	if err := c.stream(ctx, turn); err != nil {
		c.publish(func(t Transcript) Transcript {
			next := t.clone()
			next[len(next)-1].Content = FailureReply
			return next
		})
	}
}

// stream performs the HTTP exchange and folds each decoded fragment into
// the open assistant message.
func (c *Conversation) stream(ctx context.Context, turn Transcript) error {
	payload, err := json.Marshal(turnRequest{Messages: turn})
	if err != nil {
		return fmt.Errorf("marshal turn request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.client.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var asm utf8Assembler
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if fragment := asm.push(buf[:n]); fragment != "" {
				c.appendFragment(fragment)
			}
		}
		if errors.Is(readErr, io.EOF) {
			if _, ok := asm.flush(); !ok {
				return errors.New("stream ended inside a multi-byte character")
			}
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read stream: %w", readErr)
		}
	}
}

func (c *Conversation) appendFragment(fragment string) {
	c.publish(func(t Transcript) Transcript {
		next := t.clone()
		next[len(next)-1].Content += fragment
		return next
	})
}

// publish computes the next transcript value from the current one under
// the lock, then notifies outside it so the callback may read freely.
func (c *Conversation) publish(update func(Transcript) Transcript) {
	c.mu.Lock()
	next := update(c.transcript)
	c.transcript = next
	c.mu.Unlock()

	if c.onUpdate != nil {
		c.onUpdate(next)
	}
}
