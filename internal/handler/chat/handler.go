package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumenlabs/chat-starter/backend/internal/model/chat"
	"github.com/lumenlabs/chat-starter/backend/pkg/utils"
)

// ReplyService is the upstream surface the handler needs. Implemented by
// the ai service; faked in tests.
type ReplyService interface {
	StreamingEnabled() bool
	StreamReply(ctx context.Context, history []chat.Message) (*schema.StreamReader[*schema.Message], error)
	GenerateReply(ctx context.Context, history []chat.Message) (*schema.Message, error)
}

// Handler relays chat turns to the upstream model and streams the reply
// back as a plain text body.
type Handler struct {
	ai          ReplyService
	idleTimeout time.Duration
}

// New creates a chat handler. ai may be nil when the upstream credential
// is not configured; requests are then rejected with 503.
func New(ai ReplyService, idleTimeout time.Duration) *Handler {
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	return &Handler{ai: ai, idleTimeout: idleTimeout}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleTurn)
}

// handleTurn accepts the full transcript, opens one upstream call and
// relays its fragments in arrival order. Termination contract: a normal
// upstream end closes the body cleanly with no trailing marker; a
// mid-stream upstream failure aborts the connection so the client's read
// errors instead of seeing a clean end.
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	if h.ai == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "chat unavailable: upstream credential not configured")
		return
	}

	var req chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	history := req.History()
	streamID := uuid.NewString()

	if !h.ai.StreamingEnabled() {
		h.writeSingleReply(r.Context(), w, streamID, history)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Cancelled when the client goes away or the handler returns, which
	// aborts the upstream call instead of draining it to nowhere.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := h.ai.StreamReply(ctx, history)
	if err != nil {
		log.Printf("[chat] stream=%s upstream open failed: %v", streamID, err)
		utils.RespondError(w, http.StatusBadGateway, "upstream request failed")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Printf("[chat] stream=%s started, history=%d", streamID, len(history))
	h.relay(ctx, w, flusher, stream, streamID)
}

type recvResult struct {
	chunk *schema.Message
	err   error
}

// relay pumps upstream fragments to the response in FIFO order. An idle
// watchdog aborts the stream when no fragment arrives within idleTimeout.
func (h *Handler) relay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, stream *schema.StreamReader[*schema.Message], streamID string) {
	results := make(chan recvResult)
	go func() {
		defer close(results)
		for {
			chunk, err := stream.Recv()
			select {
			case results <- recvResult{chunk: chunk, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(h.idleTimeout)
	defer idle.Stop()

	relayed := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("[chat] stream=%s client disconnected, abandoning upstream after %d fragments", streamID, relayed)
			return
		case <-idle.C:
			log.Printf("[chat] stream=%s no fragment for %s, aborting", streamID, h.idleTimeout)
			// Same failure path as a mid-stream upstream error.
			panic(http.ErrAbortHandler)
		case res := <-results:
			if errors.Is(res.err, io.EOF) {
				log.Printf("[chat] stream=%s completed, fragments=%d", streamID, relayed)
				return
			}
			if res.err != nil {
				// Headers are already sent, so the status cannot change.
				// Returning normally would let net/http finish the body
				// and the client would mistake the partial reply for a
				// complete one; aborting the connection makes the
				// client's read fail instead.
				log.Printf("[chat] stream=%s upstream failed after %d fragments: %v", streamID, relayed, res.err)
				panic(http.ErrAbortHandler)
			}
			if res.chunk == nil || res.chunk.Content == "" {
				continue
			}

			if _, err := io.WriteString(w, res.chunk.Content); err != nil {
				log.Printf("[chat] stream=%s write failed: %v", streamID, err)
				return
			}
			flusher.Flush()
			relayed++

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(h.idleTimeout)
		}
	}
}

func (h *Handler) writeSingleReply(ctx context.Context, w http.ResponseWriter, streamID string, history []chat.Message) {
	reply, err := h.ai.GenerateReply(ctx, history)
	if err != nil {
		log.Printf("[chat] stream=%s upstream call failed: %v", streamID, err)
		utils.RespondError(w, http.StatusBadGateway, "upstream request failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, reply.Content); err != nil {
		log.Printf("[chat] stream=%s write failed: %v", streamID, err)
	}
}
