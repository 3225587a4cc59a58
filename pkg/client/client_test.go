package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// streamingServer is a minimal relay stand-in that writes the given
// fragments with a flush after each one.
func streamingServer(t *testing.T, fragments [][]byte, hits *atomic.Int32, lastTurn *turnRequest, mu *sync.Mutex) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if lastTurn != nil {
			var req turnRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode turn request: %v", err)
			}
			mu.Lock()
			*lastTurn = req
			mu.Unlock()
		}

		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		for _, frag := range fragments {
			_, _ = w.Write(frag)
			flusher.Flush()
		}
	}))
}

func TestSendMessageFoldsStreamedReply(t *testing.T) {
	var hits atomic.Int32
	var mu sync.Mutex
	var lastTurn turnRequest
	ts := streamingServer(t, [][]byte{[]byte("Hi"), []byte(" there"), []byte("!")}, &hits, &lastTurn, &mu)
	defer ts.Close()

	conv := NewConversation(New(ts.URL), nil)
	conv.SendMessage(context.Background(), "Say hi")

	got := conv.Transcript()
	want := Transcript{
		{Role: RoleUser, Content: "Say hi"},
		{Role: RoleAssistant, Content: "Hi there!"},
	}
	if len(got) != len(want) {
		t.Fatalf("transcript length: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transcript[%d]: got %+v want %+v", i, got[i], want[i])
		}
	}

	// The open placeholder must not cross the wire.
	mu.Lock()
	defer mu.Unlock()
	if len(lastTurn.Messages) != 1 || lastTurn.Messages[0].Content != "Say hi" {
		t.Fatalf("unexpected outbound payload: %+v", lastTurn.Messages)
	}
}

func TestSendMessageTrimsUserText(t *testing.T) {
	ts := streamingServer(t, [][]byte{[]byte("ok")}, nil, nil, nil)
	defer ts.Close()

	conv := NewConversation(New(ts.URL), nil)
	conv.SendMessage(context.Background(), "  hello \n")

	got := conv.Transcript()
	if got[0].Content != "hello" {
		t.Fatalf("expected trimmed user text, got %q", got[0].Content)
	}
}

func TestSendMessageSplitRuneAcrossWrites(t *testing.T) {
	raw := []byte("世界") // two three-byte runes
	ts := streamingServer(t, [][]byte{raw[:2], raw[2:4], raw[4:]}, nil, nil, nil)
	defer ts.Close()

	conv := NewConversation(New(ts.URL), nil)
	conv.SendMessage(context.Background(), "hi")

	got := conv.Transcript()
	if got[1].Content != "世界" {
		t.Fatalf("expected reassembled text, got %q", got[1].Content)
	}
}

func TestSendMessageWhitespaceOnlyIsNoOp(t *testing.T) {
	var hits atomic.Int32
	ts := streamingServer(t, nil, &hits, nil, nil)
	defer ts.Close()

	conv := NewConversation(New(ts.URL), nil)
	conv.SendMessage(context.Background(), "   \t\n")

	if got := conv.Transcript(); len(got) != 0 {
		t.Fatalf("expected empty transcript, got %+v", got)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request, got %d", hits.Load())
	}
}

func TestSendMessageSingleFlight(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("thinking"))
		flusher.Flush()
		<-release
	}))
	defer ts.Close()

	conv := NewConversation(New(ts.URL), func(tr Transcript) {
		if len(tr) == 2 && tr[1].Content != "" {
			once.Do(func() { close(started) })
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		conv.SendMessage(context.Background(), "first")
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never started streaming")
	}

	// A second call while the stream is open must change nothing.
	conv.SendMessage(context.Background(), "second")
	if got := conv.Transcript(); len(got) != 2 {
		t.Fatalf("expected 2 messages during in-flight turn, got %d", len(got))
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single request, got %d", hits.Load())
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never finished")
	}

	// The in-flight flag must clear so the next turn proceeds.
	conv.SendMessage(context.Background(), "third")
	if got := conv.Transcript(); len(got) != 4 {
		t.Fatalf("expected 4 messages after follow-up turn, got %d", len(got))
	}
}

func TestSendMessageFailureReplacesPartialContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial content that must vanish"))
		flusher.Flush()
		panic(http.ErrAbortHandler)
	}))
	defer ts.Close()

	conv := NewConversation(New(ts.URL), nil)
	conv.SendMessage(context.Background(), "hi")

	got := conv.Transcript()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Content != "hi" {
		t.Fatalf("user message must survive the failure, got %q", got[0].Content)
	}
	if got[1].Content != FailureReply {
		t.Fatalf("expected exactly the failure reply, got %q", got[1].Content)
	}
}

func TestSendMessageErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"upstream credential not configured"}`, http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	conv := NewConversation(New(ts.URL), nil)
	conv.SendMessage(context.Background(), "hi")

	got := conv.Transcript()
	if got[1].Content != FailureReply {
		t.Fatalf("expected failure reply on 5xx, got %q", got[1].Content)
	}
}
