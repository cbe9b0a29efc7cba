package session

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/companionlabs/avatarmem-go/pkg/llm"
)

// handoffBuffer bounds the producer/consumer channel. The producer blocks
// once the consumer falls this far behind.
const handoffBuffer = 64

// DefaultReadTimeout is the maximum wait for the next item from the model
// stream before the response is abandoned.
const DefaultReadTimeout = 30 * time.Second

// DefaultMaxTokens caps chat reply length.
const DefaultMaxTokens = 200

type itemKind int

const (
	itemText itemKind = iota
	itemEnd
	itemError
)

// streamItem is one handoff from the producer goroutine to the HTTP writer.
type streamItem struct {
	kind itemKind
	text string
}

// chunk is one NDJSON line of a chat stream response.
type chunk struct {
	Text     string `json:"text"`
	Endpoint bool   `json:"endpoint"`
}

// errorChunk is the NDJSON line written when generation fails.
type errorChunk struct {
	Error    string `json:"error"`
	Endpoint bool   `json:"endpoint"`
}

// StreamBridge moves model output onto an HTTP response as NDJSON and, on
// completion, appends the exchange to the session transcript.
type StreamBridge struct {
	store *Store
	locks *LockTable
	llm   llm.Provider

	// ReadTimeout is the maximum wait for the next stream item.
	ReadTimeout time.Duration

	// MaxTokens caps reply length.
	MaxTokens int
}

// NewStreamBridge creates a bridge with default timeout and token cap.
func NewStreamBridge(store *Store, locks *LockTable, provider llm.Provider) *StreamBridge {
	return &StreamBridge{
		store:       store,
		locks:       locks,
		llm:         provider,
		ReadTimeout: DefaultReadTimeout,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Stream generates a reply for prompt against the given message history and
// writes it to w as NDJSON lines of {"text": ..., "endpoint": false},
// terminated by an endpoint line. On failure an {"error": ..., "endpoint":
// true} line is written instead. If the model stalls past ReadTimeout the
// response ends with no terminal line; the producer goroutine finishes the
// model stream on its own, discarding whatever it has left.
//
// After a complete reply the user/assistant exchange is appended to the
// session under the user's lock.
func (b *StreamBridge) Stream(w http.ResponseWriter, unionID, avatarID, prompt string, messages []llm.Message) {
	items := make(chan streamItem, handoffBuffer)
	done := make(chan struct{})
	defer close(done)

	go b.produce(messages, items, done)

	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)

	var full string
	for {
		select {
		case item := <-items:
			switch item.kind {
			case itemText:
				full += item.text
				if err := enc.Encode(chunk{Text: item.text}); err != nil {
					log.Printf("avatarmem: stream write failed for user %s: %v", unionID, err)
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
			case itemEnd:
				if err := enc.Encode(chunk{Endpoint: true}); err != nil {
					log.Printf("avatarmem: stream write failed for user %s: %v", unionID, err)
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
				b.appendExchange(unionID, avatarID, prompt, full)
				return
			case itemError:
				if err := enc.Encode(errorChunk{Error: item.text, Endpoint: true}); err != nil {
					log.Printf("avatarmem: stream write failed for user %s: %v", unionID, err)
				}
				if flusher != nil {
					flusher.Flush()
				}
				return
			}
		case <-time.After(b.ReadTimeout):
			log.Printf("avatarmem: stream read timed out for user %s avatar %s", unionID, avatarID)
			return
		}
	}
}

// produce runs the blocking model stream and hands items to the writer. It
// uses a background context so an abandoned response does not cancel the
// model call; once done is closed, items are dropped instead of sent so the
// goroutine can run the stream to completion and exit.
func (b *StreamBridge) produce(messages []llm.Message, items chan<- streamItem, done <-chan struct{}) {
	send := func(item streamItem) {
		select {
		case items <- item:
		case <-done:
		}
	}

	_, err := b.llm.GenerateStream(context.Background(), messages, func(delta string) {
		send(streamItem{kind: itemText, text: delta})
	}, llm.WithMaxTokens(b.MaxTokens))
	if err != nil {
		send(streamItem{kind: itemError, text: err.Error()})
		return
	}
	send(streamItem{kind: itemEnd})
}

// appendExchange records the completed user/assistant exchange on the
// session, serialized on the user's lock.
func (b *StreamBridge) appendExchange(unionID, avatarID, prompt, reply string) {
	lock := b.locks.Get(unionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := b.store.GetOrCreate(context.Background(), unionID, avatarID, nil)
	if err != nil {
		log.Printf("avatarmem: append exchange failed for user %s avatar %s: %v", unionID, avatarID, err)
		return
	}

	sess.AddMessages(
		llm.Message{Role: "user", Content: prompt},
		llm.Message{Role: "assistant", Content: reply},
	)
	sess.Touch()
}
