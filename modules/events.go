package modules

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Kinds of inbound message content.
const (
	KindText     = "text"
	KindImage    = "image"
	KindVideo    = "video"
	KindAudio    = "audio"
	KindSticker  = "sticker"
	KindDocument = "document"
	KindContact  = "contact"
)

// Identity is the authenticated account behind a live session.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// MediaPayload carries downloaded media as base64, same shape the chat
// backend already consumes.
type MediaPayload struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// MessageEvent is a normalized inbound message. It is built from the raw
// network event, handed to every registered handler and then discarded.
type MessageEvent struct {
	ID         string        `json:"id"`
	ChatID     string        `json:"chatId"`
	Sender     string        `json:"sender"`
	SenderName string        `json:"senderName"`
	Text       string        `json:"text"`
	Kind       string        `json:"kind"`
	Timestamp  time.Time     `json:"timestamp"`
	Media      *MediaPayload `json:"media,omitempty"`
	IsGroup    bool          `json:"isGroup"`
	GroupName  string        `json:"groupName,omitempty"`
}

// StatusEvent is broadcast on every connection transition.
type StatusEvent struct {
	Connected   bool      `json:"connected"`
	Connecting  bool      `json:"connecting"`
	PairingCode string    `json:"pairingCode,omitempty"`
	Identity    *Identity `json:"identity,omitempty"`
}

type MessageHandler func(MessageEvent)

type StatusHandler func(StatusEvent)

// registry is the observer set behind OnMessage/OnStatusChange. Handlers are
// keyed so the returned unsubscribe closure removes exactly one entry.
// Dispatch runs over a snapshot: subscribing mid-dispatch never receives the
// in-flight event and unsubscribing mid-dispatch never breaks the loop.
type registry[T any] struct {
	handlers map[int]func(T)
	nextID   int
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{handlers: make(map[int]func(T))}
}

func (r *registry[T]) add(fn func(T)) int {
	r.nextID++
	id := r.nextID
	r.handlers[id] = fn
	return id
}

func (r *registry[T]) remove(id int) {
	delete(r.handlers, id)
}

func (r *registry[T]) clear() {
	r.handlers = make(map[int]func(T))
}

func (r *registry[T]) snapshot() []func(T) {
	out := make([]func(T), 0, len(r.handlers))
	for _, fn := range r.handlers {
		out = append(out, fn)
	}
	return out
}

// safeInvoke isolates a misbehaving handler: a panic is logged and the
// remaining handlers still observe the event.
func safeInvoke[T any](log zerolog.Logger, fn func(T), evt T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("event handler panicked, ignoring")
		}
	}()
	fn(evt)
}
