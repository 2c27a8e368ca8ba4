// Package sse streams build progress of the preview server as Server-Sent
// Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/scimark/internal/service"
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types.
const (
	TypeBuildStarted  = "build.started"
	TypeBuildFinished = "build.finished"
	TypeBuildFailed   = "build.failed"
	TypeSourceChanged = "source.changed"
	TypeReload        = "preview.reload"
)

const clientBuffer = 64

var buildTypes = map[string]string{
	service.EventStarted:  TypeBuildStarted,
	service.EventFinished: TypeBuildFinished,
	service.EventFailed:   TypeBuildFailed,
}

// Broker fans events out to connected previews. One goroutine owns the
// client set, the event sequence, the last build message and the reload
// throttle; the public methods only send to it.
type Broker struct {
	reloadMin time.Duration
	keepAlive time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	eventCh       chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that sends preview.reload at most once per
// reloadThrottle.
func NewBroker(reloadThrottle time.Duration) *Broker {
	if reloadThrottle <= 0 {
		reloadThrottle = 2 * time.Second
	}
	b := &Broker{
		reloadMin:     reloadThrottle,
		keepAlive:     30 * time.Second,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		eventCh:       make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

// frame encodes an event with its sequence number as id.
func frame(seq uint64, e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, e.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq        uint64
		lastBuild  []byte
		lastReload time.Time
	)

	send := func(e Event) []byte {
		seq++
		msg, err := frame(seq, e)
		if err != nil {
			return nil
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default: // slow client misses this one
			}
		}
		return msg
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if lastBuild != nil {
				ch <- lastBuild
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.eventCh:
			msg := send(e)
			switch e.Type {
			case TypeBuildStarted, TypeBuildFailed:
				lastBuild = msg
			case TypeBuildFinished:
				lastBuild = msg
				if now := time.Now(); now.Sub(lastReload) >= b.reloadMin {
					lastReload = now
					send(Event{Type: TypeReload, Data: map[string]string{}})
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. A client joining after a build first
// receives that build's last event.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- e:
	case <-b.stopped:
	}
}

// PublishBuild implements service.Notifier. Unknown kinds are ignored.
func (b *Broker) PublishBuild(kind string, data any) {
	if t, ok := buildTypes[kind]; ok {
		b.Publish(Event{Type: t, Data: data})
	}
}

// PublishSourceChange announces changed source files.
func (b *Broker) PublishSourceChange(paths []string) {
	b.Publish(Event{Type: TypeSourceChanged, Data: map[string]any{"paths": paths}})
}

// ServeHTTP streams events to one client (GET /api/events) and writes a
// comment line every keep-alive interval so proxies keep the connection.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
