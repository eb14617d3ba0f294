package websocket

import (
	"net/http"
	"strings"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"agriscore/core"
	"agriscore/realtime"
)

const writeWait = 5 * time.Second

type options struct {
	buffer      int
	checkOrigin func(*http.Request) bool
	resolveUser func(*http.Request) core.UserID
}

// Option configures the WebSocket handler.
type Option func(*options)

// WithBuffer sets the per-connection event buffer.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithCheckOrigin overrides the upgrade origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(o *options) { o.checkOrigin = fn }
}

// WithUserResolver pins each connection to the user returned by fn, typically
// the authenticated caller. An empty id falls back to the ?user= query parameter.
func WithUserResolver(fn func(*http.Request) core.UserID) Option {
	return func(o *options) { o.resolveUser = fn }
}

// Handler returns an http.Handler that upgrades to WebSocket and streams events
// from the hub. Query parameters narrow the stream: user=<id> and
// types=<comma separated event types>.
func Handler(hub *realtime.Hub, opts ...Option) http.Handler {
	o := options{
		buffer:      256,
		checkOrigin: func(r *http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(&o)
	}
	upgrader := gorillaws.Upgrader{CheckOrigin: o.checkOrigin}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := filterFor(r, o.resolveUser)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		id, ch := hub.Subscribe(o.buffer, filter)
		defer hub.Unsubscribe(id)

		// the read side only exists to notice the client going away
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
					return
				}
			}
		}
	})
}

func filterFor(r *http.Request, resolve func(*http.Request) core.UserID) realtime.Filter {
	var f realtime.Filter
	if resolve != nil {
		f.UserID = resolve(r)
	}
	if f.UserID == "" {
		f.UserID = core.UserID(strings.TrimSpace(r.URL.Query().Get("user")))
	}
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, core.EventType(t))
			}
		}
	}
	return f
}
