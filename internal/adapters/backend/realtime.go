package backend

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChangeEvent is a row change on a watched table.
type ChangeEvent struct {
	Table string // places | regions
	Type  string // INSERT | UPDATE | DELETE
}

// Realtime subscribes to the backend's phoenix-style change feed and invokes
// onEvent for every row change on the watched tables. The caller uses events
// only as cache-invalidation hints; losing the connection degrades to TTL
// expiry, so Run reconnects forever with jittered backoff and never fails.
type Realtime struct {
	url     string
	key     string
	tables  []string
	onEvent func(ChangeEvent)
	log     zerolog.Logger
}

func NewRealtime(base, key string, tables []string, onEvent func(ChangeEvent), log zerolog.Logger) *Realtime {
	wsBase := strings.TrimRight(base, "/")
	wsBase = strings.Replace(wsBase, "https://", "wss://", 1)
	wsBase = strings.Replace(wsBase, "http://", "ws://", 1)
	return &Realtime{
		url:     wsBase + "/realtime/v1/websocket?vsn=1.0.0&apikey=" + key,
		key:     key,
		tables:  tables,
		onEvent: onEvent,
		log:     log,
	}
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

func (r *Realtime) Run(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if err := r.session(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn().Err(err).Msg("realtime connection lost")
		}
		if !sleepCtx(ctx, backoff(min(attempt, 5))) {
			return
		}
	}
}

// session runs one websocket connection until it errors or ctx is done.
func (r *Realtime) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	var wmu sync.Mutex
	write := func(m phxMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(m)
	}

	for _, table := range r.tables {
		join := phxMessage{
			Topic:   "realtime:public:" + table,
			Event:   "phx_join",
			Payload: json.RawMessage(`{}`),
			Ref:     "join-" + table,
		}
		if err := write(join); err != nil {
			return err
		}
	}
	r.log.Info().Strs("tables", r.tables).Msg("realtime subscribed")

	// close the connection when ctx ends so ReadJSON unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// phoenix heartbeat keeps the subscription alive
	go func() {
		t := time.NewTicker(25 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				hb := phxMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: "hb"}
				if err := write(hb); err != nil {
					return
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	for {
		var m phxMessage
		if err := conn.ReadJSON(&m); err != nil {
			return err
		}
		switch m.Event {
		case "INSERT", "UPDATE", "DELETE":
			table := strings.TrimPrefix(m.Topic, "realtime:public:")
			r.onEvent(ChangeEvent{Table: table, Type: m.Event})
		case "phx_reply", "phx_close", "heartbeat":
			// control traffic, nothing to do
		}
	}
}
