package main

import (
	"fmt"

	"github.com/rs/zerolog"
)

type cmdType int

const (
	CONNECT cmdType = iota
	MESSAGE
	FAULT
	DISCONNECT
	STATS
)

func (c cmdType) String() string {
	switch c {
	case CONNECT:
		return "CONNECT"
	case MESSAGE:
		return "MESSAGE"
	case FAULT:
		return "FAULT"
	case DISCONNECT:
		return "DISCONNECT"
	case STATS:
		return "STATS"
	}
	return fmt.Sprintf("cmdType(%d)", int(c))
}

type command struct {
	cmd   cmdType
	conn  *connection
	env   *envelope
	err   error
	reply chan stats
}

type queue chan command

// notifier posts a JSON body to url without blocking the caller. done, when
// non-nil, is called once with the outcome.
type notifier interface {
	notify(url string, body interface{}, done func(error))
}

type stats struct {
	Connections int `json:"connections"`
	Admins      int `json:"admins"`
	URLs        int `json:"urls"`
}

// hub owns the registry of live connections, the admin set and the set of
// known notification URLs. All three are touched only by the goroutine
// running h.run, so every command sees a consistent view of them.
type hub struct {
	queue  queue
	conns  map[string]*connection
	admins map[string]struct{}
	urls   map[string]struct{}

	cfg    routerConfig
	newID  idGenerator
	logs   *logSink
	notify notifier
	log    zerolog.Logger
}

func newHub(cfg routerConfig, ids idGenerator, logs *logSink, n notifier, logger zerolog.Logger) *hub {
	h := &hub{
		queue:  make(queue, 256),
		conns:  make(map[string]*connection),
		admins: make(map[string]struct{}),
		urls:   make(map[string]struct{}),
		cfg:    cfg,
		newID:  ids,
		logs:   logs,
		notify: n,
		log:    logger.With().Str("component", "hub").Logger(),
	}
	if cfg.NotifyTarget != "" {
		h.urls[cfg.NotifyTarget] = struct{}{}
	}
	return h
}

func (h *hub) run() {
	for cmd := range h.queue {
		switch cmd.cmd {
		case CONNECT:
			h.connect(cmd.conn)
		case MESSAGE:
			h.route(cmd.conn, cmd.env)
		case FAULT:
			h.fault(cmd.conn, cmd.err)
		case DISCONNECT:
			h.disconnect(cmd.conn)
		case STATS:
			cmd.reply <- h.stats()
		default:
			panic(fmt.Sprintf("unexpected hub cmd: %v\n", cmd.cmd))
		}
	}
}

// snapshot asks the running hub for its current counts.
func (h *hub) snapshot() stats {
	reply := make(chan stats, 1)
	h.queue <- command{cmd: STATS, reply: reply}
	return <-reply
}

func (h *hub) stats() stats {
	return stats{
		Connections: len(h.conns),
		Admins:      len(h.admins),
		URLs:        len(h.urls),
	}
}

// connect assigns c a fresh identity and registers it.
func (h *hub) connect(c *connection) string {
	c.id = h.newID()
	if _, ok := h.conns[c.id]; ok {
		// A colliding generator would orphan the older connection.
		h.log.Error().Str("client", c.id).Msg("Duplicate client identity generated.")
	}
	h.conns[c.id] = c
	h.logs.append(fmt.Sprintf("Client connected with ID: %s. Total clients: %d", c.id, len(h.conns)))
	return c.id
}

// disconnect removes c from the registry and the admin set, then tells the
// remaining admins that it left. Unregistered connections are ignored.
func (h *hub) disconnect(c *connection) {
	if c == nil || c.id == "" {
		return
	}
	if registered, ok := h.conns[c.id]; !ok || registered != c {
		return
	}
	if _, ok := h.admins[c.id]; ok {
		delete(h.admins, c.id)
		decr("admins", 1)
	}
	delete(h.conns, c.id)
	c.close()

	h.broadcast(h.disconnectNotice(c.id))
	h.logs.append(fmt.Sprintf("Client with ID %s disconnected. Total clients: %d", c.id, len(h.conns)))
}

func (h *hub) isAdmin(id string) bool {
	_, ok := h.admins[id]
	return ok
}
