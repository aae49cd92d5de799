package main

import (
	"encoding/json"
	"fmt"
)

const (
	defaultPromoteText   = "Hello Server!"
	defaultConnectedText = "Client Connected!"
	defaultConnectedPath = "web/chat_view_socket_reciver"
	defaultErrorPath     = "/admin/sent_whatsapp_admin"

	disconnectedText = "Client Disconnected!"
	closedStatus     = "Closed"
	errorStatus      = "Error Web Socket Server : "
)

// routerConfig selects the trigger texts and where connected events are
// posted. An empty NotifyTarget means the URL carried by the envelope.
type routerConfig struct {
	PromoteText   string `yaml:"promote_text"`
	ConnectedText string `yaml:"connected_text"`
	NotifyTarget  string `yaml:"notify_target"`
	ConnectedPath string `yaml:"connected_path"`
	ErrorPath     string `yaml:"error_path"`
}

func defaultRouterConfig() routerConfig {
	return routerConfig{
		PromoteText:   defaultPromoteText,
		ConnectedText: defaultConnectedText,
		ConnectedPath: defaultConnectedPath,
		ErrorPath:     defaultErrorPath,
	}
}

// frame wraps a payload with the identity it concerns.
type frame struct {
	ClientID string          `json:"client_id"`
	Message  json.RawMessage `json:"message"`
}

type forward struct {
	Message frame `json:"message"`
}

type statusReply struct {
	Status string `json:"status"`
}

type textMessage struct {
	Message interface{} `json:"message"`
}

// route applies the routing rules to one parsed envelope from c. The
// connected/promotion checks and the client_id routing are independent:
// one envelope may trigger both.
func (h *hub) route(c *connection, env *envelope) {
	if c == nil || h.conns[c.id] != c {
		mark("drops", 1)
		return
	}
	h.logs.append(fmt.Sprintf("Received from %s: %s", c.id, env.raw))

	if env.nested == h.cfg.ConnectedText {
		h.clientConnected(c, env)
	} else if env.text == h.cfg.PromoteText {
		h.promote(c)
	}

	if env.hasClientID {
		h.unicast(c, env)
	} else {
		h.broadcast(mustMarshal(frame{ClientID: c.id, Message: env.raw}))
	}
}

func (h *hub) clientConnected(c *connection, env *envelope) {
	target := env.url
	if h.cfg.NotifyTarget != "" {
		target = h.cfg.NotifyTarget
	}
	if target != "" {
		h.urls[target] = struct{}{}
		body := forward{Message: frame{ClientID: c.id, Message: env.raw}}
		h.notify.notify(target+h.cfg.ConnectedPath, body, func(err error) {
			if err != nil {
				h.logs.append(fmt.Sprintf("Error posting to %s: %s", target, err))
				return
			}
			h.logs.append(fmt.Sprintf("Forwarded to %s", target))
		})
	}
	h.logs.append(fmt.Sprintf("Connected Customer App Client ID : %s", c.id))
}

func (h *hub) promote(c *connection) {
	if _, ok := h.admins[c.id]; !ok {
		h.admins[c.id] = struct{}{}
		incr("admins", 1)
	}
	confirm := frame{
		ClientID: c.id,
		Message:  mustMarshal(textMessage{Message: fmt.Sprintf("You are now marked as an admin, client %s", c.id)}),
	}
	if err := c.deliver(mustMarshal(confirm)); err != nil {
		h.log.Debug().Err(err).Str("client", c.id).Msg("Admin confirmation not delivered.")
	}
	h.logs.append(fmt.Sprintf("Connected Admin ID : %s", c.id))
}

// unicast forwards the original envelope to the connection it names, or
// tells the sender the target is gone.
func (h *hub) unicast(c *connection, env *envelope) {
	target, ok := h.conns[env.clientID]
	if !ok {
		if err := c.deliver(mustMarshal(statusReply{Status: closedStatus})); err != nil {
			h.log.Debug().Err(err).Str("client", c.id).Msg("Closed status not delivered.")
		}
		return
	}
	if err := target.deliver(env.raw); err != nil {
		h.logs.append(fmt.Sprintf("Failed to send to %s", env.clientID))
		return
	}
	h.logs.append(fmt.Sprintf("Sent to %s", env.clientID))
}

// broadcast sends msg to every live admin. A failed send to one admin
// does not affect the others.
func (h *hub) broadcast(msg []byte) {
	for id := range h.admins {
		admin, ok := h.conns[id]
		if !ok {
			continue
		}
		if err := admin.deliver(msg); err != nil {
			h.log.Debug().Err(err).Str("admin", id).Msg("Broadcast not delivered.")
		}
	}
}

// fault records a payload from c that could not be parsed and reports it
// to every known URL.
func (h *hub) fault(c *connection, err error) {
	id := ""
	if c != nil {
		id = c.id
	}
	incr("parse.errors", 1)
	h.logs.append(fmt.Sprintf("Message parse error from %s: %s", id, err))
	body := statusReply{Status: errorStatus + err.Error()}
	for u := range h.urls {
		h.notify.notify(u+h.cfg.ErrorPath, body, nil)
	}
}

func (h *hub) disconnectNotice(id string) []byte {
	inner := mustMarshal(textMessage{Message: disconnectedText})
	return mustMarshal(frame{
		ClientID: id,
		Message:  mustMarshal(textMessage{Message: json.RawMessage(inner)}),
	})
}

// mustMarshal encodes values built from strings and already-valid JSON,
// which cannot fail.
func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return b
}
