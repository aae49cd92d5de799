package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type wsHandler struct {
	h         *hub
	ticker    *mTicker
	upgrader  *websocket.Upgrader
	readLimit int64
	log       zerolog.Logger
}

func newWsHandler(h *hub, ticker *mTicker, origin string, readLimit int64, logger zerolog.Logger) wsHandler {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return origin == "" || r.Header.Get("Origin") == origin
		},
	}
	return wsHandler{
		h:         h,
		ticker:    ticker,
		upgrader:  upgrader,
		readLimit: readLimit,
		log:       logger.With().Str("component", "websocket").Logger(),
	}
}

func (wsh wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := wsh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsh.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Failed to upgrade connection.")
		return
	}
	c := newConnection(newWsFrameConn(ws, wsh.readLimit), wsh.h, wsh.ticker)
	c.run()
}

type logsHandler struct {
	logs *logSink
}

func (lh logsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, lh.logs.snapshot())
}

type statusHandler struct {
	h *hub
}

func (sh statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, sh.h.snapshot())
}

type metricsHandler struct{}

func (metricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	m.writeOnce(w)
}

type viewerHandler struct{}

func (viewerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(viewerPage))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not Found", http.StatusNotFound)
}

func sendBadRequestError(w http.ResponseWriter, str string) {
	http.Error(w,
		fmt.Sprintf("Error: bad request. %s", str),
		http.StatusBadRequest)
}

func notUpgrade(w http.ResponseWriter, r *http.Request) {
	sendBadRequestError(w, "Expected a websocket upgrade.")
}
