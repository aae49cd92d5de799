// Command pingrelay relays JSON messages between websocket clients.
//
//	pingrelay --addr=:9001 --http-addr=:3000
//
// Every connection gets an identity when it opens. A client that sends
//
//	{"message": "Hello Server!"}
//
// becomes an admin. Messages carrying a "client_id" go to that connection
// only, or are answered with {"status": "Closed"} when it is gone. All
// other messages are wrapped as {"client_id": <sender>, "message": <msg>}
// and sent to every admin. A message whose nested message.message is
// "Client Connected!" is also posted to the URL it carries.
//
// Nothing is persisted. Delivery is best effort.
//
// The second listener serves the event log as JSON at /logs, a viewer for
// it at /, counters at /metrics and live counts at /status.
package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/facebookgo/httpdown"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "pingrelay").Logger()

	cfg, err := parseConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	r, err := newRelay(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize relay")
	}
	startMetrics(logger.With().Str("component", "metrics").Logger(), cfg.MetricsTick)

	hd := &httpdown.HTTP{
		StopTimeout: cfg.StopTimeout,
		KillTimeout: cfg.KillTimeout,
	}
	relaySrv, err := hd.ListenAndServe(&http.Server{Addr: cfg.RelayAddr, Handler: r.relayHandler()})
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RelayAddr).Msg("Failed to listen for websockets")
	}
	logger.Info().Str("addr", cfg.RelayAddr).Msg("WebSocket server listening")
	httpSrv, err := hd.ListenAndServe(&http.Server{Addr: cfg.HTTPAddr, Handler: r.httpHandler()})
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.HTTPAddr).Msg("Failed to listen for http")
	}
	logger.Info().Str("addr", cfg.HTTPAddr).Msg("Log viewer listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	logger.Info().Str("signal", (<-sig).String()).Msg("Shutting down")

	for _, srv := range []httpdown.Server{relaySrv, httpSrv} {
		if err := srv.Stop(); err != nil {
			logger.Error().Err(err).Msg("Server stop failed")
		}
	}
	r.close()
	finalMetrics()
}

// relay wires the hub to its collaborators.
type relay struct {
	cfg      *config
	hub      *hub
	logs     *logSink
	notifier *httpNotifier
	ticker   *mTicker
	log      zerolog.Logger
}

func newRelay(cfg *config, logger zerolog.Logger) (*relay, error) {
	ids, err := newIDGenerator(cfg.IDs)
	if err != nil {
		return nil, err
	}
	logs := newLogSink(logCapacity, logger)
	n := newHTTPNotifier(cfg.Notifier, logger)
	h := newHub(cfg.Router, ids, logs, n, logger)
	go h.run()
	return &relay{
		cfg:      cfg,
		hub:      h,
		logs:     logs,
		notifier: n,
		ticker:   newMTicker(pingPeriod),
		log:      logger,
	}, nil
}

func (r *relay) relayHandler() http.Handler {
	handler := mux.NewRouter()

	// Requests with these headers will use the websocket handler
	handler.NewRoute().HeadersRegexp(
		"Connection", "(?i)upgrade",
		"Upgrade", "(?i)websocket",
	).Handler(newWsHandler(r.hub, r.ticker, r.cfg.Origin, r.cfg.ReadLimit, r.log))

	handler.NotFoundHandler = http.HandlerFunc(notUpgrade)
	return handler
}

func (r *relay) httpHandler() http.Handler {
	handler := mux.NewRouter()
	handler.Methods("GET").PathPrefix("/logs").Handler(logsHandler{logs: r.logs})
	handler.Methods("GET").Path("/metrics").Handler(metricsHandler{})
	handler.Methods("GET").Path("/status").Handler(statusHandler{h: r.hub})
	handler.Methods("GET").Path("/").Handler(viewerHandler{})
	handler.NotFoundHandler = http.HandlerFunc(notFound)
	handler.MethodNotAllowedHandler = http.HandlerFunc(notFound)
	return handler
}

func (r *relay) close() {
	r.ticker.stop()
	r.notifier.close()
}
