package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	errQueueFull      = errors.New("notification queue full")
	errNotifierClosed = errors.New("notifier closed")
)

type notifierConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

func defaultNotifierConfig() notifierConfig {
	return notifierConfig{
		Workers:   4,
		QueueSize: 256,
		Timeout:   10 * time.Second,
	}
}

type notifyJob struct {
	url  string
	body []byte
	done func(error)
}

// httpNotifier posts JSON bodies from a bounded queue drained by a fixed
// pool of workers. Callers never wait on the HTTP round trip.
type httpNotifier struct {
	client *http.Client
	jobs   chan notifyJob
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	log zerolog.Logger
}

func newHTTPNotifier(cfg notifierConfig, logger zerolog.Logger) *httpNotifier {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	n := &httpNotifier{
		client: &http.Client{Timeout: cfg.Timeout},
		jobs:   make(chan notifyJob, cfg.QueueSize),
		log:    logger.With().Str("component", "notifier").Logger(),
	}
	n.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go n.worker()
	}
	return n
}

func (n *httpNotifier) notify(url string, body interface{}, done func(error)) {
	payload, err := json.Marshal(body)
	if err != nil {
		n.finish(done, fmt.Errorf("encode notification: %w", err))
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.finish(done, errNotifierClosed)
		return
	}
	select {
	case n.jobs <- notifyJob{url: url, body: payload, done: done}:
	default:
		mark("notify.dropped", 1)
		n.log.Warn().Str("url", url).Msg("Notification dropped, queue full.")
		n.finish(done, errQueueFull)
	}
}

// close stops accepting notifications and waits for queued ones to finish.
func (n *httpNotifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.jobs)
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *httpNotifier) worker() {
	defer n.wg.Done()
	for job := range n.jobs {
		err := n.post(job.url, job.body)
		if err != nil {
			incr("notify.failed", 1)
			n.log.Debug().Err(err).Str("url", job.url).Msg("Notification failed.")
		} else {
			incr("notify.sent", 1)
		}
		n.finish(job.done, err)
	}
}

func (n *httpNotifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request failed with status code %d", resp.StatusCode)
	}
	return nil
}

func (n *httpNotifier) finish(done func(error), err error) {
	if done != nil {
		done(err)
	}
}
