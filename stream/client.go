package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"signalflow/logger"
	"signalflow/metrics"
	"signalflow/models"
	"signalflow/store"
)

// ConnState is the connection lifecycle state exposed to consumers.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	defaultHeartbeat   = 30 * time.Second
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 10
	writeTimeout       = 5 * time.Second
)

// CacheInvalidator is notified when the server pushes a message that makes
// cached REST responses stale.
type CacheInvalidator interface {
	Invalidate()
}

// Options configures a stream Client.
type Options struct {
	URL               string
	HeartbeatInterval time.Duration
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Store             *store.Store
	Cache             CacheInvalidator
	// ArchiveCh receives every new signal for archival. Sends never block;
	// a full channel drops the entry.
	ArchiveCh chan<- models.Signal
	Dialer    *websocket.Dialer
}

// Client owns exactly one websocket connection to the aggregator's live
// stream. It reconnects with a linearly growing, capped delay and fans typed
// messages out into the store. All socket writes go through writeJSON so the
// heartbeat goroutine and Send never interleave frames.
type Client struct {
	opts  Options
	log   *logger.Log
	wg    *sync.WaitGroup
	mu    sync.RWMutex
	conn  *websocket.Conn
	ctx   context.Context
	state atomic.Int32
	// attempts counts consecutive failed connection attempts since the
	// last successful open.
	attempts atomic.Int32
	running  bool
}

// NewClient creates a stream client. The store must not be nil.
func NewClient(opts Options) *Client {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeat
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts: opts,
		log:  logger.GetLogger(),
		wg:   &sync.WaitGroup{},
	}
}

// Start launches the connect/reconnect loop.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("stream client already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("stream_client").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"url":          c.opts.URL,
		"heartbeat":    c.opts.HeartbeatInterval.String(),
		"max_attempts": c.opts.MaxAttempts,
	}).Info("starting stream client")

	c.wg.Add(1)
	go c.run()

	return nil
}

// Stop waits for the connect loop to exit. The caller cancels the context
// passed to Start first.
func (c *Client) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.log.WithComponent("stream_client").Info("stopping stream client")
	c.wg.Wait()
	c.log.WithComponent("stream_client").Info("stream client stopped")
}

// State reports the current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Attempts reports consecutive failed connection attempts.
func (c *Client) Attempts() int {
	return int(c.attempts.Load())
}

// reconnectDelay grows linearly with the attempt count up to the cap.
func (c *Client) reconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(attempt) * c.opts.BaseDelay
	if delay > c.opts.MaxDelay {
		delay = c.opts.MaxDelay
	}
	return delay
}

func (c *Client) run() {
	defer c.wg.Done()

	log := c.log.WithComponent("stream_client").WithFields(logger.Fields{"worker": "connect_loop"})

	for {
		if c.ctx.Err() != nil {
			c.state.Store(int32(StateDisconnected))
			metrics.SetConnected(false)
			return
		}

		c.state.Store(int32(StateConnecting))

		conn, _, err := c.opts.Dialer.DialContext(c.ctx, c.opts.URL, nil)
		if err != nil {
			c.state.Store(int32(StateDisconnected))
			log.WithError(err).Warn("failed to connect to stream")
			if c.scheduleRetry(log) {
				return
			}
			continue
		}

		c.setConn(conn)
		c.attempts.Store(0)
		c.state.Store(int32(StateConnected))
		metrics.SetConnected(true)
		sessionID := uuid.New().String()
		log.WithFields(logger.Fields{"session_id": sessionID}).Info("stream connected")

		// closing the socket on cancellation unblocks the read loop
		connCtx, connCancel := context.WithCancel(c.ctx)
		go func() {
			<-connCtx.Done()
			conn.Close()
		}()

		c.startHeartbeat(connCtx)

		if err := c.readLoop(conn); err != nil && c.ctx.Err() == nil {
			log.WithError(err).Warn("stream read loop ended")
		}

		connCancel()
		c.setConn(nil)
		c.state.Store(int32(StateDisconnected))
		metrics.SetConnected(false)

		if c.ctx.Err() != nil {
			return
		}

		if c.scheduleRetry(log) {
			return
		}
	}
}

// scheduleRetry increments the attempt counter and sleeps the backoff delay.
// It returns true when the loop must stop, either because the retry budget is
// exhausted or the context was cancelled. Exhaustion is deliberate and quiet;
// the disconnected state is the only surface.
func (c *Client) scheduleRetry(log *logger.Entry) bool {
	attempt := int(c.attempts.Add(1))
	if attempt > c.opts.MaxAttempts {
		log.WithFields(logger.Fields{"attempts": attempt - 1}).Warn("reconnect attempts exhausted, giving up")
		return true
	}

	metrics.IncrementReconnect()
	delay := c.reconnectDelay(attempt)
	log.WithFields(logger.Fields{
		"attempt": attempt,
		"delay":   delay.String(),
	}).Info("scheduling reconnect")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) startHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.Send(models.PingCommand()) {
					return
				}
			}
		}
	}()
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(raw)
	}
}

// Send serializes a command and writes it to the socket when connected.
// Commands issued while disconnected are dropped; there is no queue.
func (c *Client) Send(cmd models.Command) bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || c.State() != StateConnected {
		metrics.IncrementCommandDropped()
		c.log.WithComponent("stream_client").WithFields(logger.Fields{
			"action": cmd.Action,
			"value":  cmd.Value,
		}).Debug("dropping command, stream not connected")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		metrics.IncrementCommandDropped()
		return false
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(cmd); err != nil {
		c.log.WithComponent("stream_client").WithError(err).Warn("failed to write command")
		return false
	}
	metrics.IncrementCommandSent()
	return true
}

// Subscribe asks the server to start pushing events for a token or channel.
func (c *Client) Subscribe(kind, value string) bool {
	return c.Send(models.SubscribeCommand(kind, value))
}

// Unsubscribe stops pushes for a token or channel.
func (c *Client) Unsubscribe(kind, value string) bool {
	return c.Send(models.UnsubscribeCommand(kind, value))
}

// Ping sends one heartbeat out of band.
func (c *Client) Ping() bool {
	return c.Send(models.PingCommand())
}
