package agent

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of the agent connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

const (
	defaultReconnectDelay   = 5 * time.Second
	defaultAskTimeout       = 60 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	authTokenTTL            = 10 * time.Minute
)

// Config controls the agent client.
type Config struct {
	// URL is the websocket address of the agent service.
	URL string

	// APIKey, when set, signs a short-lived bearer token sent with the
	// websocket handshake.
	APIKey string

	// ReconnectDelay is the fixed pause between reconnect attempts.
	ReconnectDelay time.Duration

	// AskTimeout is the per-request ceiling for Ask.
	AskTimeout time.Duration

	HandshakeTimeout time.Duration

	// OnState, when set, is invoked after every state transition.
	OnState func(State)
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.AskTimeout <= 0 {
		c.AskTimeout = defaultAskTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	return c
}

// Client maintains the long-lived connection to the agent service and
// multiplexes concurrent Ask calls over it. The run loop is the only
// writer of connection state and the session id; Ask only reads them.
type Client struct {
	cfg     Config
	log     zerolog.Logger
	pending *pendingTable

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	sessionID string

	kick chan struct{}
}

// New creates a Client. Call Run (or Start) to establish the connection.
func New(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		cfg:     cfg.withDefaults(),
		log:     log.With().Str("component", "agent").Logger(),
		pending: newPendingTable(),
		kick:    make(chan struct{}, 1),
	}
}

// Start runs the connection loop in its own goroutine.
func (c *Client) Start(ctx context.Context) {
	go c.Run(ctx)
}

// Run connects and keeps reconnecting until ctx is cancelled. Reconnects
// use a fixed delay with no cap: the service is expected to come back.
func (c *Client) Run(ctx context.Context) {
	for {
		err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.log.Warn().Err(err).
				Dur("retry_in", c.cfg.ReconnectDelay).
				Msg("agent connection lost")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		case <-c.kick:
		}
	}
}

// Kick requests an immediate reconnect attempt if the run loop is waiting
// out its delay. No-op while a connection attempt is already in progress.
func (c *Client) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the server-assigned session identifier, or "" while
// not Ready.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Pending reports the number of in-flight requests.
func (c *Client) Pending() int { return c.pending.size() }

// connectOnce performs one dial + login + read-loop cycle. It returns when
// the connection is lost for any reason, after tearing it down and failing
// every pending request.
func (c *Client) connectOnce(ctx context.Context) error {
	c.setState(StateConnecting)

	header := http.Header{}
	if c.cfg.APIKey != "" {
		token, err := signAuthToken(c.cfg.APIKey)
		if err != nil {
			c.teardown(err)
			return err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		c.teardown(err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateAuthenticating)

	// Close the socket when ctx is cancelled so the read loop unblocks.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.send(clientMessage{Event: eventLogin, Data: struct{}{}}); err != nil {
		c.teardown(err)
		return err
	}

	err = c.readLoop(conn)
	c.teardown(err)
	return err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := decodeServerMessage(raw)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		if stop := c.handleMessage(msg); stop {
			return errLoginRejected
		}
	}
}

var errLoginRejected = errors.New("agent: login rejected")

// handleMessage dispatches one decoded frame. Returns true when the
// connection should be abandoned.
func (c *Client) handleMessage(msg *serverMessage) bool {
	switch {
	case msg.Login != nil:
		if msg.Login.Status != loginStatusSuccess {
			// A failed login leaves the socket open but useless; recycle
			// it through the normal reconnect path.
			c.log.Error().Str("status", msg.Login.Status).Msg("agent login rejected")
			return true
		}
		c.mu.Lock()
		c.sessionID = msg.Login.SessionID
		c.mu.Unlock()
		c.setState(StateReady)
		c.log.Info().Str("session_id", msg.Login.SessionID).Msg("agent session established")

	case msg.Received != nil:
		consumed, abandoned := c.pending.ack(msg.Received.TaskID)
		switch {
		case !consumed:
			c.log.Warn().Str("task_id", msg.Received.TaskID).Msg("ack with no request awaiting it")
		case abandoned:
			// The caller gave up before the task id was known; now that it
			// is, tell the server not to run the task.
			if err := c.send(clientMessage{
				Event: eventCancelRequest,
				Data:  taskRefData{TaskID: msg.Received.TaskID},
			}); err != nil {
				c.log.Debug().Err(err).Str("task_id", msg.Received.TaskID).Msg("cancel for withdrawn request not sent")
			}
		}

	case msg.Response != nil:
		if !c.pending.resolve(msg.Response.TaskID, msg.Response.Response) {
			c.log.Warn().Str("task_id", msg.Response.TaskID).Msg("response for unknown task")
		}

	case msg.Err != nil:
		serr := &ServiceError{TaskID: msg.Err.TaskID, Message: msg.Err.Message}
		switch {
		case msg.Err.TaskID != "":
			if !c.pending.fail(msg.Err.TaskID, serr) {
				c.log.Warn().Str("task_id", msg.Err.TaskID).Str("message", msg.Err.Message).
					Msg("error for unknown task")
			}
		case c.pending.failOldest(serr):
		default:
			c.log.Error().Str("message", msg.Err.Message).Msg("agent service error")
		}

	case msg.Cancelled != nil:
		c.pending.fail(msg.Cancelled.TaskID, &ServiceError{
			TaskID:  msg.Cancelled.TaskID,
			Message: "request cancelled",
		})

	case msg.Logout != nil:
		c.log.Info().Msg("agent session closed by logout")

	case msg.Tool != nil:
		c.log.Debug().
			Str("event", msg.Event).
			Str("task_id", msg.Tool.TaskID).
			Str("tool", msg.Tool.ToolName).
			Msg("agent task progress")
	}
	return false
}

// teardown destroys the current connection wholesale: socket closed,
// session id cleared, every pending request failed.
func (c *Client) teardown(cause error) {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.sessionID = ""
	c.mu.Unlock()

	c.setState(StateDisconnected)
	c.pending.failAll(&TransportError{Err: cause})
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func (c *Client) send(msg clientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(msg)
}

// sendRequest enqueues p and writes the request while holding the
// connection lock, so the pending FIFO order always matches wire order.
// Acks are matched to requests in that order.
func (c *Client) sendRequest(p *pendingRequest, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.pending.add(p)
	err := c.conn.WriteJSON(clientMessage{
		Event: eventAgentRequest,
		Data:  agentRequestData{Message: text},
	})
	if err != nil {
		c.pending.remove(p)
		return err
	}
	return nil
}

// Ask sends one natural-language request and waits for the matching
// response. Safe for concurrent use; each call is correlated by the task
// id the server assigns in its acknowledgment. Exactly one of answer or
// error is produced per call, and the request is withdrawn from the
// pending table on every path.
func (c *Client) Ask(ctx context.Context, text string) (string, error) {
	if c.State() != StateReady {
		c.Kick()
		return "", ErrNotConnected
	}

	p := newPendingRequest()
	if err := c.sendRequest(p, text); err != nil {
		if errors.Is(err, ErrNotConnected) {
			return "", err
		}
		return "", &TransportError{Err: err}
	}

	timer := time.NewTimer(c.cfg.AskTimeout)
	defer timer.Stop()

	select {
	case res := <-p.done:
		return res.answer, res.err
	case <-timer.C:
		if c.pending.remove(p) {
			return "", ErrTimeout
		}
		// Lost the race: a result landed while the timer fired.
		res := <-p.done
		return res.answer, res.err
	case <-ctx.Done():
		if c.pending.remove(p) {
			return "", ctx.Err()
		}
		res := <-p.done
		return res.answer, res.err
	}
}

// Logout asks the service to discard the current session. The connection
// itself stays managed by the run loop.
func (c *Client) Logout() error {
	return c.send(clientMessage{Event: eventLogout, Data: struct{}{}})
}

func signAuthToken(apiKey string) (string, error) {
	claims := jwt.MapClaims{"exp": time.Now().Add(authTokenTTL).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(apiKey))
}
