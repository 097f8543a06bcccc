// Package gateway implements the per-account Discord gateway client:
// the compressed WebSocket handshake, identify/resume, heartbeating and
// reconnect policy described in spec.md §4.1. It is purely inbound —
// outbound Midjourney commands go through the separate command
// transport collaborator (internal/transport).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrAlreadyStarting is returned by Start when a connect attempt for
// this account is already in flight.
var ErrAlreadyStarting = errors.New("gateway: connect already in progress for this account")

// ErrDisabled is returned by Start once the reconnect budget has been
// exhausted and the account has been disabled.
var ErrDisabled = errors.New("gateway: account disabled after repeated connect failures")

const (
	connectMutexTimeout = time.Minute
	closeGraceTimeout   = 5 * time.Second
	newConnectBackoff   = 5 * time.Second
	failureWindow       = 5 * time.Minute
	maxFailuresInWindow = 5
)

// ClientProperties are parsed once from the account's user-agent string
// and sent on every IDENTIFY (spec.md §4.1).
type ClientProperties struct {
	Browser string
	Version string
	Device  string
	OS      string
}

// ParseUserAgent derives the OS and the Chrome version from a standard
// UA string. Browser is always reported as "Chrome" and Device is
// always empty: other browser families and devices are not detected.
// An empty or unrecognised UA yields a generic desktop Chrome profile.
func ParseUserAgent(ua string) ClientProperties {
	props := ClientProperties{Browser: "Chrome", Version: "0.0", Device: "", OS: "Windows"}
	if ua == "" {
		return props
	}
	switch {
	case strings.Contains(ua, "Macintosh"):
		props.OS = "Mac OS X"
	case strings.Contains(ua, "Linux"):
		props.OS = "Linux"
	}
	if i := strings.Index(ua, "Chrome/"); i >= 0 {
		rest := ua[i+len("Chrome/"):]
		if sp := strings.IndexAny(rest, " ;"); sp >= 0 {
			rest = rest[:sp]
		}
		parts := strings.SplitN(rest, ".", 3)
		if len(parts) >= 2 {
			props.Version = parts[0] + "." + parts[1]
		}
	}
	return props
}

// Signals is the set of callbacks the Account Runtime registers to
// learn about this client's connection lifecycle (spec.md §4.1
// "operational signals").
type Signals struct {
	// OnDispatch delivers every decoded dispatch event other than
	// READY/RESUMED.
	OnDispatch func(DispatchEvent)
	// OnReady fires once per successful handshake (READY or RESUMED).
	OnReady func()
	// OnDisconnected fires whenever the socket drops, before any
	// reconnect attempt.
	OnDisconnected func(reason string)
	// OnDisabled fires once, when the reconnect budget is exhausted.
	// The client does not retry further after this.
	OnDisabled func(reason string)
}

// Config configures one account's Client.
type Config struct {
	AccountID   string
	UserToken   string
	UserAgent   string
	GatewayBase string // e.g. "wss://gateway.discord.gg"

	Signals Signals
	Logger  zerolog.Logger
}

// Client is one account's gateway connection. Create with New and call
// Start; Start blocks until the connection ends (spec.md §4.1's Open
// loop), so callers run it in its own goroutine.
type Client struct {
	cfg Config

	connectMu sync.Mutex
	starting  int32

	conn      *websocket.Conn
	writeMu   sync.Mutex
	stream    *zlibStream

	seq       atomic.Int64
	hasSeq    atomic.Bool
	sessionID atomic.Value // string
	resumeURL atomic.Value // string

	lastMessageAt atomic.Value // time.Time
	heartbeatSent chan time.Time
	latency       atomic.Int64 // nanoseconds
	ackPending    atomic.Bool

	failuresMu sync.Mutex
	failures   []time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Client for one account. It does not connect.
func New(cfg Config) *Client {
	if cfg.GatewayBase == "" {
		cfg.GatewayBase = "wss://gateway.discord.gg"
	}
	c := &Client{cfg: cfg, heartbeatSent: make(chan time.Time, 8)}
	c.sessionID.Store("")
	c.resumeURL.Store("")
	c.lastMessageAt.Store(time.Now())
	return c
}

// Start opens the connection and runs until a non-recoverable failure
// or the account is disabled. It is idempotent: a concurrent Start call
// while one is already running returns ErrAlreadyStarting immediately,
// and the one-minute connect mutex bounds how long a single handshake
// attempt may take (spec.md §4.1).
func (c *Client) Start(ctx context.Context, reconnect bool) error {
	if !atomic.CompareAndSwapInt32(&c.starting, 0, 1) {
		return ErrAlreadyStarting
	}
	defer atomic.StoreInt32(&c.starting, 0)

	for {
		err := c.connectOnce(ctx, reconnect)
		if err == nil {
			return nil // clean shutdown requested via ctx
		}
		if errors.Is(err, ErrDisabled) {
			return err
		}

		nextReconnect, wait := c.classifyFailure(err)
		c.cfg.Signals.OnDisconnected(err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		reconnect = nextReconnect
	}
}

// connectOnce performs one full connect-or-resume attempt and pumps
// events until the connection ends, returning the terminal error.
func (c *Client) connectOnce(parent context.Context, reconnect bool) error {
	if !c.connectMu.TryLock() {
		return ErrAlreadyStarting
	}
	defer c.connectMu.Unlock()

	ctx, cancel := context.WithTimeout(parent, connectMutexTimeout)
	defer cancel()

	runCtx, runCancel := context.WithCancel(parent)
	c.cancel = runCancel
	defer runCancel()

	url := c.cfg.GatewayBase + "?encoding=json&v=9&compress=zlib-stream"
	if reconnect {
		if ru, _ := c.resumeURL.Load().(string); ru != "" {
			url = ru + "?encoding=json&v=9&compress=zlib-stream"
		}
	}

	header := http.Header{}
	header.Set("User-Agent", c.cfg.UserAgent)
	header.Set("Accept-Encoding", "gzip, deflate, br")
	header.Set("Accept-Language", "en-US,en;q=0.9")
	header.Set("Cache-Control", "no-cache")
	header.Set("Sec-WebSocket-Extensions", "permessage-deflate; client_max_window_bits")

	dialer := websocket.Dialer{HandshakeTimeout: connectMutexTimeout}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		c.recordFailure()
		if c.shouldDisable() {
			c.disable(fmt.Sprintf("exceeded %d connect failures within %s: %v", maxFailuresInWindow, failureWindow, err))
			return ErrDisabled
		}
		return fmt.Errorf("gateway: dial: %w", err)
	}

	c.conn = conn
	c.stream = newZlibStream()
	c.touchLastMessage()

	canResume := reconnect && c.hasSeq.Load() && c.sessionID.Load().(string) != ""
	if canResume {
		if err := c.send(outboundFrame{Op: OpResume, Data: resumePayload{
			Token:     c.cfg.UserToken,
			SessionID: c.sessionID.Load().(string),
			Sequence:  c.seq.Load(),
		}}); err != nil {
			return fmt.Errorf("gateway: send resume: %w", err)
		}
	} else {
		if err := c.send(outboundFrame{Op: OpIdentify, Data: c.identifyPayload()}); err != nil {
			return fmt.Errorf("gateway: send identify: %w", err)
		}
	}

	err = c.pump(runCtx)
	if err == nil && parent.Err() == nil {
		// runCtx was cancelled by the heartbeat loop, not by the caller.
		err = c.handleFailure(CloseCodeResumeMarker, "heartbeat ack missing")
	}
	c.conn.Close()
	c.stream.Close()
	return err
}

func (c *Client) identifyPayload() identifyPayload {
	props := ParseUserAgent(c.cfg.UserAgent)
	return identifyPayload{
		Token:        c.cfg.UserToken,
		Capabilities: 16381,
		Properties: identifyProperties{
			OS:      props.OS,
			Browser: props.Browser,
			Device:  props.Device,
		},
		Presence: identifyPresence{Status: "online"},
	}
}

// pump reads frames until the connection ends, dispatching each one.
func (c *Client) pump(ctx context.Context) error {
	var heartbeatCancel context.CancelFunc
	defer func() {
		if heartbeatCancel != nil {
			heartbeatCancel()
		}
	}()

	readErrCh := make(chan error, 1)
	frameCh := make(chan Frame, 32)

	go func() {
		for {
			mt, data, err := c.conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}
			frame, ferr := c.decodeFrame(mt, data)
			if ferr != nil {
				c.cfg.Logger.Warn().Err(ferr).Str("account", c.cfg.AccountID).Msg("failed to decode gateway frame")
				continue
			}
			select {
			case frameCh <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.closeGracefully(websocket.CloseNormalClosure)
			return nil

		case err := <-readErrCh:
			code, reason := classifyCloseError(err)
			return c.handleFailure(code, reason)

		case frame := <-frameCh:
			c.touchLastMessage()
			if frame.Sequence != nil {
				c.seq.Store(*frame.Sequence)
				c.hasSeq.Store(true)
			}

			switch frame.Op {
			case OpDispatch:
				if err := c.handleDispatch(frame); err != nil {
					return err
				}
			case OpHeartbeat:
				if err := c.send(outboundFrame{Op: OpHeartbeat, Data: c.seq.Load()}); err != nil {
					return fmt.Errorf("gateway: heartbeat reply: %w", err)
				}
			case OpReconnect:
				c.closeGracefully(CloseCodeResumeMarker)
				return c.handleFailure(CloseCodeResumeMarker, "server requested reconnect")
			case OpInvalidSession:
				c.sessionID.Store("")
				c.resumeURL.Store("")
				c.hasSeq.Store(false)
				return fmt.Errorf("gateway: invalid session")
			case OpHello:
				var hello helloPayload
				if err := json.Unmarshal(frame.Data, &hello); err != nil {
					return fmt.Errorf("gateway: decode hello: %w", err)
				}
				interval := time.Duration(hello.HeartbeatIntervalMs) * time.Millisecond
				var hbCtx context.Context
				hbCtx, heartbeatCancel = context.WithCancel(ctx)
				go c.heartbeatLoop(hbCtx, interval)
			case OpHeartbeatAck:
				select {
				case sent := <-c.heartbeatSent:
					c.latency.Store(int64(time.Since(sent)))
				default:
				}
				c.ackPending.Store(false)
			}
		}
	}
}

func (c *Client) handleDispatch(frame Frame) error {
	switch frame.Type {
	case "READY":
		var ready readyPayload
		if err := json.Unmarshal(frame.Data, &ready); err != nil {
			return fmt.Errorf("gateway: decode ready: %w", err)
		}
		c.sessionID.Store(ready.SessionID)
		c.resumeURL.Store(ready.ResumeGatewayURL)
		c.clearFailures()
		c.cfg.Signals.OnReady()
	case "RESUMED":
		c.clearFailures()
		c.cfg.Signals.OnReady()
	default:
		if ev, ok := decodeDispatch(c.cfg.AccountID, frame); ok {
			c.cfg.Signals.OnDispatch(ev)
		}
	}
	return nil
}

// heartbeatLoop implements spec.md §4.1's heartbeat task: raise a
// reconnect-coded failure if an ack is outstanding and the interval has
// elapsed with no inbound message, otherwise send and sleep
// interval*uniform(0.9,1.0) minus current latency (floor 0).
func (c *Client) heartbeatLoop(ctx context.Context, interval time.Duration) {
	// The first beat goes out immediately; each later beat waits the
	// jittered interval.
	for {
		if c.ackPending.Load() {
			last, _ := c.lastMessageAt.Load().(time.Time)
			if time.Since(last) > interval {
				c.cancelConnection()
				return
			}
		}

		select {
		case c.heartbeatSent <- time.Now():
		default:
		}
		c.ackPending.Store(true)
		if err := c.send(outboundFrame{Op: OpHeartbeat, Data: c.seq.Load()}); err != nil {
			c.cancelConnection()
			return
		}

		jittered := time.Duration(float64(interval) * (0.9 + 0.1*rand.Float64()))
		sleep := jittered - time.Duration(c.latency.Load())
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (c *Client) cancelConnection() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) send(frame outboundFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

func (c *Client) closeGracefully(statusCode int) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(closeGraceTimeout)
	msg := websocket.FormatCloseMessage(statusCode, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
}

func (c *Client) decodeFrame(messageType int, data []byte) (Frame, error) {
	if messageType == websocket.BinaryMessage {
		decompressed, err := c.stream.Decompress(data)
		if err != nil && len(decompressed) == 0 {
			return Frame{}, err
		}
		data = decompressed
	}
	var f Frame
	err := json.Unmarshal(bytes.TrimSpace(data), &f)
	return f, err
}

func (c *Client) touchLastMessage() {
	c.lastMessageAt.Store(time.Now())
}

// Latency returns the most recent heartbeat round-trip time.
func (c *Client) Latency() time.Duration {
	return time.Duration(c.latency.Load())
}

// handleFailure is spec.md §4.1's handle_failure funnel: classify a
// close code/reason and decide whether the next attempt resumes or
// starts fresh, folding the decision into the returned error so the
// Start loop's classifyFailure can act on it.
func (c *Client) handleFailure(code int, reason string) error {
	switch {
	case code >= 4000:
		c.sessionID.Store("")
		c.resumeURL.Store("")
		c.hasSeq.Store(false)
	case code == CloseCodeResumeMarker:
		// keep session/seq, eligible to resume
	case code == CloseCodeException:
		c.sessionID.Store("")
		c.resumeURL.Store("")
		c.hasSeq.Store(false)
	default:
		c.sessionID.Store("")
		c.resumeURL.Store("")
		c.hasSeq.Store(false)
	}
	return fmt.Errorf("gateway: closed code=%d reason=%s", code, reason)
}

// classifyFailure decides, from the error returned by connectOnce,
// whether the next Start loop iteration should attempt a resume and
// how long to wait first.
func (c *Client) classifyFailure(err error) (reconnect bool, wait time.Duration) {
	msg := err.Error()
	if strings.Contains(msg, fmt.Sprintf("code=%d", CloseCodeResumeMarker)) {
		return true, 0
	}
	return false, newConnectBackoff
}

func classifyCloseError(err error) (code int, reason string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	return CloseCodeException, err.Error()
}

func (c *Client) recordFailure() {
	c.failuresMu.Lock()
	defer c.failuresMu.Unlock()
	now := time.Now()
	c.failures = append(c.failures, now)
	cutoff := now.Add(-failureWindow)
	kept := c.failures[:0]
	for _, t := range c.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.failures = kept
}

func (c *Client) shouldDisable() bool {
	c.failuresMu.Lock()
	defer c.failuresMu.Unlock()
	return len(c.failures) > maxFailuresInWindow
}

func (c *Client) clearFailures() {
	c.failuresMu.Lock()
	defer c.failuresMu.Unlock()
	c.failures = nil
}

func (c *Client) disable(reason string) {
	c.cfg.Signals.OnDisabled(reason)
}
