package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tiancaiamao/acp/pkg/acp"
	"github.com/tiancaiamao/acp/pkg/logger"
	"github.com/tiancaiamao/acp/pkg/workspace"
)

// Wire is the subprocess transport the client drives. Satisfied by
// *transport.Transport; tests substitute a loopback.
type Wire interface {
	Start() error
	Send(payload []byte) error
	Stop()
	SetMessageHandler(fn func(json.RawMessage))
	SetExitHandler(fn func(err error))
}

// ReconnectPolicy bounds automatic restarts after unexpected agent death.
type ReconnectPolicy struct {
	Enabled     bool
	MaxAttempts int
	Delay       time.Duration
}

// Options tunes the client. Zero values fall back to defaults.
type Options struct {
	RequestTimeout time.Duration // sync request wait, default 100s
	ReadyTimeout   time.Duration // WaitReady default, 10s
	Reconnect      ReconnectPolicy
	// AuthMethod, when set, is the auth method id to use if the agent
	// advertises authentication.
	AuthMethod    string
	ClientName    string
	ClientVersion string
}

const (
	defaultRequestTimeout = 100 * time.Second
	defaultReadyTimeout   = 10 * time.Second
	defaultReconnectMax   = 3
	defaultReconnectDelay = 2 * time.Second
	readyPollInterval     = 100 * time.Millisecond
)

func (o *Options) fillDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = defaultReadyTimeout
	}
	if o.Reconnect.MaxAttempts <= 0 {
		o.Reconnect.MaxAttempts = defaultReconnectMax
	}
	if o.Reconnect.Delay <= 0 {
		o.Reconnect.Delay = defaultReconnectDelay
	}
	if o.ClientName == "" {
		o.ClientName = "acp"
	}
}

// UpdateHandler receives every session/update notification in arrival
// order.
type UpdateHandler func(n acp.SessionNotification)

// PermissionHandler answers session/request_permission. The resolve
// callback must be invoked exactly once; extra invocations are ignored.
type PermissionHandler func(req acp.RequestPermissionRequest, resolve func(acp.RequestPermissionResponse))

// StateHandler observes connection state transitions.
type StateHandler func(old, new ConnState)

// ErrorHandler receives connection-level failures that are not tied to
// any one request, such as the agent process dying.
type ErrorHandler func(err *acp.Error)

// ReadFileHandler overrides the default FileAccessor bridge for
// fs/read_text_file. respond must be invoked exactly once; extra
// invocations are ignored.
type ReadFileHandler func(path string, line, limit *int, respond func(content string, rpcErr *acp.Error))

// WriteFileHandler overrides the default FileAccessor bridge for
// fs/write_text_file. Same exactly-once contract as ReadFileHandler.
type WriteFileHandler func(path, content string, respond func(rpcErr *acp.Error))

type pendingCall struct {
	method string
	fn     func(result json.RawMessage, rpcErr *acp.Error)
}

// Client is an editor-side ACP connection to one agent subprocess. All
// exported methods are safe for concurrent use.
type Client struct {
	wire Wire
	log  *logger.Logger
	fs   workspace.FileAccessor
	opts Options

	mu        sync.Mutex
	state     ConnState
	nextID    int64
	pending   map[int64]*pendingCall
	reconnect int // attempts consumed since the last fresh Connect

	protocolVersion int
	agentCaps       acp.AgentCapabilities
	authMethods     []acp.AuthMethod
	sessions        map[string]bool

	onUpdate     UpdateHandler
	onPermission PermissionHandler
	onState      StateHandler
	onError      ErrorHandler
	onReadFile   ReadFileHandler
	onWriteFile  WriteFileHandler
}

// New builds a client over the given wire. fs answers the agent's file
// system requests; pass a workspace.DiskFS for plain disk access.
func New(wire Wire, fs workspace.FileAccessor, log *logger.Logger, opts Options) *Client {
	opts.fillDefaults()
	c := &Client{
		wire:     wire,
		log:      log,
		fs:       fs,
		opts:     opts,
		state:    StateDisconnected,
		nextID:   0,
		pending:  make(map[int64]*pendingCall),
		sessions: make(map[string]bool),
	}
	wire.SetMessageHandler(c.handleMessage)
	wire.SetExitHandler(c.handleExit)
	return c
}

// Handlers may be installed or swapped at any time, including while the
// reader goroutine is dispatching.
func (c *Client) SetUpdateHandler(fn UpdateHandler) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

func (c *Client) SetPermissionHandler(fn PermissionHandler) {
	c.mu.Lock()
	c.onPermission = fn
	c.mu.Unlock()
}

func (c *Client) SetStateHandler(fn StateHandler) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Client) SetErrorHandler(fn ErrorHandler) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Client) SetReadFileHandler(fn ReadFileHandler) {
	c.mu.Lock()
	c.onReadFile = fn
	c.mu.Unlock()
}

func (c *Client) SetWriteFileHandler(fn WriteFileHandler) {
	c.mu.Lock()
	c.onWriteFile = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the agent process is up, whatever the
// handshake progress.
func (c *Client) IsConnected() bool {
	s := c.State()
	return s == StateConnected || s == StateInitializing || s == StateReady
}

// IsReady reports whether the handshake has completed and session
// operations are available.
func (c *Client) IsReady() bool {
	return c.State() == StateReady
}

// setState must be called without c.mu held.
func (c *Client) setState(next ConnState) {
	c.mu.Lock()
	old := c.state
	c.state = next
	fn := c.onState
	c.mu.Unlock()

	if old != next {
		c.log.Debug("connection state: %s -> %s", old, next)
		if fn != nil {
			fn(old, next)
		}
	}
}

// Connect spawns the agent process. It is a no-op unless the client is
// disconnected, so racing callers cannot double-spawn.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		c.log.Debug("connect skipped, state is %s", state)
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.wire.Start(); err != nil {
		c.setState(StateErrored)
		return err
	}
	c.setState(StateConnected)
	return nil
}

// Initialize performs the version and capability handshake, then
// authenticates when both sides want it. On success the client is Ready.
func (c *Client) Initialize() error {
	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		return acp.ProtocolError("initialize requires a connected agent, state is %s", state)
	}
	c.state = StateInitializing
	c.mu.Unlock()

	req := acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersion,
		ClientCapabilities: &acp.ClientCapabilities{
			Fs: &acp.FileSystemCapability{ReadTextFile: true, WriteTextFile: true},
		},
		ClientInfo: &acp.ClientInfo{Name: c.opts.ClientName, Version: c.opts.ClientVersion},
	}

	raw, rpcErr := c.call(acp.MethodInitialize, req)
	if rpcErr != nil {
		c.setState(StateErrored)
		return rpcErr
	}

	var resp acp.InitializeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.setState(StateErrored)
		return acp.ProtocolError("bad initialize response: %v", err)
	}

	c.mu.Lock()
	c.protocolVersion = resp.ProtocolVersion
	if resp.AgentCapabilities != nil {
		c.agentCaps = *resp.AgentCapabilities
	}
	c.authMethods = resp.AuthMethods
	c.mu.Unlock()

	if resp.ProtocolVersion > acp.ProtocolVersion {
		c.log.Warn("agent negotiated protocol version %d, client speaks %d", resp.ProtocolVersion, acp.ProtocolVersion)
	}

	if len(resp.AuthMethods) > 0 && c.opts.AuthMethod != "" {
		if err := c.authenticate(c.opts.AuthMethod); err != nil {
			c.setState(StateErrored)
			return err
		}
	}

	c.setState(StateReady)
	c.log.Info("agent ready, protocol version %d", resp.ProtocolVersion)
	return nil
}

// Authenticate runs the authenticate request for the given method id.
// Normally called automatically from Initialize when Options.AuthMethod
// is set, but exposed for agents that demand auth lazily.
func (c *Client) Authenticate(methodID string) error {
	if !c.IsConnected() {
		return acp.TransportError("not connected")
	}
	return c.authenticate(methodID)
}

func (c *Client) authenticate(methodID string) error {
	c.mu.Lock()
	known := false
	for _, m := range c.authMethods {
		if m.ID == methodID {
			known = true
			break
		}
	}
	c.mu.Unlock()
	if !known {
		c.log.Warn("auth method %q not advertised by agent", methodID)
	}

	_, rpcErr := c.call(acp.MethodAuthenticate, acp.AuthenticateRequest{MethodID: methodID})
	if rpcErr != nil {
		return acp.NewError(acp.CodeAuthRequired, "authentication with %q failed: %s", methodID, rpcErr.Message)
	}
	return nil
}

// NewSession creates a session rooted at cwd and returns its id.
func (c *Client) NewSession(cwd string, mcpServers []acp.McpServer) (string, error) {
	if err := c.requireReady(); err != nil {
		return "", err
	}
	if mcpServers == nil {
		mcpServers = []acp.McpServer{}
	}
	raw, rpcErr := c.call(acp.MethodSessionNew, acp.NewSessionRequest{Cwd: cwd, McpServers: mcpServers})
	if rpcErr != nil {
		return "", rpcErr
	}
	var resp acp.NewSessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", acp.ProtocolError("bad session/new response: %v", err)
	}
	if resp.SessionID == "" {
		return "", acp.ProtocolError("agent returned empty session id")
	}

	c.mu.Lock()
	c.sessions[resp.SessionID] = true
	c.mu.Unlock()
	c.log.Info("session created: %s", resp.SessionID)
	return resp.SessionID, nil
}

// LoadSession replays a previous session. Requires the agent to
// advertise the loadSession capability; historical updates arrive
// through the update handler before LoadSession returns.
func (c *Client) LoadSession(sessionID, cwd string, mcpServers []acp.McpServer) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	c.mu.Lock()
	canLoad := c.agentCaps.LoadSession
	c.mu.Unlock()
	if !canLoad {
		c.log.Warn("agent does not support session/load")
		return acp.NewError(acp.CodeSessionNotFound, "agent does not support loading sessions")
	}
	if mcpServers == nil {
		mcpServers = []acp.McpServer{}
	}
	req := acp.LoadSessionRequest{SessionID: sessionID, Cwd: cwd, McpServers: mcpServers}
	if _, rpcErr := c.call(acp.MethodSessionLoad, req); rpcErr != nil {
		return rpcErr
	}

	c.mu.Lock()
	c.sessions[sessionID] = true
	c.mu.Unlock()
	c.log.Info("session loaded: %s", sessionID)
	return nil
}

// Prompt sends a user turn and blocks until the turn ends, returning
// the agent's stop reason. Streaming output arrives through the update
// handler while Prompt waits.
func (c *Client) Prompt(sessionID string, blocks []acp.ContentBlock) (acp.StopReason, error) {
	if err := c.requireSession(sessionID); err != nil {
		return "", err
	}
	raw, rpcErr := c.call(acp.MethodSessionPrompt, acp.PromptRequest{SessionID: sessionID, Prompt: blocks})
	if rpcErr != nil {
		return "", rpcErr
	}
	var resp acp.PromptResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", acp.ProtocolError("bad session/prompt response: %v", err)
	}
	return resp.StopReason, nil
}

// PromptAsync sends a user turn and invokes fn exactly once when the
// turn ends or fails.
func (c *Client) PromptAsync(sessionID string, blocks []acp.ContentBlock, fn func(stop acp.StopReason, err error)) {
	if err := c.requireSession(sessionID); err != nil {
		fn("", err)
		return
	}
	c.send(acp.MethodSessionPrompt, acp.PromptRequest{SessionID: sessionID, Prompt: blocks},
		func(raw json.RawMessage, rpcErr *acp.Error) {
			if rpcErr != nil {
				fn("", rpcErr)
				return
			}
			var resp acp.PromptResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				fn("", acp.ProtocolError("bad session/prompt response: %v", err))
				return
			}
			fn(resp.StopReason, nil)
		})
}

// CancelSession asks the agent to stop the session's current turn. Fire
// and forget: the in-flight prompt still completes with its own stop
// reason, normally cancelled.
func (c *Client) CancelSession(sessionID string) error {
	if err := c.requireSession(sessionID); err != nil {
		return err
	}
	msg, err := acp.NewNotification(acp.MethodSessionCancel, acp.CancelNotification{SessionID: sessionID})
	if err != nil {
		return acp.ProtocolError("encode cancel: %v", err)
	}
	payload, err := msg.Encode()
	if err != nil {
		return acp.ProtocolError("encode cancel: %v", err)
	}
	return c.wire.Send(payload)
}

// WaitReady blocks until the client reaches Ready or timeout elapses.
// A non-positive timeout uses the configured default.
func (c *Client) WaitReady(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.opts.ReadyTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		switch c.State() {
		case StateReady:
			return nil
		case StateErrored:
			return acp.TransportError("connection failed while waiting for ready")
		}
		if time.Now().After(deadline) {
			return acp.TimeoutError("agent not ready after %s", timeout)
		}
		time.Sleep(readyPollInterval)
	}
}

// WaitReadyAsync is the callback form of WaitReady. fn is invoked
// exactly once, with nil on success or a typed error on failure or
// timeout.
func (c *Client) WaitReadyAsync(timeout time.Duration, fn func(err error)) {
	go func() {
		fn(c.WaitReady(timeout))
	}()
}

// Stop tears the connection down, failing every in-flight request. A
// later Connect starts over with a fresh reconnect budget.
func (c *Client) Stop() {
	c.wire.Stop()

	c.mu.Lock()
	c.reconnect = 0
	c.sessions = make(map[string]bool)
	pending := c.pending
	c.pending = make(map[int64]*pendingCall)
	c.mu.Unlock()

	for _, p := range pending {
		p.fn(nil, acp.TransportError("connection closed"))
	}
	c.setState(StateDisconnected)
}

func (c *Client) requireReady() error {
	if !c.IsReady() {
		return acp.TransportError("client not ready, state is %s", c.State())
	}
	return nil
}

func (c *Client) requireSession(sessionID string) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	c.mu.Lock()
	known := c.sessions[sessionID]
	c.mu.Unlock()
	if !known {
		return acp.NewError(acp.CodeSessionNotFound, "unknown session %q", sessionID)
	}
	return nil
}

// send issues a request and registers fn for its response. fn runs
// exactly once, on the reader goroutine or inline on send failure.
func (c *Client) send(method string, params any, fn func(result json.RawMessage, rpcErr *acp.Error)) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = &pendingCall{method: method, fn: fn}
	c.mu.Unlock()

	fail := func(rpcErr *acp.Error) {
		c.mu.Lock()
		_, live := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if live {
			fn(nil, rpcErr)
		}
	}

	msg, err := acp.NewRequest(id, method, params)
	if err != nil {
		fail(acp.ProtocolError("encode %s: %v", method, err))
		return
	}
	payload, err := msg.Encode()
	if err != nil {
		fail(acp.ProtocolError("encode %s: %v", method, err))
		return
	}
	if err := c.wire.Send(payload); err != nil {
		if rpcErr, ok := err.(*acp.Error); ok {
			fail(rpcErr)
		} else {
			fail(acp.TransportError("%v", err))
		}
	}
}

// call is the synchronous form of send, bounded by the request timeout.
func (c *Client) call(method string, params any) (json.RawMessage, *acp.Error) {
	type outcome struct {
		result json.RawMessage
		rpcErr *acp.Error
	}
	ch := make(chan outcome, 1)
	c.send(method, params, func(result json.RawMessage, rpcErr *acp.Error) {
		ch <- outcome{result, rpcErr}
	})

	select {
	case o := <-ch:
		return o.result, o.rpcErr
	case <-time.After(c.opts.RequestTimeout):
		return nil, acp.TimeoutError("%s timed out after %s", method, c.opts.RequestTimeout)
	}
}

// handleExit reacts to the agent dying out from under us.
func (c *Client) handleExit(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		if err != nil {
			fn(acp.TransportError("agent process exited: %v", err))
		} else {
			fn(acp.TransportError("agent process exited"))
		}
	}

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingCall)
	// A restarted agent has no memory of our sessions.
	c.sessions = make(map[string]bool)
	c.mu.Unlock()

	for _, p := range pending {
		p.fn(nil, acp.TransportError("agent process exited"))
	}
	c.setState(StateDisconnected)

	if !c.opts.Reconnect.Enabled {
		return
	}

	c.mu.Lock()
	if c.reconnect >= c.opts.Reconnect.MaxAttempts {
		c.mu.Unlock()
		c.log.Error("agent died and reconnect budget is spent (%d attempts)", c.opts.Reconnect.MaxAttempts)
		c.setState(StateErrored)
		return
	}
	c.reconnect++
	attempt := c.reconnect
	c.mu.Unlock()

	c.log.Warn("agent died, reconnecting in %s (attempt %d/%d)",
		c.opts.Reconnect.Delay, attempt, c.opts.Reconnect.MaxAttempts)

	time.AfterFunc(c.opts.Reconnect.Delay, func() {
		// The user may have reconnected or stopped on purpose meanwhile.
		if c.State() != StateDisconnected {
			c.log.Debug("reconnect attempt %d skipped, connection already re-established", attempt)
			return
		}
		if err := c.Connect(); err != nil {
			c.log.Error("reconnect attempt %d failed: %v", attempt, err)
			return
		}
		if err := c.Initialize(); err != nil {
			c.log.Error("reconnect handshake failed: %v", err)
		}
	})
}
