package client

import (
	"encoding/json"
	"sync"

	"github.com/tiancaiamao/acp/pkg/acp"
)

// handleMessage is the single entry point for every line the agent
// writes. It runs on the transport's reader goroutine, so updates are
// delivered in wire order.
func (c *Client) handleMessage(raw json.RawMessage) {
	var msg acp.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Warn("dropping undecodable message from agent: %v", err)
		return
	}

	switch {
	case msg.IsResponse():
		c.handleResponse(&msg)
	case msg.IsNotification():
		c.handleNotification(&msg)
	case msg.IsRequest():
		c.handleRequest(&msg)
	default:
		c.log.Warn("dropping message that is neither request, response nor notification")
	}
}

func (c *Client) handleResponse(msg *acp.Message) {
	id, ok := msg.IntID()
	if !ok {
		c.log.Warn("response with non-numeric id %s, dropping", string(msg.ID))
		return
	}

	c.mu.Lock()
	p, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if !ok {
		// Late reply after a timeout or Stop; nothing is waiting.
		c.log.Debug("response for unknown request id %d, dropping", id)
		return
	}
	p.fn(msg.Result, msg.Error)
}

func (c *Client) handleNotification(msg *acp.Message) {
	switch msg.Method {
	case acp.MethodSessionUpdate:
		c.handleSessionUpdate(msg.Params)
	default:
		c.log.Debug("ignoring notification %q from agent", msg.Method)
	}
}

// handleSessionUpdate forwards a streamed update. Malformed updates are
// logged and dropped; one bad chunk must not kill the stream.
func (c *Client) handleSessionUpdate(params json.RawMessage) {
	var n acp.SessionNotification
	if err := json.Unmarshal(params, &n); err != nil {
		c.log.Warn("malformed session/update, dropping: %v", err)
		return
	}
	if n.SessionID == "" || n.Update.Kind == "" {
		c.log.Warn("session/update missing sessionId or update kind, dropping")
		return
	}
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (c *Client) handleRequest(msg *acp.Message) {
	switch msg.Method {
	case acp.MethodRequestPermission:
		c.handlePermission(msg)
	case acp.MethodReadTextFile:
		c.handleReadFile(msg)
	case acp.MethodWriteTextFile:
		c.handleWriteFile(msg)
	default:
		c.replyError(msg.ID, acp.NewError(acp.CodeMethodNotFound, "unknown method %q", msg.Method))
	}
}

// handlePermission forwards a permission request to the registered
// handler. The resolve closure the handler receives is idempotent:
// only the first invocation reaches the agent.
func (c *Client) handlePermission(msg *acp.Message) {
	var req acp.RequestPermissionRequest
	if err := json.Unmarshal(msg.Params, &req); err != nil {
		c.log.Error("malformed session/request_permission: %v", err)
		c.replyError(msg.ID, acp.NewError(acp.CodeInvalidParams, "malformed permission request: %v", err))
		return
	}
	if req.SessionID == "" || req.ToolCall == nil {
		c.log.Error("session/request_permission missing sessionId or toolCall")
		c.replyError(msg.ID, acp.NewError(acp.CodeInvalidParams, "permission request missing sessionId or toolCall"))
		return
	}

	c.mu.Lock()
	fn := c.onPermission
	c.mu.Unlock()
	if fn == nil {
		// Nobody to ask; refuse rather than hang the agent.
		c.reply(msg.ID, acp.RequestPermissionResponse{Outcome: acp.CancelledOutcome()})
		return
	}

	var once sync.Once
	resolve := func(resp acp.RequestPermissionResponse) {
		once.Do(func() {
			c.reply(msg.ID, resp)
		})
	}
	fn(req, resolve)
}

func (c *Client) handleReadFile(msg *acp.Message) {
	var req acp.ReadTextFileRequest
	if err := json.Unmarshal(msg.Params, &req); err != nil {
		c.replyError(msg.ID, acp.NewError(acp.CodeInvalidParams, "malformed fs/read_text_file: %v", err))
		return
	}
	if req.SessionID == "" || req.Path == "" {
		c.replyError(msg.ID, acp.NewError(acp.CodeInvalidParams, "fs/read_text_file missing sessionId or path"))
		return
	}

	c.mu.Lock()
	fn := c.onReadFile
	c.mu.Unlock()
	if fn != nil {
		var once sync.Once
		fn(req.Path, req.Line, req.Limit, func(content string, rpcErr *acp.Error) {
			once.Do(func() {
				if rpcErr != nil {
					c.replyError(msg.ID, rpcErr)
					return
				}
				c.reply(msg.ID, acp.ReadTextFileResponse{Content: content})
			})
		})
		return
	}

	line, limit := 0, 0
	if req.Line != nil {
		line = *req.Line
	}
	if req.Limit != nil {
		limit = *req.Limit
	}
	content, err := c.fs.ReadFile(req.Path, line, limit)
	if err != nil {
		c.replyError(msg.ID, acp.NewError(acp.CodeInternalError, "read %s: %v", req.Path, err))
		return
	}
	c.reply(msg.ID, acp.ReadTextFileResponse{Content: content})
}

func (c *Client) handleWriteFile(msg *acp.Message) {
	// Content must be present even when empty, so probe for the key
	// before decoding into the value type.
	var probe struct {
		SessionID string  `json:"sessionId"`
		Path      string  `json:"path"`
		Content   *string `json:"content"`
	}
	if err := json.Unmarshal(msg.Params, &probe); err != nil {
		c.replyError(msg.ID, acp.NewError(acp.CodeInvalidParams, "malformed fs/write_text_file: %v", err))
		return
	}
	if probe.SessionID == "" || probe.Path == "" || probe.Content == nil {
		c.replyError(msg.ID, acp.NewError(acp.CodeInvalidParams, "fs/write_text_file missing sessionId, path or content"))
		return
	}

	c.mu.Lock()
	fn := c.onWriteFile
	c.mu.Unlock()
	if fn != nil {
		var once sync.Once
		fn(probe.Path, *probe.Content, func(rpcErr *acp.Error) {
			once.Do(func() {
				if rpcErr != nil {
					c.replyError(msg.ID, rpcErr)
					return
				}
				c.reply(msg.ID, acp.WriteTextFileResponse{})
			})
		})
		return
	}

	if err := c.fs.WriteFile(probe.Path, *probe.Content); err != nil {
		c.replyError(msg.ID, acp.NewError(acp.CodeInternalError, "write %s: %v", probe.Path, err))
		return
	}
	c.reply(msg.ID, acp.WriteTextFileResponse{})
}

func (c *Client) reply(id json.RawMessage, result any) {
	msg, err := acp.NewResponse(id, result)
	if err != nil {
		c.log.Error("encode response: %v", err)
		return
	}
	c.sendRaw(msg)
}

func (c *Client) replyError(id json.RawMessage, rpcErr *acp.Error) {
	c.sendRaw(acp.NewErrorResponse(id, rpcErr))
}

func (c *Client) sendRaw(msg *acp.Message) {
	payload, err := msg.Encode()
	if err != nil {
		c.log.Error("encode message: %v", err)
		return
	}
	if err := c.wire.Send(payload); err != nil {
		c.log.Warn("send reply: %v", err)
	}
}
