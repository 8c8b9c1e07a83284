package daemon

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/mbrt/mb-stash-go/internal/protocol"
)

const sendTimeout = 10 * time.Second

// Client is a synchronous client talking to the daemon over a Unix
// socket, grounded on original_source's DaemonClient.
type Client struct {
	sockPath string
}

// NewClient builds a Client for the daemon listening on sockPath.
func NewClient(sockPath string) *Client {
	return &Client{sockPath: sockPath}
}

// Send issues a single request and returns the daemon's response.
func (c *Client) Send(command string, params map[string]string) (protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.sockPath, sendTimeout)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("daemon: connect: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(sendTimeout))

	req := protocol.NewRequest(command, params)
	line, err := protocol.EncodeRequest(req)
	if err != nil {
		return protocol.Response{}, err
	}
	if _, err := conn.Write(line); err != nil {
		return protocol.Response{}, fmt.Errorf("daemon: write request: %w", err)
	}

	respLine, err := protocol.ReadLine(bufio.NewReader(conn))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("daemon: read response: %w", err)
	}
	return protocol.DecodeResponse(respLine)
}

// SendAutoUnlock sends a request, and if the daemon reports the stash is
// locked, prompts for a password via promptPassword, unlocks, and retries
// once. promptPassword is only invoked on a "locked" response, so
// non-interactive callers that never need it can pass one that panics.
func (c *Client) SendAutoUnlock(command string, params map[string]string, promptPassword func() (string, error)) (protocol.Response, error) {
	resp, err := c.Send(command, params)
	if err != nil {
		return resp, err
	}
	if resp.Ok || resp.Error != "locked" {
		return resp, nil
	}

	password, err := promptPassword()
	if err != nil {
		return protocol.Response{}, err
	}
	unlockResp, err := c.Unlock(password)
	if err != nil {
		return protocol.Response{}, err
	}
	if !unlockResp.Ok {
		return unlockResp, nil
	}
	return c.Send(command, params)
}

// Health queries the daemon's health status.
func (c *Client) Health() (protocol.Response, error) { return c.Send(protocol.CmdHealth, nil) }

// Unlock unlocks the stash with password.
func (c *Client) Unlock(password string) (protocol.Response, error) {
	return c.Send(protocol.CmdUnlock, map[string]string{"password": password})
}

// Lock locks the stash.
func (c *Client) Lock() (protocol.Response, error) { return c.Send(protocol.CmdLock, nil) }

// Stop requests the daemon shut down.
func (c *Client) Stop() (protocol.Response, error) { return c.Send(protocol.CmdStop, nil) }

// Get retrieves a secret by key.
func (c *Client) Get(key string) (protocol.Response, error) {
	return c.Send(protocol.CmdGet, map[string]string{"key": key})
}

// ListKeys lists stored keys, optionally filtered by substring.
func (c *Client) ListKeys(filter string) (protocol.Response, error) {
	params := map[string]string{}
	if filter != "" {
		params["filter"] = filter
	}
	return c.Send(protocol.CmdList, params)
}

// Add adds or updates a secret.
func (c *Client) Add(key, value string) (protocol.Response, error) {
	return c.Send(protocol.CmdAdd, map[string]string{"key": key, "value": value})
}

// Delete removes a secret.
func (c *Client) Delete(key string) (protocol.Response, error) {
	return c.Send(protocol.CmdDelete, map[string]string{"key": key})
}

// Rename renames a secret key.
func (c *Client) Rename(key, newKey string) (protocol.Response, error) {
	return c.Send(protocol.CmdRename, map[string]string{"key": key, "new_key": newKey})
}

// ScheduleClipboardClear tells the daemon to clear the clipboard after its
// configured timeout, if it still holds value.
func (c *Client) ScheduleClipboardClear(value string) (protocol.Response, error) {
	return c.Send(protocol.CmdScheduleClipboardClear, map[string]string{"value": value})
}
