package ipc

import (
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"tally/internal/engine"
)

const serviceName = "Tally"

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// remoteErrors maps server error text back to the engine sentinels so callers
// can use errors.Is across the socket.
var remoteErrors = []error{
	engine.ErrBusy,
	engine.ErrNotRunning,
	engine.ErrNotPaused,
	engine.ErrConfirmRequired,
}

func (c *Client) call(method string, req, resp any) error {
	err := c.client.Call(serviceName+"."+method, req, resp)
	if err == nil {
		return nil
	}
	var remote rpc.ServerError
	if errors.As(err, &remote) {
		for _, sentinel := range remoteErrors {
			if string(remote) == sentinel.Error() {
				return sentinel
			}
		}
	}
	return err
}

// Select asks the daemon to begin (or resume) processing a ledger file.
func (c *Client) Select(req SelectRequest) (*SelectResponse, error) {
	var resp SelectResponse
	if err := c.call("Select", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause pauses the active run.
func (c *Client) Pause() (*PauseResponse, error) {
	var resp PauseResponse
	if err := c.call("Pause", PauseRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resume continues a paused run.
func (c *Client) Resume() (*ResumeResponse, error) {
	var resp ResumeResponse
	if err := c.call("Resume", ResumeRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop ends the active run after a final checkpoint.
func (c *Client) Stop(confirm bool) (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{Confirm: confirm}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearCheckpoint removes one stored checkpoint.
func (c *Client) ClearCheckpoint(key string) (*ClearCheckpointResponse, error) {
	var resp ClearCheckpointResponse
	if err := c.call("ClearCheckpoint", ClearCheckpointRequest{Key: key}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearBalances empties the accumulated balances and every checkpoint.
func (c *Client) ClearBalances() (*ClearBalancesResponse, error) {
	var resp ClearBalancesResponse
	if err := c.call("ClearBalances", ClearBalancesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset forgets the persisted session.
func (c *Client) Reset() (*ResetResponse, error) {
	var resp ResetResponse
	if err := c.call("Reset", ResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Checkpoints lists stored checkpoints.
func (c *Client) Checkpoints() (*CheckpointListResponse, error) {
	var resp CheckpointListResponse
	if err := c.call("CheckpointList", CheckpointListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
