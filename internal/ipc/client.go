package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

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

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("MovieTool.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("MovieTool.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectCreate creates a new project.
func (c *Client) ProjectCreate(name, description string) (*ProjectCreateResponse, error) {
	var resp ProjectCreateResponse
	req := ProjectCreateRequest{Name: name, Description: description}
	if err := c.client.Call("MovieTool.ProjectCreate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectList returns all projects.
func (c *Client) ProjectList() (*ProjectListResponse, error) {
	var resp ProjectListResponse
	if err := c.client.Call("MovieTool.ProjectList", ProjectListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CharacterAdd registers a character with a reference image.
func (c *Client) CharacterAdd(req CharacterAddRequest) (*CharacterAddResponse, error) {
	var resp CharacterAddResponse
	if err := c.client.Call("MovieTool.CharacterAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CharacterList returns a project's characters.
func (c *Client) CharacterList(projectID string) (*CharacterListResponse, error) {
	var resp CharacterListResponse
	req := CharacterListRequest{ProjectID: projectID}
	if err := c.client.Call("MovieTool.CharacterList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClipAdd creates a pending clip.
func (c *Client) ClipAdd(req ClipAddRequest) (*ClipAddResponse, error) {
	var resp ClipAddResponse
	if err := c.client.Call("MovieTool.ClipAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClipList returns a project's clips in sequence order.
func (c *Client) ClipList(projectID string) (*ClipListResponse, error) {
	var resp ClipListResponse
	req := ClipListRequest{ProjectID: projectID}
	if err := c.client.Call("MovieTool.ClipList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Generate starts a generation job for a clip.
func (c *Client) Generate(req GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.client.Call("MovieTool.Generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateCancel cancels an in-flight generation job.
func (c *Client) GenerateCancel(jobID string) (*GenerateCancelResponse, error) {
	var resp GenerateCancelResponse
	req := GenerateCancelRequest{JobID: jobID}
	if err := c.client.Call("MovieTool.GenerateCancel", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobList returns generation jobs optionally filtered by statuses.
func (c *Client) JobList(statuses []string) (*JobListResponse, error) {
	var resp JobListResponse
	req := JobListRequest{Statuses: statuses}
	if err := c.client.Call("MovieTool.JobList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportStart begins assembling a project's completed clips.
func (c *Client) ExportStart(projectID string) (*ExportStartResponse, error) {
	var resp ExportStartResponse
	req := ExportStartRequest{ProjectID: projectID}
	if err := c.client.Call("MovieTool.ExportStart", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportCancel cancels an export job.
func (c *Client) ExportCancel(jobID string) (*ExportCancelResponse, error) {
	var resp ExportCancelResponse
	req := ExportCancelRequest{JobID: jobID}
	if err := c.client.Call("MovieTool.ExportCancel", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportDescribe fetches one export job.
func (c *Client) ExportDescribe(jobID string) (*ExportDescribeResponse, error) {
	var resp ExportDescribeResponse
	req := ExportDescribeRequest{JobID: jobID}
	if err := c.client.Call("MovieTool.ExportDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportList returns export jobs, optionally scoped to a project.
func (c *Client) ExportList(projectID string) (*ExportListResponse, error) {
	var resp ExportListResponse
	req := ExportListRequest{ProjectID: projectID}
	if err := c.client.Call("MovieTool.ExportList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
