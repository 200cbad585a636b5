package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// JobFormClient calls the JobForm service over a client connection using
// the JSON codec.
type JobFormClient struct {
	conn  grpc.ClientConnInterface
	token string
}

func NewJobFormClient(conn grpc.ClientConnInterface, token string) *JobFormClient {
	return &JobFormClient{conn: conn, token: token}
}

func (c *JobFormClient) invoke(ctx context.Context, method string, req, resp any) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(CodecName))
}

func (c *JobFormClient) Start(ctx context.Context) (*SessionView, error) {
	var resp SessionView
	if err := c.invoke(ctx, "Start", &Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *JobFormClient) Get(ctx context.Context, sessionID string) (*SessionView, error) {
	return c.session(ctx, "Get", &SessionRequest{SessionID: sessionID})
}

func (c *JobFormClient) Update(ctx context.Context, sessionID string, patch DraftPatch) (*SessionView, error) {
	return c.session(ctx, "Update", &UpdateRequest{SessionID: sessionID, Patch: patch})
}

func (c *JobFormClient) Next(ctx context.Context, sessionID string) (*SessionView, error) {
	return c.session(ctx, "Next", &SessionRequest{SessionID: sessionID})
}

func (c *JobFormClient) Back(ctx context.Context, sessionID string) (*SessionView, error) {
	return c.session(ctx, "Back", &SessionRequest{SessionID: sessionID})
}

func (c *JobFormClient) Cancel(ctx context.Context, sessionID string, confirmed bool) (*SessionView, error) {
	return c.session(ctx, "Cancel", &CancelRequest{SessionID: sessionID, Confirmed: confirmed})
}

func (c *JobFormClient) Submit(ctx context.Context, sessionID string) (*SessionView, error) {
	return c.session(ctx, "Submit", &SessionRequest{SessionID: sessionID})
}

func (c *JobFormClient) SelectRecyclingCenter(ctx context.Context, sessionID, centerID string) (*SessionView, error) {
	return c.session(ctx, "SelectRecyclingCenter", &SelectCenterRequest{SessionID: sessionID, CenterID: centerID})
}

func (c *JobFormClient) ListRecyclingCenters(ctx context.Context) (*CentersResponse, error) {
	var resp CentersResponse
	if err := c.invoke(ctx, "ListRecyclingCenters", &Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *JobFormClient) session(ctx context.Context, method string, req any) (*SessionView, error) {
	var resp SessionView
	if err := c.invoke(ctx, method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
