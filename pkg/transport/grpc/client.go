package grpc

import (
    "context"
    "time"

    "google.golang.org/grpc"

    "github.com/amirimatin/go-spantree/pkg/transport"
)

// StatusClient fetches the status document over spantree.v1.Management.
type StatusClient struct {
    timeout time.Duration
}

func NewStatusClient(timeout time.Duration) *StatusClient {
    if timeout <= 0 { timeout = 3 * time.Second }
    return &StatusClient{timeout: timeout}
}

func (c *StatusClient) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := grpc.DialContext(cctx, addr, dialOptions()...)
    if err != nil { return nil, err }
    defer cc.Close()
    out := new(statusBlob)
    if err := cc.Invoke(cctx, "/spantree.v1.Management/GetStatus", &empty{}, out); err != nil { return nil, err }
    return out.Data, nil
}

var _ transport.RPCClient = (*StatusClient)(nil)
