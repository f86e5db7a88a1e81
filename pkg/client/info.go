package client

import (
	"context"

	"github.com/adobe/aio-tvm/internal/api"
	"github.com/adobe/aio-tvm/internal/buildinfo"
)

// Info returns the version information of the server.
func (c *Client) Info(ctx context.Context) (*buildinfo.Info, string, error) {
	var info buildinfo.Info
	correlation, err := c.get(ctx, c.url().setPath(api.AboutRoute).build(), &info)
	return &info, correlation, err
}
