package sentinel

import (
	"context"
	"fmt"
)

// Process submits a Process API request and returns the raw image bytes.
func (c *Client) Process(ctx context.Context, req ProcessRequest) ([]byte, error) {
	accept := req.Format
	if accept == "" {
		accept = "image/tiff"
	}
	content, err := c.post(ctx, processPath, accept, req.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to request image: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("empty image returned for %s to %s", req.TimeRange.From.Format("2006-01-02"), req.TimeRange.To.Format("2006-01-02"))
	}
	return content, nil
}
