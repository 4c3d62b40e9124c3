package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// StatisticsResponse is the Statistical API answer for one area of interest.
// Each entry of Data is one aggregation interval, kept as a generic document so
// that normalization sees the payload exactly as the service sent it.
type StatisticsResponse struct {
	Data   []map[string]any `json:"data"`
	Status string           `json:"status"`
}

// DecodeStatistics parses a Statistical API body. Numbers are kept as json.Number.
func DecodeStatistics(body []byte) (*StatisticsResponse, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var resp StatisticsResponse
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode statistics response: %w", err)
	}
	return &resp, nil
}

// Statistics submits a Statistical API request.
func (c *Client) Statistics(ctx context.Context, req StatisticalRequest) (*StatisticsResponse, error) {
	content, err := c.post(ctx, statisticsPath, "application/json", req.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to request statistics: %w", err)
	}
	return DecodeStatistics(content)
}
