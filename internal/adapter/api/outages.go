package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/couchcryptid/site-outages-etl/internal/domain"
)

const routeOutages = "/outages"

// ListOutages returns every outage the API reports, in response order.
func (c *Client) ListOutages(ctx context.Context) ([]domain.Outage, error) {
	resp, err := c.Do(ctx, http.MethodGet, routeOutages, nil)
	if err != nil {
		return nil, err
	}

	var outages []domain.Outage
	if err := json.Unmarshal(resp.Body(), &outages); err != nil {
		return nil, fmt.Errorf("decode outages: %w", err)
	}
	return outages, nil
}

// OutagesSince returns the outages that began at or after cutoff, in
// response order.
func (c *Client) OutagesSince(ctx context.Context, cutoff time.Time) ([]domain.Outage, error) {
	all, err := c.ListOutages(ctx)
	if err != nil {
		return nil, err
	}

	kept := domain.FilterSince(all, cutoff)
	c.logger.Debug("filtered outages by begin", "total", len(all), "kept", len(kept), "cutoff", cutoff)
	return kept, nil
}
