package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/couchcryptid/site-outages-etl/internal/domain"
)

func siteInfoRoute(site string) string {
	return "/site-info/" + url.PathEscape(site)
}

func siteOutagesRoute(site string) string {
	return "/site-outages/" + url.PathEscape(site)
}

// SiteInfo returns a site's info body as parsed JSON, unmodified.
func (c *Client) SiteInfo(ctx context.Context, site string) (map[string]any, error) {
	body, err := c.siteInfoBody(ctx, site)
	if err != nil {
		return nil, err
	}

	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode site info %s: %w", site, err)
	}
	return info, nil
}

// SiteDevices returns the site's device roster indexed by device id.
func (c *Client) SiteDevices(ctx context.Context, site string) (domain.DeviceIndex, error) {
	body, err := c.siteInfoBody(ctx, site)
	if err != nil {
		return nil, err
	}

	info, err := domain.ParseSiteInfo(body)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", site, err)
	}

	index, duplicates := domain.NewDeviceIndex(info.Devices)
	if len(duplicates) > 0 {
		c.logger.Warn("site roster repeats device ids, keeping the last entry",
			"site", site,
			"device_ids", duplicates,
		)
	}
	return index, nil
}

// UploadSiteOutages posts enriched outages to the site's outages route. It
// reports true once the API has accepted the upload.
func (c *Client) UploadSiteOutages(ctx context.Context, site string, outages []domain.EnrichedOutage) (bool, error) {
	if outages == nil {
		outages = []domain.EnrichedOutage{}
	}

	resp, err := c.Do(ctx, http.MethodPost, siteOutagesRoute(site), outages)
	if err != nil {
		return false, err
	}
	return resp.IsSuccess(), nil
}

func (c *Client) siteInfoBody(ctx context.Context, site string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, siteInfoRoute(site), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}
