package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingDevices is returned when a site info body has no devices array.
var ErrMissingDevices = errors.New("site info has no devices")

// Device is a device on a site's roster.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SiteInfo is the decoded site-info body. Fields other than the roster are
// not used by the job and are left out.
type SiteInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Devices []Device `json:"devices"`
}

// ParseSiteInfo decodes a site-info body, requiring a devices array.
func ParseSiteInfo(data []byte) (SiteInfo, error) {
	var probe struct {
		Devices json.RawMessage `json:"devices"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return SiteInfo{}, fmt.Errorf("decode site info: %w", err)
	}
	if len(probe.Devices) == 0 || bytes.Equal(probe.Devices, []byte("null")) {
		return SiteInfo{}, ErrMissingDevices
	}

	var info SiteInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return SiteInfo{}, fmt.Errorf("decode site info: %w", err)
	}
	return info, nil
}

// DeviceIndex maps device id to device.
type DeviceIndex map[string]Device

// NewDeviceIndex indexes devices by id. A repeated id overwrites the earlier
// entry; each repeated id is returned once in duplicates, in roster order.
func NewDeviceIndex(devices []Device) (index DeviceIndex, duplicates []string) {
	index = make(DeviceIndex, len(devices))
	seen := make(map[string]bool)
	for _, d := range devices {
		if _, ok := index[d.ID]; ok && !seen[d.ID] {
			duplicates = append(duplicates, d.ID)
			seen[d.ID] = true
		}
		index[d.ID] = d
	}
	return index, duplicates
}

// Lookup returns the device with the given id.
func (ix DeviceIndex) Lookup(id string) (Device, bool) {
	d, ok := ix[id]
	return d, ok
}
