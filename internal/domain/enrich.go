package domain

import "log/slog"

// EnrichOutages joins each outage to its device and merges in the device
// name. Outages without a device in the index are dropped and logged at
// debug level. Input order is preserved and the inputs are not modified.
func EnrichOutages(outages []Outage, index DeviceIndex, logger *slog.Logger) []EnrichedOutage {
	enriched := make([]EnrichedOutage, 0, len(outages))
	for _, o := range outages {
		device, ok := index.Lookup(o.ID)
		if !ok {
			logger.Debug("no device info found for outage", "device_id", o.ID)
			continue
		}
		enriched = append(enriched, EnrichedOutage{Outage: o, Name: device.Name})
	}
	return enriched
}

// SiteBatch is the set of enriched outages uploaded for a site in one run.
type SiteBatch struct {
	RunID   string
	Site    string
	Outages []EnrichedOutage
}
