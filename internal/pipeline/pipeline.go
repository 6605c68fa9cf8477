package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/site-outages-etl/internal/domain"
	"github.com/couchcryptid/site-outages-etl/internal/observability"
)

// OutageFetcher returns the outages that began at or after a cutoff.
type OutageFetcher interface {
	OutagesSince(ctx context.Context, cutoff time.Time) ([]domain.Outage, error)
}

// DeviceFetcher returns a site's device roster indexed by id.
type DeviceFetcher interface {
	SiteDevices(ctx context.Context, site string) (domain.DeviceIndex, error)
}

// Uploader sends a site's enriched outages to the destination.
type Uploader interface {
	UploadSiteOutages(ctx context.Context, site string, outages []domain.EnrichedOutage) (bool, error)
}

// Publisher mirrors an uploaded batch somewhere else, e.g. a Kafka topic.
type Publisher interface {
	PublishBatch(ctx context.Context, batch domain.SiteBatch) error
}

// Report summarises one run.
type Report struct {
	RunID           string
	Site            string
	Cutoff          time.Time
	OutagesInWindow int
	Devices         int
	Enriched        int
	Dropped         int
	Uploaded        bool
	Published       int
	Duration        time.Duration
}

// Pipeline runs the fetch, enrich, and upload steps for one site.
type Pipeline struct {
	outages   OutageFetcher
	devices   DeviceFetcher
	uploader  Uploader
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
}

// New creates a Pipeline. publisher may be nil to skip mirroring.
func New(outages OutageFetcher, devices DeviceFetcher, uploader Uploader, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		outages:   outages,
		devices:   devices,
		uploader:  uploader,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		clock:     domain.Clock(),
	}
}

// Run fetches the outages in the window, joins them to the site's devices,
// and uploads the result. Steps run in order and the first failure stops
// the run. The returned Report holds whatever was counted before the stop.
func (p *Pipeline) Run(ctx context.Context, site string, cutoff time.Time) (report Report, err error) {
	start := p.clock.Now()
	report = Report{
		RunID:  uuid.NewString(),
		Site:   site,
		Cutoff: cutoff,
	}
	logger := p.logger.With("run_id", report.RunID, "site", site)
	defer func() {
		report.Duration = p.clock.Since(start)
		p.metrics.RunDuration.Set(report.Duration.Seconds())
	}()

	logger.Info("run started", "cutoff", cutoff.UTC().Format(time.RFC3339Nano))

	outages, err := p.outages.OutagesSince(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("fetch outages: %w", err)
	}
	report.OutagesInWindow = len(outages)
	p.metrics.OutagesInWindow.Set(float64(len(outages)))
	logger.Info("outages after cutoff", "count", len(outages))

	index, err := p.devices.SiteDevices(ctx, site)
	if err != nil {
		return report, fmt.Errorf("fetch site devices: %w", err)
	}
	report.Devices = len(index)
	p.metrics.DevicesIndexed.Set(float64(len(index)))
	logger.Info("devices", "count", len(index))

	enriched := domain.EnrichOutages(outages, index, logger)
	report.Enriched = len(enriched)
	report.Dropped = len(outages) - len(enriched)
	p.metrics.OutagesEnriched.Set(float64(report.Enriched))
	p.metrics.OutagesDropped.Set(float64(report.Dropped))
	logger.Info("outages with valid device ids", "count", report.Enriched, "dropped", report.Dropped)

	ok, err := p.uploader.UploadSiteOutages(ctx, site, enriched)
	if err != nil {
		return report, fmt.Errorf("upload site outages: %w", err)
	}
	if !ok {
		return report, errors.New("upload site outages: not accepted")
	}
	report.Uploaded = true
	p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	logger.Info("uploaded", "count", report.Enriched)

	report.Published = p.publish(ctx, logger, domain.SiteBatch{
		RunID:   report.RunID,
		Site:    site,
		Outages: enriched,
	})

	return report, nil
}

// publish mirrors the batch if a publisher is configured. A failure is
// logged and counted; the upload has already succeeded.
func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, batch domain.SiteBatch) int {
	if p.publisher == nil || len(batch.Outages) == 0 {
		return 0
	}

	if err := p.publisher.PublishBatch(ctx, batch); err != nil {
		logger.Error("publish batch failed", "error", err, "batch_size", len(batch.Outages))
		p.metrics.PublishErrors.Inc()
		return 0
	}

	p.metrics.OutagesPublished.Add(float64(len(batch.Outages)))
	logger.Info("published", "count", len(batch.Outages))
	return len(batch.Outages)
}
