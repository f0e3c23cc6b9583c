package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/strata/ext"
)

// meterName is the instrumentation scope name for the extension.
const meterName = "github.com/xraph/strata/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.RecordsCreated      = (*MetricsExtension)(nil)
	_ ext.RecordsUpdated      = (*MetricsExtension)(nil)
	_ ext.RecordsDeleted      = (*MetricsExtension)(nil)
	_ ext.RecordsSoftDeleted  = (*MetricsExtension)(nil)
	_ ext.RecordsRestored     = (*MetricsExtension)(nil)
	_ ext.OperationFailed     = (*MetricsExtension)(nil)
	_ ext.CollectionReady     = (*MetricsExtension)(nil)
	_ ext.CollectionDestroyed = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via an OTel meter.
// Register it as a strata extension to track write volumes by entity,
// failure counts, and how many per-tenant collections are provisioned or
// destroyed and how long provisioning takes.
//
// Record counters add the number of affected records, not the number of
// calls.
type MetricsExtension struct {
	RecordsCreated       metric.Int64Counter
	RecordsUpdated       metric.Int64Counter
	RecordsDeleted       metric.Int64Counter
	RecordsSoftDeleted   metric.Int64Counter
	RecordsRestored      metric.Int64Counter
	OperationsFailed     metric.Int64Counter
	CollectionsReady     metric.Int64Counter
	CollectionsDestroyed metric.Int64Counter
	ProvisionDuration    metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Use an sdkmetric ManualReader-backed meter for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the API returns noop instruments.
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	duration, _ := meter.Float64Histogram(
		"strata.collection.provision.duration",
		metric.WithDescription("Time to provision a per-tenant collection in seconds"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		RecordsCreated:       counter("strata.records.created", "Records saved or inserted"),
		RecordsUpdated:       counter("strata.records.updated", "Records updated or incremented"),
		RecordsDeleted:       counter("strata.records.deleted", "Records permanently deleted"),
		RecordsSoftDeleted:   counter("strata.records.soft_deleted", "Records marked deleted"),
		RecordsRestored:      counter("strata.records.restored", "Soft-deleted records restored"),
		OperationsFailed:     counter("strata.op.failed", "Failed repository operations"),
		CollectionsReady:     counter("strata.collection.ready", "Per-tenant collections provisioned"),
		CollectionsDestroyed: counter("strata.collection.destroyed", "Per-tenant collections destroyed"),
		ProvisionDuration:    duration,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func mutationAttrs(mu ext.Mutation) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("entity", mu.Entity),
		attribute.String("op", mu.Op),
	)
}

// ── Record hooks ────────────────────────────────────

// OnRecordsCreated implements ext.RecordsCreated.
func (m *MetricsExtension) OnRecordsCreated(ctx context.Context, mu ext.Mutation) error {
	m.RecordsCreated.Add(ctx, mu.Affected, mutationAttrs(mu))
	return nil
}

// OnRecordsUpdated implements ext.RecordsUpdated.
func (m *MetricsExtension) OnRecordsUpdated(ctx context.Context, mu ext.Mutation) error {
	m.RecordsUpdated.Add(ctx, mu.Affected, mutationAttrs(mu))
	return nil
}

// OnRecordsDeleted implements ext.RecordsDeleted.
func (m *MetricsExtension) OnRecordsDeleted(ctx context.Context, mu ext.Mutation) error {
	m.RecordsDeleted.Add(ctx, mu.Affected, mutationAttrs(mu))
	return nil
}

// OnRecordsSoftDeleted implements ext.RecordsSoftDeleted.
func (m *MetricsExtension) OnRecordsSoftDeleted(ctx context.Context, mu ext.Mutation) error {
	m.RecordsSoftDeleted.Add(ctx, mu.Affected, mutationAttrs(mu))
	return nil
}

// OnRecordsRestored implements ext.RecordsRestored.
func (m *MetricsExtension) OnRecordsRestored(ctx context.Context, mu ext.Mutation) error {
	m.RecordsRestored.Add(ctx, mu.Affected, mutationAttrs(mu))
	return nil
}

// OnOperationFailed implements ext.OperationFailed.
func (m *MetricsExtension) OnOperationFailed(ctx context.Context, op, entity string, _ error) error {
	m.OperationsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("op", op),
	))
	return nil
}

// ── Collection hooks ────────────────────────────────

// OnCollectionReady implements ext.CollectionReady.
func (m *MetricsExtension) OnCollectionReady(ctx context.Context, c ext.Collection, elapsed time.Duration) error {
	attrs := metric.WithAttributes(attribute.String("entity", c.Entity))
	m.CollectionsReady.Add(ctx, 1, attrs)
	m.ProvisionDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnCollectionDestroyed implements ext.CollectionDestroyed.
func (m *MetricsExtension) OnCollectionDestroyed(ctx context.Context, c ext.Collection) error {
	m.CollectionsDestroyed.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", c.Entity)))
	return nil
}
