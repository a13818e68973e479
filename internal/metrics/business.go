package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Business holds the vault's domain-level counters.
type Business struct {
	secretReads     metric.Int64Counter
	secretWrites    metric.Int64Counter
	secretRotations metric.Int64Counter
	authDenials     metric.Int64Counter
	intrusionBans   metric.Int64Counter
	canaryHits      metric.Int64Counter
	auditFailures   metric.Int64Counter
	secretCount     metric.Int64Gauge
}

// NewBusiness creates the vault business metric instruments.
func NewBusiness(meterProvider metric.MeterProvider, namespace string) (*Business, error) {
	meter := meterProvider.Meter(namespace)

	secretReads, err := meter.Int64Counter(
		fmt.Sprintf("%s_secret_reads_total", namespace),
		metric.WithDescription("Total number of secret reads"),
	)
	if err != nil {
		return nil, err
	}

	secretWrites, err := meter.Int64Counter(
		fmt.Sprintf("%s_secret_writes_total", namespace),
		metric.WithDescription("Total number of secret writes"),
	)
	if err != nil {
		return nil, err
	}

	secretRotations, err := meter.Int64Counter(
		fmt.Sprintf("%s_secret_rotations_total", namespace),
		metric.WithDescription("Total number of secret rotations"),
	)
	if err != nil {
		return nil, err
	}

	authDenials, err := meter.Int64Counter(
		fmt.Sprintf("%s_authorization_denials_total", namespace),
		metric.WithDescription("Total number of denied requests"),
	)
	if err != nil {
		return nil, err
	}

	intrusionBans, err := meter.Int64Counter(
		fmt.Sprintf("%s_intrusion_bans_total", namespace),
		metric.WithDescription("Total number of clients banned by the intrusion detector"),
	)
	if err != nil {
		return nil, err
	}

	canaryHits, err := meter.Int64Counter(
		fmt.Sprintf("%s_canary_hits_total", namespace),
		metric.WithDescription("Total number of canary secret accesses"),
	)
	if err != nil {
		return nil, err
	}

	auditFailures, err := meter.Int64Counter(
		fmt.Sprintf("%s_audit_write_failures_total", namespace),
		metric.WithDescription("Total number of audit log write failures"),
	)
	if err != nil {
		return nil, err
	}

	secretCount, err := meter.Int64Gauge(
		fmt.Sprintf("%s_secrets", namespace),
		metric.WithDescription("Number of secrets in the vault"),
	)
	if err != nil {
		return nil, err
	}

	return &Business{
		secretReads:     secretReads,
		secretWrites:    secretWrites,
		secretRotations: secretRotations,
		authDenials:     authDenials,
		intrusionBans:   intrusionBans,
		canaryHits:      canaryHits,
		auditFailures:   auditFailures,
		secretCount:     secretCount,
	}, nil
}

// RecordSecretRead counts one secret read.
func (b *Business) RecordSecretRead(ctx context.Context) {
	b.secretReads.Add(ctx, 1)
}

// RecordSecretWrite counts one secret write.
func (b *Business) RecordSecretWrite(ctx context.Context) {
	b.secretWrites.Add(ctx, 1)
}

// RecordSecretRotation counts rotated secrets.
func (b *Business) RecordSecretRotation(ctx context.Context, count int64) {
	b.secretRotations.Add(ctx, count)
}

// RecordAuthDenial counts one denied request with its reason.
func (b *Business) RecordAuthDenial(ctx context.Context, reason string) {
	b.authDenials.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordIntrusionBan counts one client ban.
func (b *Business) RecordIntrusionBan(ctx context.Context) {
	b.intrusionBans.Add(ctx, 1)
}

// RecordCanaryHit counts one canary secret access.
func (b *Business) RecordCanaryHit(ctx context.Context) {
	b.canaryHits.Add(ctx, 1)
}

// RecordAuditFailure counts one audit sink failure.
func (b *Business) RecordAuditFailure(ctx context.Context) {
	b.auditFailures.Add(ctx, 1)
}

// RecordSecretCount records the current number of stored secrets.
func (b *Business) RecordSecretCount(ctx context.Context, count int64) {
	b.secretCount.Record(ctx, count)
}
