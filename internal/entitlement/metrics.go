// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	reconciliationsTotal      atomic.Uint64
	verificationFailuresTotal atomic.Uint64
)

func recordReconciliation() {
	reconciliationsTotal.Add(1)
}

func recordVerificationFailure() {
	verificationFailuresTotal.Add(1)
}

// MetricsCollector exposes entitlement engine metrics.
type MetricsCollector struct {
	svc *Service

	reconciliationsDesc      *prometheus.Desc
	verificationFailuresDesc *prometheus.Desc
	premiumDesc              *prometheus.Desc
	billingRetryDesc         *prometheus.Desc
}

func NewMetricsCollector(svc *Service) *MetricsCollector {
	return &MetricsCollector{
		svc: svc,
		reconciliationsDesc: prometheus.NewDesc(
			"braindumpster_sub_reconciliations_total",
			"Number of entitlement snapshot reconciliations performed",
			nil,
			nil,
		),
		verificationFailuresDesc: prometheus.NewDesc(
			"braindumpster_sub_verification_failures_total",
			"Number of transaction records discarded due to failed signature verification",
			nil,
			nil,
		),
		premiumDesc: prometheus.NewDesc(
			"braindumpster_sub_premium",
			"Whether the current purchase state is premium (1) or free (0)",
			nil,
			nil,
		),
		billingRetryDesc: prometheus.NewDesc(
			"braindumpster_sub_billing_retry",
			"Whether the active subscription is in platform billing retry",
			nil,
			nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.reconciliationsDesc
	ch <- c.verificationFailuresDesc
	ch <- c.premiumDesc
	ch <- c.billingRetryDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.reconciliationsDesc,
		prometheus.CounterValue,
		float64(reconciliationsTotal.Load()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.verificationFailuresDesc,
		prometheus.CounterValue,
		float64(verificationFailuresTotal.Load()),
	)

	state := c.svc.State()
	ch <- prometheus.MustNewConstMetric(c.premiumDesc, prometheus.GaugeValue, boolGauge(state.IsPremium))
	ch <- prometheus.MustNewConstMetric(c.billingRetryDesc, prometheus.GaugeValue, boolGauge(state.InBillingRetry))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
