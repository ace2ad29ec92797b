// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncsTotal          atomic.Uint64
	receiptSyncFailures atomic.Uint64
	directSyncFailures  atomic.Uint64
)

// MetricsCollector exposes backend sync metrics.
type MetricsCollector struct {
	syncsDesc           *prometheus.Desc
	receiptFailuresDesc *prometheus.Desc
	directFailuresDesc  *prometheus.Desc
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		syncsDesc: prometheus.NewDesc(
			"braindumpster_sub_backend_syncs_total",
			"Number of backend sync attempts",
			nil,
			nil,
		),
		receiptFailuresDesc: prometheus.NewDesc(
			"braindumpster_sub_backend_receipt_sync_failures_total",
			"Number of receipt-path sync failures that fell back to direct status",
			nil,
			nil,
		),
		directFailuresDesc: prometheus.NewDesc(
			"braindumpster_sub_backend_direct_sync_failures_total",
			"Number of direct status sync failures",
			nil,
			nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.syncsDesc
	ch <- c.receiptFailuresDesc
	ch <- c.directFailuresDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.syncsDesc, prometheus.CounterValue, float64(syncsTotal.Load()))
	ch <- prometheus.MustNewConstMetric(c.receiptFailuresDesc, prometheus.CounterValue, float64(receiptSyncFailures.Load()))
	ch <- prometheus.MustNewConstMetric(c.directFailuresDesc, prometheus.CounterValue, float64(directSyncFailures.Load()))
}
