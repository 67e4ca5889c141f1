/*
Copyright 2023 Thomas Helander

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics defines the Prometheus instruments the scheduler
// updates on every tick.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "airwatch"

// Metrics bundles every counter/histogram the scheduler writes to. Callers
// create one instance and register it with a *prometheus.Registry.
type Metrics struct {
	LocationsCollected   prometheus.Counter
	MySQLStored          prometheus.Counter
	DailyAveragesCreated prometheus.Counter
	Errors               *prometheus.CounterVec
	TickDuration         prometheus.Histogram
}

// New builds a fresh Metrics bundle. It does not register the instruments;
// call MustRegister on the returned bundle.
func New() *Metrics {
	return &Metrics{
		LocationsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_collected_total",
			Help:      "Number of locations successfully run through the collection pipeline.",
		}),
		MySQLStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mysql_stored_total",
			Help:      "Number of hourly rows successfully upserted into MySQL.",
		}),
		DailyAveragesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_averages_created_total",
			Help:      "Number of daily rollup rows written.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of errors encountered, labeled by pipeline stage.",
		}, []string{"stage"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent processing one scheduler tick.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// MustRegister registers every instrument with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.LocationsCollected, m.MySQLStored, m.DailyAveragesCreated, m.Errors, m.TickDuration)
}
