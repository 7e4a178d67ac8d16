// Package metrics публикует метрики калибровки в Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// States - известные состояния калибровки, для которых публикуется vnacal_state.
var States = []string{"idle", "detecting", "measuring", "solving", "writing", "activated", "failed"}

// Recorder хранит коллекторы одного экземпляра калибровщика.
// Методы безопасны для nil-получателя, метрики тогда не собираются.
type Recorder struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	measurement *prometheus.HistogramVec
	phase       *prometheus.GaugeVec
	state       *prometheus.GaugeVec
}

// New создает Recorder и регистрирует его коллекторы в reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vnacal_runs_total",
				Help: "Number of calibration runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vnacal_run_duration_seconds",
				Help:    "Duration of complete calibration runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		measurement: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "vnacal_measurement_duration_seconds",
				Help: "Duration of VNA sweeps per calibration standard",
			},
			[]string{"standard"},
		),
		phase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vnacal_detection_phase_radians",
				Help: "Phase of mean(open*conj(short)) seen during port detection",
			},
			[]string{"calunit_port", "analyzer_port"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vnacal_state",
				Help: "Current calibration state, 1 for the active one",
			},
			[]string{"state"},
		),
	}
	reg.MustRegister(r.runs, r.runDuration, r.measurement, r.phase, r.state)
	r.SetState("idle")
	return r
}

// ObserveMeasurement фиксирует длительность измерения одного эталона.
func (r *Recorder) ObserveMeasurement(standard string, d time.Duration) {
	if r == nil {
		return
	}
	r.measurement.WithLabelValues(standard).Observe(d.Seconds())
}

// RunFinished фиксирует завершение калибровки с исходом outcome.
func (r *Recorder) RunFinished(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.runDuration.Observe(d.Seconds())
}

// ObservePhase публикует фазу, измеренную на паре портов при определении подключения.
func (r *Recorder) ObservePhase(calunitPort, analyzerPort int, phase float64) {
	if r == nil {
		return
	}
	r.phase.WithLabelValues(strconv.Itoa(calunitPort), strconv.Itoa(analyzerPort)).Set(phase)
}

// SetState отмечает state как текущее состояние.
func (r *Recorder) SetState(state string) {
	if r == nil {
		return
	}
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		r.state.WithLabelValues(s).Set(v)
	}
}
