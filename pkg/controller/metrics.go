package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathways_runs_total",
		Help: "Scenario runs by outcome.",
	}, []string{"scenario", "status"})

	solveSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pathways_solve_seconds",
		Help:    "Time spent building and solving the linear program of a run.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"scenario", "solver"})

	indicatorValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pathways_indicator",
		Help: "Indicators of the latest successful run of each scenario.",
	}, []string{"scenario", "name"})
)
