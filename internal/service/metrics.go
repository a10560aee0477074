package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"illustrator-server/internal/models"
)

var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "illustration_generations_total",
		Help: "Completed generation pipeline runs by outcome and failure stage.",
	}, []string{"outcome", "stage"})

	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "illustration_pipeline_duration_seconds",
		Help:    "Wall-clock duration of full generation pipeline runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

func observeOutcome(outcome string, err error) {
	stage := ""
	var pipeErr *models.PipelineError
	if errors.As(err, &pipeErr) {
		stage = string(pipeErr.Stage)
	}
	generationsTotal.WithLabelValues(outcome, stage).Inc()
}
