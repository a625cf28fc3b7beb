package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	natsInboundReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "nats_messages_received_total",
			Help:      "Total number of NATS messages received for inbound SMS and MMS.",
		},
		[]string{"source"},
	)

	natsInboundRejectedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "nats_messages_rejected_total",
			Help:      "Total number of inbound NATS messages that could not be handed to the pipeline.",
		},
		[]string{"source", "reason"}, // reason: "decode", "validation", "backpressure", "shutdown"
	)

	pipelineOutcomesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "pipeline_outcomes_total",
			Help:      "Total number of pipeline invocations by outcome.",
		},
		[]string{"source", "outcome"},
	)

	pipelineErrorsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "pipeline_errors_total",
			Help:      "Total number of pipeline invocations aborted by a failing stage.",
		},
		[]string{"source", "stage"},
	)

	pipelineDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inbound_processor",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of one pipeline invocation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	notifierFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "notifier_failures_total",
			Help:      "Total number of failed downstream notifier calls.",
		},
		[]string{"notifier"},
	)

	notifierDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inbound_processor",
			Name:      "notifier_duration_seconds",
			Help:      "Duration of downstream notifier calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"notifier"},
	)
)
