package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_orders_completed_total",
		Help: "Total number of orders completed",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersReturnedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_orders_returned_total",
		Help: "Total number of returned orders",
	})

	OrderOperationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_order_operations_failed_total",
		Help: "Order operations rejected, by operation and error code",
	}, []string{"operation", "reason"})

	ReservationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_reservation_latency_seconds",
		Help:    "Latency of stock reservations",
		Buckets: prometheus.DefBuckets,
	})

	ReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	PaymentsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_payments_recorded_total",
		Help: "Total number of payments recorded",
	}, []string{"method"})

	PaymentsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_payments_rejected_total",
		Help: "Total number of rejected payments",
	}, []string{"reason"})

	CommissionRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_commission_runs_total",
		Help: "Commission computations by outcome",
	}, []string{"outcome"})

	LockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_lock_wait_seconds",
		Help:    "Time spent waiting for keyed locks",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	})

	LockTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_lock_timeouts_total",
		Help: "Lock acquisitions that gave up",
	})

	ReceiptsPrintedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_receipts_printed_total",
		Help: "Receipts written to the spool",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
