// Package metrics exposes request and domain counters for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry so tests can build independent instances.
type Metrics struct {
	Registry *prometheus.Registry

	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	appointments    prometheus.Counter
	ordersReceived  prometheus.Counter
	stockMovements  *prometheus.CounterVec
	customerImports *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optica",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "optica",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		appointments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optica",
			Name:      "appointments_booked_total",
			Help:      "Appointments created.",
		}),
		ordersReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optica",
			Name:      "purchase_orders_received_total",
			Help:      "Purchase orders that became fully received.",
		}),
		stockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optica",
			Name:      "stock_movements_total",
			Help:      "Stock movements recorded by kind.",
		}, []string{"kind"}),
		customerImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optica",
			Name:      "customer_import_rows_total",
			Help:      "Customer CSV rows by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.appointments, m.ordersReceived, m.stockMovements, m.customerImports,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) AppointmentBooked() {
	if m != nil {
		m.appointments.Inc()
	}
}

func (m *Metrics) OrderReceived() {
	if m != nil {
		m.ordersReceived.Inc()
	}
}

func (m *Metrics) StockMoved(kind string) {
	if m != nil {
		m.stockMovements.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) CustomersImported(created, updated, skipped int) {
	if m == nil {
		return
	}
	m.customerImports.WithLabelValues("created").Add(float64(created))
	m.customerImports.WithLabelValues("updated").Add(float64(updated))
	m.customerImports.WithLabelValues("skipped").Add(float64(skipped))
}
