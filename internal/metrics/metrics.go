package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/truewear/go-registrar/internal/config"
)

const namespace = "registrar"

// Outcome labels for submissions.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Service collects the metrics of one CLI run. There is no scrape endpoint;
// Flush writes them to the node_exporter textfile configured in Config.
type Service struct {
	config   config.Metrics
	registry *prometheus.Registry

	submissions *prometheus.CounterVec
	receiptWait prometheus.Histogram
	logAppends  *prometheus.CounterVec
}

func New(cfg config.Metrics) (*Service, error) {
	s := &Service{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions by contract method and outcome.",
		}, []string{"method", "outcome"}),
		receiptWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receipt_wait_seconds",
			Help:      "Time between submission and receipt.",
			Buckets:   []float64{1, 5, 10, 15, 30, 60, 120, 300},
		}),
		logAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_appends_total",
			Help:      "Registration log appends by receipt status.",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{
		s.submissions,
		s.receiptWait,
		s.logAppends,
		collectors.NewGoCollector(),
	} {
		if err := s.registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register collector")
		}
	}

	return s, nil
}

func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Service) ObserveTransaction(method string, outcome string) {
	s.submissions.WithLabelValues(method, outcome).Inc()
}

func (s *Service) ObserveReceiptWait(d time.Duration) {
	s.receiptWait.Observe(d.Seconds())
}

func (s *Service) ObserveLogAppend(status string) {
	s.logAppends.WithLabelValues(status).Inc()
}

// Flush writes all metrics to the configured textfile. Without one it does nothing.
func (s *Service) Flush() error {
	if s.config.Textfile == "" {
		return nil
	}

	if err := prometheus.WriteToTextfile(s.config.Textfile, s.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %q", s.config.Textfile)
	}

	return nil
}
