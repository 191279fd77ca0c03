package piclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FCJuventus/DoPi-demo/internal/metrics"
	"github.com/FCJuventus/DoPi-demo/models"
)

// Horizon fetches transaction records from the links the gateway attaches to
// a payment's transaction.
type Horizon struct {
	timeout time.Duration
	http    *http.Client
	logger  logrus.FieldLogger
	metrics *metrics.Collector
}

// NewHorizon builds a Horizon client. A nil httpClient uses a fresh one.
func NewHorizon(timeout time.Duration, httpClient *http.Client, logger logrus.FieldLogger, collector *metrics.Collector) *Horizon {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Horizon{
		timeout: timeout,
		http:    httpClient,
		logger:  logger.WithField("component", "horizon"),
		metrics: collector,
	}
}

// FetchTransaction loads the transaction record at link.
func (h *Horizon) FetchTransaction(ctx context.Context, link string) (*models.ChainTransaction, error) {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("piclient: invalid transaction link %q", link)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("piclient: build horizon request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := h.http.Do(req)
	h.metrics.ObserveGateway("horizon_transaction", started)
	if err != nil {
		h.logger.WithError(err).WithField("link", link).Warn("Horizon request failed")
		return nil, fmt.Errorf("piclient: horizon: %w", err)
	}
	defer resp.Body.Close()

	var tx models.ChainTransaction
	if err := decodeResponse(resp, "horizon_transaction", &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
