package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends every metric in g to a Prometheus Pushgateway under job. Batch
// runs exit before a scrape could happen, so load runs push instead.
func Push(ctx context.Context, url, job, runID string, g prometheus.Gatherer) error {
	err := push.New(url, job).
		Grouping("run_id", runID).
		Gatherer(g).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
