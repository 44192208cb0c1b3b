package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteFile writes every metric gathered by g to path in the text exposition
// format used by the node exporter textfile collector.
func WriteFile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
