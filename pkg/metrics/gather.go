package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

// Value returns the current value of a counter or gauge in the custom
// registry. name is the fully qualified metric name; labels must match
// the series exactly (nil for unlabelled metrics).
func Value(name string, labels map[string]string) (float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrObserveFailed, err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m.GetLabel(), labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue(), nil
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}
