package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// sample finds the series of name whose labels include want.
func sample(g prometheus.Gatherer, name string, want map[string]string) (*dto.Metric, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabels(m, want) {
				return m, nil
			}
		}
		return nil, fmt.Errorf("%s has no series %v", name, want)
	}
	return nil, fmt.Errorf("%s not registered", name)
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func counterValue(g prometheus.Gatherer, name string, labels map[string]string) (float64, error) {
	m, err := sample(g, name, labels)
	if err != nil {
		return 0, err
	}
	return m.GetCounter().GetValue(), nil
}

func histogramSum(g prometheus.Gatherer, name string, labels map[string]string) (float64, error) {
	m, err := sample(g, name, labels)
	if err != nil {
		return 0, err
	}
	return m.GetHistogram().GetSampleSum(), nil
}
