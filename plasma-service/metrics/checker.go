package metrics

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	gocl "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

type MetricFamilyChecker struct {
	fam *gocl.MetricFamily
	t   require.TestingT
}

func hasAllLabels(m *gocl.Metric, labels map[string]string) bool {
	for k, v := range labels {
		found := false
		for _, lab := range m.Label {
			if lab.GetName() == k && lab.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FindByLabels returns the single metric of the family carrying labels, failing the test
// when there is none or more than one.
func (f *MetricFamilyChecker) FindByLabels(labels map[string]string) *gocl.Metric {
	var found *gocl.Metric
	for _, m := range f.fam.Metric {
		if hasAllLabels(m, labels) {
			require.Nil(f.t, found, "labels %v match more than one metric", labels)
			found = m
		}
	}
	require.NotNil(f.t, found, "no metric with labels %v", labels)
	return found
}

type MetricFamiliesChecker struct {
	families []*gocl.MetricFamily
	t        require.TestingT
}

func (m *MetricFamiliesChecker) FindByName(name string) *MetricFamilyChecker {
	for _, f := range m.families {
		if f.GetName() == name {
			return &MetricFamilyChecker{fam: f, t: m.t}
		}
	}
	require.Failf(m.t, "metric family not found", "name %s", name)
	return nil
}

// Dump renders the gathered families as indented JSON for debugging.
func (m *MetricFamiliesChecker) Dump() string {
	out, _ := json.MarshalIndent(m.families, "  ", "  ")
	return string(out)
}

// NewMetricChecker gathers reg once so a test can look metrics up by name and labels.
func NewMetricChecker(t require.TestingT, reg *prometheus.Registry) *MetricFamiliesChecker {
	families, err := reg.Gather()
	require.NoError(t, err, "must gather metrics")
	return &MetricFamiliesChecker{families: families, t: t}
}
