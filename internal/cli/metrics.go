package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/vaultorm/internal/metrics"
)

// writeMetrics prints every non-zero store and query metric as
// "name{labels} value".
func writeMetrics(w io.Writer) error {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			var value string
			switch {
			case m.GetCounter() != nil:
				if m.GetCounter().GetValue() == 0 {
					continue
				}
				value = fmt.Sprintf("%g", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				value = fmt.Sprintf("count=%d sum=%gs", h.GetSampleCount(), h.GetSampleSum())
			default:
				continue
			}
			fmt.Fprintf(w, "%s{%s} %s\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
	return nil
}
