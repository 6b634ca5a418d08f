package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, Labels{DeviceID: "edge-1", InstanceNumber: "i-1", IothubHostname: "hub", ModuleID: "robot"})

	r.RecordDecision("STEAMED", 20*time.Millisecond, 8.5, 3, false)
	r.RecordDecision("STEAMED", 10*time.Millisecond, 4.0, 1, false)
	r.RecordDecision("FAILED", time.Millisecond, 0, 0, true)
	r.RecordUpload("ftp", nil)
	r.RecordUpload("ftp", errors.New("refused"))
	r.EventsInQueue.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.EventsProcessed.WithLabelValues("STEAMED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.EventsProcessed.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Failures))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Uploads.WithLabelValues("ftp", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.EventsInQueue))

	expected := `
# HELP steaming_robot_counter_failures_total The number of events whose evaluation failed
# TYPE steaming_robot_counter_failures_total counter
steaming_robot_counter_failures_total{deviceId="edge-1",instanceNumber="i-1",iothubHostname="hub",moduleId="robot"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "steaming_robot_counter_failures_total"))

	n, err := testutil.GatherAndCount(reg, "steaming_robot_selected_zones")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorderGeneratesInstanceNumber(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, Labels{ModuleID: "robot"})
	r.Failures.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	for _, lp := range families[0].GetMetric()[0].GetLabel() {
		if lp.GetName() == "instanceNumber" {
			assert.NotEmpty(t, lp.GetValue())
		}
	}
}
