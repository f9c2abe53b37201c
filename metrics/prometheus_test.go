package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/unitbus/contracts"
)

func find(t *testing.T, c *PrometheusCollector, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func TestPrometheusCollector(t *testing.T) {
	c := NewPrometheusCollector()

	c.RecordEmit("ListProjectsCommand", contracts.ChannelDirect)
	c.RecordEmit("ListProjectsCommand", contracts.ChannelDirect)
	c.RecordDispatch("ListProjectsReply", 2*time.Millisecond, true)
	c.RecordDispatch("Unknown", time.Millisecond, false)
	c.RecordHandlerFailure("CreateProjectCommand", "Create*")
	c.RecordCommandOutcome("ListProjectsCommand", contracts.CommandFailTimeout, 5*time.Second)
	c.SetPendingCommands(3)
	c.RecordDropped("unknown_type")
	c.RecordConfigReload(nil)
	c.RecordConfigReload(errors.New("bad yaml"))

	assert.Equal(t, 2.0, find(t, c, "unitbus_messages_emitted_total", map[string]string{"message": "ListProjectsCommand", "channel": "direct"}).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, c, "unitbus_messages_dispatched_total", map[string]string{"message": "Unknown", "handled": "false"}).GetCounter().GetValue())
	assert.Equal(t, uint64(1), find(t, c, "unitbus_dispatch_duration_seconds", map[string]string{"message": "ListProjectsReply"}).GetHistogram().GetSampleCount())
	assert.Equal(t, 1.0, find(t, c, "unitbus_handler_failures_total", map[string]string{"filter": "Create*"}).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, c, "unitbus_command_outcomes_total", map[string]string{"fail_type": contracts.CommandFailTimeout.String()}).GetCounter().GetValue())
	assert.Equal(t, 5.0, find(t, c, "unitbus_command_round_trip_seconds", nil).GetHistogram().GetSampleSum())
	assert.Equal(t, 3.0, find(t, c, "unitbus_pending_commands", nil).GetGauge().GetValue())
	assert.Equal(t, 1.0, find(t, c, "unitbus_messages_dropped_total", map[string]string{"reason": "unknown_type"}).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, c, "unitbus_config_reloads_total", nil).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, c, "unitbus_config_reload_errors_total", nil).GetCounter().GetValue())
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewPrometheusCollector()
	b := NewPrometheusCollector()

	a.SetPendingCommands(7)
	assert.Equal(t, 0.0, find(t, b, "unitbus_pending_commands", nil).GetGauge().GetValue())
}

func TestHandler(t *testing.T) {
	c := NewPrometheusCollector()
	c.RecordDropped("not_connected")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `unitbus_messages_dropped_total{reason="not_connected"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
