package health

import (
	"context"
	"fmt"
	"runtime"

	"github.com/glimte/unitbus/network"
)

// ClientStater is the part of network.Client the connection checker reads
type ClientStater interface {
	State() network.ClientState
}

// NewClientChecker reports the connection state of the network client. A client that
// never connected is degraded, a lost or failed connection is unhealthy.
func NewClientChecker(client ClientStater) Checker {
	return CheckerFunc("network_client", func(context.Context) Result {
		state := client.State()
		res := Result{Details: map[string]any{"state": string(state)}}

		switch state {
		case network.StateRunning:
			res.Status = StatusHealthy
		case network.StateIdle, network.StateConnecting:
			res.Status = StatusDegraded
			res.Message = "not connected yet"
		default:
			res.Status = StatusUnhealthy
			res.Message = fmt.Sprintf("client is %s", state)
		}
		return res
	})
}

// PendingCounter is the part of messaging.CommandTracker the backlog checker reads
type PendingCounter interface {
	Pending() int
}

// NewPendingCommandsChecker degrades at warning commands waiting for a reply and fails
// at critical. A zero threshold is disabled.
func NewPendingCommandsChecker(tracker PendingCounter, warning, critical int) Checker {
	return CheckerFunc("pending_commands", func(context.Context) Result {
		pending := tracker.Pending()
		res := Result{
			Status:  StatusHealthy,
			Details: map[string]any{"pending": pending},
		}

		switch {
		case critical > 0 && pending >= critical:
			res.Status = StatusUnhealthy
		case warning > 0 && pending >= warning:
			res.Status = StatusDegraded
		}
		if res.Status != StatusHealthy {
			res.Message = fmt.Sprintf("%d commands waiting for a reply", pending)
		}
		return res
	})
}

// NewRuntimeChecker reports memory and goroutine usage; it degrades above maxGoroutines
func NewRuntimeChecker(maxGoroutines int) Checker {
	return CheckerFunc("runtime", func(context.Context) Result {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		goroutines := runtime.NumGoroutine()

		res := Result{
			Status: StatusHealthy,
			Details: map[string]any{
				"memory_used_mb": float64(m.Sys) / 1024 / 1024,
				"gc_runs":        m.NumGC,
				"goroutines":     goroutines,
			},
		}
		if maxGoroutines > 0 && goroutines > maxGoroutines {
			res.Status = StatusDegraded
			res.Message = fmt.Sprintf("high goroutine count: %d", goroutines)
		}
		return res
	})
}
