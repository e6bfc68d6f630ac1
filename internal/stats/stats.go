// Package stats collects service counters and process metrics and renders
// them as Element maps for the command channel.
package stats

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/kestreldns/kestrel/internal/data"
)

// Collector accumulates query counters. All methods are safe for
// concurrent use.
type Collector struct {
	start time.Time

	queriesTotal atomic.Uint64
	queriesUDP   atomic.Uint64
	queriesTCP   atomic.Uint64
	dropped      atomic.Uint64
	timeouts     atomic.Uint64

	proc *process.Process
}

// NewCollector creates a collector. Process metrics are best-effort: when
// the platform refuses them the snapshot simply omits that section.
func NewCollector() *Collector {
	c := &Collector{start: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.proc = p
	}
	return c
}

// RecordQuery counts one inbound query on the given transport.
func (c *Collector) RecordQuery(transport string) {
	c.queriesTotal.Add(1)
	switch transport {
	case "udp":
		c.queriesUDP.Add(1)
	case "tcp":
		c.queriesTCP.Add(1)
	}
}

// RecordDropped counts a query dropped without a response.
func (c *Collector) RecordDropped() {
	c.dropped.Add(1)
}

// RecordTimeout counts an idle TCP connection teardown.
func (c *Collector) RecordTimeout() {
	c.timeouts.Add(1)
}

// Snapshot renders the current counters, runtime figures and process
// metrics as a map Element.
func (c *Collector) Snapshot() *data.Element {
	m := data.NewMap()

	queries := data.NewMap()
	queries.Set("total", data.NewInt(clampCounter(c.queriesTotal.Load())))
	queries.Set("udp", data.NewInt(clampCounter(c.queriesUDP.Load())))
	queries.Set("tcp", data.NewInt(clampCounter(c.queriesTCP.Load())))
	queries.Set("dropped", data.NewInt(clampCounter(c.dropped.Load())))
	queries.Set("tcp_timeouts", data.NewInt(clampCounter(c.timeouts.Load())))
	m.Set("queries", queries)

	rt := data.NewMap()
	rt.Set("uptime_seconds", data.NewInt(clampCounter(uint64(time.Since(c.start).Seconds()))))
	rt.Set("goroutines", data.NewInt(int32(runtime.NumGoroutine())))
	rt.Set("num_cpu", data.NewInt(int32(runtime.NumCPU())))
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	rt.Set("heap_alloc_mb", data.NewReal(float64(ms.HeapAlloc)/1024/1024))
	m.Set("runtime", rt)

	if c.proc != nil {
		proc := data.NewMap()
		if cpu, err := c.proc.CPUPercent(); err == nil {
			proc.Set("cpu_percent", data.NewReal(cpu))
		}
		if mem, err := c.proc.MemoryInfo(); err == nil && mem != nil {
			proc.Set("rss_mb", data.NewReal(float64(mem.RSS)/1024/1024))
			proc.Set("vms_mb", data.NewReal(float64(mem.VMS)/1024/1024))
		}
		if fds, err := c.proc.NumFDs(); err == nil {
			proc.Set("open_fds", data.NewInt(fds))
		}
		m.Set("process", proc)
	}

	return m
}

// clampCounter narrows a counter to the model's 32-bit integer without
// wrapping to a negative.
func clampCounter(v uint64) int32 {
	if v > 1<<31-1 {
		return 1<<31 - 1
	}
	return int32(v)
}
