// Package hoststats samples real host CPU/memory for observability only.
// Balancing decisions use queue depth exclusively — host resource sampling
// never feeds the offload policy, it only gives the driver something to
// log alongside node metrics so "is this box overloaded" and "is this
// node's queue overloaded" stay visibly distinct.
package hoststats

import (
	"fmt"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// Snapshot is one sample of host resource usage.
type Snapshot struct {
	CPUPercent    float64
	MemoryPercent float64
}

// Sample reads current host CPU and memory utilization. Errors from either
// reading are reported but do not prevent returning whichever sample
// succeeded — observability sampling must never block the caller on a
// platform quirk.
func Sample() (Snapshot, error) {
	var snap Snapshot
	var errs []error

	cpuPercents, err := cpu.Percent(0, false)
	if err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		errs = append(errs, fmt.Errorf("mem: %w", err))
	} else {
		snap.MemoryPercent = vm.UsedPercent
	}

	if len(errs) > 0 {
		return snap, fmt.Errorf("hoststats: %v", errs)
	}
	return snap, nil
}

// String renders a compact line suitable for appending to a node-event log.
func (s Snapshot) String() string {
	return fmt.Sprintf("host cpu=%.1f%% mem=%.1f%%", s.CPUPercent, s.MemoryPercent)
}
