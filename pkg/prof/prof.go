//go:build profile

package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Enabled reports whether profiling support is compiled in.
const Enabled = true

// ErrCPUProfileActive is returned by StartCPU while a CPU profile runs.
var ErrCPUProfileActive = errors.New("cpu profile already active")

var cpu struct {
	sync.Mutex
	f *os.File
}

// StartCPU starts writing a CPU profile to path.
func StartCPU(path string) error {
	cpu.Lock()
	defer cpu.Unlock()
	if cpu.f != nil {
		return ErrCPUProfileActive
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("cpu profile: %w", err)
	}
	cpu.f = f
	return nil
}

// StopCPU ends the CPU profile, if one is running.
func StopCPU() {
	cpu.Lock()
	defer cpu.Unlock()
	if cpu.f == nil {
		return
	}
	pprof.StopCPUProfile()
	cpu.f.Close()
	cpu.f = nil
}

// IsCPUActive reports whether a CPU profile is running.
func IsCPUActive() bool {
	cpu.Lock()
	defer cpu.Unlock()
	return cpu.f != nil
}

// WriteHeap collects garbage and writes a heap profile to path.
func WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer f.Close()

	runtime.GC()
	return pprof.WriteHeapProfile(f)
}

// Finish ends the CPU profile and, when heapPath is not empty, writes a
// heap profile there.
func Finish(heapPath string) error {
	StopCPU()
	if heapPath == "" {
		return nil
	}
	return WriteHeap(heapPath)
}
