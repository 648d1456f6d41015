//go:build profile

package prof

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCPUProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cpu.prof")

	if err := StartCPU(path); err != nil {
		t.Fatalf("StartCPU() error = %v", err)
	}
	t.Cleanup(StopCPU)
	if !IsCPUActive() {
		t.Error("IsCPUActive() = false while profiling")
	}
	if err := StartCPU(filepath.Join(dir, "again.prof")); !errors.Is(err, ErrCPUProfileActive) {
		t.Errorf("second StartCPU() error = %v, want %v", err, ErrCPUProfileActive)
	}

	if err := Finish(""); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if IsCPUActive() {
		t.Error("IsCPUActive() = true after Finish")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("cpu profile: %v", err)
	}
}

func TestFinishWritesHeap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.prof")
	if err := Finish(path); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() == 0 {
		t.Error("heap profile is empty")
	}
}

func TestBadPaths(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "x.prof")
	if err := StartCPU(bad); err == nil {
		StopCPU()
		t.Error("StartCPU() into a missing directory succeeded")
	}
	if err := WriteHeap(bad); err == nil {
		t.Error("WriteHeap() into a missing directory succeeded")
	}
}
