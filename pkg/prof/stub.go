//go:build !profile

package prof

// Enabled reports whether profiling support is compiled in.
const Enabled = false

// ErrCPUProfileActive is never returned without the "profile" tag.
var ErrCPUProfileActive error

// The profiling functions are no-ops.
func StartCPU(string) error  { return nil }
func StopCPU()               {}
func IsCPUActive() bool      { return false }
func WriteHeap(string) error { return nil }
func Finish(string) error    { return nil }
