// Package prof captures pprof profiles around a simulator run.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/softudc
//	softudc sim load --cpuprofile cpu.prof --memprofile heap.prof image.bin
//
// Without the tag every function is a no-op and [Enabled] is false.
package prof
