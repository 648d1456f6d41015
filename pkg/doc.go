// Package pkg provides shared utilities for the softudc controller core.
//
// This package contains functionality used by the controller core, the
// DWC2 transport, the gadgets and the host-side tooling:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for the controller and gadget protocols
//   - The completion [Status] carried by every request
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentUDC, "gadget bound", "speed", "high")
//
// # Errors
//
// Errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrBusy) {
//	    // IN endpoint still has queued requests
//	}
package pkg
