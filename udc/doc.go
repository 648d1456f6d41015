// Package udc implements the hardware-independent core of a USB device
// controller driver.
//
// The core owns the endpoint array, runs the endpoint 0 control transfer
// state machine and hosts one [Gadget] at a time. A [Transport] programs
// the concrete controller; it reports bus events back through [Events] from
// the interrupt handler.
//
// # Requests
//
// Data moves in [Request] values queued on an [Endpoint]. The head request
// of an endpoint is the one armed in hardware. Requests complete in queue
// order with a [pkg.Status]; a completion callback may queue again,
// including on the endpoint that just completed.
//
// # Endpoint 0
//
// GET_STATUS, SET_ADDRESS and CLEAR/SET_FEATURE are answered by the core.
// Every other SETUP goes to [Gadget.Setup], which answers with [UDC.Reply]
// or [UDC.Receive] or accepts a request that has no data stage by returning
// nil. An error stalls endpoint 0 until the next SETUP.
//
// # Concurrency
//
// There is a single thread of control. Gadget entry points and completion
// callbacks run from the controller interrupt or with it masked, so they
// must not block.
//
// # Zero-Allocation Design
//
// Descriptors and SETUP packets are encoded with MarshalTo(buf) and decoded
// with ParseX(data, out). Requests are recycled through a pool.
package udc
