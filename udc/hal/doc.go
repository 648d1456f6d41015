// Package hal defines the collaborators the controller core needs from the
// boot environment.
//
// The core never touches hardware directly. A transport drives controller
// registers through a [Bus], installs its interrupt handler and pokes the
// interrupt controller through a [Platform], and hands buffers to the DMA
// engine through [Memory]. Gadgets use [Memory] to reach the physical
// addresses named by their protocols and [Platform] to hand off execution.
//
// The simulator in [github.com/ardnew/softudc/dwc2/sim] implements all three
// interfaces for tests and the host-side CLI.
package hal
