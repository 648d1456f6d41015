// Package gadget holds what the boot gadgets share: a vendor-class device
// identity serialized per bus speed, the standard requests the controller
// core delegates to the active gadget, and the one-way execution handoff.
//
// # Descriptors
//
// A [Profile] describes one configuration with one vendor interface and a
// list of bulk endpoints. [Profile.Build] produces the device, qualifier,
// configuration, other-speed configuration and string descriptors for a
// speed: control max packet 64 and bulk max packet 512 at high speed, 8 and
// 64 at full speed.
//
// # Configuration
//
// [Function] answers GET_DESCRIPTOR, GET/SET_CONFIGURATION and
// GET/SET_INTERFACE. Selecting configuration 0 disables the bulk endpoints
// and flushes their queues; configuration 1 enables them and runs the
// Configured hook, where a gadget primes its receive requests.
//
// # Handoff
//
// [Handoff] unregisters the gadget, masks interrupts, invalidates the
// instruction cache and jumps to loaded code.
package gadget
