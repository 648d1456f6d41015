// Package loader implements the binary image-loader gadget.
//
// The host streams one image to bulk endpoint 2 OUT. The first transfer
// starts with an 8-byte [Header] (version 1): load address and total length,
// both little-endian, where the length counts the header itself. The payload
// follows immediately and may span any number of packets. Once the declared
// length has been written the gadget unregisters itself, masks interrupts,
// invalidates the instruction cache and jumps to the image.
//
// A first transfer too short to hold the header, or one whose payload would
// not fit in memory, is discarded and the loader keeps waiting for a header.
//
// Two vendor requests select a jump address different from the load
// address:
//
//	GET_EXECADDR  bmRequestType 0xC0, bRequest 0, wLength 4
//	SET_EXECADDR  bmRequestType 0x40, bRequest 1, wLength 4
//
// [Stream] is the reusable half: it keeps a request armed on one OUT
// endpoint and feeds a [Session]. The diagnostic gadget serves its second
// endpoint pair with it.
package loader
