// Package diag implements the textual diagnostic gadget.
//
// Command lines arrive on bulk endpoint 2 OUT, one per transfer, and are
// split in place into at most three whitespace-separated fields. Names are
// case-insensitive; numbers take a 0x prefix for hexadecimal.
//
//	memwrite ADDR      the next OUT packet is written to ADDR
//	memread ADDR LEN   LEN bytes at ADDR are sent on endpoint 1 IN
//	checksum ADDR LEN  additive 32-bit sum, replied as 0xXXXXXXXX
//	crc ADDR LEN       CRC-16/CCITT-FALSE, replied as 0xXXXX
//	execute ADDR       unregister and jump to ADDR
//
// memwrite accepts exactly one packet: whatever the host sends next is
// received directly into memory and the pipe returns to command mode.
// Unknown or malformed commands are logged and ignored.
//
// Endpoint 4 OUT carries the binary image-loader protocol of package
// loader; a complete image is jumped to at its load address.
package diag
