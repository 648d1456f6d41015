// Package image prepares firmware for the loader gadget on the host side.
//
// An [Image] is read from a raw binary placed at a given address or from an
// Intel HEX file, which carries its own addresses. [Image.Frame] produces the
// bytes streamed to the loader's OUT endpoint. [Image.Checksum] and
// [Image.CRC16] match the diagnostic gadget's checksum and crc replies, so a
// host can verify an image written with memwrite.
package image
