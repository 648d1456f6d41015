package diag

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/sigurn/crc16"

	"github.com/ardnew/softudc/pkg"
)

// maxTokens is the number of fields a command line is split into.
const maxTokens = 3

// Command names, matched case-insensitively.
var (
	cmdMemWrite = []byte("memwrite")
	cmdMemRead  = []byte("memread")
	cmdChecksum = []byte("checksum")
	cmdCRC      = []byte("crc")
	cmdExecute  = []byte("execute")
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum returns the 32-bit additive sum of data.
func Checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// CRC16 returns the CRC-16/CCITT-FALSE of data.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// tokenize splits line into at most len(toks) whitespace-delimited fields
// and returns how many were found. The fields alias line. A NUL byte ends
// the line.
func tokenize(line []byte, toks [][]byte) int {
	if i := bytes.IndexByte(line, 0); i >= 0 {
		line = line[:i]
	}
	n := 0
	for n < len(toks) {
		start := 0
		for start < len(line) && isSpace(line[start]) {
			start++
		}
		if start == len(line) {
			break
		}
		end := start
		for end < len(line) && !isSpace(line[end]) {
			end++
		}
		toks[n] = line[start:end]
		n++
		line = line[end:]
	}
	return n
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// parseNumber decodes a decimal, 0x hexadecimal or 0 octal argument.
func parseNumber(tok []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(tok), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", pkg.ErrInvalidArgument, tok)
	}
	return uint32(v), nil
}

// args decodes toks[1:] as numbers, requiring exactly want tokens.
func args(toks [][]byte, want int) ([]uint32, error) {
	if len(toks) != want {
		return nil, fmt.Errorf("%w: %d arguments, want %d", pkg.ErrInvalidArgument, len(toks)-1, want-1)
	}
	v := make([]uint32, 0, want-1)
	for _, tok := range toks[1:] {
		n, err := parseNumber(tok)
		if err != nil {
			return nil, err
		}
		v = append(v, n)
	}
	return v, nil
}
