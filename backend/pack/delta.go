package pack

import (
	"fmt"

	"github.com/embervcs/odb/dberr"
)

// Delta instructions are a length-prefixed sequence of opcodes: an
// insert opcode (top bit clear) carries its own literal bytes; a copy
// opcode (top bit set) carries a bitmask-compressed offset and length
// into the base object.

// applyDelta reconstructs an object's payload from its base and a
// delta stream: a pair of base128 lengths (the expected base length,
// for a sanity check, and the result length) followed by copy/insert
// instructions.
func applyDelta(base, delta []byte) ([]byte, error) {
	const op = "pack.applyDelta"
	var i, j int

	baseLen, n := binaryUvarint(delta[i:])
	if n <= 0 {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("bad base length"))
	}
	i += n
	if baseLen != uint64(len(base)) {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("delta base length %d != actual base length %d", baseLen, len(base)))
	}

	resultLen, n := binaryUvarint(delta[i:])
	if n <= 0 {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("bad result length"))
	}
	i += n

	result := make([]byte, resultLen)
	for i < len(delta) {
		opcode := delta[i]
		i++
		switch opcode >> 7 {
		case 0: // insert
			n := int(opcode)
			if i+n > len(delta) || j+n > len(result) {
				return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("insert instruction overruns buffer"))
			}
			j += copy(result[j:], delta[i:i+n])
			i += n
		case 1: // copy
			off, n := uvarintMask(delta[i:], opcode&0x0F)
			if n < 0 {
				return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("bad copy offset"))
			}
			i += n
			length, n := uvarintMask(delta[i:], (opcode&0x70)>>4)
			if n < 0 {
				return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("bad copy length"))
			}
			i += n
			if length == 0 {
				length = 1 << 16
			}
			if off+length > uint64(len(base)) || j+int(length) > len(result) {
				return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("copy instruction overruns buffer"))
			}
			j += copy(result[j:], base[off:off+length])
		}
	}
	if uint64(j) != resultLen {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("delta produced %d bytes, expected %d", j, resultLen))
	}
	return result, nil
}

// binaryUvarint is base128LE decoding applied to a byte slice rather
// than an io.ByteReader, for convenience against delta streams that
// are already fully buffered.
func binaryUvarint(buf []byte) (uint64, int) {
	var x uint64
	var s uint
	for i, b := range buf {
		if b < 0x80 {
			if i > 9 || (i == 9 && b > 1) {
				return 0, -(i + 1)
			}
			return x | uint64(b)<<s, i + 1
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, 0
}

// uvarintMask decodes a bitmask-compressed little-endian integer: each
// set bit in mask (lowest bit first) means the next byte of buf is
// present; a clear bit means that byte position is implicitly zero.
// This is how copy offsets and lengths are packed into as few bytes as
// the value needs.
func uvarintMask(buf []byte, mask uint8) (x uint64, n int) {
	for i := uint(0); i < 8; i++ {
		if mask&(1<<i) != 0 {
			if n >= len(buf) {
				return 0, -1
			}
			x |= uint64(buf[n]) << (i * 8)
			n++
		}
	}
	return x, n
}
