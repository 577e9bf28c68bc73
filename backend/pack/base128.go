package pack

import "io"

// readBase128MBE reads the packfile's "modified big-endian" encoding,
// used for the offset-delta base reference: a little twist on the
// same MSB-continuation scheme where each continued byte implicitly
// adds one to the accumulated value before shifting.
func readBase128MBE(r io.ByteReader) (uint64, error) {
	c, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	x := uint64(c & 0x7F)
	for c&0x80 != 0 {
		c, err = r.ReadByte()
		if err != nil {
			return x, err
		}
		x = (x+1)<<7 | uint64(c&0x7F)
	}
	return x, nil
}
