package pack

import (
	"bufio"
	"io"
)

// byteReader adapts an io.Reader (an io.SectionReader, in this
// package's only use) to io.ByteReader for the varint decoders, and
// passes reads through to zlib.NewReader once the header has been
// consumed.
type byteReader struct {
	*bufio.Reader
}

func newByteReader(r io.Reader) *byteReader {
	return &byteReader{bufio.NewReader(r)}
}
