package object

// A Blob represents the contents of a file. Its canonical payload is
// its content verbatim; there is nothing to parse.
type Blob []byte

func (b *Blob) MarshalPayload() ([]byte, error) {
	out := make([]byte, len(*b))
	copy(out, *b)
	return out, nil
}

func (b *Blob) UnmarshalPayload(data []byte) error {
	*b = make(Blob, len(data))
	copy(*b, data)
	return nil
}
