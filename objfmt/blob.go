package objfmt

// Blob is an opaque byte sequence: the contents of one file at one
// revision. Blobs carry no name or mode of their own — those live on the
// tree entry that references them.
type Blob struct {
	Data []byte
}

func (b *Blob) Type() ObjectType { return BlobObject }

// Payload returns the blob's raw bytes; a blob's canonical form is its
// content verbatim.
func (b *Blob) Payload() []byte { return b.Data }

// Size returns the blob's byte length.
func (b *Blob) Size() int64 { return int64(len(b.Data)) }
