package compress

import (
	"errors"
	"fmt"
	"io"

	"github.com/Norgate-AV/outcache/internal/archive"
	"github.com/Norgate-AV/outcache/internal/property"
)

var _ archive.EntryPacker = (*Packer)(nil)

// Packer compresses the stream of a wrapped EntryPacker
type Packer struct {
	delegate archive.EntryPacker
	codec    Codec
}

// NewPacker wraps delegate with codec
func NewPacker(delegate archive.EntryPacker, codec Codec) *Packer {
	return &Packer{delegate: delegate, codec: codec}
}

// Pack compresses everything the wrapped packer writes
func (p *Packer) Pack(props []property.Spec, writeOrigin archive.OriginWriter, w io.Writer) (archive.PackResult, error) {
	// Codecs write nothing until used, so a setup failure leaves w untouched
	cw, err := p.codec.NewWriter(w)
	if err != nil {
		return archive.PackResult{}, fmt.Errorf("failed to set up %s compression: %w", p.codec.Name(), err)
	}

	result, err := p.delegate.Pack(props, writeOrigin, cw)
	if err != nil {
		_ = cw.Close()
		return result, err
	}

	if err := cw.Close(); err != nil {
		return result, fmt.Errorf("failed to finish %s stream: %w", p.codec.Name(), err)
	}

	return result, nil
}

// Unpack decompresses r for the wrapped packer. Failures of the
// decompressor are reported as corrupt archives.
func (p *Packer) Unpack(props []property.Spec, r io.Reader, readOrigin archive.OriginReader, journal *archive.Journal) (archive.UnpackResult, error) {
	cr, err := p.codec.NewReader(r)
	if err != nil {
		return archive.UnpackResult{}, fmt.Errorf("%w: failed to open %s stream: %w", archive.ErrCorruptArchive, p.codec.Name(), err)
	}

	defer cr.Close()

	src := &corruptingReader{r: cr, codec: p.codec.Name()}
	result, err := p.delegate.Unpack(props, src, readOrigin, journal)
	if err != nil {
		return result, err
	}

	// The delegate stops at its own end marker; reading on verifies the trailer
	if _, err := io.Copy(io.Discard, src); err != nil {
		return result, err
	}

	return result, nil
}

// corruptingReader marks every decompression failure as a corrupt archive
type corruptingReader struct {
	r     io.Reader
	codec string
}

func (c *corruptingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: %s stream: %w", archive.ErrCorruptArchive, c.codec, err)
	}

	return n, err
}
