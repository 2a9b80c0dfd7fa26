package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

// ErrCorruptIndex is returned when an index file fails validation.
var ErrCorruptIndex = errors.New("corrupt index file")

// Codec selects the compression of a saved index body.
type Codec string

const (
	CodecNone Codec = "none"
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
)

// ParseCodec parses a codec name.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case CodecNone, CodecZstd, CodecLZ4:
		return c, nil
	case "":
		return CodecZstd, nil
	default:
		return "", fmt.Errorf("unknown index codec '%s'", s)
	}
}

var magic = [8]byte{'D', 'B', 'S', 'I', 'D', 'X', '0', '1'}

// fileHeader is stored as JSON between the magic and the body.
type fileHeader struct {
	Codec           Codec   `json:"codec"`
	BinsPerDalton   int     `json:"bins_per_dalton"`
	MaxFragmentMass float64 `json:"max_fragment_mass"`
	Dissociation    string  `json:"dissociation"`
	Peptides        int     `json:"peptides"`
	Bins            int     `json:"bins"`
	Postings        int     `json:"postings"`
	BodySize        int     `json:"body_size"`
	Checksum        uint64  `json:"checksum"`
}

// Save writes idx to w: magic, header length, JSON header and the body
// compressed with codec.
func Save(w io.Writer, idx *Index, codec Codec) error {
	body := encodeBody(idx)
	hdr := fileHeader{
		Codec:           codec,
		BinsPerDalton:   idx.BinsPerDalton,
		MaxFragmentMass: idx.MaxFragmentMass,
		Dissociation:    idx.Dissociation.String(),
		Peptides:        len(idx.Peptides),
		Bins:            idx.NumBins(),
		Postings:        len(idx.postings),
		BodySize:        len(body),
		Checksum:        xxhash.Sum64(body),
	}

	payload, err := compress(body, &hdr.Codec)
	if err != nil {
		return fmt.Errorf("compressing index: %w", err)
	}

	hdrBytes, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("marshaling index header: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.Write(magic[:])
	binary.Write(bw, binary.LittleEndian, uint32(len(hdrBytes)))
	bw.Write(hdrBytes)
	bw.Write(payload)
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// Load reads an index written by Save and re-validates its ordering invariants.
func Load(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var m [8]byte
	if _, err := io.ReadFull(br, m[:]); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrCorruptIndex, err)
	}
	if m != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}

	var hdrLen uint32
	if err := binary.Read(br, binary.LittleEndian, &hdrLen); err != nil {
		return nil, fmt.Errorf("%w: reading header length: %v", ErrCorruptIndex, err)
	}
	if hdrLen > 1<<20 {
		return nil, fmt.Errorf("%w: header length %d", ErrCorruptIndex, hdrLen)
	}
	hdrBytes := make([]byte, hdrLen)
	if _, err := io.ReadFull(br, hdrBytes); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCorruptIndex, err)
	}
	var hdr fileHeader
	if err := json.Unmarshal(hdrBytes, &hdr); err != nil {
		return nil, fmt.Errorf("%w: parsing header: %v", ErrCorruptIndex, err)
	}

	payload, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("reading index body: %w", err)
	}
	body, err := decompress(payload, hdr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if len(body) != hdr.BodySize || xxhash.Sum64(body) != hdr.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}

	dissociation, err := core.ParseDissociationType(hdr.Dissociation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	idx := &Index{
		BinsPerDalton:   hdr.BinsPerDalton,
		MaxFragmentMass: hdr.MaxFragmentMass,
		Dissociation:    dissociation,
	}
	if err := idx.decodeBody(body, hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if err := idx.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return idx, nil
}

func compress(body []byte, codec *Codec) ([]byte, error) {
	switch *codec {
	case CodecNone:
		return body, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(body, nil), nil
	case CodecLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(body)))
		n, err := lz4.CompressBlock(body, out, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// incompressible
			*codec = CodecNone
			return body, nil
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("unknown codec '%s'", *codec)
	}
}

func decompress(payload []byte, hdr fileHeader) ([]byte, error) {
	switch hdr.Codec {
	case CodecNone:
		return payload, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(payload, make([]byte, 0, hdr.BodySize))
	case CodecLZ4:
		out := make([]byte, hdr.BodySize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("unknown codec '%s'", hdr.Codec)
	}
}

func encodeBody(idx *Index) []byte {
	le := binary.LittleEndian
	buf := make([]byte, 0, 64*len(idx.Peptides)+4*len(idx.offsets)+4*len(idx.postings))

	putString := func(s string) {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}

	for _, p := range idx.Peptides {
		putString(p.Sequence)
		putString(p.Protein)
		buf = le.AppendUint32(buf, uint32(p.Start))
		if p.Decoy {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = binary.AppendUvarint(buf, uint64(len(p.Mods)))
		for _, m := range p.Mods {
			buf = le.AppendUint64(buf, math.Float64bits(m.Mass))
			buf = le.AppendUint32(buf, uint32(int32(m.Position)))
			putString(m.Name)
		}
	}
	for _, o := range idx.offsets {
		buf = le.AppendUint32(buf, o)
	}
	for _, p := range idx.postings {
		buf = le.AppendUint32(buf, uint32(p))
	}
	return buf
}

// decoder reads the body, remembering the first short read.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.err = io.ErrUnexpectedEOF
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) str() string {
	n := d.uvarint()
	if n > uint64(len(d.buf)) {
		d.err = io.ErrUnexpectedEOF
		return ""
	}
	return string(d.take(int(n)))
}

func (idx *Index) decodeBody(body []byte, hdr fileHeader) error {
	if hdr.Peptides < 0 || hdr.Bins < 0 || hdr.Postings < 0 {
		return fmt.Errorf("negative counts in header")
	}
	if 4*(hdr.Bins+1)+4*hdr.Postings > len(body) {
		return fmt.Errorf("header counts exceed body size")
	}
	d := &decoder{buf: body}

	idx.Peptides = make([]*core.Peptide, 0, hdr.Peptides)
	idx.masses = make([]float64, 0, hdr.Peptides)
	for i := 0; i < hdr.Peptides && d.err == nil; i++ {
		seq := d.str()
		protein := d.str()
		start := int(d.u32())
		decoy := d.take(1)
		nmods := d.uvarint()
		if nmods > uint64(len(seq))+2 {
			return fmt.Errorf("peptide %d: %d modifications", i, nmods)
		}
		mods := make([]core.Modification, 0, nmods)
		for j := uint64(0); j < nmods && d.err == nil; j++ {
			var mass float64
			if b := d.take(8); b != nil {
				mass = math.Float64frombits(binary.LittleEndian.Uint64(b))
			}
			pos := int(int32(d.u32()))
			mods = append(mods, core.Modification{Mass: mass, Position: pos, Name: d.str()})
		}
		if d.err != nil {
			break
		}
		p := core.NewPeptide(seq, mods, protein, start, decoy[0] == 1).WithIndex(i)
		idx.Peptides = append(idx.Peptides, p)
		idx.masses = append(idx.masses, p.MonoisotopicMass())
	}

	idx.offsets = make([]uint32, hdr.Bins+1)
	for i := range idx.offsets {
		idx.offsets[i] = d.u32()
	}
	idx.postings = make([]int32, hdr.Postings)
	for i := range idx.postings {
		idx.postings[i] = int32(d.u32())
	}
	if d.err != nil {
		return fmt.Errorf("truncated body: %w", d.err)
	}
	if len(d.buf) != 0 {
		return fmt.Errorf("%d trailing bytes", len(d.buf))
	}
	return nil
}

// validate checks the mass order of the candidate list and the bin invariants.
func (idx *Index) validate() error {
	for i := 1; i < len(idx.masses); i++ {
		if !(idx.masses[i] >= idx.masses[i-1]) {
			return fmt.Errorf("candidate %d is lighter than candidate %d", i, i-1)
		}
	}
	if len(idx.offsets) == 0 || idx.offsets[0] != 0 || int(idx.offsets[len(idx.offsets)-1]) != len(idx.postings) {
		return fmt.Errorf("bin offsets do not cover postings")
	}
	for b := 0; b < idx.NumBins(); b++ {
		if idx.offsets[b+1] < idx.offsets[b] {
			return fmt.Errorf("bin %d has negative length", b)
		}
		ids := idx.Bin(b)
		for k, id := range ids {
			if id < 0 || int(id) >= len(idx.Peptides) {
				return fmt.Errorf("bin %d references candidate %d", b, id)
			}
			if k > 0 && id < ids[k-1] {
				return fmt.Errorf("bin %d is not in candidate order", b)
			}
		}
	}
	return nil
}
