package vector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/kailas-cloud/mailrag/internal/domain"
	"github.com/kailas-cloud/mailrag/internal/domain/record"
)

const snapshotVersion = 1

// Compression selects the snapshot envelope.
type Compression string

// Supported envelopes.
const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// IsValid reports whether c is a supported envelope. Empty means none.
func (c Compression) IsValid() bool {
	return c == "" || c == CompressionNone || c == CompressionZstd
}

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

type snapshotDTO struct {
	Version   int         `json:"version"`
	Dimension int         `json:"dimension"`
	Records   []recordDTO `json:"records"`
}

type recordDTO struct {
	ID        int               `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata"`
}

// legacyRecordDTO is the bare-array layout: metadata values may be any JSON scalar.
type legacyRecordDTO struct {
	ID        int            `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

// codec serializes the whole collection. The decoder always exists so a
// compressed snapshot stays readable after compression is switched off.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec(c Compression) (*codec, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	cd := &codec{dec: dec}
	if c == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		cd.enc = enc
	}
	return cd, nil
}

func (c *codec) close() {
	if c.enc != nil {
		_ = c.enc.Close()
	}
	c.dec.Close()
}

func (c *codec) encode(records []record.Record, dim int) ([]byte, error) {
	snap := snapshotDTO{
		Version:   snapshotVersion,
		Dimension: dim,
		Records:   make([]recordDTO, len(records)),
	}
	for i := range records {
		r := &records[i]
		snap.Records[i] = recordDTO{
			ID:        r.ID(),
			Text:      r.Text(),
			Embedding: r.Embedding(),
			Metadata:  r.Metadata(),
		}
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	if c.enc == nil {
		return raw, nil
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// decode parses a snapshot in either layout and returns its records and dimension.
// It does not validate id contiguity; see validate.
func (c *codec) decode(data []byte) ([]record.Record, int, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("decompress snapshot: %w", err)
		}
		data = raw
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, 0, nil
	}

	switch trimmed[0] {
	case '{':
		return decodeSnapshot(trimmed)
	case '[':
		return decodeLegacy(trimmed)
	default:
		return nil, 0, fmt.Errorf("unrecognized snapshot format (first byte %q)", trimmed[0])
	}
}

func decodeSnapshot(data []byte) ([]record.Record, int, error) {
	var snap snapshotDTO
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, 0, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, 0, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	out := make([]record.Record, len(snap.Records))
	for i, r := range snap.Records {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		out[i] = record.Reconstruct(r.ID, r.Text, r.Embedding, meta)
	}

	dim := snap.Dimension
	if dim == 0 && len(out) > 0 {
		dim = out[0].Dimension()
	}
	return out, dim, nil
}

func decodeLegacy(data []byte) ([]record.Record, int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var items []legacyRecordDTO
	if err := dec.Decode(&items); err != nil {
		return nil, 0, fmt.Errorf("unmarshal legacy snapshot: %w", err)
	}

	out := make([]record.Record, len(items))
	for i, it := range items {
		meta := make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			meta[k] = stringifyScalar(v)
		}
		out[i] = record.Reconstruct(it.ID, it.Text, it.Embedding, meta)
	}

	dim := 0
	if len(out) > 0 {
		dim = out[0].Dimension()
	}
	return out, dim, nil
}

func stringifyScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// validate checks that ids are 0..n-1 in order and every embedding has length dim.
func validate(records []record.Record, dim int) error {
	for i := range records {
		r := &records[i]
		if r.ID() != i {
			return fmt.Errorf("record at position %d has id %d", i, r.ID())
		}
		if r.Dimension() != dim {
			return fmt.Errorf("record %d: %w", i, domain.NewDimensionError(dim, r.Dimension()))
		}
		if r.Text() == "" {
			return fmt.Errorf("record %d has empty text", i)
		}
	}
	return nil
}
