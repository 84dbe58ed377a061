package wavespeck

import (
	"math"

	"github.com/mrjoshuak/wavespeck/internal/chunked"
	"github.com/mrjoshuak/wavespeck/internal/condition"
	"github.com/mrjoshuak/wavespeck/internal/rtn"
	"github.com/mrjoshuak/wavespeck/internal/sample"
)

// minPortionBytes is the smallest per-chunk prefix progressive
// truncation will keep: the chunk's conditioner header (17 bytes)
// plus enough of its SPECK header to stay self-describing (spec
// §4.J names this floor as the per-chunk SPECK header size, 26 bytes
// in the original layout; kept as the same fixed constant here since
// it is a truncation policy choice, not derived from our own header
// sizes).
const minPortionBytes = 26

// StreamInfo summarizes a chunked bitstream's header fields without
// decoding any chunk payload (spec §4.J populate_stream_info).
type StreamInfo struct {
	VolDims      sample.Dims
	ChunkDims    chunked.Dims
	ChunkOffsets []int
	StreamLen    int
	IsPortion    bool
	IsFloat      bool
}

// GetHeaderLen reports how many leading bytes of data are the
// fixed-size header: the 10-byte stream meta plus either the 17-byte
// conditioner header (flat streams) or the 28-byte chunked header
// (chunked streams), spec §4.J get_header_len.
func GetHeaderLen(data []byte) (int, error) {
	m, err := decodeMeta(data)
	if err != nil {
		return 0, err
	}
	if m.chunked() {
		return metaSize + chunked.HeaderSize, nil
	}
	return metaSize + condition.HeaderSize, nil
}

// PopulateStreamInfo fills a StreamInfo from a chunked bitstream's
// header and length table. It returns InvalidParam for a non-chunked
// stream, since chunk offsets are undefined for one.
func PopulateStreamInfo(data []byte) (StreamInfo, error) {
	m, err := decodeMeta(data)
	if err != nil {
		return StreamInfo{}, err
	}
	if !m.chunked() {
		return StreamInfo{}, rtn.New(rtn.InvalidParam, "populate_stream_info: stream is not chunked")
	}
	hdr, payloads, err := chunked.ParseStream(data[metaSize:])
	if err != nil {
		return StreamInfo{}, err
	}
	offsets := make([]int, len(payloads))
	off := metaSize + chunked.HeaderSize + 4*len(payloads)
	for i, p := range payloads {
		offsets[i] = off
		off += len(p)
	}
	return StreamInfo{
		VolDims:      sample.Dims{Nx: int(hdr.Nx), Ny: int(hdr.Ny), Nz: int(hdr.Nz)},
		ChunkDims:    chunked.Dims{Nx: int(hdr.ChunkX), Ny: int(hdr.ChunkY), Nz: int(hdr.ChunkZ)},
		ChunkOffsets: offsets,
		StreamLen:    len(data),
		IsPortion:    m.isPortion(),
		IsFloat:      m.isFloat(),
	}, nil
}

// ProgressiveRead truncates every chunk of a chunked bitstream to at
// most ceil(chunk_samples*bpp/8) bytes (never less than
// minPortionBytes, and never more than the chunk already has),
// rewrites the chunk-length table, and sets the is-portion flag (spec
// §4.J progressive_read). The result is always a valid decompressor
// input: SPECK and SPERR streams are self-terminating on truncation
// (internal/speck, internal/sperr treat running out of bits as a
// clean stop, spec §7 BitstreamExhausted).
//
// zstd-wrapped streams cannot be progressively truncated, since
// truncating a zstd frame does not yield a valid shorter zstd frame;
// ProgressiveRead returns a ZSTDMismatch error for one.
func ProgressiveRead(data []byte, bpp float64) ([]byte, error) {
	m, err := decodeMeta(data)
	if err != nil {
		return nil, err
	}
	if !m.chunked() {
		return nil, rtn.New(rtn.InvalidParam, "progressive_read: stream is not chunked")
	}
	if m.zstdWrapped() {
		return nil, rtn.New(rtn.ZSTDMismatch, "progressive_read: cannot truncate a zstd-wrapped stream")
	}
	if bpp <= 0 {
		return nil, rtn.New(rtn.InvalidParam, "progressive_read: bpp must be positive, got %v", bpp)
	}

	hdr, payloads, err := chunked.ParseStream(data[metaSize:])
	if err != nil {
		return nil, err
	}
	plan := chunked.PlanFromHeader(hdr)

	truncated := make([][]byte, len(payloads))
	for i, p := range payloads {
		chunkVals := plan.Chunks[i].Size()
		target := int(math.Ceil(float64(chunkVals) * bpp / 8))
		n := minInt(len(p), target)
		if n < minPortionBytes {
			n = minInt(len(p), minPortionBytes)
		}
		truncated[i] = p[:n]
	}

	cdims := chunked.Dims{Nx: int(hdr.Nx), Ny: int(hdr.Ny), Nz: int(hdr.Nz)}
	chunkDims := chunked.Dims{Nx: int(hdr.ChunkX), Ny: int(hdr.ChunkY), Nz: int(hdr.ChunkZ)}
	body := chunked.AssembleStream(cdims, chunkDims, truncated)

	outMeta := m
	outMeta.flags |= flagPortion
	wire := outMeta.encode()
	out := make([]byte, 0, metaSize+len(body))
	out = append(out, wire[:]...)
	out = append(out, body...)
	return out, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
