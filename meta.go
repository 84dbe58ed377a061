package wavespeck

import "github.com/mrjoshuak/wavespeck/internal/rtn"

// metaSize is the fixed 10-byte top-of-stream record (spec §3):
// version, flags, and the sample-buffer dims, ahead of whatever
// conditioner/SPECK/chunked layout the flags select.
const metaSize = 10

const streamVersion = 1

const (
	flagChunked uint8 = 1 << iota
	flagHasSPERR
	flagZstdWrapped
	// flagPortion marks a stream rewritten by stream_tools' progressive
	// truncation (spec §4.J): some chunk payloads hold only a prefix of
	// their original bytes.
	flagPortion
	// flagIsFloat marks a stream whose input samples were float32
	// (widened to float64 for coding; spec §3 bit 3, §4.H): CompressFloat32 sets it,
	// Compress (float64 input) leaves it clear.
	flagIsFloat
)

type meta struct {
	version uint8
	flags   uint8
	nx      uint16
	ny      uint16
	nz      uint16
}

func (m meta) encode() [metaSize]byte {
	var out [metaSize]byte
	out[0] = m.version
	out[1] = m.flags
	putU16(out[2:4], m.nx)
	putU16(out[4:6], m.ny)
	putU16(out[6:8], m.nz)
	return out
}

func decodeMeta(b []byte) (meta, error) {
	if len(b) < metaSize {
		return meta{}, rtn.New(rtn.BitstreamWrongLen, "stream meta needs %d bytes, got %d", metaSize, len(b))
	}
	m := meta{
		version: b[0],
		flags:   b[1],
		nx:      getU16(b[2:4]),
		ny:      getU16(b[4:6]),
		nz:      getU16(b[6:8]),
	}
	if m.version != streamVersion {
		return meta{}, rtn.New(rtn.VersionMismatch, "stream version %d, decoder supports %d", m.version, streamVersion)
	}
	return m, nil
}

func (m meta) chunked() bool     { return m.flags&flagChunked != 0 }
func (m meta) hasSPERR() bool    { return m.flags&flagHasSPERR != 0 }
func (m meta) zstdWrapped() bool { return m.flags&flagZstdWrapped != 0 }
func (m meta) isPortion() bool   { return m.flags&flagPortion != 0 }
func (m meta) isFloat() bool     { return m.flags&flagIsFloat != 0 }

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
