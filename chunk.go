package main

import (
	"errors"

	"github.com/Offroaders123/LegacyEditor/nbt"
)

var (
	ErrInvalidFormatTag     = errors.New("chunk: grid format tag outside the known set")
	ErrPaletteIndexOverflow = errors.New("chunk: palette index out of range")
	ErrUnknownChunkVersion  = errors.New("chunk: unsupported chunk version")
)

const (
	chunkCells   = 65536
	lightNibbles = 32768
	sectionCount = 16
	gridCells    = 64
	gridBytes    = 128 // 64 cells, two bytes each
	blockMapSize = 65536
)

// ChunkData is the decoded form of one chunk, shared by both codecs.
// Blocks and Submerged hold the opaque 16-bit cell codes at
// index = y + z*256 + x*4096.
type ChunkData struct {
	ChunkX int32
	ChunkZ int32

	LastUpdate       int64
	InhabitedTime    int64
	TerrainPopulated int16

	Blocks       []uint16
	Submerged    []uint16
	HasSubmerged bool

	SkyLight   []byte
	BlockLight []byte
	HeightMap  []byte
	Biomes     []byte

	// v12 carries three extracted lists; v13 carries one compound.
	Entities     nbt.Tag
	TileEntities nbt.Tag
	TileTicks    nbt.Tag
	NBTName      string
	NBTData      nbt.Tag
	HasNBT       bool

	// Echoed on v13 round trips, never recomputed.
	MaxGridAmount uint16

	LastVersion int
	Valid       bool
}

// newChunkData returns an allocated, zero-filled chunk.
func newChunkData() *ChunkData {
	return &ChunkData{
		Blocks:     make([]uint16, chunkCells),
		Submerged:  make([]uint16, chunkCells),
		SkyLight:   make([]byte, lightNibbles),
		BlockLight: make([]byte, lightNibbles),
		HeightMap:  make([]byte, 256),
		Biomes:     make([]byte, 256),
	}
}

func blockIndex(x, y, z int) int { return y + z*256 + x*4096 }

func (c *ChunkData) Block(x, y, z int) uint16        { return c.Blocks[blockIndex(x, y, z)] }
func (c *ChunkData) SetBlock(x, y, z int, v uint16)  { c.Blocks[blockIndex(x, y, z)] = v }
func (c *ChunkData) SetSubmerged(x, y, z int, v uint16) {
	c.Submerged[blockIndex(x, y, z)] = v
	if v != 0 {
		c.HasSubmerged = true
	}
}

// Grid format tags. The low bit marks a submerged variant. v13 renames
// 0xE/0xF but their shapes match, so both codecs share the table.
const (
	gridUno     = 0x0
	grid1Bit    = 0x2
	grid1BitSub = 0x3
	grid2Bit    = 0x4
	grid2BitSub = 0x5
	grid3Bit    = 0x6
	grid3BitSub = 0x7
	grid4Bit    = 0x8
	grid4BitSub = 0x9
	grid8Full   = 0xE
	grid8FullSub = 0xF
)

// gridSizes holds the payload byte count per format tag; -1 marks tags
// outside the known set.
var gridSizes = [16]int{0, -1, 12, 20, 24, 40, 40, 64, 64, 96, -1, -1, -1, -1, 128, 256}

// placeBlocks scatters one decoded 128-byte grid into the chunk array.
// Cell order within a grid is (x outer, z, y inner), low byte first.
func placeBlocks(dst []uint16, grid *[gridBytes]byte, writeOffset int) {
	readOffset := 0
	for xIter := 0; xIter < 4; xIter++ {
		for zIter := 0; zIter < 4; zIter++ {
			for yIter := 0; yIter < 4; yIter++ {
				cell := yIter + zIter*256 + xIter*4096
				lo := grid[readOffset]
				hi := grid[readOffset+1]
				readOffset += 2
				dst[cell+writeOffset] = uint16(lo) | uint16(hi)<<8
			}
		}
	}
}

// fillUno expands a single-block grid; the header word itself is the value.
func fillUno(lo, hi byte, grid *[gridBytes]byte) {
	for i := 0; i < gridBytes; i += 2 {
		grid[i] = lo
		grid[i+1] = hi
	}
}

// readGrid decodes a paletted single-layer grid. buffer starts at the
// palette; bits is the codeword width.
func readGrid(buffer []byte, bits int, grid *[gridBytes]byte) error {
	capEntries := 1 << bits
	paletteBytes := capEntries * 2
	if len(buffer) < paletteBytes+bits*8 {
		return ErrOutOfRange
	}
	palette := buffer[:paletteBytes]
	positions := buffer[paletteBytes:]

	for index := 0; index < gridCells; index++ {
		row := index / 8
		column := index % 8
		mask := byte(0x80) >> column

		idx := 0
		for k := 0; k < bits; k++ {
			idx |= int((positions[row+k*8]&mask)>>(7-column)) << k
		}
		if idx >= capEntries {
			return ErrPaletteIndexOverflow
		}
		grid[index*2] = palette[idx*2]
		grid[index*2+1] = palette[idx*2+1]
	}
	return nil
}

// readGridSubmerged decodes a two-layer grid sharing one palette: block
// positions first, submerged positions after.
func readGridSubmerged(buffer []byte, bits int, blockGrid, sbmrgGrid *[gridBytes]byte) error {
	capEntries := 1 << bits
	paletteBytes := capEntries * 2
	if len(buffer) < paletteBytes+bits*16 {
		return ErrOutOfRange
	}
	palette := buffer[:paletteBytes]
	positions := buffer[paletteBytes:]

	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			mask := byte(0x80) >> j
			idxBlock := 0
			idxSbmrg := 0
			for k := 0; k < bits; k++ {
				offset := i + k*8
				idxBlock |= int((positions[offset]&mask)>>(7-j)) << k
				idxSbmrg |= int((positions[offset+bits*8]&mask)>>(7-j)) << k
			}
			if idxBlock >= capEntries || idxSbmrg >= capEntries {
				return ErrPaletteIndexOverflow
			}
			cell := (i*8 + j) * 2
			blockGrid[cell] = palette[idxBlock*2]
			blockGrid[cell+1] = palette[idxBlock*2+1]
			sbmrgGrid[cell] = palette[idxSbmrg*2]
			sbmrgGrid[cell+1] = palette[idxSbmrg*2+1]
		}
	}
	return nil
}

// fillAllBlocks copies 64 raw little-endian cells of an unpaletted grid.
func fillAllBlocks(buffer []byte, grid *[gridBytes]byte) error {
	if len(buffer) < gridBytes {
		return ErrOutOfRange
	}
	copy(grid[:], buffer[:gridBytes])
	return nil
}

// gridEncoder owns the per-chunk encode scratch. blockMap maps a block
// value to palette index + 1 and is reset by clearing only the touched
// entries after every grid; a full wipe per grid would swamp the encode.
type gridEncoder struct {
	blockMap  [blockMapSize]uint8
	palette   []uint16
	blockLoc  [gridCells]uint16
	sbmrgLoc  [gridCells]uint16
}

func newGridEncoder() *gridEncoder {
	return &gridEncoder{palette: make([]uint16, 0, 2*gridCells)}
}

func (e *gridEncoder) intern(block uint16) uint16 {
	if loc := e.blockMap[block]; loc != 0 {
		return uint16(loc - 1)
	}
	loc := uint16(len(e.palette))
	e.blockMap[block] = uint8(loc + 1)
	e.palette = append(e.palette, block)
	return loc
}

// scanGrid builds the insertion-ordered palette for the 4×4×4 grid whose
// chunk-array base is offsetInBlock, interleaving block and submerged
// values in cell order. Returns whether any submerged cell was non-zero.
func (e *gridEncoder) scanGrid(c *ChunkData, offsetInBlock int) (anySubmerged bool) {
	const unresolved = 0xFFFF
	e.palette = e.palette[:0]
	cell := 0
	for blockX := 0; blockX < 16384; blockX += 4096 {
		for blockZ := 0; blockZ < 1024; blockZ += 256 {
			for blockY := 0; blockY < 4; blockY++ {
				i := offsetInBlock + blockY + blockZ + blockX
				e.blockLoc[cell] = e.intern(c.Blocks[i])
				if sub := c.Submerged[i]; sub != 0 {
					anySubmerged = true
					e.sbmrgLoc[cell] = e.intern(sub)
				} else {
					e.sbmrgLoc[cell] = unresolved
				}
				cell++
			}
		}
	}
	if anySubmerged {
		// A zero submerged cell must decode back to zero, so it references
		// the palette's zero entry, interned on demand.
		zeroLoc := e.intern(0)
		for i := range e.sbmrgLoc {
			if e.sbmrgLoc[i] == unresolved {
				e.sbmrgLoc[i] = zeroLoc
			}
		}
	}
	return anySubmerged
}

// clearTouched resets exactly the blockMap entries this grid interned.
func (e *gridEncoder) clearTouched() {
	for _, block := range e.palette {
		e.blockMap[block] = 0
	}
}

// chooseFormat picks the narrowest tag whose palette capacity holds the
// unique count. A grid with any non-zero submerged cell always takes the
// SUB variant, single-block grids included, so the liquid layer survives
// re-encoding.
func chooseFormat(unique int, submerged bool) (format int, bits int) {
	switch {
	case unique <= 2:
		format, bits = grid1Bit, 1
	case unique <= 4:
		format, bits = grid2Bit, 2
	case unique <= 8:
		format, bits = grid3Bit, 3
	case unique <= 16:
		format, bits = grid4Bit, 4
	default:
		format, bits = grid8Full, 0
	}
	if submerged {
		format |= 1
	}
	return format, bits
}

// writeGridPalette emits the palette little-endian, padding unused slots
// with 0xFFFF up to the format's capacity.
func writeGridPalette(cur *Cursor, palette []uint16, bits int) error {
	cur.SetLittleEndian()
	for _, block := range palette {
		if err := cur.WriteU16(block); err != nil {
			return err
		}
	}
	cur.SetBigEndian()
	for rest := len(palette); rest < 1<<bits; rest++ {
		if err := cur.WriteU16(0xFFFF); err != nil {
			return err
		}
	}
	return nil
}

// writePositions emits one big-endian 64-bit word per bit plane; the most
// significant bit holds the first cell.
func writePositions(cur *Cursor, locations *[gridCells]uint16, bits int) error {
	for bitIndex := 0; bitIndex < bits; bitIndex++ {
		var position uint64
		for locIndex := 0; locIndex < gridCells; locIndex++ {
			bit := uint64(locations[locIndex]>>bitIndex) & 1
			position |= bit << (gridCells - locIndex - 1)
		}
		if err := cur.WriteU64(position); err != nil {
			return err
		}
	}
	return nil
}

// writeFullGrid emits the 64 raw cells of an unpaletted grid.
func writeFullGrid(cur *Cursor, palette []uint16, locations *[gridCells]uint16) error {
	cur.SetLittleEndian()
	for i := 0; i < gridCells; i++ {
		if err := cur.WriteU16(palette[locations[i]]); err != nil {
			cur.SetBigEndian()
			return err
		}
	}
	cur.SetBigEndian()
	return nil
}

// encodeGrid writes one grid's payload for the chosen non-UNO format. The
// grid's header word (offset/4 | format<<12) is assembled by the caller.
func (e *gridEncoder) encodeGrid(cur *Cursor, format, bits int, submerged bool) error {
	if format == grid8Full || format == grid8FullSub {
		if err := writeFullGrid(cur, e.palette, &e.blockLoc); err != nil {
			return err
		}
		if format == grid8FullSub {
			if err := writeFullGrid(cur, e.palette, &e.sbmrgLoc); err != nil {
				return err
			}
		}
		return nil
	}
	if err := writeGridPalette(cur, e.palette, bits); err != nil {
		return err
	}
	if err := writePositions(cur, &e.blockLoc, bits); err != nil {
		return err
	}
	if submerged {
		if err := writePositions(cur, &e.sbmrgLoc, bits); err != nil {
			return err
		}
	}
	return nil
}

// isEmptySectionHeader reports whether all 128 grid-header bytes are zero,
// the pattern a section of nothing but single-block zero grids leaves
// behind. The overlapping compare mirrors the on-disk probe.
func isEmptySectionHeader(header []byte) bool {
	if header[0] != 0 {
		return false
	}
	for i := 1; i < gridBytes; i++ {
		if header[i] != header[i-1] {
			return false
		}
	}
	return true
}
