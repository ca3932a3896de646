package main

import (
	"errors"
	"fmt"

	"github.com/willf/bitset"
)

var (
	ErrStfsIllegalBlock = errors.New("stfs: reference to illegal block number")
	ErrNotASavegame     = errors.New("stfs: package is not a savegame")
)

const (
	stfsBlockSize      = 0x1000
	stfsHashEntrySize  = 0x18
	stfsBlocksPerTable = 0xAA
	stfsEntrySize      = 0x40
	stfsEntriesPerBlock = 0x40
)

// IsStfsPackage reports whether data starts with an Xbox-360 package magic.
func IsStfsPackage(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	magic := string(data[:4])
	return magic == "CON " || magic == "LIVE" || magic == "PIRS"
}

type stfsVolumeDescriptor struct {
	size                  byte
	blockSeparation       byte
	fileTableBlockCount   uint16
	fileTableBlockNum     uint32
	allocBlockCount       uint32
	unallocatedBlockCount uint32
}

// The volume descriptor mixes byte orders: the file-table fields are
// little-endian inside the otherwise big-endian header.
func (vd *stfsVolumeDescriptor) read(cur *Cursor) error {
	var err error
	if vd.size, err = cur.ReadU8(); err != nil {
		return err
	}
	if _, err = cur.ReadU8(); err != nil { // reserved
		return err
	}
	if vd.blockSeparation, err = cur.ReadU8(); err != nil {
		return err
	}
	cur.SetLittleEndian()
	if vd.fileTableBlockCount, err = cur.ReadU16(); err != nil {
		return err
	}
	if vd.fileTableBlockNum, err = cur.ReadU24(); err != nil {
		return err
	}
	cur.SetBigEndian()
	if err = cur.Skip(0x14); err != nil { // top hash table hash
		return err
	}
	if vd.allocBlockCount, err = cur.ReadU32(); err != nil {
		return err
	}
	vd.unallocatedBlockCount, err = cur.ReadU32()
	return err
}

// StfsFileEntry is one row of the package's file table.
type StfsFileEntry struct {
	EntryIndex       int
	Name             string
	Flags            byte
	BlocksForFile    uint32
	StartingBlockNum uint32
	PathIndicator    uint16
	FileSize         uint32
	CreatedTimeStamp uint32
	AccessTimeStamp  uint32
}

// StfsFileListing is the directory tree rebuilt from path indicators.
type StfsFileListing struct {
	Folder  StfsFileEntry
	Files   []StfsFileEntry
	Folders []*StfsFileListing
}

type hashEntry struct {
	status    byte
	nextBlock uint32
}

// StfsPackage is a read-only view over a .bin savegame package. Inner file
// entries index into the package's blocks; extraction copies them out.
type StfsPackage struct {
	cur *Cursor

	headerSize  uint32
	DisplayName string
	Thumbnail   []byte

	vd                    stfsVolumeDescriptor
	packageSex            uint32
	blockStep             [2]uint32
	firstHashTableAddress uint32
	topLevel              int
	topTable              []hashEntry

	Listing StfsFileListing
}

// ParseStfs reads the package header, the top hash table and the file
// listing. The block data itself stays in place until extraction.
func ParseStfs(data []byte) (*StfsPackage, error) {
	p := &StfsPackage{cur: NewCursor(data)}
	if err := p.readHeader(); err != nil {
		return nil, err
	}

	p.packageSex = uint32(^p.vd.blockSeparation) & 1
	if p.packageSex == 0 { // female
		p.blockStep = [2]uint32{0xAB, 0x718F}
	} else { // male
		p.blockStep = [2]uint32{0xAC, 0x723A}
	}

	// The first hash table follows the header at the next 4 KiB boundary.
	p.firstHashTableAddress = (p.headerSize + 0x0FFF) & 0xFFFFF000

	var err error
	if p.topLevel, err = p.calculateTopLevel(); err != nil {
		return nil, err
	}
	if err := p.readTopTable(); err != nil {
		return nil, err
	}

	p.Listing.Folder = StfsFileEntry{Name: "Root", EntryIndex: 0xFFFF, PathIndicator: 0xFFFF}
	return p, p.readFileListing()
}

func (p *StfsPackage) readHeader() error {
	cur := p.cur
	if err := cur.Seek(0x340); err != nil {
		return fmt.Errorf("%w: truncated header", ErrNotASavegame)
	}
	headerSize, err := cur.ReadU32()
	if err != nil {
		return err
	}
	p.headerSize = headerSize

	contentType, err := cur.ReadU32()
	if err != nil {
		return err
	}
	if contentType != 1 {
		return fmt.Errorf("%w: content type %d", ErrNotASavegame, contentType)
	}

	if err := cur.Seek(0x3A9); err != nil {
		return err
	}
	fileSystem, err := cur.ReadU32()
	if err != nil {
		return err
	}
	if fileSystem != 0 {
		return fmt.Errorf("%w: not STFS framed", ErrNotASavegame)
	}

	if err := cur.Seek(0x379); err != nil {
		return err
	}
	if err := p.vd.read(cur); err != nil {
		return err
	}

	if err := cur.Seek(0x411); err != nil {
		return err
	}
	if p.DisplayName, err = cur.ReadWStringNul(); err != nil {
		return err
	}

	// Thumbnail image; falls back to the title thumbnail when absent.
	if err := cur.Seek(0x1712); err != nil {
		return err
	}
	thumbSize, err := cur.ReadU32()
	if err != nil {
		return err
	}
	if thumbSize != 0 {
		if err := cur.Skip(4); err != nil {
			return err
		}
		thumb, err := cur.ReadBytes(int(thumbSize))
		if err != nil {
			return err
		}
		p.Thumbnail = append([]byte(nil), thumb...)
	} else {
		titleThumbSize, err := cur.ReadU32()
		if err != nil {
			return err
		}
		if titleThumbSize != 0 {
			if err := cur.Seek(0x571A); err != nil {
				return err
			}
			thumb, err := cur.ReadBytes(int(titleThumbSize))
			if err != nil {
				return err
			}
			p.Thumbnail = append([]byte(nil), thumb...)
		}
	}
	return nil
}

func (p *StfsPackage) calculateTopLevel() (int, error) {
	switch {
	case p.vd.allocBlockCount <= 0xAA:
		return 0, nil
	case p.vd.allocBlockCount <= 0x70E4:
		return 1, nil
	case p.vd.allocBlockCount <= 0x4AF768:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: %#x allocated blocks", ErrStfsIllegalBlock, p.vd.allocBlockCount)
	}
}

func (p *StfsPackage) readTopTable() error {
	trueBlockNumber := p.computeLevelNBackingHashBlockNumber(0, p.topLevel)
	baseAddress := trueBlockNumber<<0xC + p.firstHashTableAddress
	address := baseAddress + uint32(p.vd.blockSeparation&2)<<0xB
	if err := p.cur.Seek(int(address)); err != nil {
		return err
	}

	dataBlocksPerLevel := [3]uint32{1, 0xAA, 0x70E4}
	entryCount := p.vd.allocBlockCount / dataBlocksPerLevel[p.topLevel]
	if p.vd.allocBlockCount > 0x70E4 && p.vd.allocBlockCount%0x70E4 != 0 {
		entryCount++
	} else if p.vd.allocBlockCount > 0xAA && p.vd.allocBlockCount%0xAA != 0 {
		entryCount++
	}
	if entryCount > stfsBlocksPerTable {
		entryCount = stfsBlocksPerTable
	}

	p.topTable = make([]hashEntry, entryCount)
	for i := range p.topTable {
		entry, err := p.readHashEntryAt(int(address) + i*stfsHashEntrySize)
		if err != nil {
			return err
		}
		p.topTable[i] = entry
	}
	return nil
}

func (p *StfsPackage) readHashEntryAt(pos int) (hashEntry, error) {
	if err := p.cur.Seek(pos + 0x14); err != nil { // skip the block hash
		return hashEntry{}, err
	}
	status, err := p.cur.ReadU8()
	if err != nil {
		return hashEntry{}, err
	}
	nextBlock, err := p.cur.ReadU24()
	if err != nil {
		return hashEntry{}, err
	}
	return hashEntry{status: status, nextBlock: nextBlock}, nil
}

// computeBackingDataBlockNumber converts a data block number into a true
// block number that accounts for interleaved hash tables.
func (p *StfsPackage) computeBackingDataBlockNumber(blockNum uint32) uint32 {
	ret := ((blockNum+0xAA)/0xAA)<<p.packageSex + blockNum
	if blockNum < 0xAA {
		return ret
	}
	ret += ((blockNum + 0x70E4) / 0x70E4) << p.packageSex
	if blockNum < 0x70E4 {
		return ret
	}
	return 1<<p.packageSex + ret
}

func (p *StfsPackage) computeLevel0BackingHashBlockNumber(blockNum uint32) uint32 {
	if blockNum < 0xAA {
		return 0
	}
	num := (blockNum / 0xAA) * p.blockStep[0]
	num += (blockNum/0x70E4 + 1) << p.packageSex
	if blockNum/0x70E4 == 0 {
		return num
	}
	return num + 1<<p.packageSex
}

func (p *StfsPackage) computeLevel1BackingHashBlockNumber(blockNum uint32) uint32 {
	if blockNum < 0x70E4 {
		return p.blockStep[0]
	}
	return 1<<p.packageSex + (blockNum/0x70E4)*p.blockStep[1]
}

func (p *StfsPackage) computeLevel2BackingHashBlockNumber() uint32 {
	return p.blockStep[1]
}

func (p *StfsPackage) computeLevelNBackingHashBlockNumber(blockNum uint32, level int) uint32 {
	switch level {
	case 1:
		return p.computeLevel1BackingHashBlockNumber(blockNum)
	case 2:
		return p.computeLevel2BackingHashBlockNumber()
	default:
		return p.computeLevel0BackingHashBlockNumber(blockNum)
	}
}

// blockToAddress converts a block number into a package file offset.
func (p *StfsPackage) blockToAddress(blockNum uint32) (uint32, error) {
	if blockNum >= 0xFFFFFF {
		return 0, fmt.Errorf("%w: block %#x", ErrStfsIllegalBlock, blockNum)
	}
	return p.computeBackingDataBlockNumber(blockNum)<<0xC + p.firstHashTableAddress, nil
}

// hashAddressOfBlock locates the hash entry covering a data block.
func (p *StfsPackage) hashAddressOfBlock(blockNum uint32) (uint32, error) {
	if blockNum >= p.vd.allocBlockCount {
		return 0, fmt.Errorf("%w: block %#x", ErrStfsIllegalBlock, blockNum)
	}
	hashAddr := p.computeLevel0BackingHashBlockNumber(blockNum)<<0xC + p.firstHashTableAddress
	hashAddr += (blockNum % 0xAA) * stfsHashEntrySize

	switch p.topLevel {
	case 0:
		hashAddr += uint32(p.vd.blockSeparation&2) << 0xB
	case 1:
		index := blockNum / 0xAA
		if int(index) < len(p.topTable) {
			hashAddr += uint32(p.topTable[index].status&0x40) << 6
		}
	case 2:
		index := blockNum / 0x70E4
		var level1Off uint32
		if int(index) < len(p.topTable) {
			level1Off = uint32(p.topTable[index].status&0x40) << 6
		}
		pos := p.computeLevel1BackingHashBlockNumber(blockNum)<<0xC +
			p.firstHashTableAddress + level1Off + (blockNum%0xAA)*stfsHashEntrySize
		if err := p.cur.Seek(int(pos) + 0x14); err != nil {
			return 0, err
		}
		status, err := p.cur.ReadU8()
		if err != nil {
			return 0, err
		}
		hashAddr += uint32(status&0x40) << 6
	}
	return hashAddr, nil
}

func (p *StfsPackage) blockHashEntry(blockNum uint32) (hashEntry, error) {
	addr, err := p.hashAddressOfBlock(blockNum)
	if err != nil {
		return hashEntry{}, err
	}
	return p.readHashEntryAt(int(addr))
}

// extractBlock copies up to length bytes of one 4 KiB data block.
func (p *StfsPackage) extractBlock(blockNum uint32, length int) ([]byte, error) {
	if blockNum >= p.vd.allocBlockCount {
		return nil, fmt.Errorf("%w: block %#x", ErrStfsIllegalBlock, blockNum)
	}
	if length > stfsBlockSize {
		return nil, fmt.Errorf("stfs: block read of %d bytes", length)
	}
	addr, err := p.blockToAddress(blockNum)
	if err != nil {
		return nil, err
	}
	if err := p.cur.Seek(int(addr)); err != nil {
		return nil, err
	}
	return p.cur.ReadBytes(length)
}

// hashTableSkipSize gives the bytes of hash table(s) sitting at a table
// address inside a contiguous run.
func (p *StfsPackage) hashTableSkipSize(tableAddress uint32) uint32 {
	trueBlockNumber := (tableAddress - p.firstHashTableAddress) >> 0xC
	if trueBlockNumber == 0 {
		return 0x1000 << p.packageSex
	}
	if trueBlockNumber == p.blockStep[1] {
		return 0x3000 << p.packageSex
	}
	if trueBlockNumber > p.blockStep[1] {
		trueBlockNumber -= p.blockStep[1] + 1<<p.packageSex
	}
	if trueBlockNumber == p.blockStep[0] || trueBlockNumber%p.blockStep[1] == 0 {
		return 0x2000 << p.packageSex
	}
	return 0x1000 << p.packageSex
}

// ExtractFile copies an inner file out of the package. Contiguous files
// walk raw pages and hop the hash tables; fragmented files chase the
// next-block chain, bounded by a visited set so malformed packages cannot
// loop.
func (p *StfsPackage) ExtractFile(entry *StfsFileEntry) ([]byte, error) {
	fileSize := int(entry.FileSize)
	if fileSize == 0 {
		return nil, nil
	}
	out := make([]byte, 0, fileSize)

	if entry.Flags&1 != 0 {
		startAddress, err := p.blockToAddress(entry.StartingBlockNum)
		if err != nil {
			return nil, err
		}
		if err := p.cur.Seek(int(startAddress)); err != nil {
			return nil, err
		}

		// Number of raw pages before the next hash table.
		blockCount := p.computeLevel0BackingHashBlockNumber(entry.StartingBlockNum) +
			p.blockStep[0] - (startAddress-p.firstHashTableAddress)>>0xC

		if entry.BlocksForFile <= blockCount {
			chunk, err := p.cur.ReadBytes(fileSize)
			if err != nil {
				return nil, err
			}
			return append(out, chunk...), nil
		}
		chunk, err := p.cur.ReadBytes(int(blockCount) << 0xC)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)

		tempSize := fileSize - int(blockCount)<<0xC
		for tempSize > 0 {
			skip := p.hashTableSkipSize(uint32(p.cur.Pos()))
			if err := p.cur.Skip(int(skip)); err != nil {
				return nil, err
			}
			run := tempSize
			if run > stfsBlocksPerTable*stfsBlockSize {
				run = stfsBlocksPerTable * stfsBlockSize
			}
			chunk, err := p.cur.ReadBytes(run)
			if err != nil {
				return nil, err
			}
			out = append(out, chunk...)
			tempSize -= run
		}
		return out, nil
	}

	fullReadCounts := fileSize / stfsBlockSize
	remainder := fileSize % stfsBlockSize
	block := entry.StartingBlockNum
	visited := bitset.New(uint(p.vd.allocBlockCount))

	advance := func() error {
		if block >= p.vd.allocBlockCount {
			return fmt.Errorf("%w: block %#x", ErrStfsIllegalBlock, block)
		}
		if visited.Test(uint(block)) {
			return fmt.Errorf("%w: cycle at block %#x", ErrStfsIllegalBlock, block)
		}
		visited.Set(uint(block))
		return nil
	}

	for i := 0; i < fullReadCounts; i++ {
		if err := advance(); err != nil {
			return nil, err
		}
		chunk, err := p.extractBlock(block, stfsBlockSize)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		entryHash, err := p.blockHashEntry(block)
		if err != nil {
			return nil, err
		}
		block = entryHash.nextBlock
	}
	if remainder != 0 {
		if err := advance(); err != nil {
			return nil, err
		}
		chunk, err := p.extractBlock(block, remainder)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// readFileListing walks the file-table block chain and rebuilds the
// directory tree from the path indicators.
func (p *StfsPackage) readFileListing() error {
	var flat []StfsFileEntry
	block := p.vd.fileTableBlockNum
	cur := p.cur

	for x := 0; x < int(p.vd.fileTableBlockCount); x++ {
		currentAddr, err := p.blockToAddress(block)
		if err != nil {
			return err
		}
		if err := cur.Seek(int(currentAddr)); err != nil {
			return err
		}

		for i := 0; i < stfsEntriesPerBlock; i++ {
			entry := StfsFileEntry{EntryIndex: x*stfsEntrySize + i}
			name, err := cur.ReadString(0x28)
			if err != nil {
				return err
			}
			entry.Name = name
			nameLen, err := cur.ReadU8()
			if err != nil {
				return err
			}
			if nameLen&0x3F == 0 {
				if err := cur.Seek(int(currentAddr) + (i+1)*stfsEntrySize); err != nil {
					return err
				}
				continue
			}
			if name == "" {
				break
			}

			cur.SetLittleEndian()
			if entry.BlocksForFile, err = cur.ReadU24(); err != nil {
				return err
			}
			if err := cur.Skip(3); err != nil {
				return err
			}
			if entry.StartingBlockNum, err = cur.ReadU24(); err != nil {
				return err
			}
			cur.SetBigEndian()
			if entry.PathIndicator, err = cur.ReadU16(); err != nil {
				return err
			}
			if entry.FileSize, err = cur.ReadU32(); err != nil {
				return err
			}
			if entry.CreatedTimeStamp, err = cur.ReadU32(); err != nil {
				return err
			}
			if entry.AccessTimeStamp, err = cur.ReadU32(); err != nil {
				return err
			}

			entry.Flags = nameLen >> 6
			flat = append(flat, entry)
		}

		entryHash, err := p.blockHashEntry(block)
		if err != nil {
			return err
		}
		block = entryHash.nextBlock
	}

	addToListing(flat, &p.Listing)
	return nil
}

func addToListing(flat []StfsFileEntry, out *StfsFileListing) {
	for _, entry := range flat {
		isDirectory := entry.Flags&2 != 0
		if int(entry.PathIndicator) != out.Folder.EntryIndex {
			continue
		}
		if !isDirectory {
			out.Files = append(out.Files, entry)
		} else if entry.EntryIndex != out.Folder.EntryIndex {
			out.Folders = append(out.Folders, &StfsFileListing{Folder: entry})
		}
	}
	for _, folder := range out.Folders {
		addToListing(flat, folder)
	}
}

// FindSavegameEntry locates the inner savegame.dat anywhere in the tree.
func (p *StfsPackage) FindSavegameEntry() *StfsFileEntry {
	return findSavegameEntry(&p.Listing)
}

func findSavegameEntry(listing *StfsFileListing) *StfsFileEntry {
	for i := range listing.Files {
		if listing.Files[i].Name == "savegame.dat" {
			return &listing.Files[i]
		}
	}
	for _, folder := range listing.Folders {
		if entry := findSavegameEntry(folder); entry != nil {
			return entry
		}
	}
	return nil
}
