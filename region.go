package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

const (
	regionSlots      = 1024
	regionSectorSize = 4096
	regionHeaderSize = 2 * regionSlots * 4

	// Encode scratch large enough for a chunk of nothing but two-layer
	// full grids plus lights and trailing NBT.
	chunkScratchSize = 0x100000
)

var (
	ErrNoChunk             = errors.New("region: chunk not found")
	ErrInvalidChunkLength  = errors.New("region: invalid chunk record length")
	ErrInvalidCompression  = errors.New("region: invalid compression flavour")
)

// CompressionLevel is the per-slot compression flavour tag.
type CompressionLevel byte

const (
	CompressionGzip CompressionLevel = 1
	CompressionZlib CompressionLevel = 2
)

// Region owns one region file's 32×32 chunk slots. Slots hold the
// compressed chunk records; chunks decode lazily through DecodeChunk and
// re-enter through EncodeChunk.
type Region struct {
	console    Console
	records    [regionSlots][]byte
	flavour    [regionSlots]CompressionLevel
	timestamps [regionSlots]uint32
}

func NewRegion(console Console) *Region {
	return &Region{console: console}
}

// ReadRegion parses the slot directory and captures each present record.
func ReadRegion(data []byte, console Console) (*Region, error) {
	cur := newConsoleCursor(data, console)
	region := &Region{console: console}

	var directory [regionSlots]uint32
	for i := range directory {
		entry, err := cur.ReadU32()
		if err != nil {
			return nil, err
		}
		directory[i] = entry
	}
	for i := range region.timestamps {
		ts, err := cur.ReadU32()
		if err != nil {
			return nil, err
		}
		region.timestamps[i] = ts
	}

	for slot, entry := range directory {
		sectorNumber := int(entry >> 8)
		occupiedSectors := int(entry & 0xFF)
		if sectorNumber == 0 {
			continue
		}
		record, err := cur.Slice(sectorNumber*regionSectorSize, occupiedSectors*regionSectorSize)
		if err != nil {
			return nil, fmt.Errorf("region: slot %d: %w", slot, err)
		}
		recordCur := newConsoleCursor(record, console)
		length, err := recordCur.ReadU32()
		if err != nil {
			return nil, err
		}
		flavour, err := recordCur.ReadU8()
		if err != nil {
			return nil, err
		}
		if int(length) > len(record)-4 || length == 0 {
			return nil, ErrInvalidChunkLength
		}
		payload, err := recordCur.ReadBytes(int(length) - 1)
		if err != nil {
			return nil, err
		}
		region.records[slot] = append([]byte(nil), payload...)
		region.flavour[slot] = CompressionLevel(flavour)
	}
	return region, nil
}

func (r *Region) ChunkExists(slot int) bool {
	return slot >= 0 && slot < regionSlots && r.records[slot] != nil
}

func (r *Region) RemoveChunk(slot int) {
	r.records[slot] = nil
	r.flavour[slot] = 0
}

// DecodeChunk inflates and decodes the chunk in a slot. The slot index is
// x + z*32 within the region.
func (r *Region) DecodeChunk(slot int) (*ChunkData, error) {
	if !r.ChunkExists(slot) {
		return nil, ErrNoChunk
	}

	var reader io.Reader
	var err error
	payload := bytes.NewReader(r.records[slot])
	switch r.flavour[slot] {
	case CompressionGzip:
		reader, err = gzip.NewReader(payload)
	case CompressionZlib:
		reader, err = zlib.NewReader(payload)
	default:
		return nil, ErrInvalidCompression
	}
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	cur := NewCursor(raw)
	version, err := cur.ReadU16()
	if err != nil {
		return nil, err
	}

	chunk := newChunkData()
	switch version {
	case 12:
		err = decodeChunkV12(cur, chunk)
	case 13:
		err = decodeChunkV13(cur, chunk)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownChunkVersion, version)
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// EncodeChunk encodes a chunk into a slot under the given major version,
// compressing with the slot's previous flavour (zlib for fresh slots).
func (r *Region) EncodeChunk(slot int, chunk *ChunkData, version int) error {
	if slot < 0 || slot >= regionSlots {
		return ErrNoChunk
	}

	cur := NewWriteCursor(chunkScratchSize)
	if err := cur.WriteU16(uint16(version)); err != nil {
		return err
	}
	var err error
	switch version {
	case 12:
		err = encodeChunkV12(cur, chunk)
	case 13:
		err = encodeChunkV13(cur, chunk)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownChunkVersion, version)
	}
	if err != nil {
		return err
	}
	raw := cur.Taken()

	flavour := r.flavour[slot]
	if flavour == 0 {
		flavour = CompressionZlib
	}

	var compressed bytes.Buffer
	var writer io.WriteCloser
	switch flavour {
	case CompressionGzip:
		writer = gzip.NewWriter(&compressed)
	case CompressionZlib:
		writer = zlib.NewWriter(&compressed)
	default:
		return ErrInvalidCompression
	}
	if _, err := writer.Write(raw); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	r.records[slot] = append([]byte(nil), compressed.Bytes()...)
	r.flavour[slot] = flavour
	return nil
}

// Convert re-encodes every present chunk in place. Chunks decode
// concurrently into per-slot results; a final serial pass stitches them
// back so the directory never sees interleaved writes. Slots whose chunks
// fail to decode are dropped rather than failing the region.
func (r *Region) Convert(target Console) error {
	type slotResult struct {
		slot  int
		chunk *ChunkData
		err   error
	}

	var wg sync.WaitGroup
	results := make(chan slotResult, regionSlots)
	for slot := 0; slot < regionSlots; slot++ {
		if !r.ChunkExists(slot) {
			continue
		}
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			chunk, err := r.DecodeChunk(slot)
			results <- slotResult{slot: slot, chunk: chunk, err: err}
		}(slot)
	}
	wg.Wait()
	close(results)

	for result := range results {
		if result.err != nil {
			r.RemoveChunk(result.slot)
			continue
		}
		if err := r.EncodeChunk(result.slot, result.chunk, result.chunk.LastVersion); err != nil {
			return err
		}
	}
	r.console = target
	return nil
}

// Write serializes the region with contiguous sector offsets in slot order.
func (r *Region) Write(console Console) ([]byte, error) {
	total := regionHeaderSize
	for slot := 0; slot < regionSlots; slot++ {
		if r.records[slot] == nil {
			continue
		}
		total += recordSectors(len(r.records[slot])) * regionSectorSize
	}

	cur := newConsoleCursor(make([]byte, total), console)
	sector := regionHeaderSize / regionSectorSize
	for slot := 0; slot < regionSlots; slot++ {
		record := r.records[slot]
		if record == nil {
			if err := cur.WriteU32(0); err != nil {
				return nil, err
			}
			continue
		}
		count := recordSectors(len(record))
		if count > 0xFF {
			return nil, ErrInvalidChunkLength
		}
		if err := cur.WriteU32(uint32(sector)<<8 | uint32(count)); err != nil {
			return nil, err
		}

		pos := cur.Pos()
		if err := cur.Seek(sector * regionSectorSize); err != nil {
			return nil, err
		}
		if err := cur.WriteU32(uint32(len(record) + 1)); err != nil {
			return nil, err
		}
		if err := cur.WriteU8(byte(r.flavour[slot])); err != nil {
			return nil, err
		}
		if err := cur.WriteBytes(record); err != nil {
			return nil, err
		}
		if err := cur.Seek(pos); err != nil {
			return nil, err
		}
		sector += count
	}
	for slot := 0; slot < regionSlots; slot++ {
		if err := cur.WriteU32(r.timestamps[slot]); err != nil {
			return nil, err
		}
	}
	return cur.Bytes(), nil
}

func recordSectors(payload int) int {
	return (4 + 1 + payload + regionSectorSize - 1) / regionSectorSize
}
