package main

// The block-data block of a chunk: a 2-byte max section address, a 16-entry
// section jump table, a 16-entry section size table, then per-section a
// 256-byte-aligned run of a 128-byte grid header followed by grid payloads.
// v12 and v13 share the whole layout; only the header base differs (26 vs
// 28) because v13 prefixes the chunk header with max_grid_amount.

const (
	sectionHeaderOff = 2  // jump table, relative to the header base
	sectionSizeOff   = 34 // size table
	sectionStartOff  = 50 // first section
)

func readBlockData(cur *Cursor, c *ChunkData, base int) error {
	raw, err := cur.ReadU16()
	if err != nil {
		return err
	}
	maxSectionAddress := int(raw) << 8

	var sectionJumpTable [sectionCount]int
	for i := range sectionJumpTable {
		address, err := cur.ReadU16()
		if err != nil {
			return err
		}
		sectionJumpTable[i] = int(address)
	}
	sectionSizeTable, err := cur.ReadBytes(sectionCount)
	if err != nil {
		return err
	}

	if maxSectionAddress == 0 {
		return nil
	}

	sectionStart := base + sectionStartOff
	for section := 0; section < sectionCount; section++ {
		address := sectionJumpTable[section]
		if err := cur.Seek(sectionStart + address); err != nil {
			return err
		}
		if address == maxSectionAddress {
			break
		}
		if sectionSizeTable[section] == 0 {
			continue
		}
		sectionHeader, err := cur.ReadBytes(gridBytes)
		if err != nil {
			return err
		}

		for gridX := 0; gridX < 4; gridX++ {
			for gridZ := 0; gridZ < 4; gridZ++ {
				for gridY := 0; gridY < 4; gridY++ {
					gridIndex := gridX*16 + gridZ*4 + gridY
					lo := sectionHeader[gridIndex*2]
					hi := sectionHeader[gridIndex*2+1]

					format := int(hi >> 4)
					offset := (int(hi&0x0F)<<8 | int(lo)) * 4
					gridPosition := sectionStart + gridBytes + address + offset
					writeOffset := section*16 + gridY*4 + gridZ*1024 + gridX*16384

					size := gridSizes[format]
					if size < 0 {
						return ErrInvalidFormatTag
					}

					var blockGrid, sbmrgGrid [gridBytes]byte
					if format == gridUno {
						fillUno(lo, hi, &blockGrid)
					} else {
						buffer, err := cur.Slice(gridPosition, size)
						if err != nil {
							return err
						}
						switch format {
						case grid1Bit, grid2Bit, grid3Bit, grid4Bit:
							err = readGrid(buffer, format/2, &blockGrid)
						case grid1BitSub, grid2BitSub, grid3BitSub, grid4BitSub:
							err = readGridSubmerged(buffer, format/2, &blockGrid, &sbmrgGrid)
						case grid8Full:
							err = fillAllBlocks(buffer, &blockGrid)
						case grid8FullSub:
							if err = fillAllBlocks(buffer, &blockGrid); err == nil {
								err = fillAllBlocks(buffer[gridBytes:], &sbmrgGrid)
							}
						}
						if err != nil {
							return err
						}
					}

					placeBlocks(c.Blocks, &blockGrid, writeOffset)
					if format&1 != 0 {
						c.HasSubmerged = true
						placeBlocks(c.Submerged, &sbmrgGrid, writeOffset)
					}
				}
			}
		}
	}
	return cur.Seek(sectionStart + maxSectionAddress)
}

func writeBlockData(cur *Cursor, c *ChunkData, base int) error {
	sectionStart := base + sectionStartOff
	enc := newGridEncoder()

	var sectJumpTable [sectionCount]uint16
	var sectSizeTable [sectionCount]uint8

	if err := cur.Seek(sectionStart); err != nil {
		return err
	}

	lastSectionJump := 0
	for sectionIndex := 0; sectionIndex < sectionCount; sectionIndex++ {
		currentJump := lastSectionJump * 256
		currentSectionStart := sectionStart + currentJump
		sectJumpTable[sectionIndex] = uint16(currentJump)

		if err := cur.Seek(currentSectionStart + gridBytes); err != nil {
			return err
		}

		var gridHeader [gridCells]uint16
		gridIndex := 0
		sectionSize := 0

		for gridX := 0; gridX < 65536; gridX += 16384 {
			for gridZ := 0; gridZ < 4096; gridZ += 1024 {
				for gridY := 0; gridY < 16; gridY += 4 {
					offsetInBlock := sectionIndex*16 + gridY + gridZ + gridX
					anySubmerged := enc.scanGrid(c, offsetInBlock)

					if len(enc.palette) == 1 && !anySubmerged {
						// Single-block grid: the header word is the block
						// itself, no payload.
						gridHeader[gridIndex] = enc.palette[0]
						gridIndex++
						enc.clearTouched()
						continue
					}

					format, bits := chooseFormat(len(enc.palette), anySubmerged)
					if err := enc.encodeGrid(cur, format, bits, anySubmerged); err != nil {
						return err
					}
					enc.clearTouched()

					gridHeader[gridIndex] = uint16(sectionSize/4) | uint16(format)<<12
					gridIndex++
					sectionSize += gridSizes[format]
				}
			}
		}

		cur.SetLittleEndian()
		for i, word := range gridHeader {
			if err := cur.WriteU16At(currentSectionStart+2*i, word); err != nil {
				cur.SetBigEndian()
				return err
			}
		}
		cur.SetBigEndian()

		header, err := cur.Slice(currentSectionStart, gridBytes)
		if err != nil {
			return err
		}
		if isEmptySectionHeader(header) {
			sectSizeTable[sectionIndex] = 0
			if err := cur.Skip(-gridBytes); err != nil {
				return err
			}
		} else {
			size := (gridBytes + sectionSize + 255) / 256
			sectSizeTable[sectionIndex] = uint8(size)
			lastSectionJump += size
		}
	}

	for sectionIndex := 0; sectionIndex < sectionCount; sectionIndex++ {
		if err := cur.WriteU16At(base+sectionHeaderOff+2*sectionIndex, sectJumpTable[sectionIndex]); err != nil {
			return err
		}
		if err := cur.WriteU8At(base+sectionSizeOff+sectionIndex, sectSizeTable[sectionIndex]); err != nil {
			return err
		}
	}

	finalVal := lastSectionJump * 256
	if err := cur.WriteU16At(base, uint16(finalVal>>8)); err != nil {
		return err
	}
	return cur.Seek(sectionStart + finalVal)
}
