package main

import (
	"github.com/Offroaders123/LegacyEditor/nbt"
)

// v13 ("Aquatic") chunk layout. The header gains a leading u16
// max_grid_amount, pushing the block-data base to 28, and the terminal NBT
// is one compound instead of three extracted lists. Everything about grids
// and palettes matches v12.

const v13HeaderBase = 28

func decodeChunkV13(cur *Cursor, c *ChunkData) error {
	maxGridAmount, err := cur.ReadU16()
	if err != nil {
		return err
	}
	c.MaxGridAmount = maxGridAmount

	x, err := cur.ReadU32()
	if err != nil {
		return err
	}
	z, err := cur.ReadU32()
	if err != nil {
		return err
	}
	lastUpdate, err := cur.ReadU64()
	if err != nil {
		return err
	}
	inhabited, err := cur.ReadU64()
	if err != nil {
		return err
	}
	c.ChunkX = int32(x)
	c.ChunkZ = int32(z)
	c.LastUpdate = int64(lastUpdate)
	c.InhabitedTime = int64(inhabited)

	if err := readBlockData(cur, c, v13HeaderBase); err != nil {
		return err
	}

	if err := readLightPair(cur, c.SkyLight); err != nil {
		return err
	}
	if err := readLightPair(cur, c.BlockLight); err != nil {
		return err
	}

	heightMap, err := cur.ReadBytes(256)
	if err != nil {
		return err
	}
	copy(c.HeightMap, heightMap)

	populated, err := cur.ReadU16()
	if err != nil {
		return err
	}
	c.TerrainPopulated = int16(populated)

	biomes, err := cur.ReadBytes(256)
	if err != nil {
		return err
	}
	copy(c.Biomes, biomes)

	if next, err := cur.Slice(cur.Pos(), 1); err == nil && next[0] == 0x0A {
		name, root, err := nbt.ReadTag(cur)
		if err != nil {
			return err
		}
		c.NBTName = name
		c.NBTData = root
		c.HasNBT = true
	}

	c.LastVersion = 13
	c.Valid = true
	return nil
}

func encodeChunkV13(cur *Cursor, c *ChunkData) error {
	if err := cur.WriteU16(c.MaxGridAmount); err != nil {
		return err
	}
	if err := cur.WriteU32(uint32(c.ChunkX)); err != nil {
		return err
	}
	if err := cur.WriteU32(uint32(c.ChunkZ)); err != nil {
		return err
	}
	if err := cur.WriteU64(uint64(c.LastUpdate)); err != nil {
		return err
	}
	if err := cur.WriteU64(uint64(c.InhabitedTime)); err != nil {
		return err
	}

	if err := writeBlockData(cur, c, v13HeaderBase); err != nil {
		return err
	}

	if err := writeLightPair(cur, c.SkyLight); err != nil {
		return err
	}
	if err := writeLightPair(cur, c.BlockLight); err != nil {
		return err
	}

	if err := cur.WriteBytes(c.HeightMap); err != nil {
		return err
	}
	if err := cur.WriteU16(uint16(c.TerrainPopulated)); err != nil {
		return err
	}
	if err := cur.WriteBytes(c.Biomes); err != nil {
		return err
	}

	if c.HasNBT {
		return nbt.WriteTag(cur, c.NBTName, c.NBTData)
	}
	return nil
}
