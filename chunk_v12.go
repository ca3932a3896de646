package main

import (
	"github.com/Offroaders123/LegacyEditor/nbt"
)

// v12 ("Elytra") chunk layout. The region manager has already consumed the
// 2-byte chunk version, so the header base sits at offset 26:
// chunk_x u32, chunk_z u32, last_update u64, inhabited_time u64, all
// big-endian, then the block-data block, four light sub-blocks, the height
// map, terrain_populated, biomes and a trailing compound holding the
// Entities / TileEntities / TileTicks lists.

const v12HeaderBase = 26

func decodeChunkV12(cur *Cursor, c *ChunkData) error {
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

	if err := readBlockData(cur, c, v12HeaderBase); err != nil {
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

	c.Entities = nbt.MakeList(nbt.TagCompound, nil)
	c.TileEntities = nbt.MakeList(nbt.TagCompound, nil)
	c.TileTicks = nbt.MakeList(nbt.TagCompound, nil)
	if next, err := cur.Slice(cur.Pos(), 1); err == nil && next[0] == 0x0A {
		_, root, err := nbt.ReadTag(cur)
		if err != nil {
			return err
		}
		if tag, ok := root.Extract("Entities"); ok {
			c.Entities = tag
		}
		if tag, ok := root.Extract("TileEntities"); ok {
			c.TileEntities = tag
		}
		if tag, ok := root.Extract("TileTicks"); ok {
			c.TileTicks = tag
		}
	}

	c.LastVersion = 12
	c.Valid = true
	return nil
}

func encodeChunkV12(cur *Cursor, c *ChunkData) error {
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

	if err := writeBlockData(cur, c, v12HeaderBase); err != nil {
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

	root := nbt.MakeCompound()
	root.Set("Entities", ensureCompoundList(c.Entities))
	root.Set("TileEntities", ensureCompoundList(c.TileEntities))
	root.Set("TileTicks", ensureCompoundList(c.TileTicks))
	return nbt.WriteTag(cur, "", root)
}

// ensureCompoundList substitutes an empty compound list for a zero tag so
// chunks built from scratch always serialize the three lists.
func ensureCompoundList(t nbt.Tag) nbt.Tag {
	if t.Type != nbt.TagList {
		return nbt.MakeList(nbt.TagCompound, nil)
	}
	return t
}
