package main

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegionRoundTrip(t *testing.T) {
	for _, console := range []Console{WiiU, Switch} {
		region := NewRegion(console)

		first := testChunk(12)
		first.ChunkX = 0
		first.ChunkZ = 0
		for x := 0; x < 16; x++ {
			for z := 0; z < 16; z++ {
				first.SetBlock(x, 0, z, 0x0010)
			}
		}
		second := testChunk(13)
		second.ChunkX = 5
		second.ChunkZ = 3
		second.MaxGridAmount = 0x40
		second.SetBlock(1, 1, 1, 0x0800)

		if err := region.EncodeChunk(0, first, 12); err != nil {
			t.Fatal(err)
		}
		if err := region.EncodeChunk(5+3*32, second, 13); err != nil {
			t.Fatal(err)
		}
		region.timestamps[0] = 0x11223344
		region.timestamps[5+3*32] = 0x55667788

		data, err := region.Write(console)
		if err != nil {
			t.Fatal(err)
		}
		if len(data)%regionSectorSize != 0 {
			t.Fatalf("region size %d not sector aligned", len(data))
		}

		read, err := ReadRegion(data, console)
		if err != nil {
			t.Fatal(err)
		}
		if !read.ChunkExists(0) || !read.ChunkExists(5+3*32) {
			t.Fatal("present slots lost")
		}
		if read.ChunkExists(1) {
			t.Fatal("phantom slot present")
		}
		if read.timestamps[0] != 0x11223344 || read.timestamps[5+3*32] != 0x55667788 {
			t.Fatal("timestamps lost")
		}

		decodedFirst, err := read.DecodeChunk(0)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first, decodedFirst); diff != "" {
			t.Fatalf("chunk 0 mismatch (-want +got):\n%s", diff)
		}
		decodedSecond, err := read.DecodeChunk(5 + 3*32)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(second, decodedSecond); diff != "" {
			t.Fatalf("chunk (5,3) mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestRegionMissingChunk(t *testing.T) {
	region := NewRegion(WiiU)
	if _, err := region.DecodeChunk(7); !errors.Is(err, ErrNoChunk) {
		t.Fatalf("empty slot error = %v", err)
	}
}

func TestRegionCompressionFlavours(t *testing.T) {
	region := NewRegion(PS3)
	chunk := testChunk(12)
	chunk.SetBlock(8, 8, 8, 0x0200)

	region.flavour[3] = CompressionGzip
	if err := region.EncodeChunk(3, chunk, 12); err != nil {
		t.Fatal(err)
	}
	if region.flavour[3] != CompressionGzip {
		t.Fatal("flavour not preserved through encode")
	}

	data, err := region.Write(PS3)
	if err != nil {
		t.Fatal(err)
	}
	read, err := ReadRegion(data, PS3)
	if err != nil {
		t.Fatal(err)
	}
	if read.flavour[3] != CompressionGzip {
		t.Fatalf("flavour after reread = %d", read.flavour[3])
	}
	decoded, err := read.DecodeChunk(3)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Block(8, 8, 8) != 0x0200 {
		t.Fatalf("block = %#x", decoded.Block(8, 8, 8))
	}
}

func TestRegionConvertAcrossConsoles(t *testing.T) {
	region := NewRegion(PS3)
	chunk := testChunk(12)
	chunk.ChunkX = 1
	chunk.SetBlock(2, 3, 4, 0x0123)
	chunk.SetSubmerged(2, 3, 4, 0x0800)
	if err := region.EncodeChunk(1, chunk, 12); err != nil {
		t.Fatal(err)
	}

	big, err := region.Write(PS3)
	if err != nil {
		t.Fatal(err)
	}
	source, err := ReadRegion(big, PS3)
	if err != nil {
		t.Fatal(err)
	}
	if err := source.Convert(Switch); err != nil {
		t.Fatal(err)
	}
	little, err := source.Write(Switch)
	if err != nil {
		t.Fatal(err)
	}

	target, err := ReadRegion(little, Switch)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := target.DecodeChunk(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(chunk, decoded); diff != "" {
		t.Fatalf("converted chunk mismatch (-want +got):\n%s", diff)
	}
}

// A slot whose record cannot decode is dropped; the others survive.
func TestRegionConvertDropsBadChunks(t *testing.T) {
	region := NewRegion(WiiU)
	good := testChunk(12)
	good.SetBlock(0, 0, 0, 0x0010)
	if err := region.EncodeChunk(0, good, 12); err != nil {
		t.Fatal(err)
	}
	region.records[9] = []byte{0xDE, 0xAD} // not a zlib stream
	region.flavour[9] = CompressionZlib

	if err := region.Convert(WiiU); err != nil {
		t.Fatal(err)
	}
	if region.ChunkExists(9) {
		t.Fatal("undecodable slot kept")
	}
	if !region.ChunkExists(0) {
		t.Fatal("good slot lost")
	}
}
