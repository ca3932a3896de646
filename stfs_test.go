package main

import (
	"bytes"
	"errors"
	"testing"
)

// buildStfs assembles a minimal female-sex savegame package: header, one
// level-0 hash table at 0xA000, savegame.dat across blocks 0-1, a second
// fragmented file, and the file table in block 2.
func buildStfs(t *testing.T, savegame []byte) []byte {
	t.Helper()
	if len(savegame) > 0x2000 {
		t.Fatalf("savegame fixture too large: %d", len(savegame))
	}

	cur := NewCursor(make([]byte, 0xE000))
	mustSeek := func(pos int) {
		if err := cur.Seek(pos); err != nil {
			t.Fatal(err)
		}
	}

	copy(cur.Bytes(), "CON ")

	mustSeek(0x340)
	_ = cur.WriteU32(0x971A) // header size; tables start at 0xA000
	_ = cur.WriteU32(1)      // content type: savegame

	// volume descriptor
	mustSeek(0x379)
	_ = cur.WriteU8(0x24)
	_ = cur.WriteU8(0)
	_ = cur.WriteU8(1) // block separation; package sex female
	cur.SetLittleEndian()
	_ = cur.WriteU16(1) // file table spans one block
	_ = cur.WriteU24(2) // file table lives in block 2
	cur.SetBigEndian()
	mustSeek(0x379 + 8 + 0x14)
	_ = cur.WriteU32(0xAA) // allocated blocks
	_ = cur.WriteU32(0)

	// display name
	mustSeek(0x411)
	for _, r := range "Test" {
		_ = cur.WriteU16(uint16(r))
	}

	// hash table covering blocks 0..0xA9: entry i is 0x18 bytes, the
	// next-block pointer sits after the 0x14-byte hash and a status byte.
	writeHashEntry := func(block int, next uint32) {
		mustSeek(0xA000 + block*stfsHashEntrySize + 0x14)
		_ = cur.WriteU8(0)
		_ = cur.WriteU24(next)
	}
	writeHashEntry(0, 1)
	writeHashEntry(1, 0xFFFFFF)
	writeHashEntry(2, 0xFFFFFF)

	// data blocks 0 and 1 (block b lives at 0xA000 + (1+b)*0x1000)
	blockData := make([]byte, 0x2000)
	for i := range blockData {
		if i < 0x1000 {
			blockData[i] = 0x11
		} else {
			blockData[i] = 0x22
		}
	}
	copy(blockData, savegame)
	mustSeek(0xB000)
	_ = cur.WriteBytes(blockData)

	// file table in block 2
	fileSize := uint32(len(savegame))
	if fileSize == 0 {
		fileSize = 0x2000
	}
	mustSeek(0xD000)
	_ = cur.WriteBytes([]byte("savegame.dat"))
	mustSeek(0xD000 + 0x28)
	_ = cur.WriteU8(12 | 0x40) // name length, contiguous flag
	cur.SetLittleEndian()
	_ = cur.WriteU24(2) // blocks for file
	_ = cur.Skip(3)
	_ = cur.WriteU24(0) // starting block
	cur.SetBigEndian()
	_ = cur.WriteU16(0xFFFF) // root folder
	_ = cur.WriteU32(fileSize)

	entry1 := 0xD000 + stfsEntrySize
	mustSeek(entry1)
	_ = cur.WriteBytes([]byte("chain.dat"))
	mustSeek(entry1 + 0x28)
	_ = cur.WriteU8(9) // fragmented: no contiguous flag
	cur.SetLittleEndian()
	_ = cur.WriteU24(2)
	_ = cur.Skip(3)
	_ = cur.WriteU24(0)
	cur.SetBigEndian()
	_ = cur.WriteU16(0xFFFF)
	_ = cur.WriteU32(0x1800)

	return cur.Bytes()
}

// A contiguous two-block file extracts as the concatenation
// of its pages, with the hash table before them never leaking into the
// output.
func TestStfsContiguousExtraction(t *testing.T) {
	data := buildStfs(t, nil)
	pkg, err := ParseStfs(data)
	if err != nil {
		t.Fatal(err)
	}
	if pkg.DisplayName != "Test" {
		t.Fatalf("display name = %q", pkg.DisplayName)
	}

	entry := pkg.FindSavegameEntry()
	if entry == nil {
		t.Fatal("savegame.dat not found")
	}
	payload, err := pkg.ExtractFile(entry)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != 0x2000 {
		t.Fatalf("extracted %d bytes", len(payload))
	}
	for i, b := range payload {
		want := byte(0x11)
		if i >= 0x1000 {
			want = 0x22
		}
		if b != want {
			t.Fatalf("payload[%#x] = %#x, want %#x", i, b, want)
		}
	}
}

func TestStfsChainedExtraction(t *testing.T) {
	data := buildStfs(t, nil)
	pkg, err := ParseStfs(data)
	if err != nil {
		t.Fatal(err)
	}

	var chain *StfsFileEntry
	for i := range pkg.Listing.Files {
		if pkg.Listing.Files[i].Name == "chain.dat" {
			chain = &pkg.Listing.Files[i]
		}
	}
	if chain == nil {
		t.Fatal("chain.dat not found")
	}
	payload, err := pkg.ExtractFile(chain)
	if err != nil {
		t.Fatal(err)
	}
	want := append(bytes.Repeat([]byte{0x11}, 0x1000), bytes.Repeat([]byte{0x22}, 0x800)...)
	if !bytes.Equal(payload, want) {
		t.Fatalf("chained payload has %d bytes, first diff near %#x", len(payload), firstDiff(payload, want))
	}
}

func firstDiff(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// A next-block loop in the hash chain must be rejected, not followed.
func TestStfsChainCycleRejected(t *testing.T) {
	data := buildStfs(t, nil)
	// Point block 0's next-block at itself.
	off := 0xA000 + 0x14 + 1
	data[off], data[off+1], data[off+2] = 0, 0, 0

	pkg, err := ParseStfs(data)
	if err != nil {
		t.Fatal(err)
	}
	var chain *StfsFileEntry
	for i := range pkg.Listing.Files {
		if pkg.Listing.Files[i].Name == "chain.dat" {
			chain = &pkg.Listing.Files[i]
		}
	}
	if _, err := pkg.ExtractFile(chain); !errors.Is(err, ErrStfsIllegalBlock) {
		t.Fatalf("cycle error = %v", err)
	}
}

// Every block's hash entry lies inside the hash-tree area and
// links to a legal block or the end sentinel.
func TestStfsHashNavigationBounds(t *testing.T) {
	data := buildStfs(t, nil)
	pkg, err := ParseStfs(data)
	if err != nil {
		t.Fatal(err)
	}
	for block := uint32(0); block < pkg.vd.allocBlockCount; block++ {
		addr, err := pkg.hashAddressOfBlock(block)
		if err != nil {
			t.Fatal(err)
		}
		if addr < pkg.firstHashTableAddress || int(addr) >= len(data) {
			t.Fatalf("hash address %#x for block %#x out of range", addr, block)
		}
		entry, err := pkg.blockHashEntry(block)
		if err != nil {
			t.Fatal(err)
		}
		if entry.nextBlock >= pkg.vd.allocBlockCount && entry.nextBlock != 0xFFFFFF {
			t.Fatalf("block %#x links to %#x", block, entry.nextBlock)
		}
	}
}

func TestStfsRejectsNonSavegame(t *testing.T) {
	data := buildStfs(t, nil)
	data[0x347] = 3 // content type no longer 1
	if _, err := ParseStfs(data); !errors.Is(err, ErrNotASavegame) {
		t.Fatalf("content-type error = %v", err)
	}
}

func TestStfsIllegalBlockNumber(t *testing.T) {
	data := buildStfs(t, nil)
	pkg, err := ParseStfs(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pkg.extractBlock(0xAB, stfsBlockSize); !errors.Is(err, ErrStfsIllegalBlock) {
		t.Fatalf("illegal block error = %v", err)
	}
}

// OpenSave unwraps a .bin package and parses the inner flat archive.
func TestOpenSaveUnwrapsStfs(t *testing.T) {
	inner := &Archive{
		Console:        Xbox360,
		OldestVersion:  11,
		CurrentVersion: 11,
		Files: []*InnerFile{
			newInnerFile("level.dat", 5, []byte("inner level")),
		},
	}
	innerBytes, err := inner.Write(Xbox360)
	if err != nil {
		t.Fatal(err)
	}

	data := buildStfs(t, innerBytes)
	archive, err := OpenSave(data, Xbox360)
	if err != nil {
		t.Fatal(err)
	}
	if len(archive.Files) != 1 || archive.Files[0].Name != "level.dat" {
		t.Fatalf("inner archive files = %+v", archive.Files)
	}
	if string(archive.Files[0].Payload) != "inner level" {
		t.Fatalf("payload = %q", archive.Files[0].Payload)
	}
}
