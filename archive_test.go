package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestArchiveRoundTrip(t *testing.T) {
	for _, console := range []Console{WiiU, PS4} {
		archive := &Archive{
			Console:        console,
			OldestVersion:  11,
			CurrentVersion: 11,
			Files: []*InnerFile{
				newInnerFile("level.dat", 100, []byte("level payload")),
				newInnerFile("r.0.0.mcr", 200, make([]byte, 300)),
				newInnerFile("DIM-1/r.-1.0.mcr", 300, []byte{1, 2, 3}),
				newInnerFile("data/map_12.dat", 400, []byte{9}),
				newInnerFile("data/villages.dat", 500, []byte{7, 7}),
			},
		}

		data, err := archive.Write(console)
		if err != nil {
			t.Fatal(err)
		}
		read, err := ReadArchive(data, console)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(archive, read); diff != "" {
			t.Fatalf("%s archive mismatch (-want +got):\n%s", console, diff)
		}
	}
}

func TestArchiveKindDetection(t *testing.T) {
	cases := map[string]FileKind{
		"level.dat":                    KindLevel,
		"r.0.-1.mcr":                   KindRegionOverworld,
		"DIM-1/r.1.0.mcr":              KindRegionNether,
		"DIM1/r.0.0.mcr":               KindRegionEnd,
		"entities.dat":                 KindEntityOverworld,
		"DIM-1/entities.dat":           KindEntityNether,
		"DIM1/entities.dat":            KindEntityEnd,
		"players/abc123.dat":           KindPlayer,
		"data/map_3.dat":               KindMap,
		"data/villages.dat":            KindVillage,
		"data/largeMapDataMappings.dat": KindDataMapping,
		"data/Fortress.mcs":            KindStructure,
		"requiredGameRules.grf":        KindGRF,
		"mystery.bin":                  KindUnknown,
	}
	for name, want := range cases {
		if got := detectKind(name); got != want {
			t.Fatalf("detectKind(%q) = %v, want %v", name, got, want)
		}
	}

	region := newInnerFile("DIM-1/r.-2.1.mcr", 0, nil)
	if region.X != -2 || region.Z != 1 {
		t.Fatalf("region coords = %d,%d", region.X, region.Z)
	}
	if region.fileName() != "DIM-1/r.-2.1.mcr" {
		t.Fatalf("reconstructed name = %q", region.fileName())
	}
	mapFile := newInnerFile("data/map_12.dat", 0, nil)
	if mapFile.MapID != 12 || mapFile.fileName() != "data/map_12.dat" {
		t.Fatalf("map file = %d %q", mapFile.MapID, mapFile.fileName())
	}
}

// A version-1 listing pre-multiplies the count field and uses
// 136-byte entries without timestamps.
func TestVersionOneListing(t *testing.T) {
	payloadA := make([]byte, 100)
	payloadB := make([]byte, 200)
	for i := range payloadB {
		payloadB[i] = byte(i)
	}

	total := listingHeaderSize + 300 + 2*listingEntrySizeV1
	cur := newConsoleCursor(make([]byte, total), WiiU)
	indexOffset := listingHeaderSize + 300
	if err := cur.WriteU32(uint32(indexOffset)); err != nil {
		t.Fatal(err)
	}
	if err := cur.WriteU32(2 * listingEntrySizeV1); err != nil {
		t.Fatal(err)
	}
	if err := cur.WriteU16(1); err != nil {
		t.Fatal(err)
	}
	if err := cur.WriteU16(1); err != nil {
		t.Fatal(err)
	}
	if err := cur.WriteBytes(payloadA); err != nil {
		t.Fatal(err)
	}
	if err := cur.WriteBytes(payloadB); err != nil {
		t.Fatal(err)
	}
	writeEntry := func(name string, size, offset uint32) {
		if err := cur.WriteWString(name, listingNameUnits); err != nil {
			t.Fatal(err)
		}
		if err := cur.WriteU32(size); err != nil {
			t.Fatal(err)
		}
		if err := cur.WriteU32(offset); err != nil {
			t.Fatal(err)
		}
	}
	writeEntry("level.dat", 100, uint32(listingHeaderSize))
	writeEntry("r.0.0.mcr", 200, uint32(listingHeaderSize+100))

	archive, err := ReadArchive(cur.Bytes(), WiiU)
	if err != nil {
		t.Fatal(err)
	}
	if len(archive.Files) != 2 {
		t.Fatalf("file count = %d", len(archive.Files))
	}
	if archive.Files[0].Name != "level.dat" || len(archive.Files[0].Payload) != 100 {
		t.Fatalf("first entry = %q (%d bytes)", archive.Files[0].Name, len(archive.Files[0].Payload))
	}
	if archive.Files[1].Name != "r.0.0.mcr" || len(archive.Files[1].Payload) != 200 {
		t.Fatalf("second entry = %q (%d bytes)", archive.Files[1].Name, len(archive.Files[1].Payload))
	}
	if archive.Files[1].Payload[50] != 50 {
		t.Fatal("payload bytes shifted")
	}

	// And the writer reproduces the pre-multiplied count.
	out, err := archive.Write(WiiU)
	if err != nil {
		t.Fatal(err)
	}
	check := newConsoleCursor(out, WiiU)
	if _, err := check.ReadU32(); err != nil {
		t.Fatal(err)
	}
	count, err := check.ReadU32()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2*listingEntrySizeV1 {
		t.Fatalf("count field = %d", count)
	}
}

func TestArchiveDropsUnknownKindsOnWrite(t *testing.T) {
	archive := &Archive{
		Console:        WiiU,
		CurrentVersion: 2,
		Files: []*InnerFile{
			newInnerFile("level.dat", 1, []byte{1}),
			newInnerFile("mystery.bin", 2, []byte{2}),
		},
	}
	data, err := archive.Write(WiiU)
	if err != nil {
		t.Fatal(err)
	}
	read, err := ReadArchive(data, WiiU)
	if err != nil {
		t.Fatal(err)
	}
	if len(read.Files) != 1 || read.Files[0].Kind != KindLevel {
		t.Fatalf("files after write = %+v", read.Files)
	}
}

func TestArchiveDumpToDir(t *testing.T) {
	dir := t.TempDir()
	archive := &Archive{
		Console:        WiiU,
		CurrentVersion: 2,
		Files: []*InnerFile{
			newInnerFile("level.dat", 0, []byte("lvl")),
			newInnerFile("DIM1/r.0.0.mcr", 0, []byte("end region")),
		},
	}
	if err := archive.DumpToDir(dir); err != nil {
		t.Fatal(err)
	}
	payload, err := os.ReadFile(filepath.Join(dir, "DIM1", "r.0.0.mcr"))
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "end region" {
		t.Fatalf("dumped payload = %q", payload)
	}
}

func TestRemoveKinds(t *testing.T) {
	archive := &Archive{
		Files: []*InnerFile{
			newInnerFile("players/p1.dat", 0, nil),
			newInnerFile("level.dat", 0, nil),
			newInnerFile("data/largeMapDataMappings.dat", 0, nil),
		},
	}
	archive.RemoveKinds(KindPlayer, KindDataMapping)
	if len(archive.Files) != 1 || archive.Files[0].Kind != KindLevel {
		t.Fatalf("files after removal = %+v", archive.Files)
	}
}
