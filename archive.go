package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	listingHeaderSize  = 12
	listingNameUnits   = 64
	listingEntrySizeV2 = 144
	listingEntrySizeV1 = 136
)

var ErrBadListing = errors.New("listing: malformed file listing")

// FileKind classifies an inner file of a save archive.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindRegionNether
	KindRegionOverworld
	KindRegionEnd
	KindEntityNether
	KindEntityOverworld
	KindEntityEnd
	KindPlayer
	KindMap
	KindStructure
	KindVillage
	KindDataMapping
	KindLevel
	KindGRF
)

// IsRegion reports whether the kind is a dimension region file.
func (k FileKind) IsRegion() bool {
	return k == KindRegionNether || k == KindRegionOverworld || k == KindRegionEnd
}

// InnerFile is one named blob inside an archive. Region and map files also
// carry the coordinates parsed out of their names so the name can be
// reconstructed on write.
type InnerFile struct {
	Name      string
	Kind      FileKind
	Timestamp uint64
	Payload   []byte

	X, Z  int16
	MapID int
}

// Archive is the in-memory form of one save: the listing versions plus the
// ordered inner files.
type Archive struct {
	Console        Console
	OldestVersion  uint16
	CurrentVersion uint16
	Files          []*InnerFile
}

// detectKind classifies a file by its constructed name.
func detectKind(name string) FileKind {
	switch {
	case name == "level.dat":
		return KindLevel
	case strings.HasSuffix(name, ".mcr"):
		switch {
		case strings.HasPrefix(name, "DIM-1/"):
			return KindRegionNether
		case strings.HasPrefix(name, "DIM1/"):
			return KindRegionEnd
		default:
			return KindRegionOverworld
		}
	case strings.HasSuffix(name, "entities.dat"):
		switch {
		case strings.HasPrefix(name, "DIM-1/"):
			return KindEntityNether
		case strings.HasPrefix(name, "DIM1/"):
			return KindEntityEnd
		default:
			return KindEntityOverworld
		}
	case strings.HasPrefix(name, "players/"):
		return KindPlayer
	case strings.HasPrefix(name, "data/map_") && strings.HasSuffix(name, ".dat"):
		return KindMap
	case name == "data/villages.dat":
		return KindVillage
	case name == "data/largeMapDataMappings.dat":
		return KindDataMapping
	case strings.HasSuffix(name, ".mcs"):
		return KindStructure
	case strings.HasSuffix(name, ".grf"):
		return KindGRF
	default:
		return KindUnknown
	}
}

func newInnerFile(name string, timestamp uint64, payload []byte) *InnerFile {
	file := &InnerFile{
		Name:      name,
		Kind:      detectKind(name),
		Timestamp: timestamp,
		Payload:   payload,
	}
	switch file.Kind {
	case KindRegionNether, KindRegionOverworld, KindRegionEnd:
		base := name[strings.IndexByte(name, '/')+1:]
		parts := strings.Split(strings.TrimSuffix(base, ".mcr"), ".")
		if len(parts) == 3 {
			x, errX := strconv.Atoi(parts[1])
			z, errZ := strconv.Atoi(parts[2])
			if errX == nil && errZ == nil {
				file.X, file.Z = int16(x), int16(z)
			}
		}
	case KindMap:
		id := strings.TrimSuffix(strings.TrimPrefix(name, "data/map_"), ".dat")
		if n, err := strconv.Atoi(id); err == nil {
			file.MapID = n
		}
	}
	return file
}

// fileName reconstructs the on-disk name from the file's kind and
// coordinates; kinds with free-form names keep what they were read with.
func (f *InnerFile) fileName() string {
	switch f.Kind {
	case KindRegionNether:
		return fmt.Sprintf("DIM-1/r.%d.%d.mcr", f.X, f.Z)
	case KindRegionOverworld:
		return fmt.Sprintf("r.%d.%d.mcr", f.X, f.Z)
	case KindRegionEnd:
		return fmt.Sprintf("DIM1/r.%d.%d.mcr", f.X, f.Z)
	case KindEntityNether:
		return "DIM-1/entities.dat"
	case KindEntityOverworld:
		return "entities.dat"
	case KindEntityEnd:
		return "DIM1/entities.dat"
	case KindMap:
		return fmt.Sprintf("data/map_%d.dat", f.MapID)
	case KindVillage:
		return "data/villages.dat"
	case KindDataMapping:
		return "data/largeMapDataMappings.dat"
	case KindLevel:
		return "level.dat"
	default:
		return f.Name
	}
}

// ReadArchive parses a flat save archive in the console's byte order.
func ReadArchive(data []byte, console Console) (*Archive, error) {
	cur := newConsoleCursor(data, console)

	indexOffset, err := cur.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConsole, err)
	}
	fileCount, err := cur.ReadU32()
	if err != nil {
		return nil, err
	}
	oldestVersion, err := cur.ReadU16()
	if err != nil {
		return nil, err
	}
	currentVersion, err := cur.ReadU16()
	if err != nil {
		return nil, err
	}

	entrySize := uint32(listingEntrySizeV2)
	if currentVersion <= 1 {
		entrySize = listingEntrySizeV1
		// The count field is pre-multiplied by the entry size on disk.
		fileCount /= listingEntrySizeV1
	}
	if int(indexOffset) > len(data) || int(fileCount)*int(entrySize) > len(data) {
		return nil, fmt.Errorf("%w: listing header out of bounds", ErrUnknownConsole)
	}

	archive := &Archive{
		Console:        console,
		OldestVersion:  oldestVersion,
		CurrentVersion: currentVersion,
	}
	for fileIndex := uint32(0); fileIndex < fileCount; fileIndex++ {
		if err := cur.Seek(int(indexOffset) + int(fileIndex)*int(entrySize)); err != nil {
			return nil, err
		}
		name, err := cur.ReadWString(listingNameUnits)
		if err != nil {
			return nil, err
		}
		size, err := cur.ReadU32()
		if err != nil {
			return nil, err
		}
		offset, err := cur.ReadU32()
		if err != nil {
			return nil, err
		}
		var timestamp uint64
		if currentVersion > 1 {
			if timestamp, err = cur.ReadU64(); err != nil {
				return nil, err
			}
		}

		payload, err := cur.Slice(int(offset), int(size))
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q out of bounds", ErrBadListing, name)
		}
		archive.Files = append(archive.Files,
			newInnerFile(normalizeName(name), timestamp, append([]byte(nil), payload...)))
	}
	return archive, nil
}

// Write serializes the archive for the target console: header, blobs, then
// the footer with names rebuilt from kind and coordinates.
func (a *Archive) Write(console Console) ([]byte, error) {
	entrySize := listingEntrySizeV2
	multiplier := 1
	if a.CurrentVersion <= 1 {
		entrySize = listingEntrySizeV1
		multiplier = listingEntrySizeV1
	}

	written := make([]*InnerFile, 0, len(a.Files))
	for _, file := range a.Files {
		if file.Kind == KindUnknown {
			continue
		}
		written = append(written, file)
	}

	indexOffset := listingHeaderSize
	for _, file := range written {
		indexOffset += len(file.Payload)
	}
	total := indexOffset + entrySize*len(written)

	cur := newConsoleCursor(make([]byte, total), console)
	if err := cur.WriteU32(uint32(indexOffset)); err != nil {
		return nil, err
	}
	if err := cur.WriteU32(uint32(len(written) * multiplier)); err != nil {
		return nil, err
	}
	if err := cur.WriteU16(a.OldestVersion); err != nil {
		return nil, err
	}
	if err := cur.WriteU16(a.CurrentVersion); err != nil {
		return nil, err
	}

	offsets := make([]uint32, len(written))
	for i, file := range written {
		offsets[i] = uint32(cur.Pos())
		if err := cur.WriteBytes(file.Payload); err != nil {
			return nil, err
		}
	}
	for i, file := range written {
		if err := cur.WriteWString(file.fileName(), listingNameUnits); err != nil {
			return nil, err
		}
		if err := cur.WriteU32(uint32(len(file.Payload))); err != nil {
			return nil, err
		}
		if err := cur.WriteU32(offsets[i]); err != nil {
			return nil, err
		}
		if a.CurrentVersion > 1 {
			if err := cur.WriteU64(file.Timestamp); err != nil {
				return nil, err
			}
		}
	}
	return cur.Bytes(), nil
}

// Find returns the first file of a kind, or nil.
func (a *Archive) Find(kind FileKind) *InnerFile {
	for _, file := range a.Files {
		if file.Kind == kind {
			return file
		}
	}
	return nil
}

// RemoveKinds drops every file whose kind is in the set.
func (a *Archive) RemoveKinds(kinds ...FileKind) {
	drop := make(map[FileKind]bool, len(kinds))
	for _, kind := range kinds {
		drop[kind] = true
	}
	kept := a.Files[:0]
	for _, file := range a.Files {
		if !drop[file.Kind] {
			kept = append(kept, file)
		}
	}
	a.Files = kept
}

// DumpToDir writes every inner file under dir, creating parent directories.
func (a *Archive) DumpToDir(dir string) error {
	for _, file := range a.Files {
		path := filepath.Join(dir, filepath.FromSlash(file.fileName()))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("listing: dump %q: %w", file.Name, err)
		}
		if err := os.WriteFile(path, file.Payload, 0644); err != nil {
			return fmt.Errorf("listing: dump %q: %w", file.Name, err)
		}
	}
	return nil
}

// normalizeName maps the wide-string path separators to forward slashes.
func normalizeName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}
