package main

import (
	"fmt"
)

// OpenSave opens a save archive from its raw bytes, unwrapping a .bin STFS
// package first when one is present.
func OpenSave(data []byte, console Console) (*Archive, error) {
	if IsStfsPackage(data) {
		pkg, err := ParseStfs(data)
		if err != nil {
			return nil, err
		}
		entry := pkg.FindSavegameEntry()
		if entry == nil {
			return nil, fmt.Errorf("%w: no savegame.dat entry", ErrNotASavegame)
		}
		inner, err := pkg.ExtractFile(entry)
		if err != nil {
			return nil, err
		}
		return ReadArchive(inner, console)
	}
	return ReadArchive(data, console)
}

// ConvertSave re-emits a save archive for another console: every region is
// decoded chunk by chunk and re-encoded, the directory rebuilt, and the
// listing rewritten in the target byte order. Player and data-mapping
// entries do not carry across consoles and are dropped.
func ConvertSave(in []byte, src, dst Console) ([]byte, error) {
	archive, err := OpenSave(in, src)
	if err != nil {
		return nil, err
	}

	if src != dst {
		archive.RemoveKinds(KindPlayer, KindDataMapping)
	}

	for _, file := range archive.Files {
		if !file.Kind.IsRegion() {
			continue
		}
		region, err := ReadRegion(file.Payload, src)
		if err != nil {
			return nil, fmt.Errorf("convert: region %s: %w", file.Name, err)
		}
		if err := region.Convert(dst); err != nil {
			return nil, fmt.Errorf("convert: region %s: %w", file.Name, err)
		}
		payload, err := region.Write(dst)
		if err != nil {
			return nil, fmt.Errorf("convert: region %s: %w", file.Name, err)
		}
		file.Payload = payload
	}

	return archive.Write(dst)
}
