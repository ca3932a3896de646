package main

// Light data is 32 768 bytes per kind, framed on disk as two 16 384-byte
// sub-blocks. Each sub-block carries a 1-byte descriptor: 0x00 and 0xFF
// stand for a uniform fill with no payload, anything else announces the
// raw bytes. Both chunk versions share the framing and read and write each
// light kind through the same pair helpers below.

const lightHalfSize = 16384

const (
	lightAllZero = 0x00
	lightAllOnes = 0xFF
	lightRaw     = 0x01
)

func readLightHalf(cur *Cursor, dst []byte) error {
	descriptor, err := cur.ReadU8()
	if err != nil {
		return err
	}
	switch descriptor {
	case lightAllZero:
		for i := range dst {
			dst[i] = 0x00
		}
	case lightAllOnes:
		for i := range dst {
			dst[i] = 0xFF
		}
	default:
		raw, err := cur.ReadBytes(lightHalfSize)
		if err != nil {
			return err
		}
		copy(dst, raw)
	}
	return nil
}

// readLightPair fills one light kind from its two sub-blocks.
func readLightPair(cur *Cursor, dst []byte) error {
	if err := readLightHalf(cur, dst[:lightHalfSize]); err != nil {
		return err
	}
	return readLightHalf(cur, dst[lightHalfSize:])
}

func writeLightHalf(cur *Cursor, src []byte) error {
	uniform := true
	for _, b := range src[1:] {
		if b != src[0] {
			uniform = false
			break
		}
	}
	if uniform && src[0] == 0x00 {
		return cur.WriteU8(lightAllZero)
	}
	if uniform && src[0] == 0xFF {
		return cur.WriteU8(lightAllOnes)
	}
	if err := cur.WriteU8(lightRaw); err != nil {
		return err
	}
	return cur.WriteBytes(src)
}

func writeLightPair(cur *Cursor, src []byte) error {
	if err := writeLightHalf(cur, src[:lightHalfSize]); err != nil {
		return err
	}
	return writeLightHalf(cur, src[lightHalfSize:])
}
