// Long/short name conversion for the directory layer, grounded on
// fat32_fs's short-entry + chained long-name-entry convention (spec.md
// §4.11) and the example pack's preference for golang.org/x/text over a
// hand-rolled UTF-16 codec. package fat32 owns the on-disk byte layout;
// this file only owns the string <-> UTF-16 code-unit conversion and the
// 8.3 short-name synthesis that the on-disk layout requires.
package vfs

import (
	"encoding/binary"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"fat32"
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

/// stringToUTF16 converts a Go string into its UTF-16LE code units.
func stringToUTF16(s string) ([]uint16, error) {
	b, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i : 2*i+2])
	}
	return units, nil
}

/// utf16ToString converts UTF-16LE code units back into a Go string,
/// trimming the long-name entry's NUL/0xFFFF tail padding first.
func utf16ToString(units []uint16) (string, error) {
	for len(units) > 0 && (units[len(units)-1] == 0x0000 || units[len(units)-1] == 0xFFFF) {
		units = units[:len(units)-1]
	}
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:2*i+2], u)
	}
	out, err := utf16LE.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

/// longNameChunks splits name into ceil(len/13) 13-UTF16-unit chunks
/// ready for fat32.EncodeLongNameChunk, ordered first-chunk-first
/// (ordinal 1 holds the name's start).
func longNameChunks(name string) ([][]uint16, error) {
	units, err := stringToUTF16(name)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return [][]uint16{{}}, nil
	}
	var chunks [][]uint16
	for i := 0; i < len(units); i += fat32.LongNameLen {
		end := i + fat32.LongNameLen
		if end > len(units) {
			end = len(units)
		}
		chunks = append(chunks, units[i:end])
	}
	return chunks, nil
}

// validShortChar reports whether c may appear verbatim in a legacy 8.3
// component; everything else is dropped when synthesizing a short alias.
func validShortChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case strings.ContainsRune("$%'-_@~`!(){}^#&", rune(c)):
		return true
	}
	return false
}

/// splitExt splits name at its last '.', Go-style (a leading dot is kept
/// as part of the base, matching shells' treatment of dotfiles).
func splitExt(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

/// fitsShortName reports whether name is already a legal bare 8.3 name
/// (case folded), returning the padded 11-byte short-name field to use
/// verbatim when it is.
func fitsShortName(name string) ([11]byte, bool) {
	up := strings.ToUpper(name)
	upBase, upExt := splitExt(up)
	if len(upBase) == 0 || len(upBase) > 8 || len(upExt) > 3 {
		return [11]byte{}, false
	}
	for i := 0; i < len(upBase); i++ {
		if !validShortChar(upBase[i]) {
			return [11]byte{}, false
		}
	}
	for i := 0; i < len(upExt); i++ {
		if !validShortChar(upExt[i]) {
			return [11]byte{}, false
		}
	}
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], upBase)
	copy(out[8:11], upExt)
	return out, true
}

/// makeShortAlias synthesizes a FAT "~n" short-name alias for a name that
/// doesn't already fit 8.3, trying seq = 1, 2, ... on each collision.
func makeShortAlias(name string, seq int) [11]byte {
	base, ext := splitExt(strings.ToUpper(name))
	var clean []byte
	for i := 0; i < len(base) && len(clean) < 8; i++ {
		if validShortChar(base[i]) {
			clean = append(clean, base[i])
		}
	}
	tail := []byte("~" + strconv.Itoa(seq))
	keep := 8 - len(tail)
	if keep < 1 {
		keep = 1
	}
	if len(clean) > keep {
		clean = clean[:keep]
	}
	clean = append(clean, tail...)

	var cleanExt []byte
	for i := 0; i < len(ext) && len(cleanExt) < 3; i++ {
		if validShortChar(ext[i]) {
			cleanExt = append(cleanExt, ext[i])
		}
	}

	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], clean)
	copy(out[8:11], cleanExt)
	return out
}

/// shortNameToString reconstructs a display string from a raw 11-byte
/// short-name field ("NAME    EXT" -> "name.ext"), used when a short
/// entry has no associated long-name chunks.
func shortNameToString(short fat32.ShortDirEntry) string {
	base := strings.TrimRight(string(short.Name[0:8]), " ")
	ext := strings.TrimRight(string(short.Name[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func eqFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
