package shader

import (
	"fmt"
	"strconv"
	"strings"
)

// scalarSizes holds the byte size of each WGSL scalar. A scalar is aligned to its size.
var scalarSizes = map[string]uint64{
	"f32":  4,
	"i32":  4,
	"u32":  4,
	"f16":  2,
	"bool": 4,
}

// vectorSuffixes maps the shorthand vector suffixes (vec3f, vec4u) to their scalar.
var vectorSuffixes = map[byte]string{
	'f': "f32",
	'i': "i32",
	'u': "u32",
	'h': "f16",
}

// primitiveLayout returns the size and alignment of a WGSL scalar, vector, matrix or atomic
// type. Vectors of three align like vectors of four; a matrix is an array of its column
// vectors.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
//
// Parameters:
//   - typeName: the WGSL type, e.g. "u32", "vec3<f32>", "vec2u", "mat4x4<f32>"
//
// Returns:
//   - wgslTypeLayout: the layout
//   - bool: false if typeName is not a primitive
func primitiveLayout(typeName string) (wgslTypeLayout, bool) {
	if size, ok := scalarSizes[typeName]; ok {
		return wgslTypeLayout{size, size}, true
	}
	if inner, ok := strings.CutPrefix(typeName, "atomic<"); ok {
		inner = strings.TrimSuffix(inner, ">")
		if inner == "u32" || inner == "i32" {
			return wgslTypeLayout{4, 4}, true
		}
		return wgslTypeLayout{}, false
	}

	if rest, ok := strings.CutPrefix(typeName, "vec"); ok && len(rest) >= 2 {
		n := uint64(rest[0] - '0')
		if n < 2 || n > 4 {
			return wgslTypeLayout{}, false
		}
		var scalar string
		if len(rest) == 2 {
			scalar = vectorSuffixes[rest[1]]
		} else if strings.HasPrefix(rest[1:], "<") && strings.HasSuffix(rest, ">") {
			scalar = rest[2 : len(rest)-1]
		}
		size, ok := scalarSizes[scalar]
		if !ok || scalar == "bool" {
			return wgslTypeLayout{}, false
		}
		align := size * 4
		if n == 2 {
			align = size * 2
		}
		return wgslTypeLayout{n * size, align}, true
	}

	// matCxR<f32>
	if rest, ok := strings.CutPrefix(typeName, "mat"); ok && len(rest) == 8 && rest[1] == 'x' && rest[3:] == "<f32>" {
		cols, rows := uint64(rest[0]-'0'), uint64(rest[2]-'0')
		if cols < 2 || cols > 4 || rows < 2 || rows > 4 {
			return wgslTypeLayout{}, false
		}
		column, _ := primitiveLayout(fmt.Sprintf("vec%d<f32>", rows))
		return wgslTypeLayout{cols * roundUpAlign(column.align, column.size), column.align}, true
	}

	return wgslTypeLayout{}, false
}

// roundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
//
// Parameters:
//   - alignment: the required alignment (must be a power of two)
//   - value: the value to align
//
// Returns:
//   - uint64: value rounded up to the next multiple of alignment
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment using primitives and
// previously computed struct layouts. A runtime-sized array resolves to its element stride.
//
// Parameters:
//   - typeName: the WGSL type name, e.g. "f32", "LaunchParams", "array<u32, 4>"
//   - knownTypes: already-resolved struct layouts
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: false for unknown types
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := primitiveLayout(typeName); ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	if strings.HasPrefix(typeName, "array<") && strings.HasSuffix(typeName, ">") {
		inner := typeName[6 : len(typeName)-1]
		parts := strings.SplitN(inner, ",", 2)
		elemLayout, ok := resolveTypeLayout(strings.TrimSpace(parts[0]), knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		stride := roundUpAlign(elemLayout.align, elemLayout.size)

		if len(parts) == 2 {
			count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
			if err != nil {
				return wgslTypeLayout{}, false
			}
			return wgslTypeLayout{count * stride, elemLayout.align}, true
		}
		return wgslTypeLayout{stride, elemLayout.align}, true
	}

	return wgslTypeLayout{}, false
}

// computeStructLayout computes the byte size and alignment of a single WGSL struct: each field
// is placed at the next aligned offset and the total is rounded up to the largest field
// alignment. A trailing runtime-sized array contributes nothing to the size.
//
// Parameters:
//   - ps: the parsed struct
//   - knownTypes: already-resolved struct layouts
//
// Returns:
//   - wgslTypeLayout: the computed layout
//   - bool: true if all fields could be resolved
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	offset := uint64(0)
	maxAlign := uint64(1)

	for i, field := range ps.fields {
		if field.isBuiltin {
			continue
		}

		fieldLayout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		if fieldLayout.align > maxAlign {
			maxAlign = fieldLayout.align
		}

		runtimeArray := strings.HasPrefix(field.typeName, "array<") && !strings.Contains(field.typeName, ",")
		if runtimeArray && i == len(ps.fields)-1 {
			offset = roundUpAlign(fieldLayout.align, offset)
			break
		}

		offset = roundUpAlign(fieldLayout.align, offset)
		offset += fieldLayout.size
	}

	return wgslTypeLayout{roundUpAlign(maxAlign, offset), maxAlign}, true
}

// computeStructSizes computes the layout of all parsed structs, resolving structs that
// contain other structs over repeated passes.
//
// Parameters:
//   - structs: all parsed struct blocks from the WGSL source
//
// Returns:
//   - map[string]wgslTypeLayout: struct name to computed layout
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	remaining := make([]parsedStruct, len(structs))
	copy(remaining, structs)

	for {
		progress := false
		next := remaining[:0]

		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
				progress = true
			} else {
				next = append(next, ps)
			}
		}

		remaining = next
		if !progress || len(remaining) == 0 {
			break
		}
	}

	return resolved
}

// stripComments removes both single-line (//) and block (/* */) comments from WGSL source.
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

// stripLineComments removes single-line // comments from WGSL source
func stripLineComments(source string) string {
	var sb strings.Builder
	for line := range strings.SplitSeq(source, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// stripBlockComments removes block comments from WGSL source. Block comments may nest.
func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	i := 0
	for i < len(source) {
		if i+1 < len(source) {
			if source[i] == '/' && source[i+1] == '*' {
				depth++
				i += 2
				continue
			}
			if source[i] == '*' && source[i+1] == '/' {
				if depth > 0 {
					depth--
				}
				i += 2
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
		i++
	}
	return sb.String()
}

// splitAtTopLevelCommas splits a string at commas that are not nested inside angle brackets,
// so array<T, N> stays one field.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
