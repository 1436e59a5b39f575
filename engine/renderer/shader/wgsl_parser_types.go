package shader

// wgslTypeLayout holds the byte size and alignment for a WGSL type per the WGSL specification.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// Binding is a resource declaration found in a processed kernel.
type Binding struct {
	Group   int
	Binding int

	// AddressSpace is the text between var< and >, e.g. "storage, read". Empty for handles.
	AddressSpace string
	Name         string
	Type         string

	// MinSize is the byte size of the bound type, or the element stride for a runtime-sized
	// array. Zero when the type could not be resolved.
	MinSize uint64
}
