// pre_processor.go implements the Oxy WGSL kernel pre-processor. It scans kernel source for
// @oxy: annotations, replaces them with injected struct sources or generated binding
// declarations, and checks that every injected struct with a registered host size has the same
// size under WGSL layout rules.
package shader

import (
	"fmt"
	"strings"
)

// registryEntry pairs a WGSL source with the type name it declares.
type registryEntry struct {
	// Source is the raw WGSL text injected by @oxy:include.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations. Empty for libraries.
	Type string

	// Size is the byte size the host marshals for Type. Zero skips the layout check.
	Size uint64
}

// PreProcessorOption registers a source with a PreProcessor.
type PreProcessorOption func(*preProcessor)

// WithStruct registers a struct source under key.
//
// Parameters:
//   - key: the annotation key, e.g. AnnotationArgCamera
//   - source: the WGSL struct definition
//   - typeName: the struct name declared by source
//   - size: the byte size the host writes for one value, zero to skip the layout check
//
// Returns:
//   - PreProcessorOption: the option
func WithStruct(key AnnotationArg, source, typeName string, size uint64) PreProcessorOption {
	return func(p *preProcessor) {
		p.structRegistry[key] = registryEntry{Source: source, Type: typeName, Size: size}
	}
}

// WithLibrary registers a source that can only be included, such as a set of functions.
func WithLibrary(key AnnotationArg, source string) PreProcessorOption {
	return func(p *preProcessor) {
		p.structRegistry[key] = registryEntry{Source: source}
	}
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// structRegistry maps annotation keys to their WGSL source and type name.
	structRegistry map[AnnotationArg]registryEntry

	// addressSpaceRegistry maps address space argument keys to WGSL var<> syntax strings.
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates group annotations during a Process call.
	declarations []Annotation
}

// PreProcessor processes WGSL kernel source containing @oxy: annotations.
type PreProcessor interface {
	// Process replaces @oxy:include annotations with registered sources and @oxy:group
	// annotations with @group/@binding declarations. The declarations list is reset at the
	// start of each call.
	//
	// Parameters:
	//   - source: the raw WGSL source containing annotations
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: a malformed annotation, an unknown key, or a struct whose WGSL size differs
	//     from its registered host size
	Process(source string) (string, error)

	// Declarations returns the group annotations collected by the most recent Process call,
	// in source order.
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the given sources registered.
//
// Parameters:
//   - options: WithStruct and WithLibrary registrations
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor(options ...PreProcessorOption) PreProcessor {
	p := &preProcessor{
		structRegistry: make(map[AnnotationArg]registryEntry),
		addressSpaceRegistry: map[AnnotationArg]string{
			AnnotationArgStorageTypeUniform:   "var<uniform>",
			AnnotationArgStorageTypeRead:      "var<storage, read>",
			AnnotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]
	included := make(map[AnnotationArg]bool)
	injected := make(map[string]bool)

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", a.Line, a.Args[0])
			}
			// keys sharing a source inject it once
			if !injected[entry.Source] {
				out = append(out, entry.Source)
				injected[entry.Source] = true
			}
			included[a.Args[0]] = true
		case AnnotationTypeBindingGroup:
			wgslType, err := p.resolveType(a.Args[2])
			if err != nil {
				return "", fmt.Errorf("line %d: %w", a.Line, err)
			}
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, a.Args[1], wgslType))
			p.declarations = append(p.declarations, *a)
		}
	}

	processed := strings.Join(out, "\n")
	if err := p.checkLayouts(processed, included); err != nil {
		return "", err
	}
	return processed, nil
}

// resolveType maps a group annotation type argument to the WGSL type it declares.
func (p *preProcessor) resolveType(arg AnnotationArg) (string, error) {
	inner, isArray := strings.CutPrefix(string(arg), "array<")
	if isArray {
		inner = strings.TrimSuffix(inner, ">")
	}

	var elem string
	if entry, ok := p.structRegistry[AnnotationArg(inner)]; ok {
		if entry.Type == "" {
			return "", fmt.Errorf("%q has no type and can only be included", inner)
		}
		elem = entry.Type
	} else if _, ok := primitiveLayout(inner); ok && isArray {
		elem = inner
	} else {
		return "", fmt.Errorf("unknown type %q in @oxy group annotation", arg)
	}

	if isArray {
		return fmt.Sprintf("array<%s>", elem), nil
	}
	return elem, nil
}

// checkLayouts computes the WGSL layout of every struct in source and compares the included
// structs against their registered sizes.
func (p *preProcessor) checkLayouts(source string, included map[AnnotationArg]bool) error {
	sizes := computeStructSizes(parseStructBlocks(stripComments(source)))
	for key := range included {
		entry := p.structRegistry[key]
		if entry.Type == "" || entry.Size == 0 {
			continue
		}
		layout, ok := sizes[entry.Type]
		if !ok {
			return fmt.Errorf("%s: struct %s is not declared by its source or has unresolved fields", key, entry.Type)
		}
		if layout.size != entry.Size {
			return fmt.Errorf("%s: struct %s is %d bytes under WGSL layout rules; the host writes %d", key, entry.Type, layout.size, entry.Size)
		}
	}
	return nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
