// annotations.go defines the annotation types, argument constants and parser for the Oxy WGSL
// kernel pre-processor. Annotations are single-line WGSL comments prefixed with @oxy: that
// inject registered struct sources and declare storage bindings, so kernels never restate the
// layouts the host marshals.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the WGSL source registered under its argument. A source is
	// injected once per Process call; later includes of it expand to nothing.
	//
	// Syntax: //@oxy:include <key>
	//
	// Example: //@oxy:include camera
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration and
	// appends the Annotation to the declarations list.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// The type is a registered struct key, array<key>, or an array of a WGSL scalar or vector
	// such as array<u32>.
	//
	// Example: //@oxy:group 0 0 storage_read params launch_params
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// Annotation represents a single parsed @oxy: annotation.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include: [0] = registry key
	//   - group:   [0] = address space, [1] = var name, [2] = type
	Args []AnnotationArg

	// Line is the 1-based line number in the source where the annotation was found.
	Line int

	// Group is the @group index for group annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group annotations. Nil for include annotations.
	Binding *int
}

// AnnotationArg is a typed string used as an argument in annotations.
type AnnotationArg string

// Registry keys used by the trace kernels.
const (
	// AnnotationArgCamera identifies the PerspectiveCamera struct.
	AnnotationArgCamera AnnotationArg = "camera"

	// AnnotationArgLaunchParams identifies the LaunchParams struct.
	AnnotationArgLaunchParams AnnotationArg = "launch_params"

	// AnnotationArgVertex identifies the Vertex struct of vertex buffers.
	AnnotationArgVertex AnnotationArg = "vertex"

	// AnnotationArgMaterial identifies the Material struct of the material table.
	AnnotationArgMaterial AnnotationArg = "material"

	// AnnotationArgInstanceData identifies the InstanceData struct of the instance tables.
	AnnotationArgInstanceData AnnotationArg = "instance_data"

	// AnnotationArgGeometryInstance identifies the GeometryInstanceData struct of the
	// geometry-instance table.
	AnnotationArgGeometryInstance AnnotationArg = "geometry_instance"

	// AnnotationArgTraversal identifies the traversal library. It declares its own binding and
	// has no type, so it can only be included.
	AnnotationArgTraversal AnnotationArg = "traversal"
)

// Address spaces accepted by group annotations.
const (
	AnnotationArgStorageTypeUniform   AnnotationArg = "storage_uniform"
	AnnotationArgStorageTypeRead      AnnotationArg = "storage_read"
	AnnotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

var validAddressSpaces = []AnnotationArg{
	AnnotationArgStorageTypeUniform,
	AnnotationArgStorageTypeRead,
	AnnotationArgStorageTypeReadWrite,
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix. Registry keys
// are checked later by the PreProcessor that owns the registry.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{
			Type: AnnotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires exactly five arguments (group, binding, address space, var name, type)", lineNum)
		}
		groupInt, err := strconv.Atoi(args[1])
		if err != nil || groupInt < 0 {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy group annotation", lineNum, args[1])
		}
		bindingInt, err := strconv.Atoi(args[2])
		if err != nil || bindingInt < 0 {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @oxy group annotation", lineNum, args[2])
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
