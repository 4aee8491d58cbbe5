package linkage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/gogpu/naga/spirv"
)

const headerWords = 5

var ErrNotSPIRV = errors.New("not a SPIR-V module")

// EntryPoint is one OpEntryPoint of a module.
type EntryPoint struct {
	Model string
	Name  string
}

// Module is the part of a SPIR-V binary needed to describe its linkage.
type Module struct {
	Major, Minor uint8
	EntryPoints  []EntryPoint
	Capabilities []spirv.Capability
}

// EntryNames lists the entry point names in declaration order.
func (m Module) EntryNames() []string {
	names := make([]string, 0, len(m.EntryPoints))
	for _, ep := range m.EntryPoints {
		names = append(names, ep.Name)
	}
	return names
}

// ReadModuleFile reads and parses the module at path.
func ReadModuleFile(path string) (Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Module{}, fmt.Errorf("read SPIR-V module: %w", err)
	}
	m, err := ReadModule(data)
	if err != nil {
		return Module{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ReadModule walks the instructions of a SPIR-V binary in either byte order.
func ReadModule(data []byte) (Module, error) {
	if len(data)%4 != 0 || len(data) < headerWords*4 {
		return Module{}, fmt.Errorf("%w: %d bytes", ErrNotSPIRV, len(data))
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(data) == spirv.MagicNumber:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(data) == spirv.MagicNumber:
		order = binary.BigEndian
	default:
		return Module{}, fmt.Errorf("%w: bad magic 0x%08X", ErrNotSPIRV, binary.LittleEndian.Uint32(data))
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = order.Uint32(data[i*4:])
	}

	version := words[1]
	m := Module{Major: uint8(version >> 16), Minor: uint8(version >> 8)}

	for offset := headerWords; offset < len(words); {
		count := int(words[offset] >> 16)
		op := spirv.OpCode(words[offset] & 0xFFFF)
		if count == 0 || offset+count > len(words) {
			return Module{}, fmt.Errorf("%w: invalid word count %d at word %d", ErrNotSPIRV, count, offset)
		}
		operands := words[offset+1 : offset+count]

		switch op {
		case spirv.OpCapability:
			if len(operands) < 1 {
				return Module{}, fmt.Errorf("%w: truncated OpCapability at word %d", ErrNotSPIRV, offset)
			}
			m.Capabilities = append(m.Capabilities, spirv.Capability(operands[0]))
		case spirv.OpEntryPoint:
			if len(operands) < 3 {
				return Module{}, fmt.Errorf("%w: truncated OpEntryPoint at word %d", ErrNotSPIRV, offset)
			}
			m.EntryPoints = append(m.EntryPoints, EntryPoint{
				Model: lookup(executionModels, operands[0]),
				Name:  literalString(operands[2:]),
			})
		}
		offset += count
	}
	return m, nil
}

// literalString decodes a nul-terminated string packed low byte first.
func literalString(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			b := byte(w >> shift)
			if b == 0 {
				return string(buf)
			}
			buf = append(buf, b)
		}
	}
	return string(buf)
}

// CapabilityName returns the SPIR-V name of c, or its number if unknown.
func CapabilityName(c spirv.Capability) string {
	return lookup(capabilityNames, uint32(c))
}

// CapabilityNames lists every known capability name in numeric order.
func CapabilityNames() []string {
	values := make([]uint32, 0, len(capabilityNames))
	for v := range capabilityNames {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, capabilityNames[v])
	}
	return names
}

func lookup(m map[uint32]string, v uint32) string {
	if s, ok := m[v]; ok {
		return s
	}
	return fmt.Sprintf("%d", v)
}

var executionModels = map[uint32]string{
	0: "Vertex", 1: "TessellationControl", 2: "TessellationEvaluation",
	3: "Geometry", 4: "Fragment", 5: "GLCompute", 6: "Kernel",
	5267: "TaskNV", 5268: "MeshNV", 5313: "RayGenerationKHR",
	5314: "IntersectionKHR", 5315: "AnyHitKHR", 5316: "ClosestHitKHR",
	5317: "MissKHR", 5318: "CallableKHR", 5364: "TaskEXT", 5365: "MeshEXT",
}

var capabilityNames = map[uint32]string{
	0: "Matrix", 1: "Shader", 2: "Geometry", 3: "Tessellation",
	4: "Addresses", 5: "Linkage", 6: "Kernel", 7: "Vector16",
	8: "Float16Buffer", 9: "Float16", 10: "Float64", 11: "Int64",
	12: "Int64Atomics", 13: "ImageBasic", 14: "ImageReadWrite", 15: "ImageMipmap",
	17: "Pipes", 18: "Groups", 19: "DeviceEnqueue", 20: "LiteralSampler",
	21: "AtomicStorage", 22: "Int16", 23: "TessellationPointSize",
	24: "GeometryPointSize", 25: "ImageGatherExtended", 26: "StorageImageMultisample",
	27: "UniformBufferArrayDynamicIndexing", 28: "SampledImageArrayDynamicIndexing",
	29: "StorageBufferArrayDynamicIndexing", 30: "StorageImageArrayDynamicIndexing",
	31: "ClipDistance", 32: "CullDistance", 33: "ImageCubeArray",
	34: "SampleRateShading", 35: "ImageRect", 36: "SampledRect",
	37: "GenericPointer", 38: "Int8", 39: "InputAttachment",
	40: "SparseResidency", 41: "MinLod", 42: "Sampled1D", 43: "Image1D",
	44: "SampledCubeArray", 45: "SampledBuffer", 46: "ImageBuffer",
	47: "ImageMSArray", 48: "StorageImageExtendedFormats",
	49: "ImageQuery", 50: "DerivativeControl", 51: "InterpolationFunction",
	52: "TransformFeedback", 53: "GeometryStreams", 54: "StorageImageReadWithoutFormat",
	55: "StorageImageWriteWithoutFormat", 56: "MultiViewport",
	57: "SubgroupDispatch", 58: "NamedBarrier", 59: "PipeStorage",
	60: "GroupNonUniform", 61: "GroupNonUniformVote", 62: "GroupNonUniformArithmetic",
	63: "GroupNonUniformBallot", 64: "GroupNonUniformShuffle",
	65: "GroupNonUniformShuffleRelative", 66: "GroupNonUniformClustered",
	67: "GroupNonUniformQuad", 4423: "SubgroupBallotKHR", 4427: "DrawParameters",
	4437: "StorageBuffer16BitAccess", 4438: "UniformAndStorageBuffer16BitAccess",
	4439: "StoragePushConstant16", 4440: "StorageInputOutput16",
	4441: "DeviceGroup", 4442: "MultiView", 4445: "VariablePointersStorageBuffer",
	4446: "VariablePointers", 5009: "StencilExportEXT", 5010: "SampleMaskPostDepthCoverage",
	5013: "ShaderNonUniform", 5015: "RuntimeDescriptorArray",
	5016: "InputAttachmentArrayDynamicIndexing", 5017: "UniformTexelBufferArrayDynamicIndexing",
	5018: "StorageTexelBufferArrayDynamicIndexing", 5019: "UniformBufferArrayNonUniformIndexing",
	5345: "VulkanMemoryModel", 5346: "VulkanMemoryModelDeviceScope",
	5347: "PhysicalStorageBufferAddresses",
}
