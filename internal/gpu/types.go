package gpu

// ID is an opaque handle to a device-owned object. IDs are never reused
// within a device's lifetime.
type ID uint64

// InvalidID is the zero handle. AcquireSwapchainTexture returns it (without
// an error) when no swapchain image is available this frame.
const InvalidID ID = 0

// Backend identifies the rendering API behind a Device.
type Backend string

const (
	BackendVulkan Backend = "vulkan"
	BackendMetal  Backend = "metal"
	BackendDX12   Backend = "dx12"
	BackendAuto   Backend = "auto"
)

// KnownBackend reports whether name is a recognized backend selector.
func KnownBackend(name string) bool {
	switch Backend(name) {
	case BackendVulkan, BackendMetal, BackendDX12, BackendAuto:
		return true
	default:
		return false
	}
}

// BufferKind selects the bind point of a GPU buffer.
type BufferKind int

const (
	BufferVertex BufferKind = iota
	BufferIndex
	BufferUniform
)

// BufferDescriptor describes a device-local buffer.
type BufferDescriptor struct {
	Label string
	Kind  BufferKind
	Size  int
}

// TextureFormat enumerates the formats the engine allocates.
type TextureFormat int

const (
	TextureRGBA8Unorm TextureFormat = iota
	TextureBGRA8Unorm
	TextureRGBA16Float
	TextureR8Unorm
	TextureD32Float
	TextureD24UnormS8
)

// IsDepth reports whether the format is a depth(-stencil) format.
func (f TextureFormat) IsDepth() bool {
	return f == TextureD32Float || f == TextureD24UnormS8
}

// TextureUsage is a bitmask of texture capabilities.
type TextureUsage uint32

const (
	TextureUsageColorTarget TextureUsage = 1 << iota
	TextureUsageDepthTarget
	TextureUsageSampled
	TextureUsageCopySrc
	TextureUsageCopyDst
)

// TextureDescriptor describes a 2D texture.
type TextureDescriptor struct {
	Label  string
	Width  int
	Height int
	Format TextureFormat
	Usage  TextureUsage
}

// FilterMode selects sampler filtering.
type FilterMode int

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

// SamplerDescriptor describes a clamp-to-edge sampler.
type SamplerDescriptor struct {
	Label  string
	Filter FilterMode
}

// ShaderStage marks a shader as vertex or fragment stage.
type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StageFragment
)

// ShaderFormat is the binary format of shader code.
type ShaderFormat int

const (
	FormatSPIRV ShaderFormat = iota
	FormatWGSL
	FormatMSL
	FormatDXIL
)

// ShaderDescriptor describes a compiled shader module plus its resource
// footprint (uniform buffer and sampler slot counts).
type ShaderDescriptor struct {
	Label          string
	Stage          ShaderStage
	Format         ShaderFormat
	Code           []byte
	Entrypoint     string
	UniformBuffers int
	Samplers       int
}

// VertexAttrFormat enumerates the per-attribute formats in a vertex layout.
type VertexAttrFormat int

const (
	AttrFloat32x2 VertexAttrFormat = iota
	AttrFloat32x3
	AttrFloat32x4
	AttrUnorm8x4
)

// VertexAttribute is one attribute within an interleaved vertex layout.
type VertexAttribute struct {
	Location int
	Format   VertexAttrFormat
	Offset   int
}

// VertexLayout is the interleaved layout of a pipeline's single vertex stream.
// A zero Stride means the pipeline takes no vertex input (full-screen passes).
type VertexLayout struct {
	Stride     int
	Attributes []VertexAttribute
}

// CullMode selects back-face culling behavior.
type CullMode int

const (
	CullBack CullMode = iota
	CullFront
	CullNone
)

// ColorTarget describes one color attachment slot of a pipeline.
type ColorTarget struct {
	Format TextureFormat
	Blend  bool
}

// PipelineDescriptor describes a render pipeline.
type PipelineDescriptor struct {
	Label          string
	VertexShader   ID
	FragmentShader ID
	Layout         VertexLayout
	Cull           CullMode
	DepthFormat    TextureFormat
	DepthTest      bool
	DepthWrite     bool
	DepthBias      float32
	ColorTargets   []ColorTarget
}

// LoadOp selects how an attachment is initialized at pass begin.
type LoadOp int

const (
	LoadClear LoadOp = iota
	LoadKeep
	LoadDontCare
)

// StoreOp selects whether an attachment survives pass end.
type StoreOp int

const (
	StoreKeep StoreOp = iota
	StoreDontCare
)

// ColorAttachment is one color target of a render pass.
type ColorAttachment struct {
	Texture    ID
	Load       LoadOp
	Store      StoreOp
	ClearColor [4]float32
}

// DepthAttachment is the optional depth target of a render pass.
type DepthAttachment struct {
	Texture    ID
	Load       LoadOp
	Store      StoreOp
	ClearDepth float32
}

// RenderPassDescriptor describes a render pass's attachments.
type RenderPassDescriptor struct {
	Label  string
	Colors []ColorAttachment
	Depth  *DepthAttachment
}

// SwapchainTexture is the per-frame presentation target. Texture is InvalidID
// when the swapchain has no image available this frame.
type SwapchainTexture struct {
	Texture ID
	Width   int
	Height  int
}

// TextureSamplerBinding pairs a sampled texture with its sampler for fragment
// stage binding, in slot order.
type TextureSamplerBinding struct {
	Texture ID
	Sampler ID
}

// TransferRegion addresses a byte range inside a transfer buffer.
type TransferRegion struct {
	Buffer ID
	Offset int
}

// BufferRegion addresses a byte range inside a device buffer.
type BufferRegion struct {
	Buffer ID
	Offset int
	Size   int
}
