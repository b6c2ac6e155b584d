// Package keys names the well-known workflow context keys shared between
// step packages. Steps may still read and write ad hoc keys; these are the
// ones more than one package depends on.
package keys

const (
	// Device holds the gpu.Device interface value for the run.
	Device = "gpu.device"

	// GPUState is the JSON-ish record written by graphics.gpu.init.
	GPUState = "gpu.state"

	// Viewport is the config record written by graphics.viewport.init.
	Viewport = "viewport.config"

	// Renderer is the backend selector written by graphics.renderer.init.
	Renderer = "renderer.backend"

	// Per-frame lifecycle.
	FrameSkip     = "frame_skip"
	FrameNumber   = "frame_number"
	FrameElapsed  = "frame.elapsed"
	FrameWidth    = "frame_width"
	FrameHeight   = "frame_height"
	FrameDraws    = "frame_draw_calls"
	CommandBuffer = "gpu_command_buffer"
	RenderPass    = "gpu_render_pass"

	// Swapchain texture of the direct frame path.
	SwapchainDirect = "gpu_swapchain_texture"

	// Depth buffer for the direct and body paths, lazily resized.
	DepthTexture       = "gpu_depth_texture"
	DepthTextureWidth  = "gpu_depth_texture_width"
	DepthTextureHeight = "gpu_depth_texture_height"

	// Offscreen HDR path.
	SwapchainTexture = "postfx_swapchain_texture"
	HDRTexture       = "postfx_hdr_texture"
	HDRWidth         = "postfx_hdr_width"
	HDRHeight        = "postfx_hdr_height"

	// Post-processing resources.
	PostFXInitialized = "postfx_initialized"
	LinearSampler     = "postfx_linear_sampler"
	NearestSampler    = "postfx_nearest_sampler"
	SSAOKernel        = "ssao_kernel"
	SSAOTexture       = "postfx_ssao_texture"
	SSAOWidth         = "postfx_ssao_width"
	SSAOHeight        = "postfx_ssao_height"
	BloomPing         = "postfx_bloom_ping_texture"
	BloomPong         = "postfx_bloom_pong_texture"
	BloomWidth        = "postfx_bloom_ping_width"
	BloomHeight       = "postfx_bloom_ping_height"
	BloomResult       = "postfx_bloom_result_texture"

	// Camera, lighting and per-frame matrices.
	CameraState   = "camera.state"
	LightingState = "lighting.directional"
	ViewMatrix    = "render.view_matrix"
	ProjMatrix    = "render.proj_matrix"
	CameraPos     = "render.camera_pos"
	ShadowVP      = "render.shadow_vp"
	FragUniforms  = "render.frag_uniforms"

	// Shadow mapping.
	ShadowState   = "shadow.state"
	ShadowTexture = "shadow_depth_texture"
	ShadowSampler = "shadow_depth_sampler"

	// Scene content consumed by the body and shadow passes. Per-body
	// records live under prefix + body name.
	PhysicsBodies       = "physics_bodies"
	PlayerBody          = "physics_player_body"
	BodyTransformPrefix = "physics_transform_"
	BodyVisualPrefix    = "physics_visual_"

	// Geometry produced by the cube generator and consumed by draw.submit.
	VertexBuffer    = "gpu_vertex_buffer"
	IndexBuffer     = "gpu_index_buffer"
	CubeMesh        = "cube_mesh"
	GeometryCreated = "geometry_created"

	// Screenshot plumbing.
	ScreenshotPending = "screenshot.pending_path"

	// Loop bookkeeping.
	LoopIteration = "loop.iteration"
)
