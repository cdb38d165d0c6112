package frame

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/rajveermalviya/go-webgpu/wgpu"

	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

// shaderWorkgroupSize must match the @workgroup_size declaration the preset
// and custom WGSL sources are required to use (spec.md 4.1).
const shaderWorkgroupSize = 8

// presetShaders maps a built-in preset name to its WGSL compute source. Each
// preset writes a packed RGBA8 pixel per invocation into the output storage
// buffer at index (y * width + x).
var presetShaders = map[string]string{
	"plasma":    plasmaShaderWGSL,
	"starfield": starfieldShaderWGSL,
}

// shaderUniforms mirrors the uniform buffer layout every preset/custom
// shader reads time and geometry from. Field order and size (16 bytes) must
// match the WGSL struct binding(0).
type shaderUniforms struct {
	width  uint32
	height uint32
	time   float32
	_pad   float32
}

// Shader is the Shader Frame Source variant: a WebGPU compute pipeline that
// rasterizes a WGSL preset or custom shader into an RGBA buffer once per
// tick, grounded on the rajveermalviya/go-webgpu/wgpu bindings referenced
// across the example pack's GPU-adjacent repos.
type Shader struct {
	spec wallpaperconfig.ShaderSource

	mu        sync.Mutex
	ready     bool
	width     int
	height    int
	startedAt time.Time

	instance       *wgpu.Instance
	adapter        *wgpu.Adapter
	device         *wgpu.Device
	queue          *wgpu.Queue
	pipeline       *wgpu.ComputePipeline
	bindGroup      *wgpu.BindGroup
	uniformBuffer  *wgpu.Buffer
	outputBuffer   *wgpu.Buffer
	readbackBuffer *wgpu.Buffer
}

// NewShader constructs a Shader source from a validated descriptor, matching
// spec.md 4.1's "Shader" contract.
func NewShader(spec wallpaperconfig.ShaderSource) *Shader {
	return &Shader{spec: spec}
}

func (s *Shader) Prepare(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: non-positive geometry %dx%d", ErrSourceNotReady, width, height)
	}
	if s.ready && s.width == width && s.height == height {
		return nil
	}
	if s.ready {
		s.releaseGPULocked()
	}

	source, err := s.resolveSourceLocked()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceNotReady, err)
	}

	if err := s.buildPipelineLocked(source, width, height); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceNotReady, err)
	}

	s.width = width
	s.height = height
	s.startedAt = time.Now()
	s.ready = true
	return nil
}

func (s *Shader) resolveSourceLocked() (string, error) {
	if s.spec.Preset != "" {
		wgsl, ok := presetShaders[s.spec.Preset]
		if !ok {
			return "", fmt.Errorf("unknown shader preset %q", s.spec.Preset)
		}
		return wgsl, nil
	}
	data, err := os.ReadFile(s.spec.WGSLPath)
	if err != nil {
		return "", fmt.Errorf("read custom shader %s: %w", s.spec.WGSLPath, err)
	}
	return string(data), nil
}

func (s *Shader) buildPipelineLocked(wgsl string, width, height int) error {
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceLowPower,
	})
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}

	shaderModule, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "wallpaperd-shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: wgsl},
	})
	if err != nil {
		return fmt.Errorf("compile WGSL: %w", err)
	}
	defer shaderModule.Release()

	pixelCount := uint64(width) * uint64(height)
	outputSize := pixelCount * 4 // packed RGBA8 per pixel
	if outputSize/4 != pixelCount {
		return ErrBufferTooLarge
	}

	uniformBuffer, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "wallpaperd-shader-uniforms",
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:  uint64(unsafe.Sizeof(shaderUniforms{})),
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}

	outputBuffer, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "wallpaperd-shader-output",
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:  outputSize,
	})
	if err != nil {
		return fmt.Errorf("create output buffer: %w", err)
	}

	readbackBuffer, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "wallpaperd-shader-readback",
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
		Size:  outputSize,
	})
	if err != nil {
		return fmt.Errorf("create readback buffer: %w", err)
	}

	pipeline, err := device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "wallpaperd-shader-pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "wallpaperd-shader-bindgroup",
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: uniformBuffer, Size: uint64(unsafe.Sizeof(shaderUniforms{}))},
			{Binding: 1, Buffer: outputBuffer, Size: outputSize},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}

	s.instance = instance
	s.adapter = adapter
	s.device = device
	s.queue = device.GetQueue()
	s.pipeline = pipeline
	s.bindGroup = bindGroup
	s.uniformBuffer = uniformBuffer
	s.outputBuffer = outputBuffer
	s.readbackBuffer = readbackBuffer
	return nil
}

func (s *Shader) NextFrame() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return Frame{}, ErrSourceNotReady
	}

	elapsed := float32(time.Since(s.startedAt).Seconds())
	uniforms := shaderUniforms{width: uint32(s.width), height: uint32(s.height), time: elapsed}
	s.queue.WriteBuffer(s.uniformBuffer, 0, uniformBytes(uniforms))

	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: create encoder: %v", ErrSourceNotReady, err)
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(s.pipeline)
	pass.SetBindGroup(0, s.bindGroup, nil)
	pass.DispatchWorkgroups(
		uint32((s.width+shaderWorkgroupSize-1)/shaderWorkgroupSize),
		uint32((s.height+shaderWorkgroupSize-1)/shaderWorkgroupSize),
		1,
	)
	pass.End()

	size := uint64(s.width) * uint64(s.height) * 4
	encoder.CopyBufferToBuffer(s.outputBuffer, 0, s.readbackBuffer, 0, size)

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: finish command buffer: %v", ErrSourceNotReady, err)
	}
	s.queue.Submit(cmd)

	done := make(chan error, 1)
	s.readbackBuffer.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			done <- fmt.Errorf("map readback buffer: status %v", status)
			return
		}
		done <- nil
	})
	s.device.Poll(true, nil)
	if err := <-done; err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrSourceNotReady, err)
	}

	mapped := s.readbackBuffer.GetMappedRange(0, uint32(size))
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	// The output buffer is a tightly packed RGBA8 array with no per-row
	// padding (unlike a texture-to-buffer copy, which would need
	// COPY_BYTES_PER_ROW_ALIGNMENT stripping), so this is a straight copy.
	copy(img.Pix, mapped)
	s.readbackBuffer.Unmap()

	return Frame{Image: img, Timestamp: time.Now()}, nil
}

func uniformBytes(u shaderUniforms) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&u)), unsafe.Sizeof(u))
}

// FrameDuration enforces the shader's validated FPS cap (clampDelay's 10ms
// floor still applies for very high fps limits).
func (s *Shader) FrameDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	fps := s.spec.FPSLimit
	return clampDelay(time.Second/time.Duration(fps), &fps)
}

func (s *Shader) IsAnimated() bool { return true }

func (s *Shader) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseGPULocked()
	s.ready = false
}

func (s *Shader) releaseGPULocked() {
	if s.bindGroup != nil {
		s.bindGroup.Release()
	}
	if s.pipeline != nil {
		s.pipeline.Release()
	}
	if s.readbackBuffer != nil {
		s.readbackBuffer.Release()
	}
	if s.outputBuffer != nil {
		s.outputBuffer.Release()
	}
	if s.uniformBuffer != nil {
		s.uniformBuffer.Release()
	}
	if s.device != nil {
		s.device.Release()
	}
	if s.adapter != nil {
		s.adapter.Release()
	}
	if s.instance != nil {
		s.instance.Release()
	}
	s.bindGroup, s.pipeline = nil, nil
	s.readbackBuffer, s.outputBuffer, s.uniformBuffer = nil, nil, nil
	s.device, s.adapter, s.instance = nil, nil, nil
}

func (s *Shader) Description() string {
	if s.spec.Preset != "" {
		return fmt.Sprintf("shader(preset=%s)", s.spec.Preset)
	}
	return fmt.Sprintf("shader(custom=%s)", s.spec.WGSLPath)
}

const plasmaShaderWGSL = `
struct Uniforms {
  width: u32,
  height: u32,
  time: f32,
}

@group(0) @binding(0) var<uniform> u: Uniforms;
@group(0) @binding(1) var<storage, read_write> out_pixels: array<u32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
  if (gid.x >= u.width || gid.y >= u.height) {
    return;
  }
  let x = f32(gid.x) / f32(u.width);
  let y = f32(gid.y) / f32(u.height);
  let v = sin(x * 10.0 + u.time) + sin(y * 10.0 + u.time * 0.7);
  let r = u32((sin(v) * 0.5 + 0.5) * 255.0);
  let g = u32((sin(v + 2.0) * 0.5 + 0.5) * 255.0);
  let b = u32((sin(v + 4.0) * 0.5 + 0.5) * 255.0);
  let packed = (255u << 24u) | (b << 16u) | (g << 8u) | r;
  out_pixels[gid.y * u.width + gid.x] = packed;
}
`

const starfieldShaderWGSL = `
struct Uniforms {
  width: u32,
  height: u32,
  time: f32,
}

@group(0) @binding(0) var<uniform> u: Uniforms;
@group(0) @binding(1) var<storage, read_write> out_pixels: array<u32>;

fn hash(p: vec2<f32>) -> f32 {
  return fract(sin(dot(p, vec2<f32>(12.9898, 78.233))) * 43758.5453);
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
  if (gid.x >= u.width || gid.y >= u.height) {
    return;
  }
  let p = vec2<f32>(f32(gid.x), f32(gid.y));
  let cell = floor(p / 24.0);
  let n = hash(cell);
  var brightness = 0u;
  if (n > 0.98) {
    let twinkle = sin(u.time * 3.0 + n * 100.0) * 0.5 + 0.5;
    brightness = u32(twinkle * 255.0);
  }
  let packed = (255u << 24u) | (brightness << 16u) | (brightness << 8u) | brightness;
  out_pixels[gid.y * u.width + gid.x] = packed;
}
`
