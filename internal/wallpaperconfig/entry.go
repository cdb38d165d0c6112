// Package wallpaperconfig implements Config Ingest (C9): it parses the
// persisted per-entry wallpaper configuration, validates and normalizes
// it, and diffs it against the previously-ingested state.
package wallpaperconfig

import "time"

// OutputSelector names either a specific output or the literal "all".
type OutputSelector string

// AllOutputs is the selector that applies an Entry to every advertised output.
const AllOutputs OutputSelector = "all"

// ScalingMode selects how a source frame is fit to an output's geometry.
type ScalingMode int

const (
	ScalingZoom ScalingMode = iota
	ScalingFit
	ScalingStretch
)

func (m ScalingMode) String() string {
	switch m {
	case ScalingZoom:
		return "zoom"
	case ScalingFit:
		return "fit"
	case ScalingStretch:
		return "stretch"
	default:
		return "unknown"
	}
}

// FilterMethod selects the resampling kernel used by the Scaler.
type FilterMethod int

const (
	FilterLanczos FilterMethod = iota
	FilterBilinear
)

// SamplingMethod orders a slideshow's directory listing.
type SamplingMethod int

const (
	SamplingAlphanumeric SamplingMethod = iota
	SamplingRandom
)

// SourceKind tags which variant of SourceDescriptor is populated.
type SourceKind int

const (
	SourcePath SourceKind = iota
	SourceColor
	SourceAnimated
	SourceVideo
	SourceShader
)

// RGB is a color component triple in [0,1].
type RGB struct {
	R, G, B float64
}

// GradientStop is one color stop of a gradient.
type GradientStop struct {
	Offset float64 // position along the gradient, [0,1]
	Color  RGB
}

// ColorSource is the Color source descriptor variant: either a single flat
// color or a multi-stop gradient.
type ColorSource struct {
	Single   *RGB
	Gradient *GradientSpec
}

// GradientSpec describes a multi-stop gradient: radial when Radius > 0,
// otherwise linear from left to right.
type GradientSpec struct {
	Stops  []GradientStop
	Radius float64
}

// AnimatedSource is the Animated source descriptor variant.
type AnimatedSource struct {
	Path      string
	FPSLimit  *int // nil means uncapped
	LoopCount *int // nil means infinite
}

// VideoSource is the Video source descriptor variant.
type VideoSource struct {
	Path          string
	LoopPlayback  bool
	PlaybackSpeed float64 // clamped to [0.1, 10.0] during validation
	HardwareAccel bool
}

// ShaderSource is the Shader source descriptor variant. Exactly one of
// Preset or WGSLPath must be set; enforced during validation.
type ShaderSource struct {
	Preset   string // e.g. "plasma"; empty if WGSLPath is set
	WGSLPath string // empty if Preset is set
	FPSLimit int    // clamped to [1, 240] during validation
}

// SourceDescriptor is the tagged union over the five pixel-producer
// variants a Wallpaper can bind to.
type SourceDescriptor struct {
	Kind     SourceKind
	Path     string // SourcePath: file or directory
	Color    ColorSource
	Animated AnimatedSource
	Video    VideoSource
	Shader   ShaderSource
}

// Entry is one configuration record: one output selector bound to one
// source, with rendering parameters.
type Entry struct {
	Output            OutputSelector
	Source            SourceDescriptor
	ScalingMode       ScalingMode
	FallbackColor     RGB           // used when the Frame Source fails to prepare
	FitBackground     RGB           // used as Fit(bg) letterbox color
	RotationFrequency time.Duration // 0 disables slideshow
	Filter            FilterMethod
	Sampling          SamplingMethod
}

// IsSlideshow reports whether this Entry's source implies slideshow
// semantics (a directory path), per the data-model invariant in spec.md
// section 3: "An Entry whose source is a directory implies slideshow
// semantics; a file implies single image."
func (e Entry) IsSlideshow(isDir func(path string) bool) bool {
	return e.Source.Kind == SourcePath && isDir(e.Source.Path)
}
