package wallpaperconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// tomlDocument mirrors the on-disk config.toml shape. It is kept separate
// from Entry so the wire format (flat, string-tagged) can evolve without
// disturbing the in-memory model the rest of the core works against.
type tomlDocument struct {
	Entries []tomlEntry `toml:"entry"`
}

type tomlEntry struct {
	Output            string     `toml:"output"`
	ScalingMode       string     `toml:"scaling_mode"`
	FallbackColor     [3]float64 `toml:"fallback_color"`
	FitBackground     [3]float64 `toml:"fit_background"`
	RotationFrequency float64    `toml:"rotation_frequency"`
	FilterMethod      string     `toml:"filter_method"`
	SamplingMethod    string     `toml:"sampling_method"`
	Source            tomlSource `toml:"source"`
}

type tomlSource struct {
	Type string `toml:"type"` // "path" | "color" | "animated" | "video" | "shader"

	Path string `toml:"path"`

	ColorSingle   *[3]float64   `toml:"color"`
	ColorGradient *tomlGradient `toml:"gradient"`

	FPSLimit  *int `toml:"fps_limit"`
	LoopCount *int `toml:"loop_count"`

	LoopPlayback  bool    `toml:"loop_playback"`
	PlaybackSpeed float64 `toml:"playback_speed"`
	HWAccel       bool    `toml:"hw_accel"`

	Preset     string `toml:"preset"`
	CustomPath string `toml:"custom_path"`
}

type tomlGradient struct {
	Radius float64            `toml:"radius"`
	Stops  []tomlGradientStop `toml:"stops"`
}

type tomlGradientStop struct {
	Offset float64    `toml:"offset"`
	Color  [3]float64 `toml:"color"`
}

// ParseFile reads and decodes a config.toml, validating every entry. An
// entry that fails validation is dropped with its error recorded rather
// than aborting the whole parse, matching spec.md section 7: "the diff
// omits the offending entry; last good state for that output persists."
func ParseFile(path string, sizeOf shaderSourceSizer) ([]Entry, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read config file: %w", err)}
	}
	return Parse(data, sizeOf)
}

// Parse decodes raw TOML bytes into validated Entries.
func Parse(data []byte, sizeOf shaderSourceSizer) ([]Entry, []error) {
	var doc tomlDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, []error{fmt.Errorf("decode config toml: %w", err)}
	}

	var entries []Entry
	var errs []error
	for i, te := range doc.Entries {
		entry, err := fromTOML(te)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry[%d] (output=%q): %w", i, te.Output, err))
			continue
		}
		if err := Validate(&entry, sizeOf); err != nil {
			errs = append(errs, fmt.Errorf("entry[%d] (output=%q): %w", i, te.Output, err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errs
}

func fromTOML(te tomlEntry) (Entry, error) {
	entry := Entry{
		Output:            OutputSelector(te.Output),
		ScalingMode:       parseScalingMode(te.ScalingMode),
		FallbackColor:     rgbFromArray(te.FallbackColor),
		FitBackground:     rgbFromArray(te.FitBackground),
		RotationFrequency: time.Duration(te.RotationFrequency * float64(time.Second)),
		Filter:            parseFilterMethod(te.FilterMethod),
		Sampling:          parseSamplingMethod(te.SamplingMethod),
	}

	src, err := sourceFromTOML(te.Source)
	if err != nil {
		return Entry{}, err
	}
	entry.Source = src
	return entry, nil
}

func sourceFromTOML(ts tomlSource) (SourceDescriptor, error) {
	switch ts.Type {
	case "path", "":
		return SourceDescriptor{Kind: SourcePath, Path: ts.Path}, nil
	case "color":
		cs := ColorSource{}
		if ts.ColorSingle != nil {
			c := rgbFromArray(*ts.ColorSingle)
			cs.Single = &c
		}
		if ts.ColorGradient != nil {
			spec := &GradientSpec{Radius: ts.ColorGradient.Radius}
			for _, s := range ts.ColorGradient.Stops {
				spec.Stops = append(spec.Stops, GradientStop{Offset: s.Offset, Color: rgbFromArray(s.Color)})
			}
			cs.Gradient = spec
		}
		return SourceDescriptor{Kind: SourceColor, Color: cs}, nil
	case "animated":
		return SourceDescriptor{Kind: SourceAnimated, Animated: AnimatedSource{
			Path:      ts.Path,
			FPSLimit:  ts.FPSLimit,
			LoopCount: ts.LoopCount,
		}}, nil
	case "video":
		return SourceDescriptor{Kind: SourceVideo, Video: VideoSource{
			Path:          ts.Path,
			LoopPlayback:  ts.LoopPlayback,
			PlaybackSpeed: ts.PlaybackSpeed,
			HardwareAccel: ts.HWAccel,
		}}, nil
	case "shader":
		fps := 30
		if ts.FPSLimit != nil {
			fps = *ts.FPSLimit
		}
		return SourceDescriptor{Kind: SourceShader, Shader: ShaderSource{
			Preset:   ts.Preset,
			WGSLPath: ts.CustomPath,
			FPSLimit: fps,
		}}, nil
	default:
		return SourceDescriptor{}, ErrUnknownSourceKind
	}
}

func rgbFromArray(a [3]float64) RGB {
	return RGB{R: a[0], G: a[1], B: a[2]}
}

func parseScalingMode(s string) ScalingMode {
	switch s {
	case "fit":
		return ScalingFit
	case "stretch":
		return ScalingStretch
	default:
		return ScalingZoom
	}
}

func parseFilterMethod(s string) FilterMethod {
	if s == "bilinear" {
		return FilterBilinear
	}
	return FilterLanczos
}

func parseSamplingMethod(s string) SamplingMethod {
	if s == "random" {
		return SamplingRandom
	}
	return SamplingAlphanumeric
}
