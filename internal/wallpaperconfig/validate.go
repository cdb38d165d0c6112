package wallpaperconfig

import (
	"math"
	"strings"
)

const (
	maxShaderSourceBytes = 64 * 1024
	minShaderFPS         = 1
	maxShaderFPS         = 240
	minVideoSpeed        = 0.1
	maxVideoSpeed        = 10.0
)

// shaderSourceSizer is supplied by the caller so validation can check the
// byte size of a custom WGSL file without Config Ingest importing an I/O
// layer directly; NewIngest wires this to an os.Stat-based sizer.
type shaderSourceSizer func(path string) (int64, error)

// Validate normalizes an Entry in place and rejects it with a typed error
// from the taxonomy in errors.go when it violates an invariant from spec.md
// section 4.1 / 4.9. Entries are otherwise left as constructed by the TOML
// decoder.
func Validate(e *Entry, sizeOf shaderSourceSizer) error {
	if strings.TrimSpace(string(e.Output)) == "" {
		return ErrEmptyOutput
	}

	if e.RotationFrequency < 0 || math.IsNaN(float64(e.RotationFrequency)) || math.IsInf(float64(e.RotationFrequency), 0) {
		return ErrInvalidRotation
	}

	switch e.Source.Kind {
	case SourcePath, SourceColor:
		// no extra invariants beyond the common ones above
	case SourceAnimated:
		if e.Source.Animated.FPSLimit != nil && *e.Source.Animated.FPSLimit < 1 {
			n := 1
			e.Source.Animated.FPSLimit = &n
		}
	case SourceVideo:
		v := &e.Source.Video
		if v.PlaybackSpeed == 0 {
			v.PlaybackSpeed = 1.0
		}
		v.PlaybackSpeed = clamp(v.PlaybackSpeed, minVideoSpeed, maxVideoSpeed)
	case SourceShader:
		if err := validateShader(&e.Source.Shader, sizeOf); err != nil {
			return err
		}
	default:
		return ErrUnknownSourceKind
	}

	return nil
}

func validateShader(s *ShaderSource, sizeOf shaderSourceSizer) error {
	hasPreset := s.Preset != ""
	hasPath := s.WGSLPath != ""

	if hasPreset && hasPath {
		return ErrShaderSourceConflict
	}
	if !hasPreset && !hasPath {
		return ErrShaderNoSource
	}
	if hasPath && !strings.HasSuffix(s.WGSLPath, ".wgsl") {
		return ErrShaderBadExtension
	}
	if hasPath && sizeOf != nil {
		size, err := sizeOf(s.WGSLPath)
		if err != nil {
			return err
		}
		if size > maxShaderSourceBytes {
			return ErrShaderTooLarge
		}
	}

	if s.FPSLimit == 0 {
		s.FPSLimit = 30
	}
	s.FPSLimit = int(clamp(float64(s.FPSLimit), minShaderFPS, maxShaderFPS))

	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
