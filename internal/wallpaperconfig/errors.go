package wallpaperconfig

import "errors"

// Error taxonomy for Config Ingest, per spec.md section 7: ConfigInvalid
// entries are rejected at ingest and omitted from the diff; the previously
// ingested state for that output is left untouched.
var (
	ErrShaderTooLarge       = errors.New("wallpaperconfig: shader source exceeds 64 KiB")
	ErrShaderBadExtension   = errors.New("wallpaperconfig: custom shader path must end in .wgsl")
	ErrShaderSourceConflict = errors.New("wallpaperconfig: shader preset and custom_path are mutually exclusive")
	ErrShaderNoSource       = errors.New("wallpaperconfig: shader entry needs a preset or a custom_path")
	ErrInvalidRotation      = errors.New("wallpaperconfig: rotation_frequency must be finite and non-negative")
	ErrEmptyOutput          = errors.New("wallpaperconfig: output selector must not be empty")
	ErrUnknownSourceKind    = errors.New("wallpaperconfig: unrecognized source kind")
)
