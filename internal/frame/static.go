package frame

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/jpegxl"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/cosmic-wall/wallpaperd/internal/cache"
)

// Static is the Static Frame Source variant: decodes one image from a path
// into the shared Image Cache on first Prepare; subsequent calls are
// zero-cost. FrameDuration is InfiniteDuration.
type Static struct {
	path  string
	cache *cache.Cache

	mu    sync.Mutex
	ready bool
	image *image.RGBA
}

// NewStatic constructs a Static source for path, sharing decoded images
// through cache (C2), matching spec.md 4.1's "Static" contract.
func NewStatic(path string, c *cache.Cache) *Static {
	return &Static{path: path, cache: c}
}

// Prepare decodes path (via the cache's coalescing GetOrInsert) on first
// call; width/height are accepted for interface symmetry with the other
// variants but Static doesn't resize at prepare time — the Scaler resizes
// at composition time from the full-resolution decode.
func (s *Static) Prepare(_, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	key, err := staticCacheKey(s.path)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrSourceNotReady, s.path, err)
	}

	entry, err := s.cache.GetOrInsert(key, func() (*cache.Entry, error) {
		return decodeStaticImage(s.path)
	})
	if err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrSourceNotReady, s.path, err)
	}

	s.image = entry.Image
	s.ready = true
	return nil
}

func (s *Static) NextFrame() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return Frame{}, ErrSourceNotReady
	}
	return Frame{Image: s.image, Timestamp: time.Now()}, nil
}

func (s *Static) FrameDuration() time.Duration { return InfiniteDuration }
func (s *Static) IsAnimated() bool             { return false }

func (s *Static) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.image = nil
}

func (s *Static) Description() string {
	return fmt.Sprintf("static(%s)", s.path)
}

func staticCacheKey(path string) (cache.Key, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return cache.Key{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return cache.Key{}, err
	}
	return cache.Key{Path: abs, ModTime: info.ModTime()}, nil
}

// decodeStaticImage sniffs the file's content type, falling back to its
// extension, and dispatches to the matching decoder. Supported formats per
// spec.md 4.1: JPEG, PNG, WebP, BMP, TIFF, and JPEG XL via a distinct
// decoder.
func decodeStaticImage(path string) (*cache.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	sniffed, _ := br.Peek(512)
	kind := sniffStaticKind(sniffed, path)

	var img image.Image
	switch kind {
	case kindJPEGXL:
		img, err = jpegxl.Decode(br)
	case kindWebP:
		img, err = webp.Decode(br)
	case kindBMP:
		img, err = bmp.Decode(br)
	default:
		// image/jpeg, image/png, image/gif (single frame), and
		// golang.org/x/image/tiff are all registered with image.Decode via
		// their blank imports above.
		img, _, err = image.Decode(br)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s as %s: %w", path, kind, err)
	}

	rgba := toRGBA(img)
	cost := int64(rgba.Bounds().Dy()) * int64(rgba.Stride)
	return &cache.Entry{Image: rgba, Cost: cost}, nil
}

type staticKind string

const (
	kindJPEG    staticKind = "jpeg"
	kindPNG     staticKind = "png"
	kindWebP    staticKind = "webp"
	kindBMP     staticKind = "bmp"
	kindTIFF    staticKind = "tiff"
	kindJPEGXL  staticKind = "jxl"
	kindUnknown staticKind = "unknown"
)

// sniffStaticKind mirrors spec.md 4.1's "decoder selection by content
// sniffing falling back to extension."
func sniffStaticKind(head []byte, path string) staticKind {
	switch http.DetectContentType(head) {
	case "image/jpeg":
		return kindJPEG
	case "image/png":
		return kindPNG
	case "image/webp":
		return kindWebP
	case "image/bmp":
		return kindBMP
	}
	if len(head) >= 2 && head[0] == 0xFF && head[1] == 0x0A {
		return kindJPEGXL // JPEG XL bare codestream magic
	}
	if len(head) >= 12 && string(head[4:8]) == "JXL " {
		return kindJPEGXL // JPEG XL ISOBMFF container magic
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return kindJPEG
	case ".png":
		return kindPNG
	case ".webp":
		return kindWebP
	case ".bmp":
		return kindBMP
	case ".tif", ".tiff":
		return kindTIFF
	case ".jxl":
		return kindJPEGXL
	default:
		return kindUnknown
	}
}
