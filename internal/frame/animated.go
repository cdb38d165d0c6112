package frame

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/draw"
	"image/gif"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

// maxAnimatedFrames bounds decoded frame counts: longer files are truncated
// to their first 5000 frames. The truncation is recorded in
// Animated.truncated; nothing logs it.
const maxAnimatedFrames = 5000

// animatedFrame is one fully-composited frame plus its display delay.
type animatedFrame struct {
	image *image.RGBA
	delay time.Duration
}

// Animated is the Animated Frame Source variant: GIF or APNG, decoded in
// full up front (bounded by maxAnimatedFrames) and played back by cursor
// advance with wraparound.
type Animated struct {
	spec wallpaperconfig.AnimatedSource

	mu        sync.Mutex
	ready     bool
	frames    []animatedFrame
	cursor    int
	loops     int // remaining loops; <0 means infinite
	finished  bool
	truncated bool
}

// NewAnimated constructs an Animated source from a validated descriptor,
// matching spec.md 4.1's "Animated" contract.
func NewAnimated(spec wallpaperconfig.AnimatedSource) *Animated {
	return &Animated{spec: spec}
}

func (a *Animated) Prepare(_, _ int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}

	frames, truncated, err := decodeAnimated(a.spec.Path)
	if err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrSourceNotReady, a.spec.Path, err)
	}
	if len(frames) == 0 {
		return fmt.Errorf("%w: %s has no frames", ErrSourceNotReady, a.spec.Path)
	}

	a.frames = frames
	a.truncated = truncated
	a.cursor = 0
	a.loops = -1
	if a.spec.LoopCount != nil {
		a.loops = *a.spec.LoopCount
	}
	a.finished = false
	a.ready = true
	return nil
}

func (a *Animated) NextFrame() (Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return Frame{}, ErrSourceNotReady
	}
	if a.finished {
		return Frame{}, ErrEndOfStream
	}

	f := a.frames[a.cursor]
	frame := Frame{Image: f.image, Timestamp: time.Now()}

	a.cursor++
	if a.cursor >= len(a.frames) {
		a.cursor = 0
		if a.loops > 0 {
			a.loops--
			if a.loops == 0 {
				a.finished = true
			}
		}
		// a.loops < 0 (infinite, the AnimatedSource default) never finishes.
	}
	return frame, nil
}

// FrameDuration reports the current frame's delay, floored per clampDelay
// (testable property 10).
func (a *Animated) FrameDuration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready || len(a.frames) == 0 {
		return InfiniteDuration
	}
	// NextFrame has already advanced the cursor past the frame it returned.
	idx := a.cursor - 1
	if idx < 0 || idx >= len(a.frames) {
		idx = len(a.frames) - 1
	}
	return clampDelay(a.frames[idx].delay, a.spec.FPSLimit)
}

func (a *Animated) IsAnimated() bool { return true }

func (a *Animated) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = false
	a.frames = nil
}

func (a *Animated) Description() string {
	return fmt.Sprintf("animated(%s)", a.spec.Path)
}

// animatedKind is the container format decodeAnimated dispatches on.
type animatedKind string

const (
	animatedKindGIF  animatedKind = "gif"
	animatedKindAPNG animatedKind = "apng"
)

// sniffAnimatedKind mirrors sniffStaticKind's content-sniffing-first,
// extension-fallback approach (static.go), applied to the two animated
// formats this decoder supports. A plain (non-animated) PNG sniffs as
// animatedKindAPNG too; decodeAnimatedAPNG degrades that to a single
// held frame rather than erroring, since spec.md 4.1 groups animated PNG
// in with the other Animated-source formats without drawing a hard line
// at single-frame PNGs misconfigured as Animated sources.
func sniffAnimatedKind(head []byte, path string) (animatedKind, bool) {
	switch http.DetectContentType(head) {
	case "image/gif":
		return animatedKindGIF, true
	case "image/png":
		return animatedKindAPNG, true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gif":
		return animatedKindGIF, true
	case ".png", ".apng":
		return animatedKindAPNG, true
	}
	return "", false
}

// decodeAnimated dispatches to the GIF or APNG decoder by sniffing the
// file's content, per spec.md 4.1's "GIF / APNG / animated WebP" list.
// Animated WebP is not decoded: the only animated-WebP code in the example
// pack this daemon was built from (a `webp/animation` package) is a
// container/muxer that delegates actual VP8/VP8L bitstream decoding to a
// `FrameDecoderFunc` hook nothing in the pack ever binds to a real codec —
// wiring it here would mean writing a VP8L entropy decoder from scratch,
// which is out of proportion to a wallpaper daemon's frame source. A
// Path source pointing at a multi-frame animated WebP is reported as a
// decode failure (ErrSourceNotReady) rather than silently misrendering a
// single frame; still-frame WebP continues to work through the Static
// source (static.go), which golang.org/x/image/webp decodes natively.
func decodeAnimated(path string) (frames []animatedFrame, truncated bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(512)

	kind, ok := sniffAnimatedKind(head, path)
	if !ok {
		return nil, false, fmt.Errorf("unrecognized animated image format")
	}

	switch kind {
	case animatedKindGIF:
		return decodeAnimatedGIF(br)
	case animatedKindAPNG:
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, false, err
		}
		return decodeAnimatedAPNG(data)
	default:
		return nil, false, fmt.Errorf("unrecognized animated image format")
	}
}

func decodeAnimatedGIF(r io.Reader) (frames []animatedFrame, truncated bool, err error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, false, err
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	canvas := image.NewRGBA(bounds)

	n := len(g.Image)
	if n > maxAnimatedFrames {
		n = maxAnimatedFrames
		truncated = true
	}

	frames = make([]animatedFrame, 0, n)
	for i := 0; i < n; i++ {
		src := g.Image[i]
		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)

		snapshot := image.NewRGBA(bounds)
		draw.Draw(snapshot, bounds, canvas, bounds.Min, draw.Src)

		delayMs := g.Delay[i] * 10 // gif.Delay is in hundredths of a second
		frames = append(frames, animatedFrame{
			image: snapshot,
			delay: time.Duration(delayMs) * time.Millisecond,
		})

		if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalBackground {
			draw.Draw(canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
		}
	}
	return frames, truncated, nil
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// apngChunk is one raw PNG chunk (type + data, CRC discarded: the chunks
// are re-emitted through image/png's own decoder, which recomputes and
// validates CRCs itself).
type apngChunk struct {
	typ  string
	data []byte
}

// apngDispose mirrors the APNG spec's fcTL dispose_op values.
type apngDispose byte

const (
	disposeNone       apngDispose = 0
	disposeBackground apngDispose = 1
	disposePrevious   apngDispose = 2
)

// apngBlend mirrors the APNG spec's fcTL blend_op values.
type apngBlend byte

const (
	blendSource apngBlend = 0
	blendOver   apngBlend = 1
)

type apngFCTL struct {
	width, height    uint32
	xOffset, yOffset uint32
	delayNum         uint16
	delayDen         uint16
	dispose          apngDispose
	blend            apngBlend
}

// readPNGChunks walks a PNG byte stream's chunk structure: 8-byte
// signature, then (length uint32, type [4]byte, data, crc uint32)
// repeated through IEND.
func readPNGChunks(data []byte) ([]apngChunk, error) {
	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return nil, fmt.Errorf("not a PNG file")
	}
	var chunks []apngChunk
	pos := len(pngSignature)
	for pos+8 <= len(data) {
		length := binary.BigEndian.Uint32(data[pos : pos+4])
		typ := string(data[pos+4 : pos+8])
		start := pos + 8
		end := start + int(length)
		if end < start || end+4 > len(data) {
			return nil, fmt.Errorf("truncated PNG chunk %q", typ)
		}
		chunks = append(chunks, apngChunk{typ: typ, data: data[start:end]})
		pos = end + 4
		if typ == "IEND" {
			break
		}
	}
	return chunks, nil
}

func parseFCTL(data []byte) (apngFCTL, error) {
	if len(data) < 26 {
		return apngFCTL{}, fmt.Errorf("truncated fcTL chunk")
	}
	return apngFCTL{
		width:    binary.BigEndian.Uint32(data[4:8]),
		height:   binary.BigEndian.Uint32(data[8:12]),
		xOffset:  binary.BigEndian.Uint32(data[12:16]),
		yOffset:  binary.BigEndian.Uint32(data[16:20]),
		delayNum: binary.BigEndian.Uint16(data[20:22]),
		delayDen: binary.BigEndian.Uint16(data[22:24]),
		dispose:  apngDispose(data[24]),
		blend:    apngBlend(data[25]),
	}, nil
}

// buildPNG reassembles a standalone, single-frame PNG byte stream from the
// original file's IHDR/PLTE/tRNS ancillary chunks (width/height overridden
// to the frame's own) plus the frame's own IDAT payload, so the frame can
// be handed to image/png.Decode without a bespoke IDAT/zlib/filter
// re-implementation.
func buildPNG(ihdr, plte, trns []byte, width, height uint32, idat []byte) []byte {
	frameIHDR := make([]byte, len(ihdr))
	copy(frameIHDR, ihdr)
	binary.BigEndian.PutUint32(frameIHDR[0:4], width)
	binary.BigEndian.PutUint32(frameIHDR[4:8], height)

	var buf bytes.Buffer
	buf.Write(pngSignature)
	writePNGChunk(&buf, "IHDR", frameIHDR)
	if plte != nil {
		writePNGChunk(&buf, "PLTE", plte)
	}
	if trns != nil {
		writePNGChunk(&buf, "tRNS", trns)
	}
	writePNGChunk(&buf, "IDAT", idat)
	writePNGChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func writePNGChunk(buf *bytes.Buffer, typ string, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])

	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)

	buf.WriteString(typ)
	buf.Write(data)

	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc.Sum32())
	buf.Write(crcBuf[:])
}

// decodeAnimatedAPNG decodes an Animation PNG's fcTL/fdAT/IDAT chunk
// sequence into composited RGBA frames, applying each frame's dispose_op
// and blend_op against a persistent canvas the same way decodeAnimatedGIF
// applies GIF disposal methods. A default image (IDAT with no preceding
// fcTL) is the non-animated fallback PNG readers without APNG support see;
// it is skipped rather than treated as a frame, matching the APNG spec.
func decodeAnimatedAPNG(data []byte) (frames []animatedFrame, truncated bool, err error) {
	chunks, err := readPNGChunks(data)
	if err != nil {
		return nil, false, err
	}

	var ihdr, plte, trns []byte
	haveACTL := false
	for _, c := range chunks {
		switch c.typ {
		case "IHDR":
			ihdr = c.data
		case "PLTE":
			plte = c.data
		case "tRNS":
			trns = c.data
		case "acTL":
			haveACTL = true
		}
	}
	if !haveACTL || ihdr == nil {
		return decodeAnimatedStillPNG(data)
	}

	type frameBuilder struct {
		fctl apngFCTL
		data bytes.Buffer
	}
	var builders []*frameBuilder
	var current *frameBuilder

	for _, c := range chunks {
		switch c.typ {
		case "fcTL":
			fctl, err := parseFCTL(c.data)
			if err != nil {
				return nil, false, err
			}
			current = &frameBuilder{fctl: fctl}
			builders = append(builders, current)
		case "IDAT":
			if current != nil {
				current.data.Write(c.data)
			}
			// Else: default-image-only IDAT, not part of the animation.
		case "fdAT":
			if len(c.data) < 4 {
				return nil, false, fmt.Errorf("truncated fdAT chunk")
			}
			if current != nil {
				current.data.Write(c.data[4:]) // strip the sequence number
			}
		}
	}
	if len(builders) == 0 {
		return decodeAnimatedStillPNG(data)
	}

	if len(builders) > maxAnimatedFrames {
		builders = builders[:maxAnimatedFrames]
		truncated = true
	}

	width := binary.BigEndian.Uint32(ihdr[0:4])
	height := binary.BigEndian.Uint32(ihdr[4:8])
	bounds := image.Rect(0, 0, int(width), int(height))
	canvas := image.NewRGBA(bounds)

	frames = make([]animatedFrame, 0, len(builders))
	for _, b := range builders {
		var prevSnapshot *image.RGBA
		if b.fctl.dispose == disposePrevious {
			prevSnapshot = image.NewRGBA(bounds)
			draw.Draw(prevSnapshot, bounds, canvas, bounds.Min, draw.Src)
		}

		framePNG := buildPNG(ihdr, plte, trns, b.fctl.width, b.fctl.height, b.data.Bytes())
		img, err := png.Decode(bytes.NewReader(framePNG))
		if err != nil {
			return nil, false, fmt.Errorf("decode APNG frame: %w", err)
		}

		dstRect := image.Rect(
			int(b.fctl.xOffset), int(b.fctl.yOffset),
			int(b.fctl.xOffset+b.fctl.width), int(b.fctl.yOffset+b.fctl.height),
		)
		op := draw.Over
		if b.fctl.blend == blendSource {
			op = draw.Src
		}
		draw.Draw(canvas, dstRect, img, image.Point{}, op)

		snapshot := image.NewRGBA(bounds)
		draw.Draw(snapshot, bounds, canvas, bounds.Min, draw.Src)

		delayDen := b.fctl.delayDen
		if delayDen == 0 {
			delayDen = 100 // APNG spec: delay_den 0 means "100", not "divide by zero"
		}
		delayMs := float64(b.fctl.delayNum) / float64(delayDen) * 1000
		frames = append(frames, animatedFrame{image: snapshot, delay: time.Duration(delayMs) * time.Millisecond})

		switch b.fctl.dispose {
		case disposeBackground:
			draw.Draw(canvas, dstRect, image.Transparent, image.Point{}, draw.Src)
		case disposePrevious:
			canvas = prevSnapshot
		}
	}
	return frames, truncated, nil
}

// decodeAnimatedStillPNG handles a plain, non-animated PNG handed to the
// Animated source (no acTL, or an acTL with no fcTL-bound frames): it
// decodes as a single held frame rather than failing outright.
func decodeAnimatedStillPNG(data []byte) (frames []animatedFrame, truncated bool, err error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	return []animatedFrame{{image: toRGBA(img), delay: InfiniteDuration}}, false, nil
}
