package frame

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

func TestClampDelayEnforcesMinimumFloor(t *testing.T) {
	got := clampDelay(2*time.Millisecond, nil)
	if got != minFrameDelay {
		t.Fatalf("expected floor of %v, got %v", minFrameDelay, got)
	}
}

func TestClampDelayEnforcesFPSFloor(t *testing.T) {
	fps := 10 // 100ms per frame
	got := clampDelay(5*time.Millisecond, &fps)
	want := 100 * time.Millisecond
	if got != want {
		t.Fatalf("expected fps floor %v, got %v", want, got)
	}
}

func TestClampDelayPassesThroughLargerSourceDelay(t *testing.T) {
	got := clampDelay(500*time.Millisecond, nil)
	if got != 500*time.Millisecond {
		t.Fatalf("expected source delay preserved, got %v", got)
	}
}

func TestColorSolidFillsEveryPixel(t *testing.T) {
	c := NewColor(wallpaperconfig.ColorSource{Single: &wallpaperconfig.RGB{R: 1, G: 0, B: 0}})
	if err := c.Prepare(4, 4); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	f, err := c.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	r, g, b, a := f.Image.At(2, 2).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 || a>>8 != 255 {
		t.Fatalf("expected opaque red pixel, got r=%d g=%d b=%d a=%d", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestColorSourceNotReadyBeforePrepare(t *testing.T) {
	c := NewColor(wallpaperconfig.ColorSource{Single: &wallpaperconfig.RGB{}})
	if _, err := c.NextFrame(); err != ErrSourceNotReady {
		t.Fatalf("expected ErrSourceNotReady, got %v", err)
	}
}

func TestColorGradientInterpolatesBetweenStops(t *testing.T) {
	spec := wallpaperconfig.GradientSpec{
		Stops: []wallpaperconfig.GradientStop{
			{Offset: 0, Color: wallpaperconfig.RGB{R: 0, G: 0, B: 0}},
			{Offset: 1, Color: wallpaperconfig.RGB{R: 1, G: 1, B: 1}},
		},
	}
	c := NewColor(wallpaperconfig.ColorSource{Gradient: &spec})
	if err := c.Prepare(10, 1); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	f, _ := c.NextFrame()
	leftR, _, _, _ := f.Image.At(0, 0).RGBA()
	rightR, _, _, _ := f.Image.At(9, 0).RGBA()
	if leftR >= rightR {
		t.Fatalf("expected left-to-right brightening, got left=%d right=%d", leftR, rightR)
	}
}

func TestSniffStaticKindPrefersContentOverExtension(t *testing.T) {
	pngMagic := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	if got := sniffStaticKind(pngMagic, "photo.jpg"); got != kindPNG {
		t.Fatalf("expected content sniff to win over .jpg extension, got %v", got)
	}
}

func TestSniffStaticKindFallsBackToExtension(t *testing.T) {
	if got := sniffStaticKind(nil, "photo.bmp"); got != kindBMP {
		t.Fatalf("expected extension fallback to bmp, got %v", got)
	}
}

func TestSniffStaticKindDetectsJPEGXLCodestream(t *testing.T) {
	magic := []byte{0xFF, 0x0A, 0x00, 0x00}
	if got := sniffStaticKind(magic, "image.unknown"); got != kindJPEGXL {
		t.Fatalf("expected jxl codestream magic detected, got %v", got)
	}
}

func TestVideoFrameDurationIsPollingHint(t *testing.T) {
	v := &Video{}
	if got := v.FrameDuration(); got != videoPollInterval {
		t.Fatalf("expected the Scheduler polling hint %v, got %v", videoPollInterval, got)
	}
	if got := v.FrameDuration(); got == InfiniteDuration {
		t.Fatalf("video sources must never report InfiniteDuration: the Scheduler would never reschedule them")
	}
}

func TestSniffAnimatedKindPrefersContentOverExtension(t *testing.T) {
	if kind, ok := sniffAnimatedKind([]byte("GIF89a"), "photo.png"); !ok || kind != animatedKindGIF {
		t.Fatalf("expected content sniff to detect gif, got %v ok=%v", kind, ok)
	}
}

func TestSniffAnimatedKindFallsBackToExtension(t *testing.T) {
	if kind, ok := sniffAnimatedKind(nil, "anim.apng"); !ok || kind != animatedKindAPNG {
		t.Fatalf("expected extension fallback to apng, got %v ok=%v", kind, ok)
	}
}

func TestSniffAnimatedKindRejectsUnsupportedFormat(t *testing.T) {
	if _, ok := sniffAnimatedKind(nil, "clip.webp"); ok {
		t.Fatalf("expected animated webp to be unrecognized, not silently accepted")
	}
}

// encodePNGChunks round-trips img through the standard png encoder and pulls
// out its IHDR and concatenated IDAT payloads, giving the APNG tests below
// real, validly-compressed chunk data without hand-rolling zlib streams.
func encodePNGChunks(t *testing.T, img image.Image) (ihdr, idat []byte) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	chunks, err := readPNGChunks(buf.Bytes())
	if err != nil {
		t.Fatalf("readPNGChunks: %v", err)
	}
	var idatBuf bytes.Buffer
	for _, c := range chunks {
		switch c.typ {
		case "IHDR":
			ihdr = c.data
		case "IDAT":
			idatBuf.Write(c.data)
		}
	}
	return ihdr, idatBuf.Bytes()
}

func fctlBytes(seq, w, h, xOff, yOff uint32, delayNum, delayDen uint16, dispose apngDispose, blend apngBlend) []byte {
	b := make([]byte, 26)
	binary.BigEndian.PutUint32(b[0:4], seq)
	binary.BigEndian.PutUint32(b[4:8], w)
	binary.BigEndian.PutUint32(b[8:12], h)
	binary.BigEndian.PutUint32(b[12:16], xOff)
	binary.BigEndian.PutUint32(b[16:20], yOff)
	binary.BigEndian.PutUint16(b[20:22], delayNum)
	binary.BigEndian.PutUint16(b[22:24], delayDen)
	b[24] = byte(dispose)
	b[25] = byte(blend)
	return b
}

func TestDecodeAnimatedAPNGTwoFrames(t *testing.T) {
	frame0 := image.NewRGBA(image.Rect(0, 0, 2, 2))
	frame1 := image.NewRGBA(image.Rect(0, 0, 2, 2))
	draw := func(img *image.RGBA, c color.RGBA) {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				img.Set(x, y, c)
			}
		}
	}
	draw(frame0, color.RGBA{R: 255, A: 255})
	draw(frame1, color.RGBA{B: 255, A: 255})

	ihdr, idat0 := encodePNGChunks(t, frame0)
	_, idat1 := encodePNGChunks(t, frame1)

	var buf bytes.Buffer
	buf.Write(pngSignature)
	writePNGChunk(&buf, "IHDR", ihdr)

	actl := make([]byte, 8)
	binary.BigEndian.PutUint32(actl[0:4], 2) // num_frames
	binary.BigEndian.PutUint32(actl[4:8], 0) // num_plays: loop forever
	writePNGChunk(&buf, "acTL", actl)

	writePNGChunk(&buf, "fcTL", fctlBytes(0, 2, 2, 0, 0, 1, 10, disposeNone, blendSource))
	writePNGChunk(&buf, "IDAT", idat0)

	writePNGChunk(&buf, "fcTL", fctlBytes(1, 2, 2, 0, 0, 2, 10, disposeNone, blendSource))
	seq := make([]byte, 4)
	binary.BigEndian.PutUint32(seq, 2)
	writePNGChunk(&buf, "fdAT", append(seq, idat1...))

	writePNGChunk(&buf, "IEND", nil)

	frames, truncated, err := decodeAnimatedAPNG(buf.Bytes())
	if err != nil {
		t.Fatalf("decodeAnimatedAPNG: %v", err)
	}
	if truncated {
		t.Fatalf("expected no truncation for a 2-frame animation")
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}

	if r, g, b, _ := frames[0].image.At(0, 0).RGBA(); r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Fatalf("expected frame 0 red, got r=%d g=%d b=%d", r>>8, g>>8, b>>8)
	}
	if r, g, b, _ := frames[1].image.At(0, 0).RGBA(); r>>8 != 0 || g>>8 != 0 || b>>8 != 255 {
		t.Fatalf("expected frame 1 blue, got r=%d g=%d b=%d", r>>8, g>>8, b>>8)
	}
	if frames[0].delay != 100*time.Millisecond {
		t.Fatalf("expected frame 0 delay 100ms, got %v", frames[0].delay)
	}
	if frames[1].delay != 200*time.Millisecond {
		t.Fatalf("expected frame 1 delay 200ms, got %v", frames[1].delay)
	}
}

func TestDecodeAnimatedAPNGFallsBackForPlainPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	frames, truncated, err := decodeAnimatedAPNG(buf.Bytes())
	if err != nil {
		t.Fatalf("decodeAnimatedAPNG: %v", err)
	}
	if truncated {
		t.Fatalf("expected no truncation for a single still frame")
	}
	if len(frames) != 1 {
		t.Fatalf("expected a single held frame for a non-animated PNG, got %d", len(frames))
	}
	if frames[0].delay != InfiniteDuration {
		t.Fatalf("expected InfiniteDuration delay for a still PNG, got %v", frames[0].delay)
	}
}
