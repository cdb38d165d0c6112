package frame

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

var gstInitOnce sync.Once

// initGStreamer initializes the GStreamer library exactly once per process.
func initGStreamer() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// hwAccelElements lists decoder element factory names probed in order when
// HardwareAccel is requested. The first one present in the local GStreamer
// registry is used; otherwise the pipeline falls back to software decode.
var hwAccelElements = []string{"vah264dec", "nvh264dec", "vaapidecodebin"}

// Video is the Video Frame Source variant: a looping GStreamer pipeline
// (file source, decode, color-convert, scale, appsink) delivering raw RGBA
// frames, grounded on the same go-gst bindings the desktop package uses for
// its capture pipelines, redirected here to decode rather than encode.
type Video struct {
	spec wallpaperconfig.VideoSource

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	width    int
	height   int

	latest   atomic.Pointer[Frame]
	running  atomic.Bool
	eosSeen  atomic.Bool
	stopOnce sync.Once
}

// NewVideo constructs a Video source from a validated descriptor, matching
// spec.md 4.1's "Video" contract.
func NewVideo(spec wallpaperconfig.VideoSource) *Video {
	return &Video{spec: spec}
}

func (v *Video) Prepare(width, height int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: non-positive geometry %dx%d", ErrSourceNotReady, width, height)
	}
	if v.pipeline != nil && v.width == width && v.height == height {
		return nil
	}
	if v.pipeline != nil {
		v.releaseLocked()
	}

	initGStreamer()

	decoder := "decodebin"
	if v.spec.HardwareAccel {
		if elem := probeHardwareDecoder(); elem != "" {
			decoder = elem
		}
	}

	speed := v.spec.PlaybackSpeed
	if speed <= 0 {
		speed = 1.0
	}

	pipelineStr := fmt.Sprintf(
		"filesrc location=%q ! %s ! videoconvert ! videoscale ! "+
			"video/x-raw,format=RGBA,width=%d,height=%d ! appsink name=videosink",
		v.spec.Path, decoder, width, height)

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return fmt.Errorf("%w: parse pipeline: %v", ErrSourceNotReady, err)
	}

	elem, err := pipeline.GetElementByName("videosink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("%w: locate videosink: %v", ErrSourceNotReady, err)
	}
	appsink := app.SinkFromElement(elem)
	if appsink == nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("%w: videosink element is not an appsink", ErrSourceNotReady)
	}

	appsink.SetProperty("emit-signals", true)
	appsink.SetProperty("max-buffers", uint(2))
	appsink.SetProperty("drop", true)
	appsink.SetProperty("sync", true)
	appsink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: v.onNewSample})

	v.pipeline = pipeline
	v.appsink = appsink
	v.width = width
	v.height = height
	v.eosSeen.Store(false)

	// Seed with a black placeholder so the first NextFrame call (before the
	// pipeline reaches PLAYING and delivers a sample) has something to draw,
	// per spec.md 4.1: "black placeholder before first frame."
	placeholder := &Frame{Image: image.NewRGBA(image.Rect(0, 0, width, height)), Timestamp: time.Now()}
	v.latest.Store(placeholder)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("%w: set playing: %v", ErrSourceNotReady, err)
	}
	v.running.Store(true)
	go v.watchBus()

	return nil
}

func (v *Video) onNewSample(sink *app.Sink) gst.FlowReturn {
	if !v.running.Load() {
		return gst.FlowEOS
	}
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowOK
	}
	defer buffer.Unmap()

	v.mu.Lock()
	w, h := v.width, v.height
	v.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, mapInfo.Bytes())

	v.latest.Store(&Frame{Image: img, Timestamp: time.Now()})
	return gst.FlowOK
}

func (v *Video) watchBus() {
	v.mu.Lock()
	pipeline := v.pipeline
	v.mu.Unlock()
	if pipeline == nil {
		return
	}
	bus := pipeline.GetPipelineBus()
	if bus == nil {
		return
	}

	for v.running.Load() {
		msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			if v.spec.LoopPlayback {
				v.seekToStart()
				continue
			}
			v.eosSeen.Store(true)
			return
		case gst.MessageError:
			v.running.Store(false)
			return
		}
	}
}

func (v *Video) seekToStart() {
	v.mu.Lock()
	pipeline := v.pipeline
	v.mu.Unlock()
	if pipeline == nil {
		return
	}
	pipeline.SeekSimple(gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit, 0)
}

// NextFrame returns the most recently decoded frame. Because video sources
// are pushed by the GStreamer thread rather than pulled, repeated calls
// between pipeline samples return the same frame (hold-last-frame), and
// after a non-looping end-of-stream the final decoded frame is held forever
// rather than erroring, matching spec.md 4.1's video EOS semantics.
func (v *Video) NextFrame() (Frame, error) {
	f := v.latest.Load()
	if f == nil {
		return Frame{}, ErrSourceNotReady
	}
	return *f, nil
}

// videoPollInterval is the Scheduler polling hint for video sources, per
// spec.md 4.1: "frame_duration() is ~33 ms as a polling hint — the Scheduler
// does not attempt to match the stream's native cadence." Video pacing is
// driven by the GStreamer pipeline's own clock; this only governs how often
// the Scheduler asks NextFrame for whatever sample has arrived since.
const videoPollInterval = 33 * time.Millisecond

func (v *Video) FrameDuration() time.Duration { return videoPollInterval }
func (v *Video) IsAnimated() bool             { return true }

func (v *Video) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.releaseLocked()
}

func (v *Video) releaseLocked() {
	v.stopOnce.Do(func() {
		v.running.Store(false)
		if v.pipeline != nil {
			v.pipeline.SetState(gst.StateNull)
		}
	})
	v.pipeline = nil
	v.appsink = nil
	v.stopOnce = sync.Once{}
}

func (v *Video) Description() string {
	return fmt.Sprintf("video(%s)", v.spec.Path)
}

// probeHardwareDecoder returns the first available hardware decoder element
// factory name, or "" if none are registered locally.
func probeHardwareDecoder() string {
	for _, name := range hwAccelElements {
		if gst.Find(name) != nil {
			return name
		}
	}
	return ""
}
