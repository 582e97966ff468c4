package plugin

import (
	"encoding/binary"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/freekieb7/mortar/http"
)

// Raster is one captured screen image, 24-bit BGR rows top-down.
type Raster struct {
	Width  int
	Height int
	Pixels []byte
}

// RasterSource is the screen capture capability. Platform adapters
// implement it; the core only consumes it.
type RasterSource interface {
	Capture() (*Raster, error)
}

// InputInjector is the remote control capability.
type InputInjector interface {
	MoveMouse(x, y float64) error
	ClickLeft() error
	ClickRight() error
	TypeKey(code uint16) error
}

// ScreenShareConfig configures the screen sharing plugin.
type ScreenShareConfig struct {
	FPSLimit int

	// DiffThreshold is the changed-pixel fraction below which a frame is
	// suppressed.
	DiffThreshold float64
}

func DefaultScreenShareConfig() ScreenShareConfig {
	return ScreenShareConfig{FPSLimit: 15, DiffThreshold: 0.01}
}

// ScreenSharePlugin exposes the remote desktop routes: an MJPEG-style
// frame push on /stream, input injection on /api/input and a status probe
// on /api/status. Both capabilities may be nil: /stream answers 503
// without a source and /api/input without an injector, while /api/status
// still answers 200 and reports whether streaming is available.
type ScreenSharePlugin struct {
	http.PluginBase

	config   ScreenShareConfig
	source   RasterSource
	injector InputInjector
	logger   *slog.Logger
}

func NewScreenSharePlugin(config ScreenShareConfig, source RasterSource, injector InputInjector) *ScreenSharePlugin {
	if config.FPSLimit <= 0 {
		config.FPSLimit = 15
	}
	if config.DiffThreshold <= 0 {
		config.DiffThreshold = 0.01
	}
	return &ScreenSharePlugin{
		config:   config,
		source:   source,
		injector: injector,
		logger:   slog.Default(),
	}
}

func (p *ScreenSharePlugin) Name() string        { return "ScreenShare" }
func (p *ScreenSharePlugin) Version() string     { return "2.0.0" }
func (p *ScreenSharePlugin) Description() string { return "Screen streaming and remote control" }
func (p *ScreenSharePlugin) Author() string      { return "mortar" }

func (p *ScreenSharePlugin) RegisterRoutes(router *http.Router) error {
	if err := router.Get("/stream", p.handleStream); err != nil {
		return err
	}
	if err := router.Post("/api/input", p.handleInput); err != nil {
		return err
	}
	return router.Get("/api/status", p.handleStatus)
}

func (p *ScreenSharePlugin) handleStream(ctx *http.Context) {
	if p.source == nil {
		ctx.Status(http.StatusServiceUnavailable).JSON(`{"error":"no frame source available"}`)
		return
	}

	producer := NewDiffProducer(p.source, p.config.DiffThreshold)
	stream := http.NewMultipartStream(producer, p.config.FPSLimit)
	stream.Logger = p.logger
	ctx.Stream(stream.Func())
}

type inputCommand struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Key  uint16  `json:"key"`
}

func (p *ScreenSharePlugin) handleInput(ctx *http.Context) {
	if p.injector == nil {
		ctx.Status(http.StatusServiceUnavailable).JSON(`{"error":"no input injector available"}`)
		return
	}

	var cmd inputCommand
	if err := json.Unmarshal(ctx.Request.Body, &cmd); err != nil {
		ctx.Status(http.StatusBadRequest).JSON(`{"error":"invalid input command"}`)
		return
	}

	var err error
	switch cmd.Type {
	case "move":
		err = p.injector.MoveMouse(cmd.X, cmd.Y)
	case "click":
		err = p.injector.ClickLeft()
	case "rightclick":
		err = p.injector.ClickRight()
	case "key":
		err = p.injector.TypeKey(cmd.Key)
	default:
		ctx.Status(http.StatusBadRequest).JSON(`{"error":"unknown input type"}`)
		return
	}

	if err != nil {
		ctx.JSON(`{"status":"error"}`)
		return
	}
	ctx.JSON(`{"status":"success"}`)
}

func (p *ScreenSharePlugin) handleStatus(ctx *http.Context) {
	ctx.JSON(map[string]any{
		"status":    "online",
		"fps_limit": p.config.FPSLimit,
		"streaming": p.source != nil,
	})
}

// DiffProducer adapts a RasterSource into a FrameProducer, suppressing
// frames whose changed-pixel fraction is below the threshold. Changed
// pixels are counted on a sampling grid so the diff stays cheap at large
// resolutions.
type DiffProducer struct {
	source    RasterSource
	threshold float64
	previous  []byte
}

func NewDiffProducer(source RasterSource, threshold float64) *DiffProducer {
	return &DiffProducer{source: source, threshold: threshold}
}

const diffSampleStride = 16

func (d *DiffProducer) NextFrame() (http.Frame, error) {
	raster, err := d.source.Capture()
	if err != nil {
		return http.Frame{}, err
	}

	if d.previous != nil && len(d.previous) == len(raster.Pixels) {
		if d.changedFraction(raster.Pixels) < d.threshold {
			return http.Frame{}, http.ErrNoChange
		}
	}
	d.previous = append(d.previous[:0], raster.Pixels...)

	return http.Frame{
		Data:        EncodeBMP(raster),
		ContentType: "image/bmp",
	}, nil
}

func (d *DiffProducer) changedFraction(pixels []byte) float64 {
	sampled, changed := 0, 0
	for i := 0; i < len(pixels); i += diffSampleStride {
		sampled++
		if pixels[i] != d.previous[i] {
			changed++
		}
	}
	if sampled == 0 {
		return 1
	}
	return float64(changed) / float64(sampled)
}

// EncodeBMP wraps a 24-bit BGR raster in a bottom-up BMP container.
func EncodeBMP(raster *Raster) []byte {
	rowSize := (raster.Width*3 + 3) &^ 3
	imageSize := rowSize * raster.Height

	const headerSize = 14 + 40
	buf := make([]byte, headerSize+imageSize)

	// File header.
	buf[0], buf[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(buf[2:], uint32(headerSize+imageSize))
	binary.LittleEndian.PutUint32(buf[10:], headerSize)

	// BITMAPINFOHEADER.
	binary.LittleEndian.PutUint32(buf[14:], 40)
	binary.LittleEndian.PutUint32(buf[18:], uint32(raster.Width))
	binary.LittleEndian.PutUint32(buf[22:], uint32(raster.Height))
	binary.LittleEndian.PutUint16(buf[26:], 1)
	binary.LittleEndian.PutUint16(buf[28:], 24)
	binary.LittleEndian.PutUint32(buf[34:], uint32(imageSize))

	// Pixel rows are stored bottom-up.
	srcStride := raster.Width * 3
	for y := 0; y < raster.Height; y++ {
		src := raster.Pixels[y*srcStride : y*srcStride+srcStride]
		dst := buf[headerSize+(raster.Height-1-y)*rowSize:]
		copy(dst, src)
	}
	return buf
}
