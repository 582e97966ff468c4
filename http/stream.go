package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// StreamFunc is the stream continuation response kind: instead of a
// buffered body, the handler receives the client socket and the server's
// shutdown signal, and writes a long-lived body until a stop condition.
type StreamFunc func(conn net.Conn, shutdown <-chan struct{}) error

// ErrNoChange is returned by a FrameProducer when the current frame does
// not differ enough from the previous one to be worth sending. The stream
// skips the cycle.
var ErrNoChange = errors.New("http: frame unchanged")

// Frame is one unit pushed over a multipart stream.
type Frame struct {
	Data        []byte
	ContentType string
}

// FrameProducer supplies frames for a multipart stream. NextFrame may
// return ErrNoChange to skip a cycle; any other error ends the stream.
type FrameProducer interface {
	NextFrame() (Frame, error)
}

const statsInterval = 5 * time.Second

// MultipartStream pushes producer frames over a socket as a
// multipart/x-mixed-replace body. The loop enforces a minimum frame
// interval derived from FPS, sleeps on a shutdown-aware timer, and logs a
// statistics record every five seconds.
type MultipartStream struct {
	Producer FrameProducer
	Boundary string
	FPS      int

	// MaxDuration ends the stream after a per-stream deadline; zero means
	// no deadline.
	MaxDuration time.Duration

	Logger *slog.Logger
}

func NewMultipartStream(producer FrameProducer, fps int) *MultipartStream {
	if fps <= 0 {
		fps = 15
	}
	return &MultipartStream{
		Producer: producer,
		Boundary: "frame",
		FPS:      fps,
	}
}

var (
	streamMeter      = otel.Meter("github.com/freekieb7/mortar/http")
	framesSent, _    = streamMeter.Int64Counter("stream.frames.sent", metric.WithUnit("{frame}"))
	framesSkipped, _ = streamMeter.Int64Counter("stream.frames.skipped", metric.WithUnit("{frame}"))
	streamBytes, _   = streamMeter.Int64Counter("stream.bytes", metric.WithUnit("By"))
)

// Func returns the continuation to install with Context.Stream.
func (ms *MultipartStream) Func() StreamFunc {
	return ms.run
}

func (ms *MultipartStream) run(conn net.Conn, shutdown <-chan struct{}) error {
	logger := ms.Logger
	if logger == nil {
		logger = slog.Default()
	}

	head := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: multipart/x-mixed-replace; boundary=" + ms.Boundary + "\r\n" +
		"Cache-Control: no-cache\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	if _, err := conn.Write([]byte(head)); err != nil {
		return fmt.Errorf("http: stream header write: %w", err)
	}

	interval := time.Second / time.Duration(ms.FPS)
	started := time.Now()
	lastStats := started

	var sent, skipped, bytes uint64

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-shutdown:
			return nil
		default:
		}

		cycleStart := time.Now()

		frame, err := ms.Producer.NextFrame()
		switch {
		case errors.Is(err, ErrNoChange):
			skipped++
			framesSkipped.Add(context.Background(), 1)
		case err != nil:
			return fmt.Errorf("http: frame producer: %w", err)
		default:
			if err := ms.writeFrame(conn, frame); err != nil {
				// Peer closed; the client reconnects if it wants more.
				return err
			}
			sent++
			bytes += uint64(len(frame.Data))
			framesSent.Add(context.Background(), 1)
			streamBytes.Add(context.Background(), int64(len(frame.Data)))
		}

		now := time.Now()
		if now.Sub(lastStats) >= statsInterval {
			elapsed := now.Sub(lastStats).Seconds()
			logger.Info("stream stats",
				"frames_sent", sent,
				"frames_skipped", skipped,
				"bytes", bytes,
				"bandwidth_kbps", float64(bytes)/elapsed/1024*8,
			)
			sent, skipped, bytes = 0, 0, 0
			lastStats = now
		}

		if ms.MaxDuration > 0 && now.Sub(started) >= ms.MaxDuration {
			return nil
		}

		// Keep the cycle at or above the minimum interval, but never
		// stall shutdown for a full frame period.
		sleep := interval - time.Since(cycleStart)
		if sleep > 0 {
			timer.Reset(sleep)
			select {
			case <-shutdown:
				return nil
			case <-timer.C:
			}
		}
	}
}

func (ms *MultipartStream) writeFrame(conn net.Conn, frame Frame) error {
	contentType := frame.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	head := "--" + ms.Boundary + "\r\n" +
		"Content-Type: " + contentType + "\r\n" +
		"Content-Length: " + strconv.Itoa(len(frame.Data)) + "\r\n" +
		"\r\n"

	if _, err := conn.Write([]byte(head)); err != nil {
		return fmt.Errorf("http: frame header write: %w", err)
	}
	if _, err := conn.Write(frame.Data); err != nil {
		return fmt.Errorf("http: frame write: %w", err)
	}
	if _, err := conn.Write(crlf); err != nil {
		return fmt.Errorf("http: frame trailer write: %w", err)
	}
	return nil
}
