// Command srt-push publishes a raw video byte stream to a reframe server
// over SRT, for exercising the ingest path. It reads frames from a file
// (or synthesizes a moving test pattern), paces them at the declared frame
// rate, and sends them in deliberately misaligned chunks so the server's
// re-framing actually has work to do.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/reframe/rawvideo"
)

// chunkSize is deliberately coprime with common frame sizes so frame
// boundaries land mid-chunk on the receiving side.
const chunkSize = 1313

func main() {
	var (
		addr        = pflag.String("addr", "127.0.0.1:6000", "SRT server address")
		key         = pflag.String("key", "test", "stream key")
		geometryStr = pflag.String("geometry", "gray8:320x240@30/1", "stream geometry")
		file        = pflag.String("file", "", "raw video file to push (default: synthetic pattern)")
		frames      = pflag.Int("frames", 0, "stop after this many frames (0 = unlimited)")
	)
	pflag.Parse()

	geo, err := rawvideo.ParseGeometry(*geometryStr)
	if err != nil {
		fail("invalid geometry: %v", err)
	}
	frameSize, err := geo.FrameSize()
	if err != nil {
		fail("invalid geometry: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var source io.Reader
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			fail("open %s: %v", *file, err)
		}
		defer f.Close()
		source = f
	} else {
		source = &patternSource{frameSize: frameSize}
	}

	cfg := srtgo.DefaultConfig()
	cfg.StreamID = *key + "?" + geo.String()

	conn, err := srtgo.Dial(*addr, cfg)
	if err != nil {
		fail("SRT dial %s: %v", *addr, err)
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "pushing %s (%d bytes/frame) to %s as %q\n",
		geo.String(), frameSize, *addr, *key)

	var limiter *rate.Limiter
	if geo.FrameRate.Num > 0 {
		limiter = rate.NewLimiter(rate.Limit(geo.FrameRate.Float64()), 1)
	}

	buf := make([]byte, chunkSize)
	var sent, pushedFrames int64
	for {
		if ctx.Err() != nil {
			break
		}
		n, err := source.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				fail("SRT write: %v", werr)
			}
			sent += int64(n)

			// Pace once per completed frame worth of bytes.
			for sent/int64(frameSize) > pushedFrames {
				pushedFrames++
				if limiter != nil {
					if werr := limiter.Wait(ctx); werr != nil {
						break
					}
				}
				if *frames > 0 && pushedFrames >= int64(*frames) {
					fmt.Fprintf(os.Stderr, "pushed %d frames (%d bytes)\n", pushedFrames, sent)
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				fail("read source: %v", err)
			}
			break
		}
	}

	fmt.Fprintf(os.Stderr, "pushed %d frames (%d bytes)\n", pushedFrames, sent)
}

// patternSource generates an endless moving gradient so pushed frames are
// visually distinguishable without any input file.
type patternSource struct {
	frameSize int
	offset    int
	frameNum  byte
}

func (p *patternSource) Read(buf []byte) (int, error) {
	for i := range buf {
		buf[i] = byte(p.offset) + p.frameNum
		p.offset++
		if p.offset == p.frameSize {
			p.offset = 0
			p.frameNum += 3
		}
	}
	return len(buf), nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
