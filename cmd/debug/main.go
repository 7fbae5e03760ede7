package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/astromechza/decaying-canvas/pkg/api"
	"github.com/astromechza/decaying-canvas/pkg/canvas"
	"github.com/astromechza/decaying-canvas/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	jsonVar := flag.Bool("json", false, "the input is a /latest response body rather than a png")
	dumpVar := flag.Bool("dump", false, "also write the decoded png to a temp file")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the file to read, or - for stdin")
	}

	var in io.Reader = os.Stdin
	if flag.Arg(0) != "-" {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		in = f
	}
	buff, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	if *jsonVar {
		var payload api.Payload
		if err := json.Unmarshal(buff, &payload); err != nil {
			return fmt.Errorf("failed to decode json: %w", err)
		}
		slog.Info("loaded payload", "version", payload.Version)
		if buff, err = canvas.DecodeDataURL(payload.Image); err != nil {
			return err
		}
	}

	img, err := canvas.DecodeOverlay(buff)
	if err != nil {
		return err
	}
	stats := viz.Stats(img)
	slog.Info("loaded canvas", "width", stats.Width, "height", stats.Height)
	fmt.Println(stats.String())

	if *dumpVar {
		path, err := viz.RenderToTemp(buff)
		if err != nil {
			return err
		}
		slog.Info("dumped", "path", "file://"+path)
	}
	return nil
}
