package main

import (
	"context"
	"flag"
	"image"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/astromechza/decaying-canvas/pkg/client"
	"github.com/astromechza/decaying-canvas/pkg/sketch"
	"github.com/astromechza/decaying-canvas/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	urlVar := flag.String("url", "http://127.0.0.1:3000", "the base url of the canvas server")
	pollVar := flag.Duration("poll", time.Second, "how often to fetch /latest")
	watchVar := flag.Bool("watch", false, "receive pushed updates over /sync instead of polling")
	seedVar := flag.Int64("seed", time.Now().UnixNano(), "random seed for scribbles")
	flag.Parse()

	c, err := client.New(*urlVar)
	if err != nil {
		return err
	}

	img, version, err := c.Latest(context.Background())
	if err != nil {
		return err
	}
	slog.Info("established base canvas", "version", version, "coverage", viz.Stats(img).String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if *watchVar {
			if err := c.Watch(ctx, logSnapshot); err != nil {
				slog.Error("failed to watch", "err", err)
			}
			return
		}
		pollContinuously(ctx, c, *pollVar)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		scribbleRandomlyContinuously(ctx, c, img.Bounds().Dx(), img.Bounds().Dy(), rand.New(rand.NewSource(*seedVar)))
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()

	wg.Wait()
	return nil
}

func logSnapshot(img *image.NRGBA, version uint64) {
	slog.Info("received canvas", "version", version, "coverage", viz.Stats(img).String())
}

func pollContinuously(ctx context.Context, c *client.Client, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if img, version, err := c.Latest(ctx); err != nil {
				slog.Error("failed to fetch latest", "err", err)
			} else {
				logSnapshot(img, version)
			}
		case <-ctx.Done():
			slog.Info("stopping scheduled poll")
			return
		}
	}
}

func scribbleRandomlyContinuously(ctx context.Context, c *client.Client, width, height int, rng *rand.Rand) {
	for {
		t := time.NewTimer(time.Second + time.Second*time.Duration(rng.Intn(5)))
		select {
		case <-t.C:
			overlay := sketch.NewOverlay(width, height)
			overlay.RandomScribble(rng)
			if err := c.Upload(ctx, overlay.Image()); err != nil {
				slog.Error("failed to upload", "err", err)
			} else {
				slog.Info("uploaded scribble")
			}
		case <-ctx.Done():
			t.Stop()
			slog.Info("stopping scheduled scribble")
			return
		}
	}
}
