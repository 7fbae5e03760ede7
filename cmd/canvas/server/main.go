package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

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

func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":3000"
}

func mainInner() error {
	addrVar := flag.String("addr", defaultAddr(), "the address to listen on")
	storeVar := flag.String("store", "shared-canvas.png", "path of the canvas file or sqlite database")
	driverVar := flag.String("store-driver", "file", "how the canvas is persisted: file or sqlite")
	widthVar := flag.Int("width", canvas.DefaultWidth, "canvas width in pixels")
	heightVar := flag.Int("height", canvas.DefaultHeight, "canvas height in pixels")
	decayIntervalVar := flag.Duration("decay-interval", canvas.DefaultDecayInterval, "how often the canvas fades")
	decayOpacityVar := flag.Float64("decay-opacity", canvas.DefaultDecayOpacity, "opacity of the white layer applied per decay tick")
	policyVar := flag.String("overlay-policy", string(canvas.PolicyCrop), "how overlays of the wrong size are handled: crop, reject or scale")
	maxBodyVar := flag.Int64("max-body", canvas.DefaultMaxBody, "maximum upload body size in bytes")
	pushIntervalVar := flag.Duration("push-interval", time.Second, "how often /sync connections check for changes")
	flag.Parse()

	cfg := canvas.Config{
		StorePath:     *storeVar,
		StoreDriver:   *driverVar,
		Width:         *widthVar,
		Height:        *heightVar,
		DecayInterval: *decayIntervalVar,
		DecayOpacity:  *decayOpacityVar,
		OverlayPolicy: canvas.OverlayPolicy(*policyVar),
		MaxBody:       *maxBodyVar,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	backend, closeBackend, err := cfg.OpenBackend()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := closeBackend(); err != nil {
			slog.Error("failed to close store", "err", err)
		}
	}()

	slog.Info("Ensuring canvas", "store", backend.String())
	store := canvas.NewStore(backend, cfg.Width, cfg.Height)
	if err := store.EnsureInitialized(context.Background()); err != nil {
		return err
	}

	s := api.NewServer(store, cfg.OverlayPolicy, cfg.MaxBody)
	s.PushInterval = *pushIntervalVar

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		canvas.NewDecayer(store, cfg.DecayInterval, cfg.DecayOpacity).Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:              *addrVar,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Decaying shared canvas listening", "addr", *addrVar)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
			cancel()
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		slog.Info("Signal caught", "sig", sig)
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
	}

	wg.Wait()

	if img, err := store.Read(context.Background()); err != nil {
		slog.Error("failed to dump", "err", err)
	} else if raw, err := canvas.EncodePNG(img); err != nil {
		slog.Error("failed to dump", "err", err)
	} else if path, err := viz.RenderToTemp(raw); err != nil {
		slog.Error("failed to dump", "err", err)
	} else {
		slog.Info("dumped", "path", "file://"+path, "coverage", viz.Stats(img).String())
	}
	return nil
}
