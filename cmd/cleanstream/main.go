package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chaz8081/cleanstream/internal/audio"
	"github.com/chaz8081/cleanstream/internal/capture"
	"github.com/chaz8081/cleanstream/internal/config"
	"github.com/chaz8081/cleanstream/internal/filter"
	"github.com/chaz8081/cleanstream/internal/metrics"
	"github.com/chaz8081/cleanstream/internal/models"
	"github.com/chaz8081/cleanstream/internal/transcribe"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/cleanstream/config.yaml)")
	filePath := flag.String("file", "", "classify a 16-bit PCM WAV file instead of capturing live audio")
	savePath := flag.String("save", "", "write the passed-through audio to this WAV file")
	downloadModel := flag.Bool("download-model", false, "download the whisper model and exit")
	initConfig := flag.Bool("init-config", false, "write a default config file and exit")
	flag.Parse()

	if *downloadModel {
		if err := models.DownloadWhisper(); err != nil {
			log.Fatalf("model download: %v", err)
		}
		return
	}
	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("writing config: %v", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		} else {
			fmt.Printf("Config written to %s\n", path)
		}
		return
	}

	cfg, source, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("source", source))

	printBanner(cfg)

	met, stopMetrics := setupMetrics(cfg.Metrics.Addr, logger)
	defer stopMetrics()

	logger.Info("loading whisper model", zap.String("path", cfg.Engine.ModelPath))
	modelStart := time.Now()
	engine, err := transcribe.New(&cfg.Engine)
	if err != nil {
		logger.Fatal("failed to load speech engine; run with -download-model to fetch the default model",
			zap.Error(err))
	}
	logger.Info("model loaded", zap.Duration("took", time.Since(modelStart).Round(time.Millisecond)))

	if *filePath != "" {
		if err := runFile(logger, cfg, met, engine, *filePath, *savePath); err != nil {
			logger.Fatal("file mode failed", zap.Error(err))
		}
		return
	}
	if err := runLive(logger, cfg, met, engine, *savePath); err != nil {
		logger.Fatal("live mode failed", zap.Error(err))
	}
}

// runLive captures the default microphone and streams it through the filter
// until interrupted.
func runLive(logger *zap.Logger, cfg *config.Config, met *metrics.Metrics, engine transcribe.Engine, savePath string) error {
	f, err := filter.New(filter.Options{
		SampleRate:      int(cfg.Audio.SampleRate),
		Channels:        int(cfg.Audio.Channels),
		Engine:          engine,
		FillerThreshold: cfg.Filter.FillerPThreshold,
		Logger:          logger,
		Metrics:         met,
	})
	if err != nil {
		engine.Close()
		return err
	}
	defer f.Close()
	if err := f.Start(); err != nil {
		return err
	}

	mic, err := capture.New(cfg.Audio.SampleRate, cfg.Audio.Channels, f, logger)
	if err != nil {
		return fmt.Errorf("audio capture unavailable: %w", err)
	}
	defer mic.Close()
	if err := mic.Start(); err != nil {
		return err
	}

	var sink *wavSink
	if savePath != "" {
		sink, err = newWavSink(savePath, int(cfg.Audio.SampleRate), int(cfg.Audio.Channels))
		if err != nil {
			return err
		}
	}

	// The output queue must be drained even when nobody wants the audio,
	// or it grows without bound.
	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			drainOutput(f, sink, logger)
			select {
			case <-stop:
				drainOutput(f, sink, logger)
				return
			case <-ticker.C:
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("listening, press Ctrl+C to quit")
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	mic.Close()
	if err := f.Close(); err != nil {
		logger.Warn("filter close", zap.Error(err))
	}
	close(stop)
	<-drained
	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Warn("finalizing wav", zap.Error(err))
		}
	}

	st := f.Stats()
	logger.Info("session summary",
		zap.Uint64("windows", st.WindowsTotal),
		zap.Uint64("filler_windows", st.FillerWindows),
		zap.Uint64("silent_windows", st.SilentWindows),
		zap.Uint64("dropped_packets", mic.Dropped()))
	return nil
}

// runFile pushes a decoded WAV through the filter at full speed, using the
// file's own sample rate and channel count.
func runFile(logger *zap.Logger, cfg *config.Config, met *metrics.Metrics, engine transcribe.Engine, path, savePath string) error {
	in, err := os.Open(path)
	if err != nil {
		engine.Close()
		return err
	}
	defer in.Close()

	dec := wav.NewDecoder(in)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		engine.Close()
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	if dec.BitDepth != 16 {
		engine.Close()
		return fmt.Errorf("%s: only 16-bit PCM supported, got %d-bit", path, dec.BitDepth)
	}
	rate := buf.Format.SampleRate
	channels := buf.Format.NumChannels
	planes := audio.Deinterleave(audio.PCM16ToFloat32(buf.Data), channels)
	if len(planes) == 0 || len(planes[0]) == 0 {
		engine.Close()
		return fmt.Errorf("%s: no audio data", path)
	}
	frames := len(planes[0])
	logger.Info("decoded file",
		zap.String("path", path),
		zap.Int("sample_rate", rate),
		zap.Int("channels", channels),
		zap.Duration("length", time.Duration(frames)*time.Second/time.Duration(rate)))

	f, err := filter.New(filter.Options{
		SampleRate:      rate,
		Channels:        channels,
		Engine:          engine,
		FillerThreshold: cfg.Filter.FillerPThreshold,
		Logger:          logger,
		Metrics:         met,
	})
	if err != nil {
		engine.Close()
		return err
	}
	defer f.Close()
	if err := f.Start(); err != nil {
		return err
	}

	// Feed the file as 10 ms packets with sample-accurate timestamps.
	packet := rate / 100
	if packet == 0 {
		packet = frames
	}
	for off := 0; off < frames; off += packet {
		n := min(packet, frames-off)
		sub := make([][]float32, channels)
		for c := range sub {
			sub[c] = planes[c][off : off+n]
		}
		ts := uint64(off) * uint64(time.Second) / uint64(rate)
		if err := f.Push(sub, n, ts); err != nil {
			return err
		}
	}

	// Pad with silence so the final partial window flushes.
	pad := make([][]float32, channels)
	for c := range pad {
		pad[c] = make([]float32, f.WindowFrames())
	}
	if err := f.Push(pad, f.WindowFrames(), uint64(frames)*uint64(time.Second)/uint64(rate)); err != nil {
		return err
	}

	var sink *wavSink
	if savePath != "" {
		sink, err = newWavSink(savePath, rate, channels)
		if err != nil {
			return err
		}
	}

	// Collect the passthrough, trimming the silence pad from the tail.
	received := 0
	deadline := time.Now().Add(2*time.Duration(frames)*time.Second/time.Duration(rate) + 30*time.Second)
	for received < frames && time.Now().Before(deadline) {
		chans, n, _, ok := f.Pull()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		keep := min(n, frames-received)
		if sink != nil && keep > 0 {
			trimmed := make([][]float32, channels)
			for c := range trimmed {
				trimmed[c] = chans[c][:keep]
			}
			if err := sink.write(trimmed, keep); err != nil {
				return err
			}
		}
		received += keep
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			return err
		}
		logger.Info("passthrough written", zap.String("path", savePath))
	}
	if received < frames {
		logger.Warn("incomplete passthrough", zap.Int("received", received), zap.Int("want", frames))
	}

	st := f.Stats()
	logger.Info("file processed",
		zap.Uint64("windows", st.WindowsTotal),
		zap.Uint64("filler_windows", st.FillerWindows),
		zap.Uint64("silent_windows", st.SilentWindows))
	return f.Close()
}

func drainOutput(f *filter.Filter, sink *wavSink, logger *zap.Logger) {
	for {
		chans, frames, _, ok := f.Pull()
		if !ok {
			return
		}
		if sink != nil {
			if err := sink.write(chans, frames); err != nil {
				logger.Warn("writing wav", zap.Error(err))
			}
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to the
// default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}

	return config.Default(), "defaults", nil
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(config.ParseLogLevel(level))
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}

// setupMetrics starts the Prometheus endpoint when an address is
// configured. The returned stop function shuts the server down.
func setupMetrics(addr string, logger *zap.Logger) (*metrics.Metrics, func()) {
	if addr == "" {
		return metrics.New(nil), func() {}
	}
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", zap.Error(err))
		}
	}()
	return met, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== cleanstream ===")
	fmt.Printf("  Model:     %s\n", cfg.Engine.ModelPath)
	fmt.Printf("  Audio:     %dHz, %dch\n", cfg.Audio.SampleRate, cfg.Audio.Channels)
	fmt.Printf("  Threshold: %.2f\n", cfg.Filter.FillerPThreshold)
	if cfg.Metrics.Addr != "" {
		fmt.Printf("  Metrics:   %s\n", cfg.Metrics.Addr)
	}
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("===================")
}

// wavSink writes passthrough packets to a 16-bit PCM WAV file.
type wavSink struct {
	f      *os.File
	enc    *wav.Encoder
	format *gaudio.Format
}

func newWavSink(path string, rate, channels int) (*wavSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &wavSink{
		f:      f,
		enc:    wav.NewEncoder(f, rate, 16, channels, 1),
		format: &gaudio.Format{NumChannels: channels, SampleRate: rate},
	}, nil
}

func (s *wavSink) write(planes [][]float32, frames int) error {
	channels := len(planes)
	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			v := planes[c][i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			data[i*channels+c] = int(v * 32767)
		}
	}
	return s.enc.Write(&gaudio.IntBuffer{Format: s.format, Data: data, SourceBitDepth: 16})
}

func (s *wavSink) Close() error {
	err := s.enc.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
