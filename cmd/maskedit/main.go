package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gogpu/gg"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"google.golang.org/genai"

	"github.com/shouni/gemini-mask-kit/pkg/adapters"
	"github.com/shouni/gemini-mask-kit/pkg/config"
	"github.com/shouni/gemini-mask-kit/pkg/generator"
	"github.com/shouni/gemini-mask-kit/pkg/imgutil"
	"github.com/shouni/gemini-mask-kit/pkg/mask"
	"github.com/shouni/gemini-mask-kit/pkg/seed"
	"github.com/shouni/gemini-mask-kit/pkg/server"
	"github.com/shouni/gemini-mask-kit/pkg/sse"
	"github.com/shouni/gemini-mask-kit/pkg/store"
)

const (
	fetchTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	topicSeed       = "seed"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	gg.SetLogger(logger)

	if err := run(); err != nil {
		slog.Error("サーバーが異常終了しました", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flag.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "listen address")
	flag.StringVar(&cfg.GeminiModel, "model", cfg.GeminiModel, "image model name")
	flag.IntVar(&cfg.Generator.Variations, "variations", cfg.Generator.Variations, "variations per request")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return err
	}

	regions, cache, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	core, err := adapters.NewGeminiImageCore(nil, httpkit.New(fetchTimeout), cache, cfg.CacheTTL)
	if err != nil {
		return err
	}
	provider, err := adapters.NewGeminiProvider(client.Models, core, cfg.GeminiModel, cfg.SafetyThreshold)
	if err != nil {
		return err
	}
	legacy, err := adapters.NewLegacyProvider(adapters.NewGenAIPartsGenerator(client.Models), core, cfg.GeminiModel)
	if err != nil {
		return err
	}

	hub := sse.NewHub()
	go hub.Run(ctx)

	seeds := seed.New()
	unsubscribe := seeds.Subscribe(func(e seed.Event) {
		if err := hub.PublishJSON(topicSeed, e); err != nil {
			slog.Warn("シード変更イベントの送信に失敗しました", "error", err)
		}
	})
	defer unsubscribe()

	orchestrator, err := generator.NewOrchestrator(
		provider, core, seeds, imgutil.NewStandardizer(), cfg.Generator,
		generator.WithLegacyProvider(legacy),
	)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Dependencies{
		Runner:   orchestrator,
		Seeds:    seeds,
		Regions:  regions,
		Renderer: mask.NewGGRenderer(),
		Hub:      hub,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router()}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP サーバーを起動します", "addr", cfg.HTTPAddr, "model", cfg.GeminiModel)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("シャットダウンします")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openStores は REDIS_ADDR が指定されていれば Redis を、なければメモリ上のストアを返します。
func openStores(ctx context.Context, cfg config.Config) (store.RegionStore, adapters.ImageCacher, func(), error) {
	if cfg.RedisAddr == "" {
		return store.NewMemoryRegionStore(), store.NewMemoryImageCache(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, err
	}
	regions, err := store.NewRedisRegionStore(rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, nil, err
	}
	slog.Info("Redis に接続しました", "addr", cfg.RedisAddr)
	return regions, store.NewRedisImageCache(rdb), func() { _ = rdb.Close() }, nil
}
