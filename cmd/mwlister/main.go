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
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mwlister/internal/browser"
	"mwlister/internal/config"
	"mwlister/internal/mapper"
	"mwlister/internal/media"
	"mwlister/internal/parser"
	"mwlister/internal/pipeline"
	"mwlister/internal/scraper"
	"mwlister/internal/sheet"
	"mwlister/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Env defaults may come from a local .env; missing is fine.
	godotenv.Load()

	f := parseFlags()

	cfg, err := config.Load(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		flag.Usage()
		return 1
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Resolve the template before touching the network, so an unreadable
	// template fails the run with nothing half-done. An unrecognized
	// header is not fatal: the writer falls back to a minimal layout.
	if _, err := sheet.Load(cfg.TemplatePath, cfg.SheetName); err != nil {
		if !errors.Is(err, sheet.ErrNoHeader) {
			logger.Error("template unusable", "path", cfg.TemplatePath, "error", err)
			return 1
		}
		logger.Warn("template header not recognized, minimal layout will be used",
			"path", cfg.TemplatePath, "error", err)
	}

	descTmpl := ""
	if cfg.DescTemplate != "" {
		data, err := os.ReadFile(cfg.DescTemplate)
		if err != nil {
			logger.Error("failed to read description template", "path", cfg.DescTemplate, "error", err)
			return 1
		}
		descTmpl = string(data)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	logger.Info("starting run",
		"keyword", cfg.Keyword, "max", cfg.MaxResults, "output", cfg.OutputPath)

	b, err := browser.New(cfg.Browser)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		return 1
	}
	defer func() {
		if err := b.SaveState(); err != nil {
			logger.Warn("failed to save browser state", "error", err)
		}
		if err := b.Close(); err != nil {
			logger.Warn("browser teardown reported errors", "error", err)
		}
	}()

	p := parser.NewMakerWorldParser(cfg.Scraper.BaseURL)
	s := scraper.New(b, p, cfg.Scraper, logger)

	fetcher := media.NewHTTPFetcher(&http.Client{Timeout: cfg.Media.DownloadTimeout}, cfg.Browser.UserAgent)
	transcoder := media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.ConvertTimeout)
	handler := media.NewHandler(fetcher, transcoder, cfg.Media, cfg.DownloadDir, cfg.AllowGIF, logger)

	m := mapper.New(cfg.Commerce, cfg.SKUPrefix, descTmpl)
	writer := sheet.NewWriter(cfg.TemplatePath, cfg.SheetName, logger)
	manifest := storage.NewManifest(cfg.DownloadDir, cfg.Keyword)

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		logger.Error("failed to create download directory", "path", cfg.DownloadDir, "error", err)
		return 1
	}

	pipe := pipeline.New(cfg, s, handler, m, writer, manifest, logger)

	summary, err := pipe.Run(ctx)
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}

	fmt.Printf("Done: %d rows written to %s (%d listings skipped, media %d ok / %d failed)\n",
		summary.Rows, cfg.OutputPath, summary.ListingsFail, summary.MediaOK, summary.MediaFailed)
	fmt.Println("Metadata:", cfg.MetaOutPath)

	return 0
}

func parseFlags() config.Flags {
	var f config.Flags

	flag.StringVar(&f.Keyword, "k", "", "search keyword")
	flag.StringVar(&f.Keyword, "keyword", "", "search keyword")
	flag.IntVar(&f.MaxResults, "m", 1, "max listings to fetch")
	flag.IntVar(&f.MaxResults, "max", 1, "max listings to fetch")
	flag.StringVar(&f.TemplatePath, "template", "", "path to the upload spreadsheet template")
	flag.StringVar(&f.OutputPath, "o", "shopee_ready.xlsx", "output spreadsheet path")
	flag.StringVar(&f.OutputPath, "out", "shopee_ready.xlsx", "output spreadsheet path")
	flag.StringVar(&f.DescTemplate, "desc-template", "", "description template file")
	flag.StringVar(&f.CategoryID, "category-id", "", "marketplace category id")
	flag.StringVar(&f.Brand, "brand", "No Brand", "brand")
	flag.StringVar(&f.Price, "price", "45000", "unit price")
	flag.IntVar(&f.Stock, "stock", 20, "stock quantity")
	flag.Float64Var(&f.WeightKG, "weight-kg", 0.15, "item weight in kilograms")
	flag.StringVar(&f.Dims, "dims", "10,10,3", "package dimensions: length,width,height in cm")
	flag.StringVar(&f.SKUPrefix, "sku-prefix", "MW", "SKU prefix")
	flag.StringVar(&f.MetaOutPath, "meta-out", "meta.csv", "metadata CSV output path")
	flag.StringVar(&f.DownloadDir, "download-dir", "downloads", "directory for downloaded media")
	flag.BoolVar(&f.AllowGIF, "allow-gif", false, "keep GIFs as is instead of converting to MP4")
	flag.StringVar(&f.SheetName, "sheet", "", "sheet name when the template has several tabs")
	flag.StringVar(&f.Proxy, "proxy", "", "proxy server, e.g. http://host:port")
	flag.BoolVar(&f.Headless, "headless", true, "run the browser headless")
	flag.DurationVar(&f.RunTimeout, "run-timeout", 15*time.Minute, "overall run timeout")

	flag.Usage = usage
	flag.Parse()

	return f
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -k <keyword> --template <file.xlsx> --category-id <id> [options]\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Options:")
	flag.PrintDefaults()
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
