// Command render renders one template to an MP4 file without the HTTP
// service.
//
//	render -template promo.yaml -placeholders values.json -out promo.mp4
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/MimeLyc/timeline-renderer/internal/config"
	"github.com/MimeLyc/timeline-renderer/internal/fetch"
	"github.com/MimeLyc/timeline-renderer/internal/media"
	"github.com/MimeLyc/timeline-renderer/internal/render"
	"github.com/MimeLyc/timeline-renderer/internal/template"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

func main() {
	templatePath := flag.String("template", "", "template file (.json, .yaml or .yml)")
	placeholdersPath := flag.String("placeholders", "", "JSON object of placeholder values")
	uploadDir := flag.String("uploads", "", "directory that asset ids resolve against")
	out := flag.String("out", "render.mp4", "output MP4 path")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Warn("Failed to load .env: %v", err)
	}
	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	if *templatePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	req, err := loadRequest(*templatePath, *placeholdersPath)
	if err != nil {
		log.Fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := renderFile(ctx, cfg, req, *uploadDir, *out); err != nil {
		log.Fatal("Render failed: %v", err)
	}
}

func renderFile(ctx context.Context, cfg *config.Config, req template.Request, uploadDir, out string) error {
	target, err := filepath.Abs(out)
	if err != nil {
		return err
	}
	work, err := os.MkdirTemp("", "render-fetch-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	ff := media.NewFfmpeg(cfg.Engine.FFmpegPath, cfg.Engine.FFprobePath)
	renderer := render.NewRenderer(
		fetch.New(work, fetch.WithTimeout(cfg.Fetch.Timeout)),
		ff,
		movePublisher{target: target},
		filepath.Dir(target),
		render.WithProber(ff),
		render.WithFonts(cfg.Engine.FontFile, cfg.Engine.FontFileCJK),
		render.WithEncodeTimeout(cfg.Engine.EncodeTimeout),
		render.WithUploadDir(uploadDir),
		render.WithSettings(func() media.Settings {
			return media.Settings{Preset: cfg.Engine.Preset, CRF: cfg.Engine.CRF}
		}),
	)

	id := uuid.NewString()
	output, err := renderer.Render(ctx, id, req, &progressLogger{})
	if err != nil {
		return err
	}
	log.Info("Wrote %s (%s)", output.URL, output.Resolution)
	return nil
}

func loadRequest(templatePath, placeholdersPath string) (template.Request, error) {
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return template.Request{}, err
	}

	var tpl template.Template
	switch strings.ToLower(filepath.Ext(templatePath)) {
	case ".yaml", ".yml":
		tpl, err = template.DecodeYAML(data)
	default:
		tpl, err = template.DecodeJSON(data)
	}
	if err != nil {
		return template.Request{}, fmt.Errorf("%s: %w", templatePath, err)
	}

	req := template.Request{Template: tpl, Source: "cli"}
	if placeholdersPath == "" {
		return req, nil
	}
	raw, err := os.ReadFile(placeholdersPath)
	if err != nil {
		return template.Request{}, err
	}
	if err := json.Unmarshal(raw, &req.Placeholders); err != nil {
		return template.Request{}, fmt.Errorf("%s: %w", placeholdersPath, err)
	}
	return req, nil
}

// movePublisher renames the finished render onto the requested path.
type movePublisher struct {
	target string
}

func (p movePublisher) Publish(_ context.Context, localPath string) (string, error) {
	if localPath == p.target {
		return p.target, nil
	}
	if err := os.Rename(localPath, p.target); err != nil {
		return "", err
	}
	return p.target, nil
}

type progressLogger struct {
	last int
}

func (p *progressLogger) Progress(percent int) {
	if percent < p.last+10 && percent != 1 {
		return
	}
	p.last = percent
	log.Info("Progress %d%%", percent)
}
