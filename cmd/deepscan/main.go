// Command deepscan is a terminal client for the Deep Scanner backend: it
// uploads PDFs, streams scans over them, keeps a history of past analyses
// and chats about the selected documents.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jwulff/deepscan/internal/api"
	"github.com/jwulff/deepscan/internal/app"
	"github.com/jwulff/deepscan/internal/chat"
	"github.com/jwulff/deepscan/internal/config"
	"github.com/jwulff/deepscan/internal/history"
	"github.com/jwulff/deepscan/internal/logging"
	"github.com/jwulff/deepscan/internal/upload"
)

func main() {
	var (
		configPath = flag.String("config", filepath.Join(config.StateDir(), "config.yaml"), "path to the YAML config file")
		pro        = flag.Bool("pro", false, "use the chunked Pro pipeline")
		uploadPath = flag.String("upload", "", "PDF to upload on start")
		chatID     = flag.String("chat", "", "stored chat session to resume")
	)
	flag.Parse()

	if err := run(*configPath, *pro, *uploadPath, *chatID); err != nil {
		fmt.Fprintf(os.Stderr, "deepscan: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, pro bool, uploadPath, chatID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if pro {
		cfg.Scan.Pro = true
	}
	if chatID != "" && cfg.Scan.Pro {
		return errors.New("-chat resumes standard chat sessions only")
	}

	log := logging.New(cfg.Log.Path, cfg.Log.Debug)
	defer log.Sync()

	store, err := history.Open(cfg.History.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	client := api.New(cfg.API.BaseURL, cfg.API.Timeout, log)
	deps := app.Deps{
		API:     client,
		History: history.NewCache(client, cfg.Scan.Pro, store, cfg.History.TTL, log),
		Uploader: upload.NewDriver(client, upload.Options{
			ChunkSize: int(cfg.Upload.ChunkSize),
			Range:     upload.Range{Lo: int(cfg.Upload.ProgressLo), Hi: int(cfg.Upload.ProgressHi)},
		}, log),
		Chat:        chat.NewSender(client, cfg.Scan.Pro, cfg.API.GeminiAPIKey),
		Transcripts: client,
		Log:         log,
	}
	opts := app.Options{
		Pro:           cfg.Scan.Pro,
		APIKey:        cfg.API.GeminiAPIKey,
		Model:         cfg.Scan.Model,
		Speed:         cfg.Scan.Speed,
		RelevanceMode: cfg.Scan.RelevanceMode,
		UploadPath:    uploadPath,
		PageStart:     cfg.Scan.PageStart,
		PageEnd:       cfg.Scan.PageEnd,
		ChatSessionID: chatID,
	}

	log.Info("starting",
		zap.String("base_url", cfg.API.BaseURL),
		zap.Bool("pro", cfg.Scan.Pro),
	)

	p := tea.NewProgram(app.New(deps, opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
