package scrape

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	titleSelector     = "h1#firstHeading span.mw-page-title-main"
	paragraphSelector = ".prp-pages-output p"
)

// Config controls the browser used for scraping.
type Config struct {
	BaseURL string

	// Headless hides the browser window.
	Headless bool

	// Timeout bounds navigation and page load.
	Timeout time.Duration

	// OutputDir receives the scraped text and screenshot. Empty disables
	// saving artifacts.
	OutputDir string

	// BrowserBin overrides the browser binary. Empty lets rod download or
	// locate one.
	BrowserBin string
}

// DefaultConfig returns the scraper defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Headless:  true,
		Timeout:   30 * time.Second,
		OutputDir: ".",
	}
}

// RodFetcher scrapes chapters with a Chromium browser driven by rod.
type RodFetcher struct {
	config Config
	logger *zap.Logger
}

// NewRodFetcher creates a fetcher. A browser is launched per Fetch.
func NewRodFetcher(config Config, logger *zap.Logger) *RodFetcher {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodFetcher{config: config, logger: logger.Named("scraper")}
}

// Fetch loads the chapter page and extracts its text. A page that does not
// exist or has no chapter text is returned with Valid false and a nil error;
// errors are reserved for browser failures.
func (f *RodFetcher) Fetch(ctx context.Context, target Target) (Page, error) {
	if err := target.Validate(); err != nil {
		return Page{}, err
	}
	result := Page{URL: target.URL(f.config.BaseURL)}
	logger := f.logger.With(zap.String("url", result.URL))
	logger.Info("scraping chapter")

	launch := launcher.New().Headless(f.config.Headless)
	if f.config.BrowserBin != "" {
		launch = launch.Bin(f.config.BrowserBin)
	}
	controlURL, err := launch.Context(ctx).Launch()
	if err != nil {
		return result, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer launch.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return result, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return result, fmt.Errorf("failed to open page: %w", err)
	}
	page = page.Timeout(f.config.Timeout)

	if err := page.Navigate(result.URL); err != nil {
		return result, fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return result, fmt.Errorf("failed to load page: %w", err)
	}

	has, heading, err := page.Has(titleSelector)
	if err != nil {
		return result, fmt.Errorf("failed to find title: %w", err)
	}
	if !has {
		logger.Warn("page title element not found, likely an invalid page")
		return result, nil
	}
	result.Title, err = heading.Text()
	if err != nil {
		return result, fmt.Errorf("failed to read title: %w", err)
	}
	if invalidTitle(result.Title) {
		logger.Info("page title indicates an invalid chapter", zap.String("title", result.Title))
		return result, nil
	}

	elements, err := page.Elements(paragraphSelector)
	if err != nil {
		return result, fmt.Errorf("failed to find paragraphs: %w", err)
	}
	paragraphs := make([]string, 0, len(elements))
	for _, el := range elements {
		text, err := el.Text()
		if err != nil {
			return result, fmt.Errorf("failed to read paragraph: %w", err)
		}
		paragraphs = append(paragraphs, text)
	}

	result.Text = JoinParagraphs(paragraphs)
	if result.Text == "" {
		logger.Info("no chapter paragraphs found")
		return result, nil
	}
	result.Valid = true

	if f.config.OutputDir != "" {
		if err := f.saveArtifacts(page, target, &result); err != nil {
			// the text is still usable without saved artifacts
			logger.Warn("failed to save scrape artifacts", zap.Error(err))
		}
	}

	logger.Info("chapter scraped",
		zap.String("title", result.Title),
		zap.Int("paragraphs", len(paragraphs)))
	return result, nil
}

func (f *RodFetcher) saveArtifacts(page *rod.Page, target Target, result *Page) error {
	if err := os.MkdirAll(f.config.OutputDir, 0o755); err != nil {
		return err
	}

	textPath := filepath.Join(f.config.OutputDir, "scraped_content_"+target.fileStem()+".txt")
	if err := os.WriteFile(textPath, []byte(result.Text), 0o644); err != nil {
		return err
	}
	result.TextPath = textPath

	shot, err := page.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	shotPath := filepath.Join(f.config.OutputDir, "screenshot_"+target.fileStem()+".png")
	if err := os.WriteFile(shotPath, shot, 0o644); err != nil {
		return err
	}
	result.ScreenshotPath = shotPath
	return nil
}
