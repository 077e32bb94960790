package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"

	"mwlister/internal/config"
	"mwlister/internal/xerrors"
)

// stealthJS masks the usual automation fingerprints before any page
// script runs. MakerWorld sits behind Cloudflare and a bare headless
// chromium gets challenged immediately.
const stealthJS = `() => {
  Object.defineProperty(navigator,'webdriver',{get:()=>undefined});
  const q=navigator.permissions&&navigator.permissions.query;
  if(q){navigator.permissions.query = p=>p.name==='notifications'
    ? Promise.resolve({state: Notification.permission}) : q(p);}
  Object.defineProperty(navigator,'languages',{get:()=>['en-US','en']});
  Object.defineProperty(navigator,'plugins',{get:()=>[1,2,3,4]});
  Object.defineProperty(navigator,'hardwareConcurrency',{get:()=>8});
  window.chrome={runtime:{}};
}`

var challengeMarkers = []string{
	"just a moment",
	"verifying you are human",
	"cloudflare",
	"cf-ray",
	"cf-chl",
}

// ErrChallenged means every navigation attempt ended on the bot-check
// interstitial.
var ErrChallenged = errors.New("bot challenge not cleared")

type Browser struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	context   playwright.BrowserContext
	cfg       config.BrowserConfig
	headless  bool
	stateFile string
	timeout   time.Duration
	logger    *slog.Logger
}

// New launches chromium and opens a single context configured from cfg.
// The caller owns the returned Browser and must Close it.
func New(cfg config.BrowserConfig) (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b := &Browser{
		pw:        pw,
		cfg:       cfg,
		stateFile: cfg.StateFile,
		timeout:   cfg.Timeout,
		logger:    slog.Default().With("component", "browser"),
	}
	if err := b.launch(cfg.Headless); err != nil {
		pw.Stop()
		return nil, err
	}
	return b, nil
}

// launch starts chromium and a fresh context, replacing any previous
// browser/context fields. The playwright driver itself is kept.
func (b *Browser) launch(headless bool) error {
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--user-agent=" + b.cfg.UserAgent,
		},
	}
	if b.cfg.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: b.cfg.ProxyServer}
	}

	br, err := b.pw.Chromium.Launch(launchOpts)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:  playwright.String(b.cfg.UserAgent),
		Locale:     playwright.String(b.cfg.Locale),
		TimezoneId: playwright.String(b.cfg.TimezoneID),
		Viewport: &playwright.Size{
			Width:  b.cfg.ViewportWidth,
			Height: b.cfg.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": b.cfg.AcceptLanguage,
		},
	}
	// Reuse cookies from the previous run so a solved challenge sticks.
	if b.stateFile != "" {
		if _, err := os.Stat(b.stateFile); err == nil {
			contextOpts.StorageStatePath = playwright.String(b.stateFile)
		}
	}

	context, err := br.NewContext(contextOpts)
	if err != nil {
		br.Close()
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := context.AddInitScript(playwright.Script{Content: playwright.String(stealthJS)}); err != nil {
		context.Close()
		br.Close()
		return fmt.Errorf("failed to add init script: %w", err)
	}

	b.browser = br
	b.context = context
	b.headless = headless
	return nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))
	return page, nil
}

// SaveState persists cookies and local storage to the state file.
func (b *Browser) SaveState() error {
	if b.stateFile == "" {
		return nil
	}
	if _, err := b.context.StorageState(b.stateFile); err != nil {
		return fmt.Errorf("failed to save storage state: %w", err)
	}
	return nil
}

func (b *Browser) Close() error {
	var err error
	if b.context != nil {
		err = multierr.Append(err, b.context.Close())
	}
	if b.browser != nil {
		err = multierr.Append(err, b.browser.Close())
	}
	if b.pw != nil {
		err = multierr.Append(err, b.pw.Stop())
	}
	return err
}

// NavigateWithRetry loads url on page, waiting for DOM content, with a
// linear backoff between attempts. A Cloudflare interstitial counts as
// a failed attempt.
func (b *Browser) NavigateWithRetry(page playwright.Page, url string, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			time.Sleep(time.Duration(i+1) * time.Second)
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.timeout.Milliseconds())),
		})
		if err != nil {
			lastErr = err
			b.logger.Error("navigation failed", "error", err, "attempt", i+1)
			continue
		}

		// Best effort: the gallery hydrates after network idle.
		page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: playwright.Float(15000),
		})

		blocked, err := b.challengePresent(page)
		if err != nil {
			lastErr = err
			continue
		}
		if blocked {
			lastErr = fmt.Errorf("%w on %s", ErrChallenged, url)
			b.logger.Warn("bot challenge detected, waiting it out", "url", url, "attempt", i+1)
			// Managed challenges often clear on their own after a few
			// seconds with the stealth script in place.
			time.Sleep(8 * time.Second)
			if blocked, _ = b.challengePresent(page); !blocked {
				return nil
			}
			continue
		}
		return nil
	}

	return xerrors.Navigation(lastErr, "failed after %d attempts: %s", maxRetries, url)
}

// OpenPage creates a page and navigates to url with retry. When a
// headless session stays stuck on the challenge, the browser is
// relaunched headed once so the interstitial can render and clear the
// way it does for a manual run. Skipped when a proxy is configured,
// since the block is then tied to the exit IP rather than the
// fingerprint.
func (b *Browser) OpenPage(url string, maxRetries int) (playwright.Page, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, xerrors.Navigation(err, "opening %s", url)
	}
	navErr := b.NavigateWithRetry(page, url, maxRetries)
	if navErr == nil {
		return page, nil
	}
	page.Close()

	if !shouldRetryHeaded(navErr, b.headless, b.cfg.ProxyServer) {
		return nil, navErr
	}

	b.logger.Info("challenge persisted in headless mode, relaunching headed", "url", url)
	if err := b.relaunchHeaded(); err != nil {
		return nil, multierr.Append(navErr, err)
	}

	page, err = b.NewPage()
	if err != nil {
		return nil, xerrors.Navigation(err, "opening %s after headed relaunch", url)
	}
	if err := b.NavigateWithRetry(page, url, maxRetries); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

func shouldRetryHeaded(err error, headless bool, proxyServer string) bool {
	return headless && proxyServer == "" && errors.Is(err, ErrChallenged)
}

// relaunchHeaded tears down the headless session and starts a visible
// one, carrying cookies over through the state file.
func (b *Browser) relaunchHeaded() error {
	if err := b.SaveState(); err != nil {
		b.logger.Warn("could not save state before headed relaunch", "error", err)
	}
	var closeErr error
	closeErr = multierr.Append(closeErr, b.context.Close())
	closeErr = multierr.Append(closeErr, b.browser.Close())
	if closeErr != nil {
		b.logger.Warn("teardown before headed relaunch", "error", closeErr)
	}
	return b.launch(false)
}

func (b *Browser) challengePresent(page playwright.Page) (bool, error) {
	content, err := page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to get page content: %w", err)
	}
	return containsChallenge(content), nil
}

func containsChallenge(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// AutoScroll steps down the page so lazy-loaded gallery images get their
// real src attributes before extraction.
func (b *Browser) AutoScroll(page playwright.Page) {
	page.Evaluate(`() => window.scrollTo(0,0)`)
	for i := 0; i < 14; i++ {
		page.Evaluate(`() => window.scrollBy(0,900)`)
		time.Sleep(120 * time.Millisecond)
	}
}
