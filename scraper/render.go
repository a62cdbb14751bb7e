package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-price-scout/metrics"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Renderer returns the markup of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, rawURL, waitSelector string) (string, error)
	Close() error
}

const (
	requestIdle   = 500 * time.Millisecond
	containerWait = 5 * time.Second
)

// Resource types aborted while rendering; they never affect result markup.
var blockedResources = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeMedia:      true,
}

// BrowserRenderer drives one headless browser shared by every render. The
// browser is launched on first use and lives until Close.
type BrowserRenderer struct {
	binPath   string
	userAgent string
	timeout   time.Duration
	metrics   *metrics.Metrics

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	closed   bool
}

// NewBrowserRenderer prepares a renderer. binPath may be empty, in which case
// rod locates or downloads a browser.
func NewBrowserRenderer(binPath, userAgent string, timeout time.Duration, m *metrics.Metrics) *BrowserRenderer {
	return &BrowserRenderer{
		binPath:   binPath,
		userAgent: userAgent,
		timeout:   timeout,
		metrics:   m,
	}
}

func (r *BrowserRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("renderer closed")
	}
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(false)
	if r.binPath != "" {
		l = l.Bin(r.binPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	slog.Info("browser launched", slog.String("control_url", controlURL))
	r.launcher = l
	r.browser = browser
	return browser, nil
}

// Render opens rawURL in a fresh incognito context with heavy resources
// blocked, waits for the network to settle and, best effort, for
// waitSelector, then returns the document markup.
func (r *BrowserRenderer) Render(ctx context.Context, rawURL, waitSelector string) (string, error) {
	browser, err := r.ensureBrowser()
	if err != nil {
		return "", err
	}

	start := time.Now()
	defer func() { r.metrics.ObserveFetch("render", time.Since(start)) }()

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("open incognito context: %w", err)
	}
	defer func() {
		if err := incognito.Close(); err != nil {
			slog.Debug("close incognito context", slog.Any("error", err))
		}
	}()

	raw, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	page := raw.Context(ctx).Timeout(r.timeout)
	defer page.CancelTimeout()

	if r.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.userAgent}); err != nil {
			return "", fmt.Errorf("set user agent: %w", err)
		}
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if blockedResources[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return "", fmt.Errorf("install request filter: %w", err)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	waitIdle := page.WaitRequestIdle(requestIdle, nil, nil, nil)
	if err := page.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	waitIdle()

	if waitSelector != "" {
		wait := containerWait
		if r.timeout < wait {
			wait = r.timeout
		}
		waiting := page.Timeout(wait)
		_, err := waiting.Element(waitSelector)
		waiting.CancelTimeout()
		if err != nil {
			slog.Debug("container did not appear",
				slog.String("url", rawURL),
				slog.String("selector", waitSelector),
				slog.Any("error", err),
			)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("capture markup: %w", err)
	}
	return html, nil
}

// Close shuts the browser down. It is safe to call more than once and on a
// renderer that never launched.
func (r *BrowserRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launcher.Kill()
	r.browser = nil
	r.launcher = nil
	return err
}
