// Package capture drives a headless browser to screenshot rendered card pages.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/socialcards/internal/cards"
)

const defaultNavigationTimeout = 30 * time.Second

// Config controls the behavior of the chromedp capturer.
type Config struct {
	// NavigationTimeout bounds navigation, the ready wait and the screenshot itself.
	NavigationTimeout time.Duration
	// ReadySelector, when set, is awaited before the quiescence wait.
	// The quiescence wait still applies afterwards.
	ReadySelector string
	// ExecPath overrides the browser binary chromedp would discover.
	ExecPath string
	// Fs receives the PNG files. Defaults to the OS filesystem.
	Fs afero.Fs
}

// Chromedp implements cards.Capturer with one fresh headless Chrome per capture.
type Chromedp struct {
	cfg       Config
	fs        afero.Fs
	allocOpts []chromedp.ExecAllocatorOption
	logger    *zap.Logger
}

// NewChromedp creates a capturer. It does not start a browser.
func NewChromedp(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if cfg.NavigationTimeout < 0 {
		return nil, fmt.Errorf("navigation timeout must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.NoSandbox,
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	return &Chromedp{
		cfg:       cfg,
		fs:        fs,
		allocOpts: opts,
		logger:    logger,
	}, nil
}

// Capture launches a browser, renders req.URL at exactly req.Width x req.Height
// with a device scale factor of 1, waits, and writes the clipped PNG to req.Destination.
// The browser is torn down on every return path.
func (c *Chromedp) Capture(ctx context.Context, req cards.CaptureRequest) error {
	if req.Width <= 0 || req.Height <= 0 {
		return cards.NewCaptureError(req, cards.StageLaunch, fmt.Errorf("invalid size %dx%d", req.Width, req.Height))
	}
	if req.Destination == "" {
		return cards.NewCaptureError(req, cards.StageWrite, errors.New("destination is required"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.allocOpts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx); err != nil {
		return cards.NewCaptureError(req, cards.StageLaunch, fmt.Errorf("start browser: %w", err))
	}

	status := newDocumentStatus()
	chromedp.ListenTarget(browserCtx, status.captureEvent)

	if err := c.navigate(browserCtx, req, status); err != nil {
		return cards.NewCaptureError(req, cards.StageNavigate, err)
	}

	png, err := c.screenshot(browserCtx, req)
	if err != nil {
		return cards.NewCaptureError(req, cards.StageCapture, err)
	}

	if err := writeAtomic(c.fs, req.Destination, png); err != nil {
		return cards.NewCaptureError(req, cards.StageWrite, err)
	}
	return nil
}

func (c *Chromedp) navigate(ctx context.Context, req cards.CaptureRequest, status *documentStatus) error {
	navCtx, cancel := context.WithTimeout(ctx, c.navTimeout())
	defer cancel()

	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.EmulateViewport(int64(req.Width), int64(req.Height), chromedp.EmulateScale(1)),
		chromedp.Navigate(req.URL),
	}
	if err := chromedp.Run(navCtx, tasks); err != nil {
		return fmt.Errorf("chromedp navigate: %w", err)
	}
	if code := status.code(); code != 0 && (code < 200 || code > 299) {
		return fmt.Errorf("unexpected status %d", code)
	}

	if c.cfg.ReadySelector != "" {
		if err := chromedp.Run(navCtx, chromedp.WaitVisible(c.cfg.ReadySelector, chromedp.ByQuery)); err != nil {
			c.logger.Warn("ready selector not found, falling back to fixed wait",
				zap.String("url", req.URL),
				zap.String("selector", c.cfg.ReadySelector),
				zap.Error(err),
			)
		}
	}
	return nil
}

// screenshot applies the quiescence wait and grabs the clip. The wait is a fixed
// delay that lets fonts, images and client-side layout settle; it races with slow pages.
func (c *Chromedp) screenshot(ctx context.Context, req cards.CaptureRequest) ([]byte, error) {
	captureCtx, cancel := context.WithTimeout(ctx, req.Quiescence+c.navTimeout())
	defer cancel()

	var buf []byte
	tasks := chromedp.Tasks{
		chromedp.Sleep(req.Quiescence),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, err := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(&page.Viewport{
					X:      0,
					Y:      0,
					Width:  float64(req.Width),
					Height: float64(req.Height),
					Scale:  1,
				}).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("capture screenshot: %w", err)
			}
			buf = data
			return nil
		}),
	}
	if err := chromedp.Run(captureCtx, tasks); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if len(buf) == 0 {
		return nil, errors.New("empty screenshot")
	}
	return buf, nil
}

func (c *Chromedp) navTimeout() time.Duration {
	if c.cfg.NavigationTimeout > 0 {
		return c.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// documentStatus records the status of the first document response.
type documentStatus struct {
	mu     sync.Mutex
	seen   bool
	status int
}

func newDocumentStatus() *documentStatus {
	return &documentStatus{}
}

func (d *documentStatus) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen {
		return
	}
	d.seen = true
	d.status = int(resp.Response.Status)
}

func (d *documentStatus) code() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}
