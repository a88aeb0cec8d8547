package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/internal/config"
)

// DefaultAllocatorOptions translates the browser configuration into chromedp
// exec allocator options.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts,
			chromedp.Flag("ignore-certificate-errors", true),
			chromedp.Flag("allow-insecure-localhost", true),
		)
	}
	for _, arg := range cfg.Args {
		trimmed := strings.TrimPrefix(arg, "--")
		if name, value, found := strings.Cut(trimmed, "="); found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(trimmed, true))
		}
	}
	return opts
}

// Manager owns the browser process allocator and hands out tab contexts for
// browser-driven actions.
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewManager starts the exec allocator. The browser process itself launches
// lazily with the first session.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(cfg)...)
	return &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		logger:      logger.Named("browser"),
	}
}

// NewSession opens a fresh tab and navigates to the initial URL. The caller
// must invoke the returned cancel func to release the tab.
func (m *Manager) NewSession(initialURL string, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx, chromedp.WithLogf(m.logger.Sugar().Debugf))
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		tabCtx, timeoutCancel = context.WithTimeout(tabCtx, timeout)
		orig := tabCancel
		tabCancel = func() {
			timeoutCancel()
			orig()
		}
	}

	if initialURL != "" {
		if err := chromedp.Run(tabCtx, chromedp.Navigate(initialURL)); err != nil {
			tabCancel()
			return nil, nil, fmt.Errorf("failed to open initial URL %q: %w", initialURL, err)
		}
		m.logger.Info("Browser session started", zap.String("url", initialURL))
	}

	return tabCtx, tabCancel, nil
}

// stepBudget bounds how long one agent step may take inside a session.
const stepBudget = 30 * time.Second

// Visit opens a session at the initial URL and reports where the page landed
// after navigation. The session budget scales with the allowed step count.
func (m *Manager) Visit(ctx context.Context, initialURL string, maxSteps int) (string, error) {
	if maxSteps <= 0 {
		maxSteps = 1
	}

	tabCtx, tabCancel, err := m.NewSession(initialURL, time.Duration(maxSteps)*stepBudget)
	if err != nil {
		return "", err
	}
	defer tabCancel()

	// Release the tab early when the caller abandons the request.
	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-tabCtx.Done():
		}
	}()

	return CurrentURL(tabCtx)
}

// CurrentURL reports the location of the session's active page.
func CurrentURL(tabCtx context.Context) (string, error) {
	var loc string
	if err := chromedp.Run(tabCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return loc, nil
}

// Shutdown terminates the browser process.
func (m *Manager) Shutdown() {
	m.logger.Info("Terminating browser process")
	m.allocCancel()
}
