package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// defaultStepTimeout mirrors the page timeout used by the router automation.
const defaultStepTimeout = 60 * time.Second

// ChromeSessions returns a SessionFactory backed by a local Chromium through chromedp.
func ChromeSessions(headless bool, stepTimeout time.Duration) SessionFactory {
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	return func(ctx context.Context) (Session, error) {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", headless),
			chromedp.Flag("ignore-certificate-errors", true),
		)
		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
		tabCtx, tabCancel := chromedp.NewContext(allocCtx)

		// Starts the browser so launch failures surface here.
		if err := chromedp.Run(tabCtx); err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("start chromium: %w", err)
		}
		return &chromeSession{
			ctx:         tabCtx,
			stepTimeout: stepTimeout,
			cancel: func() {
				tabCancel()
				allocCancel()
			},
		}, nil
	}
}

type chromeSession struct {
	ctx         context.Context
	stepTimeout time.Duration
	cancel      func()
}

func (s *chromeSession) run(actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.stepTimeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (s *chromeSession) Navigate(url string) error {
	return s.run(chromedp.Navigate(url))
}

func (s *chromeSession) WaitVisible(selector string) error {
	return s.run(chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromeSession) SendKeys(selector, value string) error {
	return s.run(chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (s *chromeSession) Click(selector string) error {
	return s.run(chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromeSession) Exists(selector string) (bool, error) {
	var found bool
	err := s.run(chromedp.Evaluate(fmt.Sprintf("document.querySelector(%q) !== null", selector), &found))
	return found, err
}

// Close shuts the browser down and releases the allocator.
func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	return err
}
