// Package render drives a single shared headless Chrome instance and
// opens one fresh page per scrape attempt, grounded on the navigation
// and resource-blocking style of 5u5urrus-PathFinder's render manager
// but adapted from a crawl-time heuristic into the per-request fetch
// path described by the worker attempt protocol.
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// WaitStrategy selects how long Navigate waits before considering the
// page loaded, per the worker attempt protocol's wait-condition table.
type WaitStrategy string

const (
	WaitFast          WaitStrategy = "fast"
	WaitBasic         WaitStrategy = "basic"
	WaitModerate      WaitStrategy = "moderate"
	WaitComprehensive WaitStrategy = "comprehensive"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

// DefaultUserAgent is sent on every navigation unless Options.UserAgent
// overrides it.
const DefaultUserAgent = "url-content-fetcher/1.0 (+headless-chrome)"

// Options configures one Navigate call, built from the worker's
// environment configuration (§6 table: WAIT_STRATEGY, PUPPETEER_TIMEOUT,
// DISABLE_IMAGES, DISABLE_CSS, DYNAMIC_WAIT_MS).
type Options struct {
	WaitStrategy  WaitStrategy
	Timeout       time.Duration
	DisableImages bool
	DisableCSS    bool
	DynamicWait   time.Duration
	UserAgent     string
}

// Result is everything the worker attempt protocol needs out of one
// navigation: the serialized DOM, its content type, the HTTP status of
// the final response, the final URL, and the chain of URLs visited via
// redirect.
type Result struct {
	Content       string
	ContentType   string
	HTTPStatus    int
	FinalURL      string
	RedirectChain []string
	HasResponse   bool
}

// ContentHash returns the SHA-256 hash of Content as a lowercase hex
// string, per §4.6 step 8.
func (r Result) ContentHash() string {
	sum := sha256.Sum256([]byte(r.Content))
	return hex.EncodeToString(sum[:])
}

// ContentLength is the UTF-8 byte length of Content, per §4.6 step 8.
func (r Result) ContentLength() int {
	return len([]byte(r.Content))
}

// Browser owns one long-lived headless Chrome process. Pages opened via
// NewPage are independent chromedp contexts sharing that process,
// matching the attempt protocol's "single long-lived browser process,
// fresh page per attempt" requirement.
type Browser struct {
	allocCtx context.Context
	cancel   context.CancelFunc
}

// Launch starts headless Chrome with a fixed 1920x1080 viewport baked
// into every tab via the window-size flag, mirroring StartRenderManager's
// single persistent chromedp allocator.
func Launch(ctx context.Context) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(viewportWidth, viewportHeight),
		chromedp.Flag("headless", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch headless chrome: %w", err)
	}

	return &Browser{
		allocCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

// Close shuts down the shared Chrome process. All pages must already be
// closed.
func (b *Browser) Close() {
	b.cancel()
}

// Navigate opens a fresh page against target, applies opts, and returns
// the attempt Result. The page is always closed before returning,
// matching §4.6 step 10's finally-close-page guarantee.
func (b *Browser) Navigate(ctx context.Context, target string, opts Options) (Result, error) {
	pageCtx, pageCancel := chromedp.NewContext(b.allocCtx)
	defer pageCancel()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(pageCtx, timeout)
	defer navCancel()

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	var redirectChain []string
	var finalStatus int64
	var finalURL string
	var contentType string
	var sawResponse bool

	chromedp.ListenTarget(navCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.RedirectResponse != nil {
				redirectChain = append(redirectChain, e.RedirectResponse.URL)
			}
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument {
				sawResponse = true
				finalStatus = e.Response.Status
				finalURL = e.Response.URL
				contentType = e.Response.MimeType
			}
		}
	})

	if opts.DisableImages || opts.DisableCSS {
		if err := chromedp.Run(navCtx, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}})); err != nil {
			return Result{}, fmt.Errorf("enable resource interception: %w", err)
		}
		blockInterceptedResources(navCtx, opts)
	}

	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetUserAgentOverride(ua).Do(ctx)
		}),
		chromedp.Navigate(target),
		waitAction(opts.WaitStrategy),
	}
	if err := chromedp.Run(navCtx, tasks); err != nil {
		return Result{}, err
	}

	if opts.DynamicWait > 0 {
		if err := chromedp.Run(navCtx, chromedp.Sleep(opts.DynamicWait)); err != nil {
			return Result{}, err
		}
	}

	var content string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return Result{}, err
	}

	if contentType == "" {
		contentType = "text/html"
	}
	if finalURL == "" {
		finalURL = target
	}

	return Result{
		Content:       content,
		ContentType:   contentType,
		HTTPStatus:    int(finalStatus),
		FinalURL:      finalURL,
		RedirectChain: redirectChain,
		HasResponse:   sawResponse,
	}, nil
}

// blockInterceptedResources installs a fetch.EventRequestPaused listener
// that fails requests for resource types disabled via opts, mirroring
// StartRenderManager's resource-type switch.
func blockInterceptedResources(ctx context.Context, opts Options) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}

		blocked := false
		switch e.ResourceType {
		case network.ResourceTypeImage:
			blocked = opts.DisableImages
		case network.ResourceTypeStylesheet:
			blocked = opts.DisableImages || opts.DisableCSS
		case network.ResourceTypeFont:
			blocked = opts.DisableImages
		}

		go func() {
			if blocked {
				_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
			} else {
				_ = fetch.ContinueRequest(e.RequestID).Do(ctx)
			}
		}()
	})
}

// waitAction returns the chromedp action run after navigation for a wait
// strategy: fast waits until the html element is visible, basic until the
// body element is ready, and moderate and comprehensive pause for a fixed
// 500ms and 1500ms. No strategy watches outstanding network connections.
func waitAction(strategy WaitStrategy) chromedp.Action {
	switch strategy {
	case WaitBasic:
		return chromedp.WaitReady("body", chromedp.ByQuery)
	case WaitModerate:
		return chromedp.ActionFunc(func(ctx context.Context) error {
			return chromedp.Sleep(500 * time.Millisecond).Do(ctx)
		})
	case WaitComprehensive:
		return chromedp.ActionFunc(func(ctx context.Context) error {
			return chromedp.Sleep(1500 * time.Millisecond).Do(ctx)
		})
	default: // WaitFast
		return chromedp.WaitVisible("html", chromedp.ByQuery)
	}
}
