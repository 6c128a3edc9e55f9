package webclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/raysh454/stagecheck/internal/logging"
)

// ChromeDPClient drives a headless browser. The status code is taken from the
// first document response the tab receives, which is the page after redirects.
type ChromeDPClient struct {
	allocCtx     context.Context
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserClose context.CancelFunc
	logger       logging.Logger
}

// NewChromedpClient starts a browser process. It fails when no Chrome binary
// is available.
func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromeDPClient, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserClose := chromedp.NewContext(allocCtx)

	// Run with no actions starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		browserClose()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	componentLogger := logger.With(logging.Field{Key: "backend", Value: string(ClientChromedp)})
	componentLogger.Debug("created chromedp webclient", logging.Field{Key: "headless", Value: cfg.Headless})

	return &ChromeDPClient{
		allocCtx:     allocCtx,
		allocCancel:  allocCancel,
		browserCtx:   browserCtx,
		browserClose: browserClose,
		logger:       componentLogger,
	}, nil
}

type documentResponse struct {
	mu      sync.Mutex
	seen    bool
	status  int
	headers http.Header
}

func (d *documentResponse) record(ev *network.EventResponseReceived) {
	if ev.Type != network.ResourceTypeDocument || ev.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen {
		return
	}
	d.seen = true
	d.status = int(ev.Response.Status)
	d.headers = http.Header{}
	for k, v := range ev.Response.Headers {
		d.headers.Set(k, fmt.Sprint(v))
	}
}

// Do loads req.URL in a fresh tab. Only GET is supported.
func (cdc *ChromeDPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if m := strings.ToUpper(req.Method); m != "" && m != http.MethodGet {
		return nil, fmt.Errorf("chromedp backend only supports GET, got %s", m)
	}

	tabCtx, cancelTab := chromedp.NewContext(cdc.browserCtx)
	defer cancelTab()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok {
			doc.record(e)
		}
	})

	actions := []chromedp.Action{network.Enable()}
	if ua := req.Headers.Get("User-Agent"); ua != "" {
		actions = append(actions, emulation.SetUserAgentOverride(ua))
	}
	if extra := extraHeaders(req.Headers); len(extra) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(extra))
	}
	actions = append(actions, chromedp.Navigate(req.URL))

	var body string
	if req.option(OptionBody) != OptionBodyDiscard {
		actions = append(actions, chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &body))
	}

	cdc.logger.Debug("navigating", logging.Field{Key: "url", Value: req.URL})
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("navigate %s: %w", req.URL, ctx.Err())
		}
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if !doc.seen {
		return nil, fmt.Errorf("navigate %s: no document response received", req.URL)
	}

	return &Response{
		Request:    req,
		Headers:    doc.headers,
		Body:       []byte(body),
		StatusCode: doc.status,
		FetchedAt:  time.Now(),
	}, nil
}

func extraHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for k, vs := range h {
		if strings.EqualFold(k, "User-Agent") || len(vs) == 0 {
			continue
		}
		out[k] = strings.Join(vs, ", ")
	}
	return out
}

// Get is a convenience method for simple GET requests
func (cdc *ChromeDPClient) Get(ctx context.Context, url string) (*Response, error) {
	return cdc.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

// Close shuts the browser down.
func (cdc *ChromeDPClient) Close() error {
	cdc.browserClose()
	cdc.allocCancel()
	return nil
}
