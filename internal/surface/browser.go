package surface

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// BrowserSurface treats a single Chrome window as the controlled desktop.
// Captures come from the page viewport and input is injected through the
// DevTools protocol, so it works headless where no X display exists.
type BrowserSurface struct {
	RunFolder string
	StartURL  string

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	seq           atomic.Uint64
}

func NewBrowserSurface(runFolder, startURL string) *BrowserSurface {
	return &BrowserSurface{RunFolder: runFolder, StartURL: startURL}
}

func (b *BrowserSurface) init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.shutdown()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", false),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	actions := []chromedp.Action{}
	if b.StartURL != "" {
		actions = append(actions, chromedp.Navigate(b.StartURL))
	}
	return chromedp.Run(b.browserCtx, actions...)
}

func (b *BrowserSurface) shutdown() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close tears the browser down. Safe to call when never started.
func (b *BrowserSurface) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdown()
}

func (b *BrowserSurface) Capture(ctx context.Context) (*Observation, error) {
	if err := b.init(); err != nil {
		return nil, fmt.Errorf("browser start: %v", err)
	}
	seq := b.seq.Add(1)

	runCtx, cancel := context.WithTimeout(b.browserCtx, 60*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("browser capture: %v", err)
	}

	path := ""
	if b.RunFolder != "" {
		if err := os.MkdirAll(b.RunFolder, 0755); err == nil {
			path = filepath.Join(b.RunFolder, fmt.Sprintf("screen_%06d.png", seq))
			_ = os.WriteFile(path, buf, 0644)
		}
	}

	return &Observation{Seq: seq, Data: buf, Path: path, TakenAt: time.Now()}, nil
}

func (b *BrowserSurface) Perform(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.Kind == KindWait {
		return sleep(ctx, cmd.Seconds)
	}

	if err := b.init(); err != nil {
		return fmt.Errorf("browser start: %v", err)
	}

	runCtx, cancel := context.WithTimeout(b.browserCtx, 60*time.Second)
	defer cancel()

	switch cmd.Kind {
	case KindPointer:
		return b.pointer(runCtx, cmd)
	case KindKey:
		return chromedp.Run(runCtx, chromedp.KeyEvent(keySequence(cmd.Keys)))
	case KindText:
		return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			return input.InsertText(cmd.Text).Do(ctx)
		}))
	case KindScript:
		return chromedp.Run(runCtx, chromedp.Evaluate(cmd.Script, nil))
	}
	return fmt.Errorf("unsupported command kind: %s", cmd.Kind)
}

func (b *BrowserSurface) pointer(ctx context.Context, cmd Command) error {
	x, y := float64(cmd.X), float64(cmd.Y)
	switch cmd.Action {
	case "move":
		return chromedp.Run(ctx, chromedp.MouseEvent(input.MouseMoved, x, y))
	case "left_click":
		return chromedp.Run(ctx, chromedp.MouseClickXY(x, y))
	case "double_click":
		return chromedp.Run(ctx, chromedp.MouseClickXY(x, y, chromedp.ClickCount(2)))
	case "right_click":
		return chromedp.Run(ctx, chromedp.MouseClickXY(x, y, chromedp.Button("right")))
	case "middle_click":
		return chromedp.Run(ctx, chromedp.MouseClickXY(x, y, chromedp.Button("middle")))
	case "scroll":
		js := fmt.Sprintf("window.scrollBy(0, %d)", -cmd.Amount*100)
		return chromedp.Run(ctx, chromedp.Evaluate(js, nil))
	}
	return fmt.Errorf("unknown pointer action: %s", cmd.Action)
}

// keySequence maps named keys to the control runes chromedp's keyboard
// layer understands; plain characters pass through unchanged.
func keySequence(keys []string) string {
	var out strings.Builder
	for _, k := range keys {
		switch strings.ToLower(k) {
		case "enter", "return":
			out.WriteString(kb.Enter)
		case "tab":
			out.WriteString(kb.Tab)
		case "backspace":
			out.WriteString(kb.Backspace)
		case "escape", "esc":
			out.WriteString(kb.Escape)
		case "delete":
			out.WriteString(kb.Delete)
		case "up":
			out.WriteString(kb.ArrowUp)
		case "down":
			out.WriteString(kb.ArrowDown)
		case "left":
			out.WriteString(kb.ArrowLeft)
		case "right":
			out.WriteString(kb.ArrowRight)
		default:
			out.WriteString(k)
		}
	}
	return out.String()
}
