package notifier

import (
	"context"
	"errors"

	"github.com/resq-app/resq-backend/internal/logging"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

// Window is an open application window.
type Window interface {
	URL() string
	Focus(ctx context.Context) error
}

// Windows lists and opens application windows.
type Windows interface {
	List(ctx context.Context) ([]Window, error)
	// Open may be unsupported, in which case it returns ErrOpenUnsupported.
	Open(ctx context.Context, url string) (Window, error)
}

// ErrOpenUnsupported is returned by Windows that cannot open new windows.
var ErrOpenUnsupported = errors.New("opening windows is not supported")

// ClickResult tells what a click did.
type ClickResult struct {
	Focused bool
	Opened  bool
	URL     string
	Err     error
}

// Closer closes a displayed notification.
type Closer interface {
	Close(tag string) bool
}

// HandleClick closes the clicked notification and routes to the application in the background: an open
// window at origin gets focused, otherwise the landing route is opened. The returned channel receives
// exactly one result.
func HandleClick(ctx context.Context, n Notification, closer Closer, origin string, windows Windows) <-chan ClickResult {
	if closer != nil {
		closer.Close(n.Tag)
	}

	out := make(chan ClickResult, 1)
	go func() {
		out <- route(ctx, origin, windows)
		close(out)
	}()
	return out
}

func route(ctx context.Context, origin string, windows Windows) ClickResult {
	logger := logging.FromContext(ctx).Named("notifier.route")

	open, err := windows.List(ctx)
	if err != nil {
		return ClickResult{Err: err}
	}

	for _, w := range open {
		if w.URL() != origin {
			continue
		}
		if err := w.Focus(ctx); err != nil {
			logger.Debugf("Could not focus window %v: %v", w.URL(), err)
			continue
		}
		return ClickResult{Focused: true, URL: w.URL()}
	}

	if _, err := windows.Open(ctx, v1.LandingRoute); err != nil {
		if errors.Is(err, ErrOpenUnsupported) {
			return ClickResult{}
		}
		return ClickResult{Err: err}
	}
	return ClickResult{Opened: true, URL: v1.LandingRoute}
}
