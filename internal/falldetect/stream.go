package falldetect

import (
	"context"
)

// Run consumes samples until ctx is done or samples is closed, calling onFall for every confirmed fall.
// It is the only goroutine touching d, including the freefall timer.
func Run(ctx context.Context, d *Detector, samples <-chan Sample, onFall func(FallEvent)) {
	defer d.Expire()

	for {
		select {
		case <-ctx.Done():
			return

		case <-d.Expired():
			d.Expire()

		case s, ok := <-samples:
			if !ok {
				return
			}
			if event, fell := d.Observe(s); fell && onFall != nil {
				onFall(event)
			}
		}
	}
}
