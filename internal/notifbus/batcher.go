package notifbus

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// batcher coalesces events offered to one Sink within a rolling window,
// up to max per flush, per spec §4.7. window<=0 or max<=1 degenerates to
// "flush immediately" — the internal stream (Bus.Subscribe) is never
// batched regardless; only desktop sinks go through a batcher.
type batcher struct {
	sink   Sink
	window time.Duration
	max    int
	log    zerolog.Logger

	offers chan Event
}

func newBatcher(sink Sink, window time.Duration, max int, log zerolog.Logger) *batcher {
	return &batcher{sink: sink, window: window, max: max, log: log, offers: make(chan Event, defaultReceiverBuffer)}
}

func (b *batcher) offer(ev Event) {
	select {
	case b.offers <- ev:
	default:
		b.log.Warn().Msg("desktop sink batch queue full, dropping event")
	}
}

func (b *batcher) start(ctx context.Context) {
	go b.run(ctx)
}

func (b *batcher) run(ctx context.Context) {
	var pending []Event
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
		if err := b.sink.Notify(ctx, batch); err != nil {
			b.log.Warn().Err(err).Msg("desktop sink failed to display notification")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.offers:
			if !ok {
				flush()
				return
			}
			if b.window <= 0 {
				pending = append(pending, ev)
				flush()
				continue
			}

			pending = append(pending, ev)
			if len(pending) >= b.max {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(b.window)
				timerC = timer.C
			}
		case <-timerC:
			timer = nil
			timerC = nil
			flush()
		}
	}
}
