// SPDX-License-Identifier: MIT

package frames

import (
	"context"
	"time"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
)

// Pipe consumes a device frame channel, converts each frame and stores
// the result in a holder. Conversion failures are dropped without
// surfacing an error; a failed frame only moves a counter.
type Pipe struct {
	holder *Holder
	// OnFrame, when set, observes the capture time of every stored
	// frame. The controller uses it to track stream liveness.
	OnFrame func(time.Time)
}

func NewPipe(holder *Holder) *Pipe {
	return &Pipe{holder: holder}
}

// Run consumes until the channel closes or the context ends. It always
// returns nil; a dying stream is the device layer's story to tell.
func (p *Pipe) Run(ctx context.Context, in <-chan device.Frame) error {
	logger := log.WithComponent("frames")
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-in:
			if !ok {
				return nil
			}
			snapshot, err := Convert(f)
			if err != nil {
				metrics.IncFrameConversionFailure()
				logger.Debug().Err(err).Uint64("seq", f.Seq).Msg("frame conversion failed")
				continue
			}
			p.holder.Store(snapshot)
			metrics.IncFrameDelivered()
			if p.OnFrame != nil {
				p.OnFrame(snapshot.CapturedAt)
			}
		}
	}
}
