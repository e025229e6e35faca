package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/markberger/kinesisctl/internal/pipeline"
	log "github.com/sirupsen/logrus"
)

// withInterrupts returns a context and stop signal tied to SIGINT/SIGTERM.
// The first signal sets stop so workers flush what they hold. The second
// cancels the context, aborting in-flight calls.
func withInterrupts(parent context.Context) (context.Context, *pipeline.StopSignal, func()) {
	ctx, cancel := context.WithCancel(parent)
	stop := pipeline.NewStopSignal()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		received := 0
		for {
			select {
			case sig := <-sigs:
				received++
				if received == 1 {
					log.WithField("signal", sig.String()).Info("Stopping, flushing pending records. Interrupt again to abort")
					stop.Set()
					continue
				}
				log.WithField("signal", sig.String()).Warn("Aborting")
				cancel()
				return
			case <-done:
				return
			}
		}
	}()

	return ctx, stop, func() {
		signal.Stop(sigs)
		close(done)
		cancel()
	}
}
