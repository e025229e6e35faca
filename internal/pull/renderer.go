package pull

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/queue"
	log "github.com/sirupsen/logrus"
)

// Renderer writes each record payload on its own line.
type Renderer struct {
	in          *queue.BoundedQueue[RecordBatch]
	out         *bufio.Writer
	renderDelay time.Duration
}

func NewRenderer(in *queue.BoundedQueue[RecordBatch], out io.Writer, renderDelay time.Duration) *Renderer {
	return &Renderer{
		in:          in,
		out:         bufio.NewWriter(out),
		renderDelay: renderDelay,
	}
}

func (r *Renderer) Name() string {
	return "renderer"
}

func (r *Renderer) Run(_ context.Context, stop *pipeline.StopSignal) error {
	for {
		batch, ok := r.in.TryGet()
		if !ok {
			if stop.IsSet() {
				log.Debug("Renderer is leaving")
				return nil
			}
			batch, ok = r.in.Get(stop.Context(), r.renderDelay)
			if !ok {
				continue
			}
		}

		log.WithField("remaining", r.in.Len()).Debug("Rendering record batch")
		for _, record := range batch.Records {
			if err := r.write(record.Data); err != nil {
				return fmt.Errorf("render record %s: %w", record.SequenceNumber, err)
			}
		}
	}
}

func (r *Renderer) write(data []byte) error {
	if _, err := r.out.Write(data); err != nil {
		return err
	}
	if err := r.out.WriteByte('\n'); err != nil {
		return err
	}
	return r.out.Flush()
}
