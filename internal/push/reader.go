package push

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/markberger/kinesisctl/internal/metrics"
	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/queue"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
)

const MaxLineLength = 20 * 1024

// UnitOfWork is one input line, newline included.
type UnitOfWork struct {
	Payload []byte
}

type scannedLine struct {
	data    []byte
	tooLong bool
	err     error
}

// dryRunRecord carries the payload as base64, the way the record data field
// travels on the wire, so arbitrary bytes survive the round trip.
type dryRunRecord struct {
	Data []byte `json:"data"`
}

// Reader turns input lines into units of work. It sets the stop signal at
// end of input.
type Reader struct {
	input     io.Reader
	out       *queue.BoundedQueue[UnitOfWork]
	dryRun    bool
	dryRunOut io.Writer
	maxLine   int

	dropped metric.Int64Counter
}

func NewReader(input io.Reader, out *queue.BoundedQueue[UnitOfWork], dryRun bool, dryRunOut io.Writer) *Reader {
	dropped, _ := metrics.Meter.Int64Counter("kinesisctl.reader.dropped_lines")
	return &Reader{
		input:     input,
		out:       out,
		dryRun:    dryRun,
		dryRunOut: dryRunOut,
		maxLine:   MaxLineLength,
		dropped:   dropped,
	}
}

func (r *Reader) Name() string {
	return "reader"
}

func (r *Reader) Run(ctx context.Context, stop *pipeline.StopSignal) error {
	lines := make(chan scannedLine)
	done := make(chan struct{})
	defer close(done)
	go r.scan(lines, done)

	lineNo := 0
	for {
		select {
		case <-stop.Done():
			log.Debug("Reader is leaving")
			return nil
		case l, ok := <-lines:
			if !ok {
				log.Debug("Reached the end of input")
				stop.Set()
				return nil
			}
			if l.err != nil {
				return fmt.Errorf("read input: %w", l.err)
			}
			lineNo++
			if l.tooLong {
				log.WithFields(log.Fields{
					"line":       lineNo,
					"max_length": r.maxLine,
				}).Warn("Line is too long, it is not pushed")
				r.dropped.Add(ctx, 1)
				continue
			}
			if len(l.data) == 0 {
				continue
			}

			payload := append(l.data, '\n')
			if r.dryRun {
				if err := json.NewEncoder(r.dryRunOut).Encode(dryRunRecord{Data: payload}); err != nil {
					return fmt.Errorf("write dry run record: %w", err)
				}
				continue
			}
			if err := r.out.Put(stop.Context(), UnitOfWork{Payload: payload}); err != nil {
				if errors.Is(err, queue.ErrStopped) {
					return nil
				}
				return err
			}
		}
	}
}

func (r *Reader) scan(lines chan<- scannedLine, done <-chan struct{}) {
	defer close(lines)
	br := bufio.NewReader(r.input)
	for {
		data, tooLong, err := readLine(br, r.maxLine)
		if err != nil && len(data) == 0 && !tooLong {
			if !errors.Is(err, io.EOF) {
				select {
				case lines <- scannedLine{err: err}:
				case <-done:
				}
			}
			return
		}

		select {
		case lines <- scannedLine{data: data, tooLong: tooLong}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// readLine reads one line without its terminator. Lines longer than max are
// consumed but not kept.
func readLine(br *bufio.Reader, max int) ([]byte, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return buf, tooLong, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > max {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return buf, tooLong, nil
		}
	}
}
