package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/draco-worker/errors"
)

// readyMessage is written once the worker has bootstrapped.
var readyMessage = []byte("true\n")

// Serve runs the task protocol: one JSON message per line on r, one JSON
// answer per line on w.
//
// The first message carrying webAssemblyConfig bootstraps the worker and
// is answered with true; messages before it are ignored. Every later
// message is a job answered with {id, result} or {id, error}. Serve
// returns when r is exhausted or ctx is done, even while a read is
// blocked. A job already running finishes first.
func (w *Worker) Serve(ctx context.Context, r io.Reader, out io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := readLines(readCtx, r)
	bw := bufio.NewWriter(out)

	for {
		var next readResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next = <-lines:
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(bytes.TrimSpace(next.line)) > 0 {
			if werr := w.handleLine(ctx, next.line, bw); werr != nil {
				return werr
			}
		}
		if next.err == io.EOF {
			return nil
		}
		if next.err != nil {
			return errors.Wrap(errors.PhaseTransport, errors.KindInvalidInput, next.err, "read message")
		}
	}
}

type readResult struct {
	line []byte
	err  error
}

// readLines reads r line by line on its own goroutine. The goroutine
// stops after the first read error or once ctx is done; a read blocked
// in r is abandoned, not interrupted.
func readLines(ctx context.Context, r io.Reader) <-chan readResult {
	lines := make(chan readResult)
	go func() {
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadBytes('\n')
			select {
			case lines <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

func (w *Worker) handleLine(ctx context.Context, line []byte, bw *bufio.Writer) error {
	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		w.logger.Warn("malformed message", zap.Error(err))
		perr := errors.Wrap(errors.PhaseTransport, errors.KindInvalidInput, err, "malformed message")
		return w.write(bw, response{Error: perr.Error()})
	}

	select {
	case <-w.ready:
		return w.handleJob(ctx, &msg, bw)
	default:
	}

	if msg.WebAssemblyConfig == nil {
		w.logger.Debug("ignoring message before bootstrap", zap.String("id", msg.ID.String()))
		return nil
	}
	ok, err := w.Initialize(ctx, msg.WebAssemblyConfig)
	if err != nil {
		return w.write(bw, response{ID: msg.ID, Error: err.Error()})
	}
	if !ok {
		return nil
	}
	if _, err := bw.Write(readyMessage); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *Worker) handleJob(ctx context.Context, msg *message, bw *bufio.Writer) error {
	if msg.WebAssemblyConfig != nil {
		return w.write(bw, response{ID: msg.ID, Error: errors.AlreadyInitialized("draco worker").Error()})
	}
	if msg.Parameters == nil {
		return w.write(bw, response{ID: msg.ID, Error: errors.InvalidInput(errors.PhaseTransport, "message has no parameters").Error()})
	}

	result, err := w.Decode(ctx, msg.Parameters.job(msg.ID.String()))
	if err != nil {
		return w.write(bw, response{ID: msg.ID, Error: err.Error()})
	}
	return w.write(bw, response{ID: msg.ID, Result: resultToWire(result)})
}

func (w *Worker) write(bw *bufio.Writer, resp response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		// Only non-finite quantization values can fail to encode.
		data, err = json.Marshal(response{ID: resp.ID, Error: fmt.Sprintf("encode result: %v", err)})
		if err != nil {
			return err
		}
	}
	data = append(data, '\n')
	if _, err := bw.Write(data); err != nil {
		return err
	}
	return bw.Flush()
}
