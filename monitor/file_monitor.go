package monitor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"bridge/parser"
	"bridge/types"
)

const DefaultPollInterval = 500 * time.Millisecond

// FileMonitor tails a file of JSON encoded samples, one per line, and emits them.
type FileMonitor struct {
	Path string
	// FromStart reads existing lines too, by default only appended lines are read.
	FromStart    bool
	PollInterval time.Duration
	Clock        clockwork.Clock
	Logger       *zap.Logger
}

func (fm *FileMonitor) Start(ctx context.Context, out chan<- types.Sample) {
	clock := fm.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := fm.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("monitor.file").With(zap.String("path", fm.Path))
	poll := fm.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	go func() {
		file, err := os.Open(fm.Path)
		if err != nil {
			logger.Error("cannot open sample file", zap.Error(err))
			return
		}
		defer file.Close()

		if !fm.FromStart {
			if _, err := file.Seek(0, io.SeekEnd); err != nil {
				logger.Error("cannot seek to the end of the sample file", zap.Error(err))
				return
			}
		}
		reader := bufio.NewReader(file)

		var partial []byte
		for {
			select {
			case <-ctx.Done():
				logger.Info("monitor stopped")
				return
			default:
			}

			chunk, err := reader.ReadBytes('\n')
			partial = append(partial, chunk...)
			if errors.Is(err, io.EOF) {
				// wait for the rest of the line
				select {
				case <-ctx.Done():
					logger.Info("monitor stopped")
					return
				case <-clock.After(poll):
				}
				continue
			} else if err != nil {
				logger.Error("cannot read sample file", zap.Error(err))
				return
			}

			line := partial
			partial = nil

			sample, err := parser.Parse(line)
			if errors.Is(err, parser.ErrEmptyLine) {
				continue
			} else if err != nil {
				logger.Warn("skipping invalid sample", zap.Error(err))
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- sample:
			}
		}
	}()
}
