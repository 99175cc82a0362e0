package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/api"
	"github.com/Bataide/cip-enip-driver/internal/config"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/kafka"
	"github.com/Bataide/cip-enip-driver/internal/logging"
	"github.com/Bataide/cip-enip-driver/internal/mqtt"
	"github.com/Bataide/cip-enip-driver/internal/valkey"
)

// DefaultSinkQueue is the number of received tags buffered for the sinks.
const DefaultSinkQueue = 256

const publishTimeout = 5 * time.Second

// buildSinks creates a sink for every enabled broker in cfg.
func buildSinks(cfg *config.Config, logger *logging.Logger) []events.Sink {
	var sinks []events.Sink
	for _, m := range cfg.MQTT {
		if m.Enabled {
			sinks = append(sinks, mqtt.NewPublisher(m, logger))
		}
	}
	for _, k := range cfg.Kafka {
		if k.Enabled {
			sinks = append(sinks, kafka.NewProducer(k, logger))
		}
	}
	for _, v := range cfg.Valkey {
		if v.Enabled {
			sinks = append(sinks, valkey.NewPublisher(v, logger))
		}
	}
	return sinks
}

type sinkState struct {
	sink      events.Sink
	published atomic.Int64
	failed    atomic.Int64
}

// fanout delivers received tags to every started sink from one worker.
// Enqueue never blocks; a full queue drops the tag.
type fanout struct {
	logger  *logging.Logger
	sinks   []*sinkState
	queue   chan events.TagData
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newFanout(size int, logger *logging.Logger) *fanout {
	if size <= 0 {
		size = DefaultSinkQueue
	}
	return &fanout{
		logger: logger,
		queue:  make(chan events.TagData, size),
	}
}

// start starts each sink. A sink that fails to start is logged and left
// out; the endpoint keeps running without it.
func (f *fanout) start(ctx context.Context, sinks []events.Sink) {
	for _, s := range sinks {
		if err := s.Start(ctx); err != nil {
			f.logger.Error("Sink %s disabled: %v", s.Name(), err)
			continue
		}
		f.sinks = append(f.sinks, &sinkState{sink: s})
	}

	f.ctx, f.cancel = context.WithCancel(context.Background())
	f.wg.Add(1)
	go f.run()
}

func (f *fanout) enqueue(td events.TagData) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed || len(f.sinks) == 0 {
		return
	}
	select {
	case f.queue <- td:
	default:
		if n := f.dropped.Add(1); n == 1 || n%100 == 0 {
			f.logger.Error("Sink queue full, dropped %d tag(s)", n)
		}
	}
}

func (f *fanout) run() {
	defer f.wg.Done()
	for {
		select {
		case td, ok := <-f.queue:
			if !ok {
				return
			}
			f.publish(td)
		case <-f.ctx.Done():
			return
		}
	}
}

func (f *fanout) publish(td events.TagData) {
	for _, st := range f.sinks {
		ctx, cancel := context.WithTimeout(f.ctx, publishTimeout)
		err := st.sink.Publish(ctx, td)
		cancel()
		if err != nil {
			st.failed.Add(1)
			f.logger.Error("Sink %s: publish %s: %v", st.sink.Name(), td.Symbol, err)
			continue
		}
		st.published.Add(1)
	}
}

// stop drains the queue, then closes every sink.
func (f *fanout) stop() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		if f.cancel == nil {
			return
		}
		close(f.queue)
		f.wg.Wait()
		f.cancel()
		for _, st := range f.sinks {
			if err := st.sink.Close(); err != nil {
				f.logger.Error("Sink %s: close: %v", st.sink.Name(), err)
			}
		}
	})
}

func (f *fanout) status() []api.SinkStatus {
	out := make([]api.SinkStatus, 0, len(f.sinks))
	for _, st := range f.sinks {
		out = append(out, api.SinkStatus{
			Name:      st.sink.Name(),
			Published: st.published.Load(),
			Failed:    st.failed.Load(),
			Dropped:   f.dropped.Load(),
		})
	}
	return out
}
