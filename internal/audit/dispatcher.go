package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds progress events while the buffer is full. Final
	// events always wait for room.
	DropIfFull bool
}

// maxOpenTrails bounds the attempts numbered at once. Trails that never
// see a final event are evicted past it and restart at 1.
const maxOpenTrails = 4096

// Dispatcher forwards events to a sink from one goroutine. Events that carry
// an AttemptID are numbered in emission order so a reader can rebuild each
// attempt's trail and spot the gaps left by dropped events.
type Dispatcher struct {
	cfg  Config
	sink Sink
	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	trails map[string]uint64

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher returns nil when cfg is disabled; a nil Dispatcher accepts
// and discards every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
		trails: make(map[string]uint64),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit numbers event within its attempt and queues it. A progress event is
// dropped when DropIfFull is set and the buffer is full. Any event is
// dropped when ctx ends before there is room.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event.Seq = d.next(event.AttemptID, event.Final)

	if d.cfg.DropIfFull && !event.Final {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// next returns the sequence number for the attempt's next event. A final
// event closes the trail.
func (d *Dispatcher) next(attemptID string, final bool) uint64 {
	if attemptID == "" {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	seq, open := d.trails[attemptID]
	if !open && len(d.trails) >= maxOpenTrails {
		for id := range d.trails {
			delete(d.trails, id)
			break
		}
	}
	seq++
	if final {
		delete(d.trails, attemptID)
	} else {
		d.trails[attemptID] = seq
	}
	return seq
}

// Close stops intake and delivers what is already queued.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
