package matching

import "time"

// ProgressFunc receives the fraction of evaluated pairs in [0,1]. It is always
// called from a single goroutine and the values never decrease.
type ProgressFunc func(fraction float64)

// progressAggregator owns the completed counter and the throttle timestamp.
// Workers only send events to it.
type progressAggregator struct {
	total    int
	interval time.Duration
	emit     ProgressFunc
	now      func() time.Time

	events chan struct{}
	done   chan struct{}

	completed int
	last      float64
}

func newProgressAggregator(total int, interval time.Duration, emit ProgressFunc) *progressAggregator {
	return &progressAggregator{
		total:    total,
		interval: interval,
		emit:     emit,
		now:      time.Now,
		events:   make(chan struct{}, 64),
		done:     make(chan struct{}),
		last:     -1,
	}
}

func (p *progressAggregator) start() {
	go p.loop()
}

func (p *progressAggregator) loop() {
	defer close(p.done)

	var lastEmit time.Time
	for range p.events {
		p.completed++

		if now := p.now(); lastEmit.IsZero() || now.Sub(lastEmit) >= p.interval {
			lastEmit = now
			p.report()
		}
	}

	p.report()
}

func (p *progressAggregator) report() {
	if p.emit == nil {
		return
	}

	fraction := p.fraction()
	if fraction == p.last {
		return
	}
	p.last = fraction
	p.emit(fraction)
}

func (p *progressAggregator) fraction() float64 {
	if p.total == 0 {
		return 1
	}
	return float64(p.completed) / float64(p.total)
}

// pairDone must not be called after finish.
func (p *progressAggregator) pairDone() {
	p.events <- struct{}{}
}

// finish flushes the final fraction and returns the number of completed pairs.
func (p *progressAggregator) finish() (int, float64) {
	close(p.events)
	<-p.done
	return p.completed, p.fraction()
}
