package devices

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/observability"
	"go.uber.org/zap"
)

// Reading is one polled readback.
type Reading struct {
	Name  string       `json:"name"`
	Unit  string       `json:"unit"`
	Value device.Value `json:"value"`
}

// Poller reads back a channel list periodically and hands every cycle to
// publish.
type Poller struct {
	list     device.List
	interval time.Duration
	publish  func([]Reading)
	metrics  *observability.Metrics
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewPoller(list device.List, interval time.Duration, publish func([]Reading), metrics *observability.Metrics, logger *zap.Logger) *Poller {
	return &Poller{
		list:     list,
		interval: interval,
		publish:  publish,
		metrics:  metrics,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start startet das zyklische Polling
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.Int("channels", p.list.Len()),
		zap.Duration("interval", p.interval))

	return nil
}

// Stop stoppt das Polling
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.logger.Info("Poller stopped", zap.Int("channels", p.list.Len()))
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll runs one cycle. A failed cycle is logged and skipped.
func (p *Poller) Poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval/2)
	defer cancel()

	values, err := p.list.Readback(ctx)
	if err != nil {
		p.metrics.PollError()
		p.logger.Warn("Poll failed", zap.Int("channels", p.list.Len()), zap.Error(err))
		return
	}

	devices := p.list.Devices()
	readings := make([]Reading, len(values))
	for i, v := range values {
		readings[i] = Reading{Name: devices[i].MeasureName(), Unit: devices[i].Unit(), Value: v}
	}
	if p.publish != nil {
		p.publish(readings)
	}
}

// IsRunning gibt an ob Poller läuft
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
