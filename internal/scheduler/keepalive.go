package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type KeepAliveConfig struct {
	Interval time.Duration // e.g. 20*time.Second
	Send     func() error
	// OnFailure observes a failed send; the ticker keeps going regardless.
	OnFailure func(err error)
}

// KeepAlive calls Send on a fixed interval until stopped.
type KeepAlive struct {
	cfg    KeepAliveConfig
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewKeepAlive(cfg KeepAliveConfig, logger *zap.Logger) *KeepAlive {
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeepAlive{cfg: cfg, logger: logger}
}

func (k *KeepAlive) Start() {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		k.logger.Debug("keep-alive already running")
		return
	}
	k.running = true
	k.stopCh = make(chan struct{})
	k.doneCh = make(chan struct{})
	stopCh, doneCh := k.stopCh, k.doneCh
	k.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(k.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				k.beat()
			}
		}
	}()

	k.logger.Info("keep-alive started", zap.Duration("interval", k.cfg.Interval))
}

// beat sends one ping. A panic or error from Send never stops the ticker.
func (k *KeepAlive) beat() {
	defer func() {
		if r := recover(); r != nil {
			k.logger.Warn("keep-alive send panicked", zap.Any("panic", r))
		}
	}()
	if err := k.cfg.Send(); err != nil {
		k.logger.Debug("keep-alive send failed", zap.Error(err))
		if k.cfg.OnFailure != nil {
			k.cfg.OnFailure(err)
		}
	}
}

// Stop halts the ticker and waits for an in-flight send to finish.
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	close(k.stopCh)
	k.running = false
	doneCh := k.doneCh
	k.mu.Unlock()

	<-doneCh
	k.logger.Info("keep-alive stopped")
}

func (k *KeepAlive) Running() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.running
}
