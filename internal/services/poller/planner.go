package poller

import (
	"math/rand"
	"time"
)

type Rand interface {
	Intn(n int) int
}

// PlannerConfig — лестница задержек между попытками пересчёта маршрута.
type PlannerConfig struct {
	Backoff1 time.Duration // default: 1 minute
	Backoff2 time.Duration // default: 5 minutes
	Backoff3 time.Duration // default: 15 minutes
	Backoff4 time.Duration // default: 60 minutes

	// MaxJitter размазывает повторы по времени, чтобы после падения
	// провайдера весь парк не ломился в него одновременно.
	MaxJitter time.Duration // default: 30 seconds
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Backoff1:  1 * time.Minute,
		Backoff2:  5 * time.Minute,
		Backoff3:  15 * time.Minute,
		Backoff4:  60 * time.Minute,
		MaxJitter: 30 * time.Second,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	// Ноль — значение по умолчанию, отрицательное значение отключает джиттер.
	if cfg.MaxJitter == 0 {
		cfg.MaxJitter = def.MaxJitter
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// BackoffDelay возвращает паузу перед следующей попыткой по числу неудач.
func (p *Planner) BackoffDelay(failCount int32) time.Duration {
	var base time.Duration
	switch {
	case failCount <= 1:
		base = p.cfg.Backoff1
	case failCount == 2:
		base = p.cfg.Backoff2
	case failCount == 3:
		base = p.cfg.Backoff3
	default:
		base = p.cfg.Backoff4
	}
	if p.cfg.MaxJitter > 0 {
		base += time.Duration(p.r.Intn(int(p.cfg.MaxJitter.Seconds())+1)) * time.Second
	}
	return base
}
