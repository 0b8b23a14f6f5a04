// Package loop composes the joint-control components into a fixed-period
// control tick.
//
// Each tick runs, in order: pending estimator parameters, the torque filter
// bank, gravity compensation, the orientation estimator, the tracking
// controller, then metrics and observers. A tick whose joint vectors do not
// match the configured joint count holds the previous command.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/jointctl/internal/control"
	"github.com/san-kum/jointctl/internal/dynamo"
	"github.com/san-kum/jointctl/internal/estimator"
	"github.com/san-kum/jointctl/internal/filter"
	"github.com/san-kum/jointctl/internal/gravity"
)

type Loop struct {
	bank   *filter.Bank
	comp   *gravity.Compensator
	kalman *estimator.Kalman
	ctrl   control.Controller
	cfg    Config

	metrics   []Metric
	observers []Observer

	filtered []float64
	scratch  []float64
	command  []float64

	tick    atomic.Uint64
	skipped atomic.Uint64

	mu      sync.Mutex
	params  estimator.Params
	pending bool
	cov     *mat.SymDense // estimator covariance as of the last tick
}

func New(bank *filter.Bank, comp *gravity.Compensator, kalman *estimator.Kalman, ctrl control.Controller, cfg Config) (*Loop, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if bank == nil || comp == nil || kalman == nil || ctrl == nil {
		return nil, dynamo.Invalid("loop needs a filter bank, compensator, estimator and controller")
	}
	if bank.Len() != comp.Len() {
		return nil, dynamo.Mismatch("torque offsets", comp.Len(), bank.Len())
	}

	n := bank.Len()
	cov := mat.NewSymDense(2, nil)
	kalman.CovarianceInto(cov)
	return &Loop{
		bank:     bank,
		comp:     comp,
		kalman:   kalman,
		ctrl:     ctrl,
		cfg:      cfg,
		filtered: make([]float64, n),
		scratch:  make([]float64, n),
		command:  make([]float64, n),
		params:   kalman.Params(),
		cov:      cov,
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Dt <= 0 || !dynamo.IsFinite(cfg.Dt) {
		return dynamo.Invalid("dt must be positive, got %g", cfg.Dt)
	}
	if cfg.Ticks < 0 {
		return dynamo.Invalid("ticks must be non-negative, got %d", cfg.Ticks)
	}
	return nil
}

func (l *Loop) AddMetric(m Metric)     { l.metrics = append(l.metrics, m) }
func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

func (l *Loop) Joints() int { return l.bank.Len() }

func (l *Loop) Controller() control.Controller { return l.ctrl }

func (l *Loop) Status() Status {
	return Status{Tick: l.tick.Load(), Skipped: l.skipped.Load()}
}

// SetKalmanParameters queues new estimator noise parameters; they take effect
// at the start of the next tick. Safe to call from any goroutine. Returns
// false, leaving the queue untouched, when any value is negative.
func (l *Loop) SetKalmanParameters(qAngle, qRate, rAngle float64) bool {
	p := estimator.Params{QAngle: qAngle, QRate: qRate, RAngle: rAngle}
	if err := p.Validate(); err != nil {
		log.WithError(err).Warn("rejected estimator parameters")
		return false
	}
	l.mu.Lock()
	l.params = p
	l.pending = true
	l.mu.Unlock()
	return true
}

// KalmanCovariance returns a copy of the estimator error covariance as of
// the last completed tick. Safe to call from any goroutine.
func (l *Loop) KalmanCovariance() mat.Symmetric {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := mat.NewSymDense(2, nil)
	c.CopySym(l.cov)
	return c
}

// KalmanParameters returns the most recently accepted estimator parameters.
func (l *Loop) KalmanParameters() estimator.Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

func (l *Loop) applyPending(tick uint64) {
	l.mu.Lock()
	if !l.pending {
		l.mu.Unlock()
		return
	}
	p := l.params
	l.pending = false
	l.mu.Unlock()

	if err := l.kalman.SetParameters(p.QAngle, p.QRate, p.RAngle); err != nil {
		log.WithError(err).WithField("tick", tick).Error("apply estimator parameters")
		return
	}
	log.WithFields(log.Fields{
		"tick":    tick,
		"q_angle": p.QAngle,
		"q_rate":  p.QRate,
		"r_angle": p.RAngle,
	}).Info("estimator parameters applied")
}

// check rejects a snapshot before any filter state moves, so a skipped tick
// leaves the joint filters as they were.
func (l *Loop) check(s Snapshot) error {
	n := l.bank.Len()
	if err := s.Angles.CheckLen("joint angles", n); err != nil {
		return err
	}
	if err := s.Torque.CheckLen("joint torque", n); err != nil {
		return err
	}
	if !s.Torque.IsValid() {
		return dynamo.Invalid("non-finite torque sample %v", []float64(s.Torque))
	}
	return l.comp.Check(s.Links)
}

// Tick runs one control cycle. Size mismatches and gravity model failures
// hold the previous command and are not returned; controller and estimator
// failures come back as a *dynamo.TickError.
func (l *Loop) Tick(s Snapshot) (Output, error) {
	tick := l.tick.Load()
	l.applyPending(tick)

	held := false
	err := l.check(s)
	if err == nil {
		err = l.bank.Step(s.Torque, l.filtered)
	}
	if err == nil {
		err = l.comp.Apply(l.filtered, s.Links, l.scratch)
	}
	if err != nil {
		held = true
		l.skipped.Add(1)
		log.WithFields(log.Fields{
			"tick":   tick,
			"joints": l.bank.Len(),
		}).WithError(err).Warn("tick skipped, holding previous command")
	} else {
		copy(l.command, l.scratch)
	}

	angle, err := l.kalman.Update(s.AccelAngle, s.GyroRate, l.cfg.Dt)
	if err != nil {
		return Output{}, &dynamo.TickError{Tick: tick, Wrapped: err}
	}
	l.mu.Lock()
	l.kalman.CovarianceInto(l.cov)
	l.mu.Unlock()
	u, err := l.ctrl.Update(s.Current, s.Target)
	if err != nil {
		return Output{}, &dynamo.TickError{Tick: tick, Wrapped: err}
	}

	rec := Record{
		Tick:       tick,
		Time:       float64(tick) * l.cfg.Dt,
		Raw:        s.Torque,
		Filtered:   l.filtered,
		Command:    l.command,
		AccelAngle: s.AccelAngle,
		Angle:      angle,
		Current:    s.Current,
		Target:     s.Target,
		U:          u,
		Held:       held,
	}
	for _, m := range l.metrics {
		m.Observe(rec)
	}
	for _, o := range l.observers {
		o.OnTick(rec)
	}

	if debugEnabled(l.cfg.DebugLevel, tick) {
		log.WithFields(log.Fields{
			"tick":    tick,
			"command": l.command,
			"angle":   angle,
			"u":       u,
		}).Debug("tick")
	}

	l.tick.Add(1)
	return Output{Tick: tick, Torque: l.command, Angle: angle, U: u, Held: held}, nil
}

// debugEnabled reports whether a tick is traced: every 200th tick at level
// 1, every tick above that.
func debugEnabled(level int, tick uint64) bool {
	return (level == 1 && tick%200 == 0) || level > 1
}

// Run drives ticks from src into sink until cfg.Ticks have run or ctx is
// done. Source and sink errors abort the run.
func (l *Loop) Run(ctx context.Context, src Source, sink Sink) (*Result, error) {
	if sink == nil {
		sink = Discard
	}

	result := &Result{Metrics: make(map[string]float64)}
	if l.cfg.Record && l.cfg.Ticks > 0 {
		result.Records = make([]Record, 0, l.cfg.Ticks)
	}
	if l.cfg.Record {
		l.AddObserver(recorder{result})
		defer l.removeRecorder()
	}

	for _, m := range l.metrics {
		m.Reset()
	}

	var pace <-chan time.Time
	if l.cfg.Realtime {
		ticker := time.NewTicker(time.Duration(l.cfg.Dt * float64(time.Second)))
		defer ticker.Stop()
		pace = ticker.C
	}

	err := l.run(ctx, src, sink, pace)

	result.Ticks = l.tick.Load()
	result.Skipped = l.skipped.Load()
	for _, m := range l.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, err
}

func (l *Loop) run(ctx context.Context, src Source, sink Sink, pace <-chan time.Time) error {
	for i := 0; l.cfg.Ticks == 0 || i < l.cfg.Ticks; i++ {
		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace:
			}
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		tick := l.tick.Load()
		snap, err := src.Next(tick)
		if err != nil {
			return &dynamo.TickError{Tick: tick, Wrapped: fmt.Errorf("source: %w", err)}
		}
		out, err := l.Tick(snap)
		if err != nil {
			return err
		}
		if err := sink.Write(out); err != nil {
			return &dynamo.TickError{Tick: tick, Wrapped: fmt.Errorf("sink: %w", err)}
		}
	}
	return nil
}

// Reset zeroes filter history, the controller integrator and the counters.
func (l *Loop) Reset() {
	l.bank.Reset()
	l.ctrl.Reset()
	for i := range l.command {
		l.command[i] = 0
		l.filtered[i] = 0
	}
	l.tick.Store(0)
	l.skipped.Store(0)
}

type recorder struct{ r *Result }

func (rc recorder) OnTick(rec Record) { rc.r.Records = append(rc.r.Records, rec.Clone()) }

func (l *Loop) removeRecorder() {
	kept := l.observers[:0]
	for _, o := range l.observers {
		if _, ok := o.(recorder); !ok {
			kept = append(kept, o)
		}
	}
	l.observers = kept
}

// IsCanceled reports whether err ended a run through its context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
