package loop_test

import (
	"context"
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/jointctl/internal/control"
	"github.com/san-kum/jointctl/internal/dynamo"
	"github.com/san-kum/jointctl/internal/estimator"
	"github.com/san-kum/jointctl/internal/filter"
	"github.com/san-kum/jointctl/internal/gravity"
	"github.com/san-kum/jointctl/internal/loop"
)

const dt = 0.005

type scripted struct {
	snaps []loop.Snapshot
	err   error
}

func (s *scripted) Next(tick uint64) (loop.Snapshot, error) {
	if s.err != nil && int(tick) >= len(s.snaps) {
		return loop.Snapshot{}, s.err
	}
	return s.snaps[int(tick)%len(s.snaps)], nil
}

type collect struct{ outs []loop.Output }

func (c *collect) Write(out loop.Output) error {
	out.Torque = append([]float64(nil), out.Torque...)
	c.outs = append(c.outs, out)
	return nil
}

type counter struct{ n int }

func (c *counter) Name() string        { return "count" }
func (c *counter) Observe(loop.Record) { c.n++ }
func (c *counter) Value() float64      { return float64(c.n) }
func (c *counter) Reset()              { c.n = 0 }

// one is a single-joint snapshot at angle zero.
func one(torque float64) loop.Snapshot {
	return loop.Snapshot{Angles: []float64{0}, Torque: []float64{torque}}
}

func identityLoop(joints int, offsets []float64, enabled bool, cfg loop.Config) *loop.Loop {
	bank, err := filter.NewBank(joints, 1, []float64{1, 0}, []float64{1, 0})
	Expect(err).NotTo(HaveOccurred())
	ctrl, err := control.NewTwoDofWith(1, 0, dt, 0)
	Expect(err).NotTo(HaveOccurred())
	l, err := loop.New(bank, gravity.NewCompensator(offsets, enabled), estimator.NewKalman(), ctrl, cfg)
	Expect(err).NotTo(HaveOccurred())
	return l
}

var _ = Describe("Loop", func() {
	var cfg loop.Config

	BeforeEach(func() {
		cfg = loop.Config{Dt: dt}
	})

	Describe("New", func() {
		It("rejects a non-positive dt", func() {
			bank, _ := filter.NewBank(1, 1, []float64{1, 0}, []float64{1, 0})
			_, err := loop.New(bank, gravity.NewCompensator([]float64{0}, false), estimator.NewKalman(), control.NewNone(), loop.Config{})
			Expect(errors.Is(err, dynamo.ErrInvalidParameter)).To(BeTrue())
		})

		It("rejects an offset table of the wrong length", func() {
			bank, _ := filter.NewBank(2, 1, []float64{1, 0}, []float64{1, 0})
			_, err := loop.New(bank, gravity.NewCompensator([]float64{0}, false), estimator.NewKalman(), control.NewNone(), cfg)
			Expect(errors.Is(err, dynamo.ErrSizeMismatch)).To(BeTrue())
		})
	})

	Describe("Tick", func() {
		It("subtracts offsets from the filtered torque", func() {
			l := identityLoop(2, []float64{0.5, -1}, false, cfg)
			out, err := l.Tick(loop.Snapshot{Angles: []float64{0, 0}, Torque: []float64{2, 3}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Held).To(BeFalse())
			Expect(out.Torque).To(Equal([]float64{1.5, 4}))
		})

		It("adds gravity torque when compensation is on", func() {
			l := identityLoop(1, []float64{0}, true, cfg)
			links := []gravity.JointInput{{
				Mass:   2,
				Center: r3.Vec{X: 1},
				Axis:   r3.Vec{Y: 1},
			}}
			out, err := l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: []float64{0}, Links: links})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Torque[0]).To(BeNumerically("~", 9.8, 1e-12))
		})

		It("holds the previous command on a size mismatch", func() {
			l := identityLoop(2, []float64{0, 0}, false, cfg)
			_, err := l.Tick(loop.Snapshot{Angles: []float64{0, 0}, Torque: []float64{1, 2}})
			Expect(err).NotTo(HaveOccurred())

			out, err := l.Tick(loop.Snapshot{Angles: []float64{0, 0}, Torque: []float64{9, 9, 9}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Held).To(BeTrue())
			Expect(out.Torque).To(Equal([]float64{1, 2}))
			Expect(l.Status()).To(Equal(loop.Status{Tick: 2, Skipped: 1}))
		})

		It("holds on a mismatched angle vector", func() {
			l := identityLoop(2, []float64{0, 0}, false, cfg)
			out, err := l.Tick(loop.Snapshot{Angles: []float64{0, 0, 0, 0, 0}, Torque: []float64{1, 2}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Held).To(BeTrue())
			Expect(out.Torque).To(Equal([]float64{0, 0}))
			Expect(l.Status()).To(Equal(loop.Status{Tick: 1, Skipped: 1}))
		})

		It("holds on a non-finite torque sample", func() {
			l := identityLoop(1, []float64{0}, false, cfg)
			out, err := l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: []float64{math.NaN()}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Held).To(BeTrue())
			Expect(out.Torque).To(Equal([]float64{0}))
		})

		It("leaves the filters untouched on a held tick", func() {
			bank, err := filter.NewBank(2, 1, []float64{0.5, 0.5}, []float64{1, 0})
			Expect(err).NotTo(HaveOccurred())
			l, err := loop.New(bank, gravity.NewCompensator([]float64{0, 0}, true), estimator.NewKalman(), control.NewNone(), cfg)
			Expect(err).NotTo(HaveOccurred())

			out, err := l.Tick(loop.Snapshot{Angles: []float64{0, 0}, Torque: []float64{4, 4}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Held).To(BeTrue())

			// zero lever arm, so the command is the filtered torque alone
			links := []gravity.JointInput{{Mass: 1, Axis: r3.Vec{Y: 1}}, {Mass: 1, Axis: r3.Vec{Y: 1}}}
			out, err = l.Tick(loop.Snapshot{Angles: []float64{0, 0}, Torque: []float64{0, 0}, Links: links})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Held).To(BeFalse())
			Expect(out.Torque).To(Equal([]float64{0, 0}))
		})

		It("holds on a zero sub-tree mass without touching the filters", func() {
			bank, err := filter.NewBank(1, 1, []float64{0.5, 0.5}, []float64{1, 0})
			Expect(err).NotTo(HaveOccurred())
			l, err := loop.New(bank, gravity.NewCompensator([]float64{0}, true), estimator.NewKalman(), control.NewNone(), cfg)
			Expect(err).NotTo(HaveOccurred())

			out, err := l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: []float64{4}, Links: []gravity.JointInput{{Axis: r3.Vec{Y: 1}}}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Held).To(BeTrue())

			out, err = l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: []float64{2}, Links: []gravity.JointInput{{Mass: 1, Axis: r3.Vec{Y: 1}}}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Torque).To(Equal([]float64{1}))
		})

		It("holds when the gravity snapshot is missing", func() {
			l := identityLoop(1, []float64{0}, true, cfg)
			out, err := l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: []float64{1}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Held).To(BeTrue())
			Expect(out.Torque).To(Equal([]float64{0}))
		})

		It("still runs the estimator and controller on a held tick", func() {
			l := identityLoop(1, []float64{0}, false, cfg)
			out, err := l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: nil, AccelAngle: 0.3, Current: 1, Target: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Held).To(BeTrue())
			Expect(out.U).To(Equal(2.0))
			Expect(out.Angle).To(BeNumerically(">", 0))
		})

		It("returns a tick error when the controller is not set up", func() {
			bank, _ := filter.NewBank(1, 1, []float64{1, 0}, []float64{1, 0})
			l, err := loop.New(bank, gravity.NewCompensator([]float64{0}, false), estimator.NewKalman(), control.NewTwoDof(), cfg)
			Expect(err).NotTo(HaveOccurred())

			_, err = l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: []float64{0}})
			var te *dynamo.TickError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.Tick).To(Equal(uint64(0)))
			Expect(errors.Is(err, dynamo.ErrInvalidState)).To(BeTrue())
		})
	})

	Describe("estimator parameters", func() {
		It("rejects negative values", func() {
			l := identityLoop(1, []float64{0}, false, cfg)
			before := l.KalmanParameters()
			Expect(l.SetKalmanParameters(-1, 0, 0)).To(BeFalse())
			Expect(l.KalmanParameters()).To(Equal(before))
		})

		It("applies accepted values on the next tick", func() {
			l := identityLoop(1, []float64{0}, false, cfg)
			Expect(l.SetKalmanParameters(0.01, 0.02, 0)).To(BeTrue())
			Expect(l.KalmanParameters()).To(Equal(estimator.Params{QAngle: 0.01, QRate: 0.02, RAngle: 0}))

			out, err := l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: []float64{0}, AccelAngle: 0.7})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Angle).To(Equal(0.7))
		})
	})

	Describe("Run", func() {
		It("runs the configured number of ticks", func() {
			cfg.Ticks = 50
			cfg.Record = true
			l := identityLoop(1, []float64{0}, false, cfg)
			m := &counter{}
			l.AddMetric(m)

			src := &scripted{snaps: []loop.Snapshot{{Angles: []float64{0}, Torque: []float64{1}}}}
			sink := &collect{}
			res, err := l.Run(context.Background(), src, sink)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Ticks).To(Equal(uint64(50)))
			Expect(res.Records).To(HaveLen(50))
			Expect(res.Metrics).To(HaveKeyWithValue("count", 50.0))
			Expect(sink.outs).To(HaveLen(50))
			Expect(sink.outs[49].Tick).To(Equal(uint64(49)))
		})

		It("counts skipped ticks", func() {
			cfg.Ticks = 4
			l := identityLoop(2, []float64{0, 0}, false, cfg)
			src := &scripted{snaps: []loop.Snapshot{
				{Angles: []float64{0, 0}, Torque: []float64{1, 1}},
				{Angles: []float64{0, 0}, Torque: []float64{1}},
			}}
			res, err := l.Run(context.Background(), src, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(Equal(uint64(2)))
		})

		It("aborts on a source error", func() {
			cfg.Ticks = 10
			l := identityLoop(1, []float64{0}, false, cfg)
			src := &scripted{snaps: []loop.Snapshot{one(0), one(0)}, err: errors.New("sensor offline")}
			res, err := l.Run(context.Background(), src, nil)
			Expect(err).To(MatchError(ContainSubstring("sensor offline")))
			Expect(res.Ticks).To(Equal(uint64(2)))
		})

		It("stops when the context is cancelled", func() {
			cfg.Realtime = true
			l := identityLoop(1, []float64{0}, false, cfg)
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			src := &scripted{snaps: []loop.Snapshot{one(0)}}
			res, err := l.Run(ctx, src, nil)
			Expect(loop.IsCanceled(err)).To(BeTrue())
			Expect(res.Ticks).To(BeNumerically(">", 0))
		})
	})
})
