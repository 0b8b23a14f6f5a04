package plant

import (
	"math"
	"math/rand"

	"github.com/san-kum/jointctl/internal/dynamo"
	"github.com/san-kum/jointctl/internal/gravity"
	"github.com/san-kum/jointctl/internal/loop"
)

// Params describes the synthetic robot and its sensors.
type Params struct {
	Links       []Link    `yaml:"links"`
	Offsets     []float64 `yaml:"offsets"`     // true torque sensor offsets
	Amplitude   float64   `yaml:"amplitude"`   // joint swing, rad
	Frequency   float64   `yaml:"frequency"`   // joint swing, Hz
	Disturbance float64   `yaml:"disturbance"` // external torque amplitude
	TorqueNoise float64   `yaml:"torque_noise"`

	PitchAmplitude float64 `yaml:"pitch_amplitude"`
	PitchFrequency float64 `yaml:"pitch_frequency"`
	GyroBias       float64 `yaml:"gyro_bias"`
	GyroNoise      float64 `yaml:"gyro_noise"`
	AccelNoise     float64 `yaml:"accel_noise"`

	TimeConstant    float64 `yaml:"time_constant"` // tracked plant lag, s
	TargetAmplitude float64 `yaml:"target_amplitude"`
	TargetPeriod    float64 `yaml:"target_period"` // square wave period, s
}

func DefaultParams() Params {
	return Params{
		Links:           []Link{{Mass: 2.0, Length: 0.3}, {Mass: 1.2, Length: 0.25}},
		Offsets:         []float64{0.15, -0.08},
		Amplitude:       0.4,
		Frequency:       0.5,
		Disturbance:     0.3,
		TorqueNoise:     0.2,
		PitchAmplitude:  0.2,
		PitchFrequency:  0.3,
		GyroBias:        0.02,
		GyroNoise:       0.05,
		AccelNoise:      0.03,
		TimeConstant:    0.05,
		TargetAmplitude: 1.0,
		TargetPeriod:    2.0,
	}
}

// Truth holds the noise-free values behind the last snapshot.
type Truth struct {
	External []float64
	Gravity  []float64
	Pitch    float64
}

// Feed is a closed-loop synthetic robot: it produces snapshots as a
// loop.Source and consumes the controller output as a loop.Sink, which
// drives a first-order plant for the tracked value.
type Feed struct {
	p     Params
	dt    float64
	chain *Chain
	rng   *rand.Rand

	angles []float64
	torque []float64
	links  []gravity.JointInput
	truth  Truth

	current float64
	u       float64
}

func NewFeed(p Params, dt float64, seed int64) (*Feed, error) {
	if dt <= 0 || !dynamo.IsFinite(dt) {
		return nil, dynamo.Invalid("dt must be positive, got %g", dt)
	}
	if p.TimeConstant < 0 {
		return nil, dynamo.Invalid("plant time constant must be non-negative, got %g", p.TimeConstant)
	}
	chain, err := NewChain(p.Links)
	if err != nil {
		return nil, err
	}
	n := chain.Joints()
	if p.Offsets == nil {
		p.Offsets = make([]float64, n)
	}
	if len(p.Offsets) != n {
		return nil, dynamo.Mismatch("sensor offsets", len(p.Offsets), n)
	}

	return &Feed{
		p:      p,
		dt:     dt,
		chain:  chain,
		rng:    rand.New(rand.NewSource(seed)),
		angles: make([]float64, n),
		torque: make([]float64, n),
		links:  make([]gravity.JointInput, n),
		truth: Truth{
			External: make([]float64, n),
			Gravity:  make([]float64, n),
		},
	}, nil
}

func (f *Feed) Joints() int { return f.chain.Joints() }

// Truth returns the noise-free values of the last snapshot. Slices are
// reused by the next call to Next.
func (f *Feed) Truth() Truth { return f.truth }

// Next produces the snapshot of the given tick. The returned slices are
// reused on the next call.
func (f *Feed) Next(tick uint64) (loop.Snapshot, error) {
	t := float64(tick) * f.dt
	w := 2 * math.Pi * f.p.Frequency
	for i := range f.angles {
		f.angles[i] = f.p.Amplitude * math.Sin(w*t+float64(i)*math.Pi/3)
	}
	if err := f.chain.Inputs(f.angles, f.links); err != nil {
		return loop.Snapshot{}, err
	}

	for i := range f.torque {
		g, err := gravity.Torque(f.links[i], gravity.DefaultGravity)
		if err != nil {
			return loop.Snapshot{}, err
		}
		ext := f.p.Disturbance * math.Sin(math.Pi*t+float64(i))
		f.truth.Gravity[i] = g
		f.truth.External[i] = ext
		// the actuator holds the link against gravity
		f.torque[i] = ext - g + f.p.Offsets[i] + f.p.TorqueNoise*f.rng.NormFloat64()
	}

	wp := 2 * math.Pi * f.p.PitchFrequency
	pitch := f.p.PitchAmplitude * math.Sin(wp*t)
	rate := f.p.PitchAmplitude * wp * math.Cos(wp*t)
	f.truth.Pitch = pitch

	if f.p.TimeConstant > 0 {
		f.current += (f.u - f.current) * f.dt / f.p.TimeConstant
	} else {
		f.current = f.u
	}

	return loop.Snapshot{
		Angles:     f.angles,
		Torque:     f.torque,
		Links:      f.links,
		GyroRate:   rate + f.p.GyroBias + f.p.GyroNoise*f.rng.NormFloat64(),
		AccelAngle: pitch + f.p.AccelNoise*f.rng.NormFloat64(),
		Current:    f.current,
		Target:     f.target(t),
	}, nil
}

func (f *Feed) target(t float64) float64 {
	if f.p.TargetPeriod <= 0 {
		return f.p.TargetAmplitude
	}
	if math.Mod(t, f.p.TargetPeriod) < f.p.TargetPeriod/2 {
		return f.p.TargetAmplitude
	}
	return -f.p.TargetAmplitude
}

// Write takes the controller output as the plant input for the next tick.
func (f *Feed) Write(out loop.Output) error {
	f.u = out.U
	return nil
}
