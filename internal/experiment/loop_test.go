package experiment_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rolltune/internal/control"
	"github.com/san-kum/rolltune/internal/dynamo"
	"github.com/san-kum/rolltune/internal/experiment"
	"github.com/san-kum/rolltune/internal/integrators"
	"github.com/san-kum/rolltune/internal/optim"
	"github.com/san-kum/rolltune/internal/plant"
)

// scriptedSim feeds the controller a constant roll rate at a fixed
// velocity. Calls listed in failOn return that error instead.
type scriptedSim struct {
	calls  int
	rate   float64
	end    float64
	failOn map[int]error
	block  bool
}

func (s *scriptedSim) Simulate(ctx context.Context, ctrl experiment.FinController) (*dynamo.FlightTrace, error) {
	call := s.calls
	s.calls++
	if err, ok := s.failOn[call]; ok {
		return nil, err
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	trace := dynamo.NewFlightTrace(0)
	for i := 0; float64(i)*0.01 <= s.end; i++ {
		t := float64(i) * 0.01
		fin := ctrl.Update(t, s.rate)
		trace.Append(dynamo.Sample{
			Time:     t,
			RollRate: s.rate,
			Velocity: 100,
			Canard1:  fin,
			Canard2:  -fin,
			Roll:     ctrl.EstimatedRoll(),
		})
	}
	return trace, nil
}

type recordingReporter struct {
	snaps []experiment.Snapshot
	err   error
}

func (r *recordingReporter) Report(_ context.Context, s experiment.Snapshot) error {
	r.snaps = append(r.snaps, s)
	return r.err
}

func newTuner() *optim.GainTuner {
	tuner, err := optim.NewGainTuner(optim.DefaultConstants())
	Expect(err).NotTo(HaveOccurred())
	return tuner
}

var _ = Describe("Loop", func() {
	var (
		cfg      experiment.LoopConfig
		ctrlCfg  control.Config
		sim      *scriptedSim
		reporter *recordingReporter
		initial  dynamo.GainVector
	)

	BeforeEach(func() {
		cfg = experiment.DefaultLoopConfig()
		cfg.Iterations = 25
		ctrlCfg = control.DefaultConfig()
		sim = &scriptedSim{rate: 0.5, end: 4}
		reporter = &recordingReporter{}
		initial = ctrlCfg.Gains
	})

	run := func(ctx context.Context) (experiment.Result, error) {
		loop, err := experiment.NewLoop(cfg, ctrlCfg, sim, newTuner(), reporter)
		Expect(err).NotTo(HaveOccurred())
		return loop.Run(ctx, initial)
	}

	Context("with a well-behaved simulator", func() {
		It("runs every iteration and snapshots every K", func() {
			res, err := run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(sim.calls).To(Equal(25))
			Expect(res.Completed).To(Equal(25))
			Expect(res.History).To(HaveLen(25))
			Expect(res.Skipped).To(BeEmpty())

			Expect(reporter.snaps).To(HaveLen(3))
			iterations := []int{}
			for _, s := range reporter.snaps {
				iterations = append(iterations, s.Iteration)
			}
			Expect(iterations).To(Equal([]int{0, 10, 20}))
			Expect(res.Snapshots).To(HaveLen(3))
		})

		It("reports the gains each iteration flew with", func() {
			res, err := run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			first := reporter.snaps[0]
			Expect(first.Gains).To(Equal(initial))
			Expect(first.Trace).NotTo(BeNil())
			Expect(first.Trace.Len()).To(BeNumerically(">", 0))
			Expect(first.Trace.At(0).Time).To(BeZero(), "snapshots keep the whole flight")
			Expect(reporter.snaps[1].Gains).To(Equal(res.History[10]))
		})

		It("updates gains additively across iterations", func() {
			res, err := run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Gains.IsFinite()).To(BeTrue())
			Expect(res.Gains.Kp).To(BeNumerically(">", initial.Kp))
			if diff := cmp.Diff(initial, res.History[0]); diff != "" {
				Fail("first iteration must fly the initial gains:\n" + diff)
			}
			for i := 1; i < len(res.History); i++ {
				Expect(res.History[i]).NotTo(Equal(res.History[i-1]))
			}
		})

		It("counts fin saturations", func() {
			ctrlCfg.MaxFinRate = 10
			initial = dynamo.GainVector{Kp: 100}
			res, err := run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Saturations).To(BeNumerically(">", 0))
			Expect(reporter.snaps[0].Saturations).To(BeNumerically(">", 0))
		})
	})

	Context("when the simulator fails", func() {
		boom := errors.New("simulator crashed")

		It("skips the gain update under the skip policy", func() {
			sim.failOn = map[int]error{1: boom}
			res, err := run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Skipped).To(Equal([]int{1}))
			Expect(res.Completed).To(Equal(24))
			Expect(res.History[2]).To(Equal(res.History[1]))
		})

		It("stops the loop under the abort policy", func() {
			cfg.FailurePolicy = experiment.AbortLoop
			sim.failOn = map[int]error{3: boom}
			res, err := run(context.Background())

			Expect(err).To(MatchError(boom))
			var iterErr *dynamo.IterationError
			Expect(errors.As(err, &iterErr)).To(BeTrue())
			Expect(iterErr.Iteration).To(Equal(3))
			Expect(iterErr.Stage).To(Equal("simulate"))
			Expect(res.Completed).To(Equal(3))
		})

		It("bounds each simulator call with a deadline", func() {
			cfg.FailurePolicy = experiment.AbortLoop
			cfg.IterationTimeout = 10 * time.Millisecond
			sim.block = true

			_, err := run(context.Background())
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		})

		It("treats an empty active trace as an analysis failure", func() {
			cfg.FailurePolicy = experiment.AbortLoop
			sim.end = 1.0
			_, err := run(context.Background())

			Expect(err).To(MatchError(dynamo.ErrEmptyTrace))
			var iterErr *dynamo.IterationError
			Expect(errors.As(err, &iterErr)).To(BeTrue())
			Expect(iterErr.Stage).To(Equal("analyze"))
		})
	})

	Context("when gains run away", func() {
		It("terminates with ErrDivergence regardless of policy", func() {
			cfg.GainLimit = 0.05
			res, err := run(context.Background())

			Expect(err).To(MatchError(dynamo.ErrDivergence))
			Expect(res.Gains).To(Equal(initial))
			Expect(sim.calls).To(Equal(1))
		})
	})

	It("returns the reporter's error", func() {
		reporter.err = errors.New("disk full")
		_, err := run(context.Background())

		Expect(err).To(MatchError(reporter.err))
		Expect(sim.calls).To(Equal(1))
	})

	It("stops when the parent context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := run(ctx)

		Expect(err).To(MatchError(context.Canceled))
		Expect(res.Completed).To(BeZero())
	})

	It("rejects a zero setpoint before running", func() {
		ctrlCfg.SetpointRoll = 0
		_, err := experiment.NewLoop(cfg, ctrlCfg, sim, newTuner(), nil)
		Expect(err).To(MatchError(dynamo.ErrZeroSetpoint))
	})

	DescribeTable("rejects invalid loop configuration",
		func(mutate func(*experiment.LoopConfig)) {
			mutate(&cfg)
			_, err := experiment.NewLoop(cfg, ctrlCfg, sim, newTuner(), nil)
			Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
		},
		Entry("zero iterations", func(c *experiment.LoopConfig) { c.Iterations = 0 }),
		Entry("zero snapshot interval", func(c *experiment.LoopConfig) { c.SnapshotEvery = 0 }),
		Entry("unknown policy", func(c *experiment.LoopConfig) { c.FailurePolicy = "retry" }),
		Entry("negative timeout", func(c *experiment.LoopConfig) { c.IterationTimeout = -time.Second }),
	)

	It("tunes against the reference plant", func() {
		rp := plant.NewRollPlant(plant.DefaultRollParams())
		engine, err := plant.NewEngine(rp, integrators.NewRK4(), plant.Config{Dt: 0.002, Duration: 4, ValidateState: true})
		Expect(err).NotTo(HaveOccurred())

		cfg.Iterations = 3
		loop, err := experiment.NewLoop(cfg, ctrlCfg, engine, newTuner(), reporter)
		Expect(err).NotTo(HaveOccurred())

		res, err := loop.Run(context.Background(), initial)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Completed).To(Equal(3))
		Expect(res.Gains.IsFinite()).To(BeTrue())
		Expect(reporter.snaps).To(HaveLen(1))
	})
})
