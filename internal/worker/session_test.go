package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/deepsim/internal/sample"
	"github.com/san-kum/deepsim/internal/scene"
	"github.com/san-kum/deepsim/internal/transport"
	"github.com/san-kum/deepsim/internal/visual"
	"github.com/san-kum/deepsim/internal/worker"
)

// fakeConn answers every sample with reply.
type fakeConn struct {
	mu     sync.Mutex
	sent   []transport.Message
	last   transport.Message
	reply  func(sample transport.Message) (transport.Message, error)
	closed bool
}

func (c *fakeConn) Send(ctx context.Context, msg transport.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	if msg.Kind == transport.KindSample {
		c.last = msg
	}
	return nil
}

func (c *fakeConn) Receive(ctx context.Context, _ time.Duration) (transport.Message, error) {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	return c.reply(last)
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) kinds() []transport.Kind {
	out := make([]transport.Kind, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.Kind
	}
	return out
}

func (c *fakeConn) ofKind(k transport.Kind) []transport.Message {
	var out []transport.Message
	for _, m := range c.sent {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// brokenScene fails to initialize.
type brokenScene struct {
	*scene.Beam
}

func (brokenScene) Init(context.Context) error { return errors.New("mesh not found") }

func ack(transport.Message) (transport.Message, error) {
	return transport.Message{Kind: transport.KindAck}, nil
}

type recordingSink struct {
	objects []visual.Object
	updates int
	closed  bool
}

func (r *recordingSink) Init(_ context.Context, _ int, objects []visual.Object) error {
	r.objects = objects
	return nil
}

func (r *recordingSink) Update(_ context.Context, _ int, updates []visual.Update) error {
	r.updates += len(updates)
	return nil
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

var _ = Describe("Session", func() {
	var (
		beamCfg scene.BeamConfig
		cfg     worker.Config
		conn    *fakeConn
		beam    *scene.Beam
	)

	BeforeEach(func() {
		beamCfg = scene.DefaultBeamConfig()
		beamCfg.Cells = [3]int{3, 1, 1}
		beamCfg.Spacing = 0.5
		beamCfg.ForceRadius = 0.6
		cfg = worker.Config{
			Identity:       worker.Identity{InstanceID: 2, InstanceCount: 4, Environment: "BeamTraining"},
			MaxSteps:       3,
			ReceiveTimeout: time.Second,
			Color:          "green",
		}
		conn = &fakeConn{reply: ack}
	})

	newSession := func(opts ...worker.Option) *worker.Session {
		var err error
		beam, err = scene.NewBeam(beamCfg)
		Expect(err).NotTo(HaveOccurred())
		dial := func(context.Context) (worker.Conn, error) { return conn, nil }
		return worker.New(cfg, beam, dial, opts...)
	}

	It("starts disconnected", func() {
		Expect(newSession().State()).To(Equal(worker.Disconnected))
	})

	It("announces itself, then sends one sample and one visual update per step", func() {
		s := newSession()
		Expect(s.Run(context.Background())).To(Succeed())

		Expect(conn.kinds()).To(Equal([]transport.Kind{
			transport.KindIdentify, transport.KindSchema, transport.KindVisualInit,
			transport.KindSample, transport.KindVisualUpdate,
			transport.KindSample, transport.KindVisualUpdate,
			transport.KindSample, transport.KindVisualUpdate,
			transport.KindClose,
		}))
		Expect(s.State()).To(Equal(worker.Closed))
		Expect(s.Steps()).To(Equal(3))
		Expect(conn.closed).To(BeTrue())

		id := conn.sent[0].Identity
		Expect(id).NotTo(BeNil())
		Expect(id.InstanceID).To(Equal(2))
		layout := conn.sent[1].Layout
		Expect(layout).NotTo(BeNil())
		Expect(*layout).To(Equal(transport.Layout{Mode: "direct", Encoding: "first-nonzero", OutputFill: "zero"}))
		for i, m := range conn.ofKind(transport.KindSample) {
			Expect(m.Step).To(Equal(i + 1))
		}
	})

	DescribeTable("keeps the sample shapes announced in the schema",
		func(gridMapped bool, mode string, nodes int) {
			beamCfg.GridMapped = gridMapped
			beamCfg.GridMargin = 1
			Expect(newSession().Run(context.Background())).To(Succeed())

			schema := conn.sent[1]
			Expect(schema.Layout.Mode).To(Equal(mode))
			in, ok := schema.Field(transport.FieldInput)
			Expect(ok).To(BeTrue())
			Expect(in.Shape).To(Equal([]int{nodes, 3}))

			for _, m := range conn.ofKind(transport.KindSample) {
				Expect(m.Fields).To(HaveLen(2))
				for _, f := range m.Fields {
					spec, ok := schema.Field(f.Name)
					Expect(ok).To(BeTrue())
					Expect(f.Shape).To(Equal(spec.Shape))
					Expect(f.Data).To(HaveLen(spec.Len()))
				}
			}
		},
		Entry("direct", false, "direct", 16),
		Entry("regular grid", true, "grid", 6*4*4),
	)

	It("stops without replying when the server closes the session", func() {
		conn.reply = func(m transport.Message) (transport.Message, error) {
			if m.Step == 2 {
				return transport.Message{Kind: transport.KindClose, Reason: "enough"}, nil
			}
			return ack(m)
		}
		cfg.MaxSteps = 0
		s := newSession()
		Expect(s.Run(context.Background())).To(Succeed())

		kinds := conn.kinds()
		Expect(kinds[len(kinds)-1]).To(Equal(transport.KindSample))
		Expect(conn.ofKind(transport.KindClose)).To(BeEmpty())
		Expect(s.Steps()).To(Equal(2))
		Expect(s.State()).To(Equal(worker.Closed))
	})

	It("applies predictions to the network model", func() {
		cfg.MaxSteps = 1
		conn.reply = func(m transport.Message) (transport.Message, error) {
			gt, _ := m.Field(transport.FieldGroundTruth)
			data := make([]float64, len(gt.Data))
			for i := 1; i < len(data); i += 3 {
				data[i] = 0.1
			}
			return transport.Message{
				Kind:   transport.KindPrediction,
				Fields: []transport.Field{{Name: transport.FieldPrediction, Shape: gt.Shape, Data: data}},
			}, nil
		}
		Expect(newSession().Run(context.Background())).To(Succeed())

		net := beam.Models().NetworkGrid
		for i, rest := range net.RestPosition {
			Expect(net.Position[i].X).To(Equal(rest.X))
			Expect(net.Position[i].Y).To(BeNumerically("~", rest.Y+0.1, 1e-12))
			Expect(net.Position[i].Z).To(Equal(rest.Z))
		}
	})

	It("fails on a prediction of the wrong length", func() {
		conn.reply = func(transport.Message) (transport.Message, error) {
			return transport.Message{
				Kind:   transport.KindPrediction,
				Fields: []transport.Field{{Name: transport.FieldPrediction, Data: []float64{1, 2, 3}}},
			}, nil
		}
		s := newSession()
		err := s.Run(context.Background())

		var se *worker.SessionError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Step).To(Equal(1))
		Expect(se.State).To(Equal(worker.Stepping))
		Expect(se.InstanceID).To(Equal(2))
		Expect(err).To(MatchError(sample.ErrPredictionLength))
		Expect(conn.ofKind(transport.KindClose)).To(BeEmpty())
		Expect(conn.closed).To(BeTrue())
		Expect(s.State()).To(Equal(worker.Closed))
	})

	It("fails when no reply arrives in time", func() {
		conn.reply = func(transport.Message) (transport.Message, error) {
			return transport.Message{}, fmt.Errorf("%w after 1s", transport.ErrTimeout)
		}
		err := newSession().Run(context.Background())
		Expect(err).To(MatchError(transport.ErrTimeout))
	})

	It("rejects replies that do not answer a sample", func() {
		conn.reply = func(transport.Message) (transport.Message, error) {
			return transport.Message{Kind: transport.KindSchema}, nil
		}
		err := newSession().Run(context.Background())
		Expect(err).To(MatchError(worker.ErrProtocol))
	})

	It("identifies itself before the scene initializes", func() {
		beam, _ = scene.NewBeam(beamCfg)
		dial := func(context.Context) (worker.Conn, error) { return conn, nil }
		s := worker.New(cfg, brokenScene{beam}, dial)
		err := s.Run(context.Background())

		var se *worker.SessionError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.State).To(Equal(worker.Connected))
		Expect(err).To(MatchError(ContainSubstring("mesh not found")))
		Expect(conn.kinds()).To(Equal([]transport.Kind{transport.KindIdentify}))
		Expect(conn.sent[0].Identity.InstanceID).To(Equal(2))
		Expect(conn.closed).To(BeTrue())
	})

	It("announces the output fill in the schema", func() {
		cfg.Fill = sample.FillRest
		beamCfg.GridMapped = true
		Expect(newSession().Run(context.Background())).To(Succeed())
		Expect(conn.sent[1].Layout.OutputFill).To(Equal("rest"))
		Expect(conn.sent[1].Layout.Mode).To(Equal("grid"))
	})

	It("reports a failed connection", func() {
		beam, _ = scene.NewBeam(beamCfg)
		dial := func(context.Context) (worker.Conn, error) { return nil, errors.New("refused") }
		s := worker.New(cfg, beam, dial)
		err := s.Run(context.Background())

		var se *worker.SessionError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.State).To(Equal(worker.Disconnected))
		Expect(s.State()).To(Equal(worker.Closed))
	})

	It("finishes between steps when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		conn.reply = func(m transport.Message) (transport.Message, error) {
			if m.Step == 2 {
				cancel()
			}
			return ack(m)
		}
		cfg.MaxSteps = 0
		s := newSession()
		err := s.Run(ctx)

		Expect(err).To(MatchError(context.Canceled))
		Expect(s.Steps()).To(Equal(2))
		closes := conn.ofKind(transport.KindClose)
		Expect(closes).To(HaveLen(1))
		Expect(closes[0].Reason).To(Equal("cancelled"))
		Expect(s.State()).To(Equal(worker.Closed))
	})

	It("publishes meshes to a custom sink", func() {
		sink := &recordingSink{}
		Expect(newSession(worker.WithVisualSink(sink)).Run(context.Background())).To(Succeed())

		Expect(conn.ofKind(transport.KindVisualInit)).To(BeEmpty())
		Expect(conn.ofKind(transport.KindVisualUpdate)).To(BeEmpty())
		Expect(sink.objects).To(HaveLen(1))
		Expect(sink.objects[0].Color).To(Equal("green"))
		Expect(sink.updates).To(Equal(3))
		Expect(sink.closed).To(BeTrue())
	})
})

var _ = Describe("State", func() {
	It("names every state", func() {
		Expect(worker.Stepping.String()).To(Equal("stepping"))
		Expect(worker.ShuttingDown.String()).To(Equal("shutting_down"))
		Expect(worker.State(42).String()).To(Equal("State(42)"))
	})
})
