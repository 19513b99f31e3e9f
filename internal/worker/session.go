package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/san-kum/deepsim/internal/logging"
	"github.com/san-kum/deepsim/internal/sample"
	"github.com/san-kum/deepsim/internal/scene"
	"github.com/san-kum/deepsim/internal/transport"
	"github.com/san-kum/deepsim/internal/visual"
)

const closeTimeout = 2 * time.Second

// Conn is the message link to the server.
type Conn interface {
	Send(ctx context.Context, msg transport.Message) error
	Receive(ctx context.Context, timeout time.Duration) (transport.Message, error)
	Close() error
}

// Dialer opens the link to the server.
type Dialer func(ctx context.Context) (Conn, error)

type Identity struct {
	InstanceID    int
	InstanceCount int
	Environment   string
}

type Config struct {
	Identity Identity
	// MaxSteps ends the session after that many steps; 0 means no limit.
	MaxSteps       int
	ReceiveTimeout time.Duration
	Encoding       sample.Encoding
	Fill           sample.Fill
	GridTolerance  float64
	Color          string
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithVisualSink publishes meshes to sink instead of the server.
func WithVisualSink(sink visual.Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// Session runs one scene against the server: one sample per step, one reply
// per sample.
type Session struct {
	cfg    Config
	scene  scene.Scene
	dial   Dialer
	logger *slog.Logger

	conn      Conn
	extractor *sample.Extractor
	applier   *sample.Applier
	factory   *visual.Factory
	sink      visual.Sink
	visualID  int

	state    atomic.Int32
	step     int
	stopping bool
	remote   bool
	reason   string
}

func New(cfg Config, sc scene.Scene, dial Dialer, opts ...Option) *Session {
	s := &Session{
		cfg:     cfg,
		scene:   sc,
		dial:    dial,
		logger:  logging.Discard(),
		factory: visual.NewFactory(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.ForInstance(s.logger, cfg.Identity.InstanceID)
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

// Steps is the number of completed steps.
func (s *Session) Steps() int { return s.step }

// Extractor is nil until the scene is initialized.
func (s *Session) Extractor() *sample.Extractor { return s.extractor }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug("session state", "state", st.String())
}

func (s *Session) fail(err error) error {
	return &SessionError{InstanceID: s.cfg.Identity.InstanceID, Step: s.step, State: s.State(), Err: err}
}

// Run connects, initializes the scene and steps it until the server closes
// the session, MaxSteps is reached, ctx is done or an error occurs. Graceful
// ends return nil; a cancelled ctx returns its error.
func (s *Session) Run(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		err = s.fail(fmt.Errorf("connect: %w", err))
		s.scene.Close()
		if s.sink != nil {
			s.sink.Close()
		}
		s.setState(Closed)
		return err
	}
	s.conn = conn
	if s.sink == nil {
		s.sink = &remoteSink{conn: conn}
	}
	s.setState(Connected)
	s.logger.Info("connected to server")

	id := s.cfg.Identity
	err = conn.Send(ctx, transport.Message{
		Kind: transport.KindIdentify,
		Identity: &transport.Identity{
			InstanceID:    id.InstanceID,
			InstanceCount: id.InstanceCount,
			Environment:   id.Environment,
		},
	})
	if err != nil {
		return s.shutdown(ctx, s.fail(fmt.Errorf("identify: %w", err)))
	}

	driver := scene.NewDriver(s.scene, s)
	if err := driver.Init(ctx); err != nil {
		return s.shutdown(ctx, s.fail(err))
	}

	s.setState(Stepping)
	for !s.stopping {
		if err := ctx.Err(); err != nil {
			s.reason = "cancelled"
			return s.shutdown(ctx, err)
		}
		if err := driver.Step(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				s.reason = "cancelled"
				return s.shutdown(ctx, ctxErr)
			}
			return s.shutdown(ctx, s.fail(err))
		}
	}
	return s.shutdown(ctx, nil)
}

// OnInitDone fixes the sample shapes, announces them and publishes the
// initial visual mesh.
func (s *Session) OnInitDone(ctx context.Context, sc scene.Scene) error {
	models := sc.Models()
	ex, err := sample.NewExtractor(models, sample.Options{
		Encoding:      s.cfg.Encoding,
		Fill:          s.cfg.Fill,
		GridTolerance: s.cfg.GridTolerance,
	})
	if err != nil {
		return err
	}
	s.extractor = ex
	s.applier = sample.NewApplier(models, ex)

	mode := "direct"
	if ex.Mapper() != nil {
		mode = "grid"
	}
	in, out := ex.InputShape(), ex.OutputShape()
	err = s.conn.Send(ctx, transport.Message{
		Kind: transport.KindSchema,
		Layout: &transport.Layout{
			Mode:       mode,
			Encoding:   s.cfg.Encoding.String(),
			OutputFill: s.cfg.Fill.String(),
		},
		Fields: []transport.Field{
			{Name: transport.FieldInput, Shape: in.Dims()},
			{Name: transport.FieldGroundTruth, Shape: out.Dims()},
			{Name: transport.FieldPrediction, Shape: out.Dims()},
		},
	})
	if err != nil {
		return err
	}

	s.visualID = s.factory.AddMesh(sc.Visual(), s.cfg.Color)
	if err := s.sink.Init(ctx, s.cfg.Identity.InstanceID, s.factory.Objects()); err != nil {
		return fmt.Errorf("visual init: %w", err)
	}

	s.setState(Initialized)
	s.logger.Info("session initialized", "mode", mode, "input_nodes", in.Nodes, "output_nodes", out.Nodes)
	return nil
}

// OnStepEnd sends the sample of the step, waits for the single reply,
// applies it and publishes the moved vertices.
func (s *Session) OnStepEnd(ctx context.Context, sc scene.Scene, step int) error {
	s.step = step
	smp, err := s.extractor.Extract(step, sc.ForceFields())
	if err != nil {
		return err
	}
	in, out := s.extractor.InputShape(), s.extractor.OutputShape()
	err = s.conn.Send(ctx, transport.Message{
		Kind: transport.KindSample,
		Step: step,
		Fields: []transport.Field{
			{Name: transport.FieldInput, Shape: in.Dims(), Data: sample.Flatten(smp.Input)},
			{Name: transport.FieldGroundTruth, Shape: out.Dims(), Data: sample.Flatten(smp.GroundTruth)},
		},
	})
	if err != nil {
		return err
	}

	reply, err := s.conn.Receive(ctx, s.cfg.ReceiveTimeout)
	if err != nil {
		return err
	}
	switch reply.Kind {
	case transport.KindAck:
	case transport.KindPrediction:
		pred, ok := reply.Field(transport.FieldPrediction)
		if !ok {
			return fmt.Errorf("%w: prediction without %q field", ErrProtocol, transport.FieldPrediction)
		}
		if err := s.applier.Apply(pred.Data); err != nil {
			return err
		}
	case transport.KindClose:
		s.stopping = true
		s.remote = true
		s.reason = reply.Reason
		s.logger.Info("server closed session", "step", step, "reason", reply.Reason)
		return nil
	case transport.KindError:
		return fmt.Errorf("%w: server error: %s", ErrProtocol, reply.Reason)
	default:
		return fmt.Errorf("%w: unexpected %q reply to sample", ErrProtocol, reply.Kind)
	}

	u, err := s.factory.UpdateMesh(s.visualID, sc.Visual().Positions)
	if err != nil {
		return err
	}
	if err := s.sink.Update(ctx, s.cfg.Identity.InstanceID, []visual.Update{u}); err != nil {
		return fmt.Errorf("visual update: %w", err)
	}

	if s.cfg.MaxSteps > 0 && step >= s.cfg.MaxSteps {
		s.stopping = true
		s.reason = "max steps reached"
	}
	s.logger.Debug("step done", "step", step, "reply", string(reply.Kind), "moved", len(u.Indices))
	return nil
}

// shutdown releases everything in a fixed order and returns cause. The close
// message is only sent when the session ends on its own terms.
func (s *Session) shutdown(ctx context.Context, cause error) error {
	s.setState(ShuttingDown)

	var se *SessionError
	failed := errors.As(cause, &se)
	if !failed && !s.remote {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		err := s.conn.Send(cctx, transport.Message{Kind: transport.KindClose, Reason: s.reason})
		cancel()
		if err != nil {
			s.logger.Warn("failed to send close", "error", err)
		}
	}

	if err := s.scene.Close(); err != nil {
		s.logger.Warn("failed to close scene", "error", err)
	}
	if err := s.sink.Close(); err != nil {
		s.logger.Warn("failed to close visual sink", "error", err)
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("failed to close connection", "error", err)
	}
	s.setState(Closed)

	if failed {
		s.logger.Error("session failed", "step", se.Step, "state", se.State.String(), "error", se.Err)
	} else {
		s.logger.Info("session closed", "steps", s.step, "reason", s.reason)
	}
	return cause
}

// remoteSink publishes meshes over the session connection.
type remoteSink struct {
	conn Conn
}

func (r *remoteSink) Init(ctx context.Context, instanceID int, objects []visual.Object) error {
	meshes := make([]transport.Mesh, len(objects))
	for i, o := range objects {
		meshes[i] = transport.Mesh{
			InstanceID: instanceID,
			ObjectID:   o.ID,
			Color:      o.Color,
			Positions:  visual.Flatten(o.Positions),
			Triangles:  o.Triangles,
		}
	}
	return r.conn.Send(ctx, transport.Message{Kind: transport.KindVisualInit, Meshes: meshes})
}

func (r *remoteSink) Update(ctx context.Context, instanceID int, updates []visual.Update) error {
	meshes := make([]transport.Mesh, len(updates))
	for i, u := range updates {
		meshes[i] = transport.Mesh{
			InstanceID: instanceID,
			ObjectID:   u.ObjectID,
			Indices:    u.Indices,
			Positions:  visual.Flatten(u.Positions),
		}
	}
	return r.conn.Send(ctx, transport.Message{Kind: transport.KindVisualUpdate, Meshes: meshes})
}

func (r *remoteSink) Close() error { return nil }
