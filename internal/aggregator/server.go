package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/san-kum/deepsim/internal/dataset"
	"github.com/san-kum/deepsim/internal/logging"
	"github.com/san-kum/deepsim/internal/transport"
)

var ErrProtocol = errors.New("aggregator: protocol error")

const eventBuffer = 256

type Conn interface {
	Send(ctx context.Context, msg transport.Message) error
	Receive(ctx context.Context, timeout time.Duration) (transport.Message, error)
	Close() error
}

type Options struct {
	Predictor string
	// MaxSamples closes every session once that many samples were received
	// over all workers; 0 means no limit.
	MaxSamples int
	// ReceiveTimeout bounds the wait for the next worker message; 0 waits
	// for as long as the server runs.
	ReceiveTimeout time.Duration
}

// Status is the server view of one worker instance.
type Status struct {
	InstanceID       int
	Environment      string
	Mode             string
	Remote           string
	SessionID        string
	Samples          int
	LastStep         int
	MeanDisplacement float64
	Connected        bool
	Err              string
	Updated          time.Time
}

// Server collects samples from workers, stores them and answers each one.
type Server struct {
	store     *dataset.Store
	opts      Options
	predictor Predictor
	logger    *slog.Logger

	mu       sync.Mutex
	statuses map[int]*Status
	total    int
	events   chan Status
}

// New creates a server. store may be nil to keep nothing.
func New(store *dataset.Store, opts Options, logger *slog.Logger) (*Server, error) {
	pred, err := NewPredictor(opts.Predictor)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		store:     store,
		opts:      opts,
		predictor: pred,
		logger:    logger,
		statuses:  make(map[int]*Status),
		events:    make(chan Status, eventBuffer),
	}, nil
}

// Events delivers a copy of every status change. Changes are dropped while
// the buffer is full.
func (s *Server) Events() <-chan Status { return s.events }

// Statuses returns every known worker ordered by instance id.
func (s *Server) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// Total is the number of samples received from all workers.
func (s *Server) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(transport.WorkerPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Upgrade(w, r)
		if err != nil {
			s.logger.Error("websocket upgrade failed", "error", err)
			return
		}
		if err := s.ServeConn(r.Context(), conn, conn.RemoteAddr()); err != nil {
			s.logger.Warn("worker session ended with error", "remote", conn.RemoteAddr(), "error", err)
		}
	})
	return mux
}

// ListenAndServe serves workers on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// ServeConn runs the server side of one worker session and closes conn.
func (s *Server) ServeConn(ctx context.Context, conn Conn, remote string) error {
	defer conn.Close()

	id, err := s.expect(ctx, conn, transport.KindIdentify)
	if err != nil {
		return err
	}
	if id.Identity == nil {
		return s.reject(ctx, conn, "identify without identity")
	}
	ident := *id.Identity

	schema, err := s.expect(ctx, conn, transport.KindSchema)
	if err != nil {
		return err
	}
	if schema.Layout == nil {
		return s.reject(ctx, conn, "schema without layout")
	}
	layout := *schema.Layout
	if _, ok := schema.Field(transport.FieldInput); !ok {
		return s.reject(ctx, conn, "schema without input field")
	}
	if _, ok := schema.Field(transport.FieldGroundTruth); !ok {
		return s.reject(ctx, conn, "schema without ground_truth field")
	}

	var sessionID string
	if s.store != nil {
		fields := make([]dataset.FieldSpec, 0, 2)
		for _, name := range []string{transport.FieldInput, transport.FieldGroundTruth} {
			f, _ := schema.Field(name)
			fields = append(fields, dataset.FieldSpec{Name: f.Name, Shape: f.Shape})
		}
		sessionID, err = s.store.BeginSession(ctx, dataset.Session{
			Environment:   ident.Environment,
			InstanceID:    ident.InstanceID,
			InstanceCount: ident.InstanceCount,
			Mode:          layout.Mode,
			Encoding:      layout.Encoding,
			OutputFill:    layout.OutputFill,
			Fields:        fields,
		})
		if err != nil {
			return fmt.Errorf("begin session: %w", err)
		}
		defer func() {
			if err := s.store.EndSession(context.WithoutCancel(ctx), sessionID); err != nil {
				s.logger.Warn("failed to end session", "session", sessionID, "error", err)
			}
		}()
	}

	logger := logging.ForInstance(s.logger, ident.InstanceID)
	logger.Info("worker connected", "remote", remote, "environment", ident.Environment, "mode", layout.Mode, "output_fill", layout.OutputFill, "session", sessionID)
	s.update(ident.InstanceID, func(st *Status) {
		*st = Status{
			InstanceID:  ident.InstanceID,
			Environment: ident.Environment,
			Mode:        layout.Mode,
			Remote:      remote,
			SessionID:   sessionID,
			Connected:   true,
		}
	})
	defer s.update(ident.InstanceID, func(st *Status) { st.Connected = false })

	for {
		msg, err := conn.Receive(ctx, s.opts.ReceiveTimeout)
		if errors.Is(err, transport.ErrClosed) {
			logger.Info("worker disconnected")
			return nil
		}
		if err != nil {
			s.update(ident.InstanceID, func(st *Status) { st.Err = err.Error() })
			return err
		}

		switch msg.Kind {
		case transport.KindVisualInit, transport.KindVisualUpdate:
		case transport.KindClose:
			logger.Info("worker closed session", "reason", msg.Reason)
			return nil
		case transport.KindSample:
			if err := s.handleSample(ctx, conn, ident.InstanceID, sessionID, schema, msg); err != nil {
				s.update(ident.InstanceID, func(st *Status) { st.Err = err.Error() })
				return err
			}
		default:
			return s.reject(ctx, conn, fmt.Sprintf("unexpected %q message", msg.Kind))
		}
	}
}

func (s *Server) handleSample(ctx context.Context, conn Conn, instanceID int, sessionID string, schema, msg transport.Message) error {
	in, okIn := msg.Field(transport.FieldInput)
	gt, okGT := msg.Field(transport.FieldGroundTruth)
	if !okIn || !okGT {
		return s.reject(ctx, conn, "sample without input or ground truth")
	}
	for _, f := range []transport.Field{in, gt} {
		spec, _ := schema.Field(f.Name)
		if len(f.Data) != spec.Len() {
			return s.reject(ctx, conn, fmt.Sprintf("%s has %d values, schema says %d", f.Name, len(f.Data), spec.Len()))
		}
	}

	if s.store != nil {
		err := s.store.AddSample(ctx, sessionID, msg.Step, map[string][]float64{
			transport.FieldInput:       in.Data,
			transport.FieldGroundTruth: gt.Data,
		})
		if err != nil {
			return fmt.Errorf("store sample %d: %w", msg.Step, err)
		}
	}

	s.mu.Lock()
	s.total++
	full := s.opts.MaxSamples > 0 && s.total >= s.opts.MaxSamples
	s.mu.Unlock()
	s.update(instanceID, func(st *Status) {
		st.Samples++
		st.LastStep = msg.Step
		st.MeanDisplacement = dataset.MeanNorm(gt.Data)
	})

	if full {
		return conn.Send(ctx, transport.Message{Kind: transport.KindClose, Reason: "max samples reached"})
	}
	pred := s.predictor.Predict(in, gt)
	if pred == nil {
		return conn.Send(ctx, transport.Message{Kind: transport.KindAck, Step: msg.Step})
	}
	return conn.Send(ctx, transport.Message{
		Kind:   transport.KindPrediction,
		Step:   msg.Step,
		Fields: []transport.Field{{Name: transport.FieldPrediction, Shape: gt.Shape, Data: pred}},
	})
}

func (s *Server) expect(ctx context.Context, conn Conn, kind transport.Kind) (transport.Message, error) {
	msg, err := conn.Receive(ctx, s.opts.ReceiveTimeout)
	if err != nil {
		return transport.Message{}, err
	}
	if msg.Kind != kind {
		return transport.Message{}, s.reject(ctx, conn, fmt.Sprintf("expected %q, got %q", kind, msg.Kind))
	}
	return msg, nil
}

// reject tells the worker why the session ends and returns the matching
// protocol error.
func (s *Server) reject(ctx context.Context, conn Conn, reason string) error {
	if err := conn.Send(ctx, transport.Message{Kind: transport.KindError, Reason: reason}); err != nil {
		s.logger.Debug("failed to send error", "error", err)
	}
	return fmt.Errorf("%w: %s", ErrProtocol, reason)
}

func (s *Server) update(instanceID int, fn func(*Status)) {
	s.mu.Lock()
	st, ok := s.statuses[instanceID]
	if !ok {
		st = &Status{InstanceID: instanceID}
		s.statuses[instanceID] = st
	}
	fn(st)
	st.Updated = time.Now()
	snapshot := *st
	s.mu.Unlock()

	select {
	case s.events <- snapshot:
	default:
	}
}
