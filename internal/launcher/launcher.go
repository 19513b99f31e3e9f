package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/san-kum/deepsim/internal/config"
	"github.com/san-kum/deepsim/internal/environment"
	"github.com/san-kum/deepsim/internal/logging"
	"github.com/san-kum/deepsim/internal/transport"
	"github.com/san-kum/deepsim/internal/visual"
	"github.com/san-kum/deepsim/internal/worker"
)

const Usage = "usage: deepsim worker <file_path> <environment_class_name> <ip_address> <port> <instance_id> <instance_count> <visualization_db_spec>\n  visualization_db_spec is None or [dir, name]; further elements are ignored"

var (
	ErrUsage             = errors.New("launcher: wrong number of arguments")
	ErrInvalidArgument   = errors.New("launcher: invalid argument")
	ErrVisualizationSpec = errors.New("launcher: invalid visualization db spec")
)

// VisualizationDB locates the database file Dir/Name.db.
type VisualizationDB struct {
	Dir  string
	Name string
}

// Params are the positional arguments of a worker process.
type Params struct {
	FilePath        string
	Environment     string
	Address         string
	Port            int
	InstanceID      int
	InstanceCount   int
	VisualizationDB *VisualizationDB
}

// ParseArgs reads the seven positional worker arguments.
func ParseArgs(args []string) (Params, error) {
	if len(args) != 7 {
		return Params{}, fmt.Errorf("%w: got %d, want 7", ErrUsage, len(args))
	}
	p := Params{
		FilePath:    args[0],
		Environment: args[1],
		Address:     args[2],
	}

	var err error
	if p.Port, err = strconv.Atoi(args[3]); err != nil || p.Port < 1 || p.Port > 65535 {
		return Params{}, fmt.Errorf("%w: port %q", ErrInvalidArgument, args[3])
	}
	if p.InstanceID, err = strconv.Atoi(args[4]); err != nil || p.InstanceID < 0 {
		return Params{}, fmt.Errorf("%w: instance id %q", ErrInvalidArgument, args[4])
	}
	if p.InstanceCount, err = strconv.Atoi(args[5]); err != nil || p.InstanceCount < 1 {
		return Params{}, fmt.Errorf("%w: instance count %q", ErrInvalidArgument, args[5])
	}
	if p.InstanceID >= p.InstanceCount {
		return Params{}, fmt.Errorf("%w: instance id %d not below count %d", ErrInvalidArgument, p.InstanceID, p.InstanceCount)
	}
	if p.VisualizationDB, err = ParseVisualizationDB(args[6]); err != nil {
		return Params{}, err
	}
	return p, nil
}

// ParseVisualizationDB reads "None" or a list such as ['dir', 'name'].
// Elements past the second are ignored.
func ParseVisualizationDB(s string) (*VisualizationDB, error) {
	s = strings.TrimSpace(s)
	if s == "None" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("%w: %q", ErrVisualizationSpec, s)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: want [dir, name] in %q", ErrVisualizationSpec, s)
	}
	parts = parts[:2]
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) >= 2 && (part[0] == '\'' || part[0] == '"') && part[len(part)-1] == part[0] {
			part = part[1 : len(part)-1]
		}
		if part == "" {
			return nil, fmt.Errorf("%w: empty element in %q", ErrVisualizationSpec, s)
		}
		parts[i] = part
	}
	return &VisualizationDB{Dir: parts[0], Name: parts[1]}, nil
}

// Run builds the environment and runs its worker session until it ends. A
// cancelled ctx ends the session gracefully.
func Run(ctx context.Context, p Params, reg *environment.Registry, stdout, stderr io.Writer) error {
	cfg, err := config.Load(p.FilePath)
	if err != nil {
		return instanceError(p, err)
	}
	if err := cfg.Validate(); err != nil {
		return instanceError(p, fmt.Errorf("invalid config %s: %w", p.FilePath, err))
	}
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, stderr)

	sc, err := reg.New(p.Environment, cfg, p.InstanceID)
	if err != nil {
		return instanceError(p, err)
	}

	opts := []worker.Option{worker.WithLogger(logger)}
	if p.VisualizationDB != nil {
		sink, err := visual.OpenDBSink(ctx, p.VisualizationDB.Dir, p.VisualizationDB.Name)
		if err != nil {
			sc.Close()
			return instanceError(p, fmt.Errorf("visualization db: %w", err))
		}
		logger.Info("writing visualization", "path", sink.Path())
		opts = append(opts, worker.WithVisualSink(sink))
	}

	dial := func(ctx context.Context) (worker.Conn, error) {
		if cfg.Session.DialTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Session.DialTimeout)
			defer cancel()
		}
		conn, err := transport.Dial(ctx, p.Address, p.Port)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	session := worker.New(worker.Config{
		Identity: worker.Identity{
			InstanceID:    p.InstanceID,
			InstanceCount: p.InstanceCount,
			Environment:   p.Environment,
		},
		MaxSteps:       cfg.Session.MaxSteps,
		ReceiveTimeout: cfg.Session.ReceiveTimeout,
		Encoding:       cfg.EncodingMode(),
		Fill:           cfg.FillMode(),
		GridTolerance:  cfg.Session.GridTolerance,
		Color:          cfg.Session.Color,
	}, sc, dial, opts...)

	err = session.Run(ctx)
	fmt.Fprintf(stdout, "[launcher] Shutting down client %s\n", p.Address)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// instanceError names the worker in failures that happen before its session
// exists.
func instanceError(p Params, err error) error {
	return fmt.Errorf("instance %d/%d: %w", p.InstanceID, p.InstanceCount, err)
}
