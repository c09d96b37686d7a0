package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/caseflow"
	"github.com/unkn0wn-root/caseflow/blobstore"
	"github.com/unkn0wn-root/caseflow/config"
	"github.com/unkn0wn-root/caseflow/dataunit"
	"github.com/unkn0wn-root/caseflow/dataunit/fileunit"
	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/genstore"
	asynchook "github.com/unkn0wn-root/caseflow/hooks/async"
	sloghook "github.com/unkn0wn-root/caseflow/hooks/slog"
	"github.com/unkn0wn-root/caseflow/provider"
	"github.com/unkn0wn-root/caseflow/provider/bigcache"
	"github.com/unkn0wn-root/caseflow/provider/gocache"
	cfredis "github.com/unkn0wn-root/caseflow/provider/redis"
	"github.com/unkn0wn-root/caseflow/provider/ristretto"
	"github.com/unkn0wn-root/caseflow/tasks/review"
)

// Version is recorded in provenance sidecars.
var Version = "0.0.0-dev"

var walkFlags struct {
	profile string
	config.Profile
	require []string
	mark    string
}

var WalkCmd = &cobra.Command{
	Use:   "walk <cohort>",
	Short: "Open a session and walk the cohort",
	Long: `Open a session over a cohort and walk it with the review task.

Without --mark, commands are read from stdin, one per line:
  next | prev | goto <uid> | select <index> | mark <verdict> [note]
  save | layout | status | quit

With --mark every case is given the verdict and the walk runs to the end.
Settings come from --profile (or the store template) and are overridden by flags.`,
	Args: cobra.ExactArgs(1),
	RunE: runWalk,
}

func init() {
	f := WalkCmd.Flags()
	p := &walkFlags.Profile
	f.StringVar(&walkFlags.profile, "profile", "", "profile name")
	f.StringVar(&p.Task, "task", "", "task name")
	f.StringVar(&p.DataRoot, "root", "", "data root (default: the descriptor's directory)")
	f.StringVar(&p.OutputRoot, "out", "", "output root (default: data root)")
	f.StringVar(&p.OutputPattern, "pattern", "", "output pattern; %u uid, %c column, %f file name")
	f.IntVar(&p.Capacity, "capacity", 0, "resident cases including the active one")
	f.BoolVar(&p.AutoSave, "autosave", false, "save before moving to another case")
	f.StringVar(&p.Orientation, "orientation", "", "layout planes, e.g. Axial|Coronal")
	f.BoolVar(&p.Horizontal, "horizontal", false, "horizontal layout")
	f.StringVar(&p.Sidecar, "sidecar", "", "provenance format: json, cbor, msgpack or protobuf")
	f.StringVar(&p.BlobCache.Backend, "blob-cache", "", "resource cache: ristretto, bigcache, gocache, redis or none")
	f.Int64Var(&p.BlobCache.MaxBytes, "blob-max-bytes", 0, "resource cache budget in bytes")
	f.StringVar(&p.BlobCache.RedisAddr, "redis-addr", "", "redis address for --blob-cache redis")
	f.StringSliceVar(&walkFlags.require, "require", nil, "required resource kinds")
	f.StringVar(&walkFlags.mark, "mark", "", "mark every case with this verdict and exit")
}

// resolveProfile starts from the named profile or the template and applies
// flags the user set.
func resolveProfile(cmd *cobra.Command) (config.Profile, error) {
	store, err := config.Load(configPath())
	if err != nil {
		return config.Profile{}, err
	}
	p := store.Template()
	if walkFlags.profile != "" {
		if p, err = store.Get(walkFlags.profile); err != nil {
			return config.Profile{}, err
		}
	}
	fl := walkFlags.Profile
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("task", func() { p.Task = fl.Task })
	set("root", func() { p.DataRoot = fl.DataRoot })
	set("out", func() { p.OutputRoot = fl.OutputRoot })
	set("pattern", func() { p.OutputPattern = fl.OutputPattern })
	set("capacity", func() { p.Capacity = fl.Capacity })
	set("autosave", func() { p.AutoSave = fl.AutoSave })
	set("orientation", func() { p.Orientation = fl.Orientation })
	set("horizontal", func() { p.Horizontal = fl.Horizontal })
	set("sidecar", func() { p.Sidecar = fl.Sidecar })
	set("blob-cache", func() { p.BlobCache.Backend = fl.BlobCache.Backend })
	set("blob-max-bytes", func() { p.BlobCache.MaxBytes = fl.BlobCache.MaxBytes })
	set("redis-addr", func() { p.BlobCache.RedisAddr = fl.BlobCache.RedisAddr })
	set("require", func() { p.RequiredKinds = walkFlags.require })
	if u := currentUser(); u != "" && p.User == "" {
		p.User = u
	}
	if err := p.Verify(); err != nil {
		return config.Profile{}, err
	}
	if walkFlags.profile != "" {
		store.SetLast(walkFlags.profile)
		_ = store.Save()
	}
	return p, nil
}

// backend is the resource cache selected by a profile.
type backend struct {
	provider provider.Provider
	gen      genstore.Store
	client   goredis.UniversalClient
}

func (b backend) close() {
	if b.client != nil {
		_ = b.client.Close()
	}
}

func openBackend(bc config.BlobCache) (backend, error) {
	maxBytes := bc.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 512 << 20
	}
	switch bc.Backend {
	case "", "none":
		return backend{}, nil
	case "ristretto":
		p, err := ristretto.New(ristretto.Config{MaxBytes: maxBytes})
		return backend{provider: p}, err
	case "bigcache":
		p, err := bigcache.New(bigcache.Config{LifeWindow: bc.TTL, HardMaxCacheSizeMB: int(maxBytes >> 20)})
		return backend{provider: p}, err
	case "gocache":
		return backend{provider: gocache.New(gocache.Config{DefaultTTL: bc.TTL})}, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: bc.RedisAddr})
		p, err := cfredis.New(cfredis.Config{Client: client, DefaultTTL: bc.TTL})
		if err != nil {
			client.Close()
			return backend{}, err
		}
		// generations live next to the bytes so several walkers share them
		gen := genstore.NewRedis(client, genstore.RedisOptions{Prefix: "caseflow"})
		return backend{provider: p, gen: gen, client: client}, nil
	default:
		return backend{}, fmt.Errorf("unknown blob cache %q", bc.Backend)
	}
}

func runWalk(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	p, err := resolveProfile(cmd)
	if err != nil {
		return err
	}
	if p.DataRoot == "" {
		p.DataRoot = dirOf(args[0])
	}
	if p.OutputRoot == "" {
		p.OutputRoot = p.DataRoot
	}

	cohort, err := descriptor.ParseFile(args[0], descriptor.Options{})
	if err != nil {
		return err
	}

	log, flush, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer flush()

	be, err := openBackend(p.BlobCache)
	if err != nil {
		return err
	}
	defer be.close()

	raw := sloghook.New(stdslog.New(stdslog.NewTextHandler(cmd.ErrOrStderr(), &stdslog.HandlerOptions{Level: stdslog.LevelWarn})),
		sloghook.Options{SelfHealEvery: 10})
	hooks := asynchook.New(raw, 1, 1024)
	defer hooks.Close()

	blobs := blobstore.New(blobstore.Options{
		Provider: be.provider,
		GenStore: be.gen,
		Logger:   log,
		Hooks:    raw,
		TTL:      p.BlobCache.TTL,
	})
	defer blobs.Close(context.WithoutCancel(ctx))

	reg := caseflow.NewRegistry()
	if err := review.Register(reg, review.Options{
		Units: fileunit.Options{
			Blobs:         blobs,
			RequiredKinds: p.Kinds(),
			OutputPattern: p.OutputPattern,
			SidecarFormat: p.Sidecar,
			ResumeRoot:    p.OutputRoot,
			Identity:      dataunit.Identity{Tool: "caseflow", ToolVersion: Version, User: p.User},
			Logger:        log,
		},
		Logger: log,
	}); err != nil {
		return err
	}
	task, err := reg.New(p.Task)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(reg.Names(), ", "))
	}

	s, err := caseflow.New(caseflow.Options{
		Cohort:             cohort,
		Task:               task,
		DataRoot:           p.DataRoot,
		OutputRoot:         p.OutputRoot,
		Capacity:           p.Capacity,
		AutoSaveOnNavigate: p.AutoSave,
		Orientation:        p.LayoutOrientation(),
		Horizontal:         p.Horizontal,
		Opacity:            p.Opacity,
		GenStore:           be.gen,
		Logger:             log,
		Hooks:              hooks,
	})
	if err != nil {
		return err
	}
	defer func() {
		cerr := s.Close(context.WithoutCancel(ctx))
		var te *caseflow.TeardownError
		if errors.As(cerr, &te) {
			fmt.Fprintf(cmd.ErrOrStderr(), "unsaved cases: %s\n", strings.Join(te.Unsaved, ", "))
		}
		err = errors.Join(err, cerr)
	}()

	rt, _ := task.(*review.Task)
	out := cmd.OutOrStdout()
	if walkFlags.mark != "" {
		return markAll(ctx, out, s, rt, walkFlags.mark)
	}
	return repl(ctx, cmd.InOrStdin(), out, s, rt)
}

func markAll(ctx context.Context, out io.Writer, s *caseflow.Session, rt *review.Task, verdict string) error {
	v, err := review.ParseVerdict(verdict)
	if err != nil {
		return err
	}
	moved, err := s.Start(ctx)
	for moved {
		printStatus(out, s)
		if err := rt.Mark(v, ""); err != nil {
			return err
		}
		if moved, err = s.Next(ctx); err != nil {
			break
		}
	}
	if err != nil && !errors.Is(err, caseflow.ErrNoEligibleCase) {
		return err
	}
	return nil
}

func repl(ctx context.Context, in io.Reader, out io.Writer, s *caseflow.Session, rt *review.Task) error {
	if _, err := s.Start(ctx); err != nil {
		fmt.Fprintln(out, "error:", err)
	}
	printStatus(out, s)

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		switch cmd, rest := fields[0], fields[1:]; cmd {
		case "n", "next":
			_, err = s.Next(ctx)
		case "p", "prev":
			_, err = s.Previous(ctx)
		case "g", "goto":
			if len(rest) != 1 {
				err = errors.New("usage: goto <uid>")
				break
			}
			err = s.Goto(ctx, rest[0])
		case "select":
			var i int
			if len(rest) != 1 {
				err = errors.New("usage: select <index>")
				break
			}
			if i, err = strconv.Atoi(rest[0]); err == nil {
				err = s.Select(ctx, i-1)
			}
		case "m", "mark":
			if len(rest) == 0 {
				err = errors.New("usage: mark <verdict> [note]")
				break
			}
			var v review.Verdict
			if v, err = review.ParseVerdict(rest[0]); err == nil {
				err = rt.Mark(v, strings.Join(rest[1:], " "))
			}
		case "save":
			var res dataunit.SaveResult
			if res, err = s.RequestSave(ctx); err == nil {
				fmt.Fprintf(out, "saved %d files (unchanged=%v)\n", len(res.Files), res.Unchanged)
			}
		case "layout":
			var b []byte
			if _, ok := s.Layout(); !ok {
				err = errors.New("no layout for the current case")
				break
			}
			if b, err = s.Planner().XML(); err == nil {
				fmt.Fprintln(out, string(b))
			}
		case "status":
		case "q", "quit", "exit":
			return nil
		default:
			err = fmt.Errorf("unknown command %q", cmd)
		}
		if err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		printStatus(out, s)
	}
	return sc.Err()
}

func printStatus(out io.Writer, s *caseflow.Session) {
	uid, u, ok := s.Active()
	if !ok {
		fmt.Fprintln(out, "no active case")
		return
	}
	seq := s.Sequencer()
	verdict, _ := review.VerdictOf(u)
	fmt.Fprintf(out, "[%d/%d] %s dirty=%v verdict=%s resident=%v\n",
		seq.Index()+1, seq.Total(), uid, u.IsDirty(), verdict, s.Manager().Resident())
}
