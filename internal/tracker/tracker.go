package tracker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/mestouches/internal/capture"
	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/config"
	"github.com/roach88/mestouches/internal/diag"
	"github.com/roach88/mestouches/internal/engine"
	"github.com/roach88/mestouches/internal/relay"
	"github.com/roach88/mestouches/internal/store"
)

// Durable is the persistence surface shared by the three stores.
type Durable interface {
	Kind() codec.Kind
	Path() string
	Available() bool
	Stats() store.Stats
	Save() error
	SaveTo(path string) error
	Flush() error
	Reload() error
	LoadFrom(path string, strict bool) error
	Reset() error
	Repair() (int, error)
}

// ErrUnknownKind is returned for a store kind the tracker does not hold.
var ErrUnknownKind = errors.New("unknown store kind")

// Tracker wires capture, queue, consumer and stores together.
type Tracker struct {
	cfg       *config.Config
	dataDir   string
	sessionID string
	diag      *diag.Log
	logger    *slog.Logger

	keys     *store.Keystream
	pointer  *store.Pointer
	sessions *store.Sessions

	queue    *engine.Queue
	engine   *engine.Engine
	hooks    *capture.Hooks
	privacy  *capture.Privacy
	source   capture.Source
	stopEnd  bool
	watch    string

	relayHook *capture.WindowHook
	receiver  *relay.Receiver
	closers   []func() error

	installed atomic.Bool
}

type options struct {
	source    capture.Source
	screens   engine.ScreenSource
	reader    relay.Reader
	wakeup    relay.Wakeup
	clock     capture.Clock
	diag      *diag.Log
	logger    *slog.Logger
	watch     string
	stopOnEnd bool
}

// Option configures a Tracker.
type Option func(*options)

// WithSource drives the hooks from src instead of the platform source or
// the configured replay script.
func WithSource(src capture.Source) Option {
	return func(o *options) { o.source = src }
}

// WithScreens sets the monitor source consulted by the consumer.
func WithScreens(s engine.ScreenSource) Option {
	return func(o *options) { o.screens = s }
}

// WithRelayEndpoint uses reader and wakeup instead of listening on the
// configured channel. wakeup may be nil.
func WithRelayEndpoint(reader relay.Reader, wakeup relay.Wakeup) Option {
	return func(o *options) {
		o.reader = reader
		o.wakeup = wakeup
	}
}

// WithClock sets the timestamp clock of every hook.
func WithClock(c capture.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDiag sets the diagnostic log.
func WithDiag(l *diag.Log) Option {
	return func(o *options) { o.diag = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConfigWatch hot-reloads the privacy exclusions from the file at
// path while Run is in progress.
func WithConfigWatch(path string) Option {
	return func(o *options) { o.watch = path }
}

// WithStopOnSourceEnd makes Run return once the capture source has played
// all of its input. Replay sessions use this.
func WithStopOnSourceEnd() Option {
	return func(o *options) { o.stopOnEnd = true }
}

// New builds a tracker from cfg. Stores whose files fail to load are
// unavailable until reset or reloaded; that is not an error here.
func New(cfg *config.Config, opts ...Option) (*Tracker, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.diag == nil {
		o.diag = diag.New(diag.WithLogger(o.logger))
	}

	dir, err := resolveDataDir(cfg)
	if err != nil {
		return nil, err
	}

	privacy, err := capture.NewPrivacy(cfg.Privacy.ExcludeSubjects)
	if err != nil {
		return nil, fmt.Errorf("privacy patterns: %w", err)
	}

	t := &Tracker{
		cfg:       cfg,
		dataDir:   dir,
		sessionID: uuid.Must(uuid.NewV7()).String(),
		diag:      o.diag,
		logger:    o.logger,
		privacy:   privacy,
		stopEnd:   o.stopOnEnd,
		watch:     o.watch,
	}
	t.openStores()

	t.source, err = t.pickSource(o.source)
	if err != nil {
		return nil, err
	}

	hookOpts := []capture.Option{
		capture.WithDiag(t.diag),
		capture.WithLogger(t.logger),
		capture.WithLatencyBudget(cfg.Latency()),
		capture.WithPrivacy(privacy),
		capture.WithResolver(t.resolver()),
	}
	if o.clock != nil {
		hookOpts = append(hookOpts, capture.WithClock(o.clock))
	}

	t.queue = engine.NewQueue()
	t.hooks = capture.NewHooks(t.queue, hookOpts...)
	if !cfg.Capture.Windows || cfg.Relay.Enabled {
		t.hooks.Window = nil
	}
	if cfg.Relay.Enabled {
		if err := t.openRelay(o, hookOpts); err != nil {
			return nil, err
		}
	}

	screens := o.screens
	if screens == nil {
		screens = t.pickScreens()
	}
	t.engine = engine.New(t.queue, t.keys, t.pointer, t.sessions,
		engine.WithScreens(screens),
		engine.WithLogger(t.logger),
	)
	return t, nil
}

func resolveDataDir(cfg *config.Config) (string, error) {
	dir := cfg.DataDir
	if dir == "" {
		d, err := config.DefaultDataDir()
		if err != nil {
			return "", fmt.Errorf("resolve data directory: %w", err)
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

// openStores loads the three store files. A file that does not exist yet
// starts an empty store; any other load failure leaves the store
// unavailable until reset or reloaded.
func (t *Tracker) openStores() {
	opts := store.Options{
		Threshold: t.cfg.AutosaveEvery,
		Diag:      t.diag,
		Logger:    t.logger,
	}
	path := filepath.Join(t.dataDir, store.KeystreamFile)
	if firstRun(path) {
		t.keys = store.NewKeystream(path, opts)
	} else {
		t.keys = store.OpenKeystream(path, opts)
	}

	path = filepath.Join(t.dataDir, store.SessionsFile)
	if firstRun(path) {
		t.sessions = store.NewSessions(path, opts)
	} else {
		t.sessions = store.OpenSessions(path, opts)
	}

	opts.Strict = t.cfg.StrictPointerLoad
	path = filepath.Join(t.dataDir, store.PointerFile)
	if firstRun(path) {
		t.pointer = store.NewPointer(path, opts)
	} else {
		t.pointer = store.OpenPointer(path, opts)
	}
}

func firstRun(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

// pickSource prefers an explicit source, then the configured replay
// script, then the platform hooks. No source at all is allowed: the relay
// receiver may still feed sessions.
func (t *Tracker) pickSource(explicit capture.Source) (capture.Source, error) {
	if explicit != nil {
		return explicit, nil
	}
	if path := t.cfg.Capture.Replay; path != "" {
		src, err := capture.OpenReplay(path)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := capture.NativeSource()
	if errors.Is(err, capture.ErrUnsupported) {
		t.logger.Info("no native capture on this platform; configure capture.replay to feed events")
		return nil, nil
	}
	return src, err
}

func (t *Tracker) resolver() capture.Resolver {
	if rs, ok := t.source.(*capture.ReplaySource); ok {
		return rs.Resolver()
	}
	return capture.NativeResolver()
}

func (t *Tracker) pickScreens() engine.ScreenSource {
	if s, err := capture.NativeScreens(); err == nil {
		return s
	}
	return engine.StaticScreens{Set: t.cfg.Screens.ScreenSet()}
}

func (t *Tracker) openRelay(o options, hookOpts []capture.Option) error {
	reader, wakeup := o.reader, o.wakeup
	if reader == nil {
		ro := relay.Options{
			Name:     t.cfg.Relay.Endpoint,
			Dir:      t.dataDir,
			WordSize: t.cfg.Relay.WordSize,
		}
		if err := ro.Validate(); err != nil {
			return err
		}
		r, err := relay.Listen(ro)
		if err != nil {
			t.diag.Record(diag.Ipc, "relay.listen", "could not open relay channel", err)
			return fmt.Errorf("relay: %w", err)
		}
		reader = r
		t.closers = append(t.closers, r.Close)

		w, err := relay.Subscribe(ro)
		if err != nil {
			t.logger.Warn("relay wake-ups unavailable, polling only", "error", err)
		} else {
			wakeup = w
			t.closers = append(t.closers, w.Close)
		}
	}

	t.relayHook = capture.NewWindowHook(t.queue, hookOpts...)
	t.receiver = relay.NewReceiver(reader, wakeup, t.relayHook,
		relay.WithPollInterval(t.cfg.Relay.Poll()),
		relay.WithReceiverDiag(t.diag),
		relay.WithReceiverLogger(t.logger),
	)
	return nil
}

// Run installs the hooks and runs until ctx is done (or, with
// WithStopOnSourceEnd, until the source is exhausted). Producers are
// drained before the consumer stops, and the stores are flushed last.
func (t *Tracker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		t.engine.Run(engineCtx)
	}()

	t.logger.Info("capture session starting",
		"session", t.sessionID,
		"data_dir", t.dataDir,
		"relay", t.receiver != nil,
	)
	t.Install()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if t.source != nil {
		g.Go(func() error {
			err := t.source.Run(gctx, t.hooks)
			t.hooks.Drain()
			if err == nil && t.stopEnd {
				t.logger.Info("capture source finished")
				cancel()
			}
			return ignoreCanceled(err)
		})
	}
	if t.receiver != nil {
		g.Go(func() error {
			err := t.receiver.Run(gctx)
			t.relayHook.Drain()
			return err
		})
	}
	if t.watch != "" {
		g.Go(func() error {
			return config.Watch(gctx, t.watch, t.logger, t.applyConfig)
		})
	}

	err := g.Wait()
	t.Uninstall()
	stopEngine()
	<-engineDone

	if ferr := t.Close(); ferr != nil && err == nil {
		err = ferr
	}
	t.logger.Info("capture session stopped", "session", t.sessionID)
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// applyConfig takes the hot-reloadable settings from a new configuration.
func (t *Tracker) applyConfig(cfg *config.Config) {
	if err := t.privacy.Update(cfg.Privacy.ExcludeSubjects); err != nil {
		t.logger.Warn("privacy patterns rejected", "error", err)
		return
	}
	t.logger.Info("privacy patterns updated", "patterns", len(cfg.Privacy.ExcludeSubjects))
}

// Install enables the configured hooks.
func (t *Tracker) Install() {
	t.installed.Store(true)
	t.hooks.Keyboard.SetEnabled(t.cfg.Capture.Keyboard)
	t.hooks.Pointer.SetEnabled(t.cfg.Capture.Pointer)
	if t.hooks.Window != nil {
		t.hooks.Window.SetEnabled(true)
	}
	if t.relayHook != nil {
		t.relayHook.SetEnabled(t.cfg.Capture.Windows)
	}
}

// Uninstall stops every hook from producing events.
func (t *Tracker) Uninstall() {
	t.installed.Store(false)
	t.hooks.SetEnabled(false)
	if t.relayHook != nil {
		t.relayHook.SetEnabled(false)
	}
}

// Installed reports whether capture is enabled.
func (t *Tracker) Installed() bool { return t.installed.Load() }

// Store returns the durable store of kind k.
func (t *Tracker) Store(k codec.Kind) (Durable, error) {
	switch k {
	case codec.KindKeystream:
		return t.keys, nil
	case codec.KindPointer:
		return t.pointer, nil
	case codec.KindSessions:
		return t.sessions, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
}

// Stores returns every store in kind order.
func (t *Tracker) Stores() []Durable {
	return []Durable{t.keys, t.pointer, t.sessions}
}

// ResetEverything wipes the store of kind k, persists it empty and wakes
// the consumer so events held for an unavailable store are merged.
func (t *Tracker) ResetEverything(k codec.Kind) error {
	s, err := t.Store(k)
	if err != nil {
		return err
	}
	err = s.Reset()
	t.queue.Kick()
	if err != nil {
		return err
	}
	t.logger.Info("store reset", "store", k.String())
	return nil
}

// SaveToFile writes the store of kind k to path.
func (t *Tracker) SaveToFile(k codec.Kind, path string) error {
	s, err := t.Store(k)
	if err != nil {
		return err
	}
	return s.SaveTo(path)
}

// LoadFromFile replaces the store of kind k with the contents of path.
// On failure the current state is kept.
func (t *Tracker) LoadFromFile(k codec.Kind, path string, strict bool) error {
	s, err := t.Store(k)
	if err != nil {
		return err
	}
	if err := s.LoadFrom(path, strict); err != nil {
		return err
	}
	t.queue.Kick()
	return nil
}

// Reload re-reads the store of kind k from its own file.
func (t *Tracker) Reload(k codec.Kind) error {
	s, err := t.Store(k)
	if err != nil {
		return err
	}
	if err := s.Reload(); err != nil {
		return err
	}
	t.queue.Kick()
	return nil
}

// Save writes the store of kind k to its own file.
func (t *Tracker) Save(k codec.Kind) error {
	s, err := t.Store(k)
	if err != nil {
		return err
	}
	return s.Save()
}

// Close flushes every available store and releases the relay endpoint.
// Run calls it on return.
func (t *Tracker) Close() error {
	var errs []error
	for _, s := range t.Stores() {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range t.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	t.closers = nil
	return errors.Join(errs...)
}

// Keystream returns the key store.
func (t *Tracker) Keystream() *store.Keystream { return t.keys }

// Pointer returns the click store.
func (t *Tracker) Pointer() *store.Pointer { return t.pointer }

// Sessions returns the session store.
func (t *Tracker) Sessions() *store.Sessions { return t.sessions }

// Diag returns the diagnostic log.
func (t *Tracker) Diag() *diag.Log { return t.diag }

// Queue returns the event queue.
func (t *Tracker) Queue() *engine.Queue { return t.queue }

// SessionID identifies this capture session in logs.
func (t *Tracker) SessionID() string { return t.sessionID }

// DataDir returns the directory holding the store files.
func (t *Tracker) DataDir() string { return t.dataDir }

// OpenStore opens one store file outside a capture session, for offline
// commands. A file that fails to load gives an unavailable store.
func OpenStore(k codec.Kind, path string, opts store.Options) (Durable, error) {
	switch k {
	case codec.KindKeystream:
		return store.OpenKeystream(path, opts), nil
	case codec.KindPointer:
		return store.OpenPointer(path, opts), nil
	case codec.KindSessions:
		return store.OpenSessions(path, opts), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
}
