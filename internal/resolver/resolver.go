package resolver

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ctrlpath/evalcore/internal/artifact"
	"github.com/ctrlpath/evalcore/internal/evalexpr"
	"github.com/ctrlpath/evalcore/internal/mapping"
	"github.com/ctrlpath/evalcore/internal/metrics"
	"github.com/ctrlpath/evalcore/internal/override"
	"github.com/ctrlpath/evalcore/internal/resultcache"
	"github.com/ctrlpath/evalcore/internal/rule"
	"github.com/ctrlpath/evalcore/internal/segment"
	"github.com/ctrlpath/evalcore/internal/transport"
)

// OverrideOptions configures the optional emergency-override source a
// Resolver watches.
type OverrideOptions struct {
	// Source is a local file path or an http(s) URL; empty disables overrides.
	Source string
	// AllowedDirectory constrains file-path loads.
	AllowedDirectory string
	// PollInterval is the HTTP ETag poll cadence; zero uses override.DefaultPollInterval.
	PollInterval time.Duration
	// Timeout bounds each poll's HTTP fetch.
	Timeout time.Duration
	// WatchFile additionally watches a local Source with fsnotify; no
	// effect on URL sources. A supplement beyond the required HTTP poller.
	WatchFile bool
}

// Options configures a new Resolver.
type Options struct {
	// Cache backs the evaluation cache; nil builds resultcache.NewMemory
	// with the package default TTL (5 minutes).
	Cache resultcache.Cache
	// Clock is injected for deterministic temporal-function tests; nil
	// uses evalexpr.SystemClock.
	Clock evalexpr.Clock
	// Metrics records resolve/cache/override/artifact outcomes; nil disables
	// instrumentation.
	Metrics *metrics.Recorder
	// Logger receives swallowed override errors and reload notices; nil
	// uses slog.Default().
	Logger *slog.Logger
	// Override configures the optional emergency-override source.
	Override OverrideOptions
}

// LoadOptions configures LoadArtifact/ReloadArtifact.
type LoadOptions struct {
	// PublicKey accepts raw/base64/hex Ed25519 key material; nil skips
	// signature verification.
	PublicKey any
	// RequireSignature rejects an unsigned artifact even without a key.
	RequireSignature bool
	// AllowedDirectory constrains file-path loads; falls back to the
	// AST_DIRECTORY environment variable when unset.
	AllowedDirectory string
	// Timeout bounds an HTTP(S) artifact fetch; zero uses transport.DefaultURLTimeout.
	Timeout time.Duration
}

// Resolver is the typed evaluation facade. The current artifact pointer is
// replaced atomically on reload; in-flight evaluations that captured the
// old artifact continue using it.
type Resolver struct {
	mu  sync.RWMutex
	art *artifact.Artifact

	overrideMu sync.RWMutex
	overrides  *override.State
	poller     *override.Poller
	watcher    *override.FileWatcher
	overrideOpts OverrideOptions

	cache   resultcache.Cache
	clock   evalexpr.Clock
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// New constructs a Resolver. If opts.Override.Source is set, its initial
// state is loaded synchronously and any failure is logged, never returned:
// no operation in the public API surface exists yet for the caller to
// observe this failure, and the resolver simply continues with no
// overrides until the next successful poll.
func New(opts Options) *Resolver {
	cache := opts.Cache
	if cache == nil {
		cache = resultcache.NewMemory(0)
	}
	clock := opts.Clock
	if clock == nil {
		clock = evalexpr.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{
		cache:        cache,
		clock:        clock,
		metrics:      opts.Metrics,
		logger:       logger,
		overrideOpts: opts.Override,
	}

	if opts.Override.Source != "" {
		r.initOverride(opts.Override)
	}

	return r
}

func (r *Resolver) initOverride(opts OverrideOptions) {
	state, err := loadOverrideState(context.Background(), opts)
	if err != nil {
		r.logger.Warn("initial override load failed", "error", err)
		state = &override.State{Overrides: map[string]string{}}
	}

	r.overrideMu.Lock()
	r.overrides = state
	r.overrideMu.Unlock()

	if isHTTPSource(opts.Source) {
		r.poller = override.NewPoller(state, override.PollerOptions{
			URL:      opts.Source,
			Timeout:  opts.Timeout,
			Interval: opts.PollInterval,
			OnUpdate: func(s *override.State) {
				r.overrideMu.Lock()
				r.overrides = s
				r.overrideMu.Unlock()
				_ = r.cache.InvalidateAll(context.Background())
				if r.metrics != nil {
					r.metrics.ObserveOverridePoll(metrics.PollOutcomeUpdated)
				}
			},
			OnError: func(err error) {
				r.logger.Warn("override poll failed", "error", err)
				if r.metrics != nil {
					r.metrics.ObserveOverridePoll(metrics.PollOutcomeError)
				}
			},
		})
	} else if opts.WatchFile {
		watcher, err := override.WatchFile(context.Background(), opts.Source, opts.AllowedDirectory,
			func(s *override.State) {
				r.overrideMu.Lock()
				r.overrides = s
				r.overrideMu.Unlock()
				_ = r.cache.InvalidateAll(context.Background())
			},
			func(err error) { r.logger.Warn("override file watch reload failed", "error", err) },
		)
		if err != nil {
			r.logger.Warn("override file watch setup failed", "error", err)
		} else {
			r.watcher = watcher
		}
	}
}

func loadOverrideState(ctx context.Context, opts OverrideOptions) (*override.State, error) {
	if isHTTPSource(opts.Source) {
		state, _, err := override.LoadURL(ctx, opts.Source, "", opts.Timeout)
		return state, err
	}
	return override.LoadFile(opts.Source, opts.AllowedDirectory)
}

func isHTTPSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// LoadArtifact loads and verifies an artifact from a local path or an
// http(s) URL, swaps it in atomically, and clears the evaluation cache.
// Errors propagate to the caller and leave the resolver's prior state
// intact.
func (r *Resolver) LoadArtifact(ctx context.Context, pathOrURL string, opts LoadOptions) error {
	buf, contentType, err := loadArtifactBytes(ctx, pathOrURL, opts)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ObserveArtifactLoad("failure")
		}
		return err
	}
	if !transport.ContentTypeOK(contentType) {
		r.logger.Warn("artifact fetch returned unexpected content type", "contentType", contentType, "source", pathOrURL)
	}

	art, err := artifact.Load(buf, artifact.VerifyOptions{
		PublicKey:        opts.PublicKey,
		RequireSignature: opts.RequireSignature,
	})
	if err != nil {
		if r.metrics != nil {
			r.metrics.ObserveArtifactLoad("failure")
		}
		return err
	}

	r.mu.Lock()
	r.art = art
	r.mu.Unlock()

	_ = r.cache.InvalidateAll(ctx)
	if r.metrics != nil {
		r.metrics.ObserveArtifactLoad("success")
	}
	return nil
}

// loadArtifactBytes fetches the raw artifact bytes, returning the response
// Content-Type for file sources too (empty, since LoadFile has none to
// report) so the caller can uniformly check it.
func loadArtifactBytes(ctx context.Context, pathOrURL string, opts LoadOptions) (buf []byte, contentType string, err error) {
	if isHTTPSource(pathOrURL) {
		res, err := transport.LoadURL(ctx, pathOrURL, transport.URLOptions{Timeout: opts.Timeout})
		if err != nil {
			return nil, "", err
		}
		return res.Body, res.ContentType, nil
	}
	buf, err = transport.LoadFile(pathOrURL, transport.FileOptions{AllowedDirectory: opts.AllowedDirectory})
	return buf, "", err
}

// ReloadArtifact is equivalent to LoadArtifact followed by an explicit
// ClearCache.
func (r *Resolver) ReloadArtifact(ctx context.Context, pathOrURL string, opts LoadOptions) error {
	if err := r.LoadArtifact(ctx, pathOrURL, opts); err != nil {
		return err
	}
	return r.ClearCache(ctx)
}

// ClearCache drops all cached evaluation results.
func (r *Resolver) ClearCache(ctx context.Context) error {
	return r.cache.InvalidateAll(ctx)
}

// StartPolling begins background polling of an HTTP(S) override source.
// Idempotent; a no-op when the configured override source is not HTTP(S).
func (r *Resolver) StartPolling(ctx context.Context) {
	if r.poller == nil {
		return
	}
	r.poller.Start(ctx)
}

// StopPolling halts background override polling. Idempotent, and a stopped
// poller never re-enters after Stop returns.
func (r *Resolver) StopPolling() {
	if r.poller == nil {
		return
	}
	r.poller.Stop()
}

// Close releases background resources (poller, local-file watcher).
func (r *Resolver) Close() {
	r.StopPolling()
	if r.watcher != nil {
		r.watcher.Stop()
	}
}

func (r *Resolver) currentArtifact() *artifact.Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.art
}

func (r *Resolver) currentOverride(name string) (string, bool) {
	r.overrideMu.RLock()
	defer r.overrideMu.RUnlock()
	return r.overrides.Lookup(name)
}

// segmentResolverFor builds a fresh evaluation-scoped segment resolver.
func segmentResolverFor(art *artifact.Artifact, subject, context map[string]any, clock evalexpr.Clock) evalexpr.SegmentResolver {
	return segment.New(art, subject, context, clock)
}

// resolve implements the shared eight-step pipeline for any coercion
// function: cache lookup, readiness, override bypass, subject/context
// mapping, name->index, interpret, coerce, cache insert. coerce converts
// the raw interpreter/override result into T, returning ok=false on a type
// mismatch.
func resolve[T any](r *Resolver, ctx context.Context, flagName string, def T, evalCtx map[string]any, coerce func(any) (T, string, bool)) ResolutionDetails[T] {
	start := time.Now()
	reason := ReasonDefault
	errorCode := ErrorCode("")
	fromCache := false

	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveResolve(flagName, string(reason), string(errorCode), fromCache, time.Since(start))
		}
	}()

	cacheKey := resultcache.Key(flagName, evalCtx)

	// Step 1: cache lookup.
	if entry, hit, err := r.cache.Lookup(ctx, cacheKey); err == nil && hit {
		fromCache = true
		if r.metrics != nil {
			r.metrics.ObserveCacheLookup(metrics.CacheLookupHit)
		}
		details := ResolutionDetails[T]{
			Reason:       Reason(entry.Reason),
			ErrorCode:    ErrorCode(entry.ErrorCode),
			Variant:      entry.Variant,
		}
		if v, ok := entry.Value.(T); ok {
			details.Value = v
		} else {
			details.Value = def
		}
		reason = details.Reason
		errorCode = details.ErrorCode
		return details
	}
	if r.metrics != nil {
		r.metrics.ObserveCacheLookup(metrics.CacheLookupMiss)
	}

	details := resolveUncached(r, flagName, def, evalCtx, coerce)
	reason = details.Reason
	errorCode = details.ErrorCode

	_ = r.cache.Store(ctx, cacheKey, resultcache.Entry{
		Value:     details.Value,
		Reason:    string(details.Reason),
		Variant:   details.Variant,
		ErrorCode: string(details.ErrorCode),
		StoredAt:  time.Now(),
	})

	return details
}

func resolveUncached[T any](r *Resolver, flagName string, def T, evalCtx map[string]any, coerce func(any) (T, string, bool)) (result ResolutionDetails[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			result = defaultWithError(def, ReasonError, ErrorCodeGeneral, panicMessage(rec))
		}
	}()

	// Step 2: readiness check.
	art := r.currentArtifact()
	if art == nil {
		return defaultDetails(def, ReasonDefault)
	}

	subject, context := mapping.Map(evalCtx)

	// Step 3: override bypass.
	if raw, ok := r.currentOverride(flagName); ok {
		value, variant, coerceOK := coerce(raw)
		if !coerceOK {
			return defaultWithError(def, ReasonDefault, ErrorCodeTypeMismatch, "override value failed coercion")
		}
		return ResolutionDetails[T]{Value: value, Reason: ReasonTargetingMatch, Variant: variant}
	}

	// Step 5: name -> index.
	flagIndex, ok := art.FlagIndex(flagName)
	if !ok {
		return defaultWithError(def, ReasonDefault, ErrorCodeFlagNotFound, "flag not found: "+flagName)
	}

	// Step 6: interpret.
	segments := segmentResolverFor(art, subject, context, r.clock)
	res, err := rule.Evaluate(flagIndex, art, subject, context, r.clock, segments)
	if err != nil {
		return defaultWithError(def, ReasonError, ErrorCodeGeneral, err.Error())
	}
	if !res.Matched {
		return defaultDetails(def, ReasonDefault)
	}

	// Step 7: coerce.
	raw := valueToAny(res.Value)
	value, variant, coerceOK := coerce(raw)
	if !coerceOK {
		return defaultWithError(def, ReasonDefault, ErrorCodeTypeMismatch, "matched value failed coercion")
	}
	return ResolutionDetails[T]{Value: value, Reason: ReasonTargetingMatch, Variant: variant}
}

func panicMessage(rec any) string {
	if err, ok := rec.(error); ok {
		return err.Error()
	}
	return "panic during evaluation"
}

// ResolveBoolean evaluates flagName as a boolean.
func (r *Resolver) ResolveBoolean(ctx context.Context, flagName string, def bool, evalCtx map[string]any) ResolutionDetails[bool] {
	return resolve(r, ctx, flagName, def, evalCtx, func(raw any) (bool, string, bool) {
		v, ok := coerceBoolean(raw)
		return v, "", ok
	})
}

// ResolveString evaluates flagName as a string.
func (r *Resolver) ResolveString(ctx context.Context, flagName string, def string, evalCtx map[string]any) ResolutionDetails[string] {
	return resolve(r, ctx, flagName, def, evalCtx, func(raw any) (string, string, bool) {
		value, variant := coerceString(raw)
		return value, variant, true
	})
}

// ResolveNumber evaluates flagName as a number.
func (r *Resolver) ResolveNumber(ctx context.Context, flagName string, def float64, evalCtx map[string]any) ResolutionDetails[float64] {
	return resolve(r, ctx, flagName, def, evalCtx, func(raw any) (float64, string, bool) {
		v, ok := coerceNumber(raw)
		return v, "", ok
	})
}

// ResolveObject evaluates flagName as a JSON object.
func (r *Resolver) ResolveObject(ctx context.Context, flagName string, def map[string]any, evalCtx map[string]any) ResolutionDetails[map[string]any] {
	return resolve(r, ctx, flagName, def, evalCtx, func(raw any) (map[string]any, string, bool) {
		v, ok := coerceObject(raw)
		return v, "", ok
	})
}
