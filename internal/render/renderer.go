// Package render runs one render job end to end: resolve sources, plan the
// filter graph, encode, publish.
package render

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/timeline-renderer/internal/errs"
	fg "github.com/MimeLyc/timeline-renderer/internal/filtergraph"
	"github.com/MimeLyc/timeline-renderer/internal/jobs"
	"github.com/MimeLyc/timeline-renderer/internal/media"
	"github.com/MimeLyc/timeline-renderer/internal/planner"
	"github.com/MimeLyc/timeline-renderer/internal/resolve"
	"github.com/MimeLyc/timeline-renderer/internal/storage"
	"github.com/MimeLyc/timeline-renderer/internal/template"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

const DefaultEncodeTimeout = 30 * time.Minute

type Option func(*Renderer)

func WithProber(p media.Prober) Option {
	return func(r *Renderer) { r.prober = p }
}

func WithFonts(fontFile, fontFileCJK string) Option {
	return func(r *Renderer) {
		r.fontFile = fontFile
		r.fontFileCJK = fontFileCJK
	}
}

// WithEncodeTimeout bounds the engine run; 0 disables the bound.
func WithEncodeTimeout(d time.Duration) Option {
	return func(r *Renderer) { r.encodeTimeout = d }
}

// WithSettings supplies encoder settings, read once per job.
func WithSettings(fn func() media.Settings) Option {
	return func(r *Renderer) { r.settings = fn }
}

// WithUploadDir is where asset ids resolve to local files.
func WithUploadDir(dir string) Option {
	return func(r *Renderer) { r.uploadDir = dir }
}

type Renderer struct {
	fetcher   resolve.Downloader
	encoder   media.Encoder
	publisher storage.Publisher
	outputDir string

	prober        media.Prober
	fontFile      string
	fontFileCJK   string
	encodeTimeout time.Duration
	settings      func() media.Settings
	uploadDir     string
}

func NewRenderer(fetcher resolve.Downloader, encoder media.Encoder, publisher storage.Publisher, outputDir string, opts ...Option) *Renderer {
	r := &Renderer{
		fetcher:       fetcher,
		encoder:       encoder,
		publisher:     publisher,
		outputDir:     outputDir,
		encodeTimeout: DefaultEncodeTimeout,
		settings:      func() media.Settings { return media.Settings{} },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute adapts Render to the job queue.
func (r *Renderer) Execute(ctx context.Context, job *jobs.Job, report jobs.Reporter) (jobs.Output, error) {
	if job.Request == nil {
		return jobs.Output{}, errs.New(errs.ErrInvalidInput, "job has no render request")
	}
	return r.Render(ctx, job.ID, *job.Request, report)
}

// Render produces render-<id>.mp4 for req. Every file downloaded for the
// job is removed before Render returns, whatever the outcome.
func (r *Renderer) Render(ctx context.Context, id string, req template.Request, report jobs.Reporter) (jobs.Output, error) {
	tpl := req.Template
	if err := tpl.Canvas.Validate(); err != nil {
		return jobs.Output{}, errs.Wrap(err, errs.ErrInvalidInput, "invalid canvas")
	}

	session := resolve.NewSession(r.fetcher, req.Placeholders, req.Assets, r.uploadDir)
	defer func() {
		if err := session.Cleanup(); err != nil {
			log.Warn("job=%s temp cleanup: %v", id, err)
		}
	}()

	src, err := r.resolveSources(ctx, id, session, tpl)
	if err != nil {
		return jobs.Output{}, err
	}

	prog, err := planner.Plan(tpl, src, planner.Options{
		FontFile:    r.fontFile,
		FontFileCJK: r.fontFileCJK,
		Substitute:  session.SubstituteText,
	})
	if err != nil {
		return jobs.Output{}, err
	}
	log.Debug("job=%s planned %d input(s), %d chain(s), %.2fs", id, len(prog.Inputs), len(prog.Chains), prog.Duration)

	output := filepath.Join(r.outputDir, storage.OutputName(id))
	if err := r.encode(ctx, id, prog, output, report); err != nil {
		if rmErr := storage.Remove(output); rmErr != nil {
			log.Warn("job=%s remove partial output: %v", id, rmErr)
		}
		return jobs.Output{}, err
	}

	out := jobs.Output{Resolution: r.resolution(ctx, id, output)}
	out.URL, err = r.publisher.Publish(ctx, output)
	if err != nil {
		return jobs.Output{}, errs.Wrap(err, errs.ErrFileWrite, "publish render")
	}
	return out, nil
}

func (r *Renderer) encode(ctx context.Context, id string, prog *fg.Program, output string, report jobs.Reporter) error {
	if r.encodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.encodeTimeout)
		defer cancel()
	}

	hooks := media.Hooks{
		OnStart: func() {
			log.Info("job=%s engine started", id)
			report.Progress(1)
		},
		OnProgress: func(seconds float64) {
			report.Progress(media.Percent(seconds, prog.Duration))
		},
	}
	return r.encoder.Encode(ctx, prog, output, r.settings(), hooks)
}

// resolution is informational; a failed probe leaves it empty.
func (r *Renderer) resolution(ctx context.Context, id, output string) string {
	if r.prober == nil {
		return ""
	}
	res, err := r.prober.Resolution(ctx, output)
	if err != nil {
		log.Warn("job=%s probe output: %v", id, err)
		return ""
	}
	return res
}

// resolveSources resolves every media and caption reference concurrently.
// Unresolvable references are dropped; the first fetch error cancels the
// rest and fails the job.
func (r *Renderer) resolveSources(ctx context.Context, id string, session *resolve.Session, tpl template.Template) (planner.Sources, error) {
	src := planner.Sources{Paths: map[string]string{}, Texts: map[string]string{}}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, b := range tpl.ActiveBlocks() {
		meta := b.Timing()
		if sb, ok := b.(template.Sourced); ok && sb.SourceRef() != "" {
			ref := sb.SourceRef()
			g.Go(func() error {
				path, ok, err := session.Resolve(gctx, ref)
				if err != nil {
					return err
				}
				if !ok {
					log.Warn("job=%s block %s: source %q unresolved, skipping", id, meta.ID, ref)
					return nil
				}
				mu.Lock()
				src.Paths[ref] = path
				mu.Unlock()
				return nil
			})
		}
		if cb, ok := b.(template.Captioned); ok {
			captions := cb.CaptionSettings()
			if !captions.Enabled || captions.Source == "" {
				continue
			}
			g.Go(func() error {
				content, ok, err := session.ResolveText(gctx, captions.Source)
				if err != nil {
					return err
				}
				if !ok {
					log.Warn("job=%s block %s: subtitle source unresolved, skipping captions", id, meta.ID)
					return nil
				}
				mu.Lock()
				src.Texts[captions.Source] = content
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return planner.Sources{}, err
	}
	return src, nil
}
