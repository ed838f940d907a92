package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MimeLyc/timeline-renderer/internal/errs"
	"github.com/MimeLyc/timeline-renderer/internal/fetch"
	fg "github.com/MimeLyc/timeline-renderer/internal/filtergraph"
	"github.com/MimeLyc/timeline-renderer/internal/jobs"
	"github.com/MimeLyc/timeline-renderer/internal/media"
	"github.com/MimeLyc/timeline-renderer/internal/storage"
	"github.com/MimeLyc/timeline-renderer/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEncoder struct {
	mu       sync.Mutex
	programs []*fg.Program
	outputs  []string
	err      error
	block    bool
}

func (f *fakeEncoder) Encode(ctx context.Context, prog *fg.Program, output string, _ media.Settings, hooks media.Hooks) error {
	f.mu.Lock()
	f.programs = append(f.programs, prog)
	f.outputs = append(f.outputs, output)
	f.mu.Unlock()

	if err := os.WriteFile(output, []byte("partial"), 0o644); err != nil {
		return err
	}
	hooks.OnStart()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	hooks.OnProgress(prog.Duration / 2)
	return f.err
}

func (f *fakeEncoder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.programs)
}

type fakeProber struct{}

func (fakeProber) Resolution(context.Context, string) (string, error) { return "1080x1920", nil }

type recordingReporter struct {
	mu      sync.Mutex
	reports []int
}

func (r *recordingReporter) Progress(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, p)
}

type fixture struct {
	renderer *Renderer
	encoder  *fakeEncoder
	tempDir  string
	outDir   string
}

func newFixture(t *testing.T, fetchOpts []fetch.Option, opts ...Option) *fixture {
	t.Helper()
	tempDir := filepath.Join(t.TempDir(), "tmp")
	outDir := t.TempDir()
	enc := &fakeEncoder{}
	opts = append([]Option{WithProber(fakeProber{})}, opts...)
	r := NewRenderer(fetch.New(tempDir, fetchOpts...), enc, storage.LocalPublisher{}, outDir, opts...)
	return &fixture{renderer: r, encoder: enc, tempDir: tempDir, outDir: outDir}
}

func (f *fixture) tempFiles(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func portraitCanvas() template.Canvas {
	return template.Canvas{Width: 1080, Height: 1920, FPS: 30}
}

func mediaServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/pic.png", func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_, _ = w.Write([]byte("png"))
	})
	mux.HandleFunc("/subs.vtt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("WEBVTT\n\n00:00.000 --> 00:02.000\nHello world foo bar\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRender_ImageBlock(t *testing.T) {
	srv := mediaServer(t, nil)
	f := newFixture(t, nil)
	rep := &recordingReporter{}

	req := template.Request{Template: template.Template{
		Canvas: portraitCanvas(),
		Timeline: []template.Block{
			template.ImageBlock{Meta: template.Meta{ID: "img", Duration: 5}, Source: srv.URL + "/pic.png"},
		},
	}}

	out, err := f.renderer.Render(context.Background(), "job-1", req, rep)
	require.NoError(t, err)

	assert.Equal(t, "/renders/render-job-1.mp4", out.URL)
	assert.Equal(t, "1080x1920", out.Resolution)
	require.Equal(t, 1, f.encoder.calls())
	prog := f.encoder.programs[0]
	assert.Len(t, prog.Inputs, 2)
	assert.Equal(t, 1, prog.Count("overlay"))
	assert.GreaterOrEqual(t, prog.Duration, 5.0)
	assert.Equal(t, filepath.Join(f.outDir, "render-job-1.mp4"), f.encoder.outputs[0])
	assert.Equal(t, []int{1, 50}, rep.reports)
	assert.Empty(t, f.tempFiles(t), "downloads are removed after the job")
}

func TestRender_UnresolvablePlaceholderSkipsBlock(t *testing.T) {
	srv := mediaServer(t, nil)
	f := newFixture(t, nil)

	req := template.Request{Template: template.Template{
		Canvas: portraitCanvas(),
		Timeline: []template.Block{
			template.VideoBlock{Meta: template.Meta{ID: "vid", Duration: 3}, Source: "{{missing_key}}"},
			template.ImageBlock{Meta: template.Meta{ID: "img", Start: 1, Duration: 2}, Source: srv.URL + "/pic.png"},
		},
	}}

	_, err := f.renderer.Render(context.Background(), "job-c", req, &recordingReporter{})
	require.NoError(t, err)

	prog := f.encoder.programs[0]
	assert.Len(t, prog.Inputs, 2)
	assert.Equal(t, 1, prog.Count("overlay"))
}

func TestRender_SharedSourceDownloadedOnce(t *testing.T) {
	var hits atomic.Int32
	srv := mediaServer(t, &hits)
	f := newFixture(t, nil)

	url := srv.URL + "/pic.png"
	req := template.Request{
		Template: template.Template{
			Canvas: portraitCanvas(),
			Timeline: []template.Block{
				template.ImageBlock{Meta: template.Meta{ID: "a", Duration: 2}, Source: url},
				template.ImageBlock{Meta: template.Meta{ID: "b", Start: 2, Duration: 2}, Source: url},
				template.ImageBlock{Meta: template.Meta{ID: "c", Start: 4, Duration: 2}, Source: "{{bg}}"},
			},
		},
		Placeholders: map[string]string{"bg": url},
	}

	_, err := f.renderer.Render(context.Background(), "job-s", req, &recordingReporter{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	prog := f.encoder.programs[0]
	assert.Len(t, prog.Inputs, 2)
	assert.Equal(t, 3, prog.Count("overlay"))
}

func TestRender_CaptionsFromRemoteSubtitles(t *testing.T) {
	srv := mediaServer(t, nil)
	f := newFixture(t, nil)

	req := template.Request{Template: template.Template{
		Canvas: portraitCanvas(),
		Timeline: []template.Block{
			template.TextBlock{
				Meta:     template.Meta{ID: "caps", Duration: 4},
				Captions: template.Captions{Enabled: true, Source: srv.URL + "/subs.vtt"},
			},
		},
	}}

	_, err := f.renderer.Render(context.Background(), "job-b", req, &recordingReporter{})
	require.NoError(t, err)

	prog := f.encoder.programs[0]
	assert.Equal(t, 2, prog.Count("drawtext"))
	assert.Len(t, prog.Inputs, 1)
	assert.Empty(t, f.tempFiles(t))
}

func TestRender_FetchTimeoutFailsWithoutResidue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()
	f := newFixture(t, []fetch.Option{fetch.WithTimeout(50 * time.Millisecond)})

	req := template.Request{Template: template.Template{
		Canvas: portraitCanvas(),
		Timeline: []template.Block{
			template.VideoBlock{Meta: template.Meta{ID: "vid", Duration: 3}, Source: srv.URL + "/slow.mp4"},
		},
	}}

	_, err := f.renderer.Render(context.Background(), "job-d", req, &recordingReporter{})
	require.Error(t, err)
	assert.True(t, errs.IsErrorType(err, errs.ErrTimeout))
	assert.Contains(t, err.Error(), "timeout")
	assert.Zero(t, f.encoder.calls())
	assert.Empty(t, f.tempFiles(t))
}

func TestRender_InvalidCanvas(t *testing.T) {
	f := newFixture(t, nil)

	req := template.Request{Template: template.Template{Canvas: template.Canvas{Width: 0, Height: 1920, FPS: 30}}}
	_, err := f.renderer.Render(context.Background(), "job-x", req, &recordingReporter{})

	require.Error(t, err)
	assert.True(t, errs.IsErrorType(err, errs.ErrInvalidInput))
	assert.Zero(t, f.encoder.calls())
}

func TestRender_EngineFailureRemovesOutput(t *testing.T) {
	srv := mediaServer(t, nil)
	f := newFixture(t, nil)
	f.encoder.err = errs.New(errs.ErrEngine, "Invalid argument")

	req := template.Request{Template: template.Template{
		Canvas: portraitCanvas(),
		Timeline: []template.Block{
			template.ImageBlock{Meta: template.Meta{ID: "img", Duration: 1}, Source: srv.URL + "/pic.png"},
		},
	}}

	_, err := f.renderer.Render(context.Background(), "job-e", req, &recordingReporter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid argument")
	assert.NoFileExists(t, filepath.Join(f.outDir, "render-job-e.mp4"))
	assert.Empty(t, f.tempFiles(t))
}

func TestRender_EncodeTimeout(t *testing.T) {
	f := newFixture(t, nil, WithEncodeTimeout(20*time.Millisecond))
	f.encoder.block = true

	req := template.Request{Template: template.Template{Canvas: portraitCanvas()}}
	_, err := f.renderer.Render(context.Background(), "job-t", req, &recordingReporter{})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_ThroughQueue(t *testing.T) {
	srv := mediaServer(t, nil)
	f := newFixture(t, nil)
	q := jobs.NewQueue(1, nil)
	q.Start(f.renderer.Execute)
	defer q.Stop()

	ok := q.Enqueue(jobs.EnqueueRequest{Request: &template.Request{Template: template.Template{
		Canvas: portraitCanvas(),
		Timeline: []template.Block{
			template.ImageBlock{Meta: template.Meta{ID: "img", Duration: 2}, Source: srv.URL + "/pic.png"},
		},
	}}})
	bad := q.Enqueue(jobs.EnqueueRequest{})

	require.Eventually(t, func() bool {
		got, _ := q.Get(ok.ID)
		return got.Status == jobs.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	got, _ := q.Get(ok.ID)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/renders/render-"+ok.ID+".mp4", got.URL)
	assert.Equal(t, "1080x1920", got.Resolution)

	require.Eventually(t, func() bool {
		got, _ := q.Get(bad.ID)
		return got.Status == jobs.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
}
