package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MimeLyc/timeline-renderer/internal/errs"
	fg "github.com/MimeLyc/timeline-renderer/internal/filtergraph"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

const stderrTailLimit = 4096

type ffmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
}

// NewFfmpeg returns an Encoder driving the given binaries; empty names fall
// back to ffmpeg/ffprobe on PATH.
func NewFfmpeg(ffmpegCmd, ffprobeCmd string) ffmpeg {
	if ffmpegCmd == "" {
		ffmpegCmd = "ffmpeg"
	}
	if ffprobeCmd == "" {
		ffprobeCmd = "ffprobe"
	}
	return ffmpeg{ffmpegCmd: ffmpegCmd, ffprobeCmd: ffprobeCmd}
}

// Available reports whether the ffmpeg binary can be found.
func (ff ffmpeg) Available() error {
	_, err := exec.LookPath(ff.ffmpegCmd)
	return err
}

// Encode runs the program and writes an MP4 to output. onStart fires once
// the process is running; onProgress receives the encoded position.
func (ff ffmpeg) Encode(ctx context.Context, prog *fg.Program, output string, settings Settings, hooks Hooks) error {
	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return errs.NewWithCause(errs.ErrConfig, "ffmpeg not found", err)
	}

	args := ff.encodeArgs(prog, output, settings)
	log.Debug("ffmpeg %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.NewWithCause(errs.ErrEngine, "ffmpeg stdout pipe", err)
	}
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return errs.NewWithCause(errs.ErrEngine, "ffmpeg failed to start", err)
	}
	if hooks.OnStart != nil {
		hooks.OnStart()
	}

	parseProgress(stdout, hooks.OnProgress)

	if err := cmd.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errs.NewWithCause(errs.ErrTimeout, "encode timeout", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return errs.NewWithCause(errs.ErrEngine, msg, err)
	}
	return nil
}

func (ff ffmpeg) encodeArgs(prog *fg.Program, output string, settings Settings) []string {
	settings = settings.withDefaults()
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-loglevel", "error",
		"-progress", "pipe:1",
		"-nostats",
	}
	args = append(args, prog.InputArgs()...)
	args = append(args,
		"-filter_complex", prog.Serialize(),
		"-map", "["+string(prog.VideoOut)+"]",
	)
	if prog.AudioOut != "" {
		args = append(args,
			"-map", "["+string(prog.AudioOut)+"]",
			"-c:a", "aac",
			"-b:a", "192k",
		)
	} else {
		args = append(args, "-an")
	}
	return append(args,
		"-c:v", "libx264",
		"-preset", settings.Preset,
		"-crf", strconv.Itoa(settings.CRF),
		"-pix_fmt", "yuv420p",
		"-r", fg.Num(prog.FPS),
		"-t", fg.Num(prog.Duration),
		"-movflags", "+faststart",
		output,
	)
}

// parseProgress reads -progress key=value lines until r is exhausted.
func parseProgress(r io.Reader, onProgress func(seconds float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "out_time_us=") {
			continue
		}
		us, err := strconv.ParseInt(strings.TrimPrefix(line, "out_time_us="), 10, 64)
		if err != nil || us < 0 {
			continue
		}
		if onProgress != nil {
			onProgress(float64(us) / 1e6)
		}
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if extra := t.buf.Len() - t.limit; extra > 0 {
		t.buf.Next(extra)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Percent converts an encoded position into a whole percentage of total.
func Percent(position, total float64) int {
	if total <= 0 {
		return 0
	}
	pct := int(position / total * 100)
	return max(0, min(pct, 100))
}

var _ Encoder = ffmpeg{}

func (ff ffmpeg) String() string {
	return fmt.Sprintf("ffmpeg(%s)", ff.ffmpegCmd)
}
