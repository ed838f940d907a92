package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/timeline-renderer/internal/template"
)

const yamlTemplate = `
canvas:
  width: 720
  height: 1280
  fps: 25
timeline:
  - id: bg
    type: image
    start: 0
    duration: 3
    source: "{{cover}}"
  - id: title
    type: text
    start: 0.5
    duration: 2
    text: "Hello {{name}}"
`

func TestLoadRequest_YAMLWithPlaceholders(t *testing.T) {
	dir := t.TempDir()
	tplPath := filepath.Join(dir, "promo.yaml")
	valuesPath := filepath.Join(dir, "values.json")
	require.NoError(t, os.WriteFile(tplPath, []byte(yamlTemplate), 0o644))
	require.NoError(t, os.WriteFile(valuesPath, []byte(`{"cover":"https://cdn.test/c.png","name":"Ana"}`), 0o644))

	req, err := loadRequest(tplPath, valuesPath)
	require.NoError(t, err)

	assert.Equal(t, template.Canvas{Width: 720, Height: 1280, FPS: 25}, req.Template.Canvas)
	require.Len(t, req.Template.Timeline, 2)
	assert.Equal(t, template.KindImage, req.Template.Timeline[0].Kind())
	assert.Equal(t, "https://cdn.test/c.png", req.Placeholders["cover"])
	assert.Equal(t, "cli", req.Source)
}

func TestLoadRequest_JSON(t *testing.T) {
	dir := t.TempDir()
	tplPath := filepath.Join(dir, "promo.json")
	require.NoError(t, os.WriteFile(tplPath, []byte(`{"canvas":{"width":640,"height":360,"fps":30},"timeline":[]}`), 0o644))

	req, err := loadRequest(tplPath, "")
	require.NoError(t, err)
	assert.Equal(t, 640, req.Template.Canvas.Width)
	assert.Empty(t, req.Placeholders)
}

func TestLoadRequest_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"canvas":`), 0o644))

	_, err := loadRequest(bad, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")

	_, err = loadRequest(filepath.Join(dir, "missing.yaml"), "")
	require.Error(t, err)

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"canvas":{"width":1,"height":1,"fps":1}}`), 0o644))
	values := filepath.Join(dir, "values.json")
	require.NoError(t, os.WriteFile(values, []byte(`["not","an","object"]`), 0o644))
	_, err = loadRequest(good, values)
	require.Error(t, err)
}

func TestMovePublisher(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "render-1.mp4")
	dst := filepath.Join(dir, "final.mp4")
	require.NoError(t, os.WriteFile(src, []byte("mp4"), 0o644))

	got, err := movePublisher{target: dst}.Publish(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, dst, got)
	assert.NoFileExists(t, src)
	assert.FileExists(t, dst)
}

func TestProgressLogger_Throttles(t *testing.T) {
	p := &progressLogger{}
	for _, v := range []int{1, 4, 9, 11, 15, 30, 99} {
		p.Progress(v)
	}
	assert.Equal(t, 99, p.last)

	p = &progressLogger{}
	p.Progress(1)
	p.Progress(5)
	assert.Equal(t, 1, p.last)
}
