package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "canvas": {"width": 1080, "height": 1920, "fps": 30},
  "timeline": [
    {"id": "v1", "type": "video", "start": 0, "duration": 4, "track": 2, "source": "{{clip}}",
     "subtitleEnabled": true, "subtitleSource": "{{captions}}", "subtitleStyleId": "t1",
     "animations": [{"type": "shake", "time": 0.5, "duration": 1, "strength": 12}]},
    {"id": "t1", "type": "text", "start": 1, "duration": 2, "track": 1, "text": "Hi",
     "fontSize": 64, "color": "#ff0000", "backgroundColor": "#000000"},
    {"id": "a1", "type": "audio", "start": 0, "duration": 6, "source": "https://cdn.test/a.mp3"},
    {"id": "i1", "type": "IMAGE", "start": 0, "duration": 0, "track": 0, "source": "x.png"},
    {"id": "z1", "type": "sticker", "start": 0, "duration": 1}
  ]
}`

func TestDecodeJSON_BuildsTypedBlocks(t *testing.T) {
	tpl, err := DecodeJSON([]byte(sampleJSON))
	require.NoError(t, err)

	require.Len(t, tpl.Timeline, 4)

	video, ok := tpl.Timeline[0].(VideoBlock)
	require.True(t, ok)
	assert.Equal(t, "{{clip}}", video.Source)
	assert.Equal(t, Captions{Enabled: true, Source: "{{captions}}", StyleID: "t1"}, video.Captions)
	require.Len(t, video.Animations, 1)
	assert.Equal(t, AnimShake, video.Animations[0].Type)

	text, ok := tpl.Timeline[1].(TextBlock)
	require.True(t, ok)
	assert.Equal(t, TextStyle{FontSize: 64, Color: "#ff0000", Background: "#000000"}, text.Style())

	audio, ok := tpl.Timeline[2].(AudioBlock)
	require.True(t, ok)
	assert.Equal(t, 1.0, audio.Volume)

	_, ok = tpl.Timeline[3].(ImageBlock)
	assert.True(t, ok)
}

func TestDecodeJSON_ClampsNegativeStart(t *testing.T) {
	tpl, err := DecodeJSON([]byte(`{"canvas":{"width":10,"height":10,"fps":1},
	  "timeline":[{"id":"t","type":"text","start":-1,"duration":2,"text":"x"}]}`))
	require.NoError(t, err)

	require.Len(t, tpl.Timeline, 1)
	assert.Equal(t, Meta{ID: "t", Start: 0, Duration: 2}, tpl.Timeline[0].Timing())
}

func TestTemplate_ActiveBlocksStableByTrack(t *testing.T) {
	tpl := Template{Timeline: []Block{
		TextBlock{Meta: Meta{ID: "a", Duration: 1, Track: 1}},
		ImageBlock{Meta: Meta{ID: "b", Duration: 1, Track: 0}},
		TextBlock{Meta: Meta{ID: "c", Duration: 1, Track: 1}},
		ImageBlock{Meta: Meta{ID: "d", Duration: 0, Track: 0}},
		VideoBlock{Meta: Meta{ID: "e", Duration: 1, Track: 0}},
	}}

	var ids []string
	for _, b := range tpl.ActiveBlocks() {
		ids = append(ids, b.Timing().ID)
	}
	assert.Equal(t, []string{"b", "e", "a", "c"}, ids)
}

func TestTemplate_TotalDuration(t *testing.T) {
	tpl := Template{Timeline: []Block{
		ImageBlock{Meta: Meta{Start: 2, Duration: 5}},
		TextBlock{Meta: Meta{Start: 6, Duration: 0}},
	}}
	assert.Equal(t, 7.0, tpl.TotalDuration())

	assert.Equal(t, 1.0, Template{}.TotalDuration())

	tpl.Canvas.Duration = 3
	assert.Equal(t, 3.0, tpl.TotalDuration())
}

func TestCanvas_Validate(t *testing.T) {
	assert.NoError(t, Canvas{Width: 1080, Height: 1920, FPS: 30}.Validate())
	assert.Error(t, Canvas{Width: 0, Height: 1920, FPS: 30}.Validate())
	assert.Error(t, Canvas{Width: 1080, Height: 1920}.Validate())
}

func TestDecodeYAML(t *testing.T) {
	doc := `
canvas:
  width: 640
  height: 360
  fps: 25
timeline:
  - id: t1
    type: text
    start: 0
    duration: 2
    text: "{{title}}"
    animations:
      - type: fade_in
        duration: 0.5
`
	tpl, err := DecodeYAML([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 640, tpl.Canvas.Width)
	require.Len(t, tpl.Timeline, 1)
	text := tpl.Timeline[0].(TextBlock)
	assert.Equal(t, "{{title}}", text.Text)
	assert.Equal(t, AnimFadeIn, text.Animations[0].Type)
}

func TestAnimation_Window(t *testing.T) {
	a := Animation{Time: 1, Duration: 2}
	start, end := a.Window(3)
	assert.Equal(t, 4.0, start)
	assert.Equal(t, 6.0, end)

	start, end = Animation{}.Window(0)
	assert.Equal(t, 0.0, start)
	assert.Equal(t, DefaultAnimationDuration, end)
}
