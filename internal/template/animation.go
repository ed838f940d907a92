package template

type AnimationType string

const (
	AnimShake    AnimationType = "shake"
	AnimFadeIn   AnimationType = "fade_in"
	AnimFadeOut  AnimationType = "fade_out"
	AnimSlideIn  AnimationType = "slide_in"
	AnimSlideOut AnimationType = "slide_out"
	AnimScale    AnimationType = "scale"
	AnimRotate   AnimationType = "rotate"
	AnimBounce   AnimationType = "bounce"
	AnimPulse    AnimationType = "pulse"
)

// Animation is a timed effect. Time and Duration are relative to the owning
// block's start. Zero-valued parameters take the per-type default.
type Animation struct {
	Type       AnimationType `json:"type"`
	Time       float64       `json:"time"`
	Duration   float64       `json:"duration"`
	Strength   float64       `json:"strength,omitempty"`
	Frequency  float64       `json:"frequency,omitempty"`
	Direction  string        `json:"direction,omitempty"`
	StartScale float64       `json:"startScale,omitempty"`
	EndScale   float64       `json:"endScale,omitempty"`
	Angle      float64       `json:"angle,omitempty"`
}

const DefaultAnimationDuration = 1.0

// Window returns the absolute [start, end] of the animation for a block
// starting at blockStart.
func (a Animation) Window(blockStart float64) (float64, float64) {
	start := blockStart + a.Time
	return start, start + a.Span()
}

func (a Animation) Span() float64 {
	if a.Duration <= 0 {
		return DefaultAnimationDuration
	}
	return a.Duration
}

func (a Animation) StrengthOr(def float64) float64 {
	if a.Strength == 0 {
		return def
	}
	return a.Strength
}

func (a Animation) FrequencyOr(def float64) float64 {
	if a.Frequency == 0 {
		return def
	}
	return a.Frequency
}

func (a Animation) DirectionOr(def string) string {
	if a.Direction == "" {
		return def
	}
	return a.Direction
}

// Scales returns the start and end zoom factors of a scale animation.
func (a Animation) Scales() (float64, float64) {
	s0, s1 := a.StartScale, a.EndScale
	if s0 <= 0 {
		s0 = 1
	}
	if s1 <= 0 {
		s1 = 1.5
	}
	return s0, s1
}

// Degrees returns the total rotation, 360 by default.
func (a Animation) Degrees() float64 {
	if a.Angle == 0 {
		return 360
	}
	return a.Angle
}
