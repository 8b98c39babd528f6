// SPDX-License-Identifier: MIT
package onset

import (
	"math"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
)

// bassSharpnessThreshold separates real kicks from gradual low-end
// drift such as HVAC rumble: the filtered energy must change by this
// ratio tick over tick.
const bassSharpnessThreshold = 1.5

// bassDetector runs the rise logic on the biquad low-passed block RMS,
// so hi-hats and other high-frequency transients are rejected by
// construction.
type bassDetector struct {
	baseline float64
	prevBass float64
	primed   bool
}

func (d *bassDetector) reset() {
	*d = bassDetector{}
}

func (d *bassDetector) detect(f features, p *config.OnsetParams, dt float64) detection {
	bass := f.bassLevel

	d.baseline += alpha(dt, p.AverageTau) * (bass - d.baseline)

	if !d.primed {
		d.prevBass = bass
		d.primed = true
		return detection{}
	}

	// Tick-over-tick sharpness in either direction.
	sharpness := 1.0
	if d.prevBass > thresholdFloor {
		sharpness = bass / d.prevBass
		if sharpness < 1 {
			sharpness = 1 / sharpness
		}
	} else if bass > 0.01 {
		sharpness = 10
	}
	prev := d.prevBass
	d.prevBass = bass

	threshold := p.BassThresh * f.thresholdScale
	effective := math.Max(d.baseline*threshold, thresholdFloor)

	loud := bass > effective
	rising := bass > prev*p.AttackMultiplier
	sharp := sharpness > bassSharpnessThreshold

	if !(loud && rising && sharp) {
		return detection{}
	}

	ratio := bass / math.Max(d.baseline, thresholdFloor)
	return detection{
		fired:      true,
		strength:   clamp01((ratio - threshold) / threshold),
		confidence: clamp01(0.6*clamp01((ratio-1)/3)+0.4*clamp01((sharpness-1)/4))*0.85 + 0.15,
	}
}
