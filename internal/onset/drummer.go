// SPDX-License-Identifier: MIT
package onset

import (
	"math"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
)

const (
	// attackWindowTicks holds the level from ~50-70ms ago as the rise
	// baseline, long enough to span a full drum attack at 60 ticks/s.
	attackWindowTicks = 4
	// minRiseRate rejects slow swells: a real hit must rise at least
	// this much frame over frame.
	minRiseRate = 0.04
	// thresholdFloor keeps effective thresholds meaningful near
	// silence.
	thresholdFloor = 0.001
)

// drummerDetector is the amplitude strategy: an onset is a level that
// is loud relative to the recent baseline, elevated against where the
// signal was a few ticks ago, and rising sharply. All three must hold,
// which is what separates percussive hits from crescendos.
type drummerDetector struct {
	baseline  float64
	history   [attackWindowTicks]float64
	histIdx   int
	primed    bool
	prevLevel float64
}

func (d *drummerDetector) reset() {
	*d = drummerDetector{}
}

func (d *drummerDetector) detect(f features, p *config.OnsetParams, dt float64) detection {
	lvl := f.level

	d.baseline += alpha(dt, p.AverageTau) * (lvl - d.baseline)

	if !d.primed {
		for i := range d.history {
			d.history[i] = lvl
		}
		d.primed = true
	}
	old := d.history[d.histIdx]

	threshold := p.TransientThreshold * f.thresholdScale
	effective := math.Max(d.baseline*threshold, thresholdFloor)

	loud := lvl > effective
	attacking := lvl > old*p.AttackMultiplier
	sharp := lvl-d.prevLevel > minRiseRate*f.thresholdScale

	var det detection
	if loud && attacking && sharp {
		ratio := lvl / math.Max(d.baseline, thresholdFloor)
		det.fired = true
		det.strength = clamp01((ratio - threshold) / threshold)
		det.confidence = clamp01((ratio-1)/3)*0.9 + 0.1
	}

	d.history[d.histIdx] = lvl
	d.histIdx = (d.histIdx + 1) % attackWindowTicks
	d.prevLevel = lvl
	return det
}
