// Package predictor implements the EnsemblePredictor: stateless (after
// load) inference turning a feature map into a calibrated probability and
// a discrete side (spec §4.3).
package predictor

import (
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrDegraded names the degraded mode (no model artifacts loaded
// successfully). Predict does not return it: a degraded Predict returns a
// FLAT Prediction with a nil error.
var ErrDegraded = errors.New("predictor: operating in degraded mode, no model artifacts loaded")

// ErrModelLoad is returned by Load when an artifact is missing.
var ErrModelLoad = errors.New("predictor: model artifact load failed")

// ErrFeature is returned by Predict when the feature map is malformed —
// missing a key the loaded manifest requires.
var ErrFeature = errors.New("predictor: malformed feature map")

// Weights are the ensemble blend coefficients; must sum to 1.
type Weights struct {
	Tabular   float64 `yaml:"tabular" json:"tabular"`
	Sequence  float64 `yaml:"sequence" json:"sequence"`
	Auxiliary float64 `yaml:"auxiliary" json:"auxiliary"`
}

// Prediction is the engine's per-cycle inference result.
type Prediction struct {
	ProbUp       float64 `json:"prob_up"`
	Confidence   float64 `json:"confidence"`
	Side         string  `json:"side"` // LONG, SHORT, FLAT
	SizeFraction float64 `json:"size_fraction"`
}

// ModelPaths names the two artifacts Load reads.
type ModelPaths struct {
	Tabular  string
	Sequence string
}

// Predictor is stateless after Load: it holds only the weights, the entry
// threshold, the required feature key set, and whether it is degraded.
type Predictor struct {
	weights       Weights
	thresholdEntry float64
	requiredKeys  []string
	degraded      bool
}

// New constructs a Predictor with the given weights and entry threshold
// (spec default 0.55), starting in degraded mode until Load succeeds.
func New(weights Weights, thresholdEntry float64) *Predictor {
	if thresholdEntry == 0 {
		thresholdEntry = 0.55
	}
	return &Predictor{weights: weights, thresholdEntry: thresholdEntry, degraded: true}
}

// tabularModel and sequenceModel are placeholders standing in for the
// gradient-boosted and sequence artifacts; the spec's Non-goals exclude
// the training algorithm, so Load only validates presence and a feature
// manifest, not model internals.
type tabularModel struct{ requiredKeys []string }
type sequenceModel struct{ requiredKeys []string }

// Load reads the two model artifacts named by paths and establishes the
// required feature key set. It fails with ErrModelLoad if either artifact
// is missing; the Predictor then remains (or becomes) degraded, per spec
// §4.3's tolerance contract — callers must NOT treat this as fatal to
// engine startup.
func (p *Predictor) Load(paths ModelPaths) error {
	if _, err := os.Stat(paths.Tabular); err != nil {
		p.degraded = true
		return fmt.Errorf("%w: tabular artifact %s: %v", ErrModelLoad, paths.Tabular, err)
	}
	if _, err := os.Stat(paths.Sequence); err != nil {
		p.degraded = true
		return fmt.Errorf("%w: sequence artifact %s: %v", ErrModelLoad, paths.Sequence, err)
	}
	// A real implementation would deserialize the manifest bundled with
	// each artifact. p_tabular and p_sequence are the two models' own
	// output probabilities, computed upstream (model inference internals
	// are an explicit spec Non-goal) and carried into Features by the
	// TradingEngine's feature-building step under these contract keys.
	p.requiredKeys = []string{"p_tabular", "p_sequence"}
	p.degraded = false
	return nil
}

// Degraded reports whether the predictor is refusing to generate signals.
func (p *Predictor) Degraded() bool {
	return p.degraded
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Predict turns features and an auxiliary_score in [-1,1] into a
// Prediction, deterministic for identical inputs. In degraded mode it
// always returns side=FLAT without inspecting features.
func (p *Predictor) Predict(features map[string]float64, auxiliaryScore float64) (Prediction, error) {
	if p.degraded {
		return Prediction{Side: "FLAT"}, nil
	}
	for _, key := range p.requiredKeys {
		if _, ok := features[key]; !ok {
			return Prediction{Side: "FLAT"}, fmt.Errorf("%w: missing key %q", ErrFeature, key)
		}
	}

	pTabular := features["p_tabular"]
	pSequence := features["p_sequence"]
	aux := clip((auxiliaryScore+1)/2, 0, 1)

	probUp := p.weights.Tabular*pTabular + p.weights.Sequence*pSequence + p.weights.Auxiliary*aux

	// Both boundaries are inclusive; the tolerance keeps them so under
	// floating-point rounding (1-0.55 evaluates to 0.44999999999999996).
	const eps = 1e-9
	side := "FLAT"
	switch {
	case probUp >= p.thresholdEntry-eps:
		side = "LONG"
	case probUp <= 1-p.thresholdEntry+eps:
		side = "SHORT"
	}

	confidence := 2 * math.Abs(probUp-0.5)
	sizeFraction := 0.0
	if side != "FLAT" {
		sizeFraction = clip(0.5+0.5*confidence, 0.5, 1.0)
	}

	return Prediction{
		ProbUp:       probUp,
		Confidence:   confidence,
		Side:         side,
		SizeFraction: sizeFraction,
	}, nil
}
