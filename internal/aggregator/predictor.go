package aggregator

import (
	"fmt"

	"github.com/san-kum/deepsim/internal/transport"
)

// Predictor answers a sample with a displacement prediction. A nil result
// means the sample is only acknowledged.
type Predictor interface {
	Predict(input, groundTruth transport.Field) []float64
}

// NewPredictor resolves a predictor name: "none" acknowledges, "zero"
// predicts no displacement, "echo" returns the ground truth.
func NewPredictor(name string) (Predictor, error) {
	switch name {
	case "", "none":
		return nonePredictor{}, nil
	case "zero":
		return zeroPredictor{}, nil
	case "echo":
		return echoPredictor{}, nil
	default:
		return nil, fmt.Errorf("unknown predictor: %s", name)
	}
}

type nonePredictor struct{}

func (nonePredictor) Predict(_, _ transport.Field) []float64 { return nil }

type zeroPredictor struct{}

func (zeroPredictor) Predict(_, gt transport.Field) []float64 {
	return make([]float64, gt.Len())
}

type echoPredictor struct{}

func (echoPredictor) Predict(_, gt transport.Field) []float64 {
	return append([]float64(nil), gt.Data...)
}
