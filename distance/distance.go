package distance

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/blas/gonum"

	"github.com/hupe1980/annidx/model"
)

var blas = gonum.Implementation{}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return blas.Sdot(len(a), a, 1, b, 1)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	b = b[:len(a)]
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Euclidean calculates the Euclidean distance between two vectors.
func Euclidean(a, b []float32) float32 {
	return float32(math.Sqrt(float64(SquaredL2(a, b))))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return blas.Snrm2(len(v), v, 1)
}

// CosineDistance returns 1 - cosine similarity of a and b.
// A zero-norm operand is treated as orthogonal to everything (distance 1).
func CosineDistance(a, b []float32) float32 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	sim := Dot(a, b) / (na * nb)
	// Clamp rounding noise so identical vectors report exactly 0.
	switch {
	case sim > 1:
		sim = 1
	case sim < -1:
		sim = -1
	}
	d := 1 - sim
	if d < 1e-6 {
		return 0
	}
	return d
}

// NegativeDot returns -dot(a, b).
func NegativeDot(a, b []float32) float32 {
	return -Dot(a, b)
}

// ScaleInPlace multiplies every element of v by alpha.
func ScaleInPlace(v []float32, alpha float32) {
	if len(v) == 0 {
		return
	}
	blas.Sscal(len(v), alpha, v, 1)
}

// AddScaled computes dst += alpha*src.
func AddScaled(dst []float32, alpha float32, src []float32) {
	if len(dst) == 0 {
		return
	}
	blas.Saxpy(len(dst), alpha, src, 1, dst, 1)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	n := Norm(v)
	if n == 0 {
		return false
	}
	ScaleInPlace(v, 1/n)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricEuclidean
	MetricCosine
	MetricInnerProduct
)

// String returns the canonical configuration name of the metric.
func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricEuclidean:
		return "euclidean"
	case MetricCosine:
		return "cosine"
	case MetricInnerProduct:
		return "inner_product"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	return m >= MetricL2 && m <= MetricInnerProduct
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, &ErrUnsupportedMetric{Metric: m}
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMetric parses a metric name as used in configuration files.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2", "squared_euclidean", "squared-euclidean", "sql2":
		return MetricL2, nil
	case "euclidean":
		return MetricEuclidean, nil
	case "cosine":
		return MetricCosine, nil
	case "inner_product", "innerproduct", "inner-product", "ip", "dot":
		return MetricInnerProduct, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

// ErrUnsupportedMetric indicates an unsupported distance metric.
type ErrUnsupportedMetric struct {
	Metric Metric
}

func (e *ErrUnsupportedMetric) Error() string {
	return fmt.Sprintf("unsupported metric: %v", e.Metric)
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
// The returned function does not check dimensions.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricEuclidean:
		return Euclidean, nil
	case MetricCosine:
		return CosineDistance, nil
	case MetricInnerProduct:
		return NegativeDot, nil
	default:
		return nil, &ErrUnsupportedMetric{Metric: m}
	}
}

// Distance computes the distance between a and b under metric m.
func Distance(a, b []float32, m Metric) (float32, error) {
	if len(a) != len(b) {
		return 0, &model.ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	fn, err := Provider(m)
	if err != nil {
		return 0, err
	}
	return fn(a, b), nil
}

// Similarity converts a cosine distance back to cosine similarity,
// the "1 - (a <=> b)" form reported by pgvector queries.
func Similarity(cosineDistance float32) float32 {
	return 1 - cosineDistance
}

// Compare returns the cosine similarity of a and b.
func Compare(a, b []float32) (float32, error) {
	d, err := Distance(a, b, MetricCosine)
	if err != nil {
		return 0, err
	}
	return Similarity(d), nil
}
