package search

import "fmt"

// DefaultWeights are the relative field weights of the explore search. They
// are normalised to sum to one when an index is built.
var DefaultWeights = map[Field]float64{
	FieldTitle:    2.0,
	FieldBody:     1.0,
	FieldCategory: 0.5,
	FieldTags:     1.5,
}

const (
	// DefaultThreshold is the largest accepted ratio of edit errors to
	// query length. Lower is stricter.
	DefaultThreshold = 0.4
	// DefaultMinMatchLength drops highlight spans (and matches made only of
	// such spans) shorter than this many runes.
	DefaultMinMatchLength = 2
)

// Options configures index construction and matching.
type Options struct {
	Weights        map[Field]float64
	Threshold      float64
	MinMatchLength int
}

// DefaultOptions returns the observed explore configuration.
func DefaultOptions() Options {
	weights := make(map[Field]float64, len(DefaultWeights))
	for f, w := range DefaultWeights {
		weights[f] = w
	}
	return Options{
		Weights:        weights,
		Threshold:      DefaultThreshold,
		MinMatchLength: DefaultMinMatchLength,
	}
}

// OptionsFromConfig converts the string-keyed weights used in configuration
// files. Unknown field names are rejected; missing ones keep their default.
func OptionsFromConfig(weights map[string]float64, threshold float64, minMatchLength int) (Options, error) {
	opts := DefaultOptions()
	for name, w := range weights {
		f := Field(name)
		if _, ok := DefaultWeights[f]; !ok {
			return Options{}, fmt.Errorf("unknown search field %q", name)
		}
		if w <= 0 {
			return Options{}, fmt.Errorf("weight for %q must be positive", name)
		}
		opts.Weights[f] = w
	}
	if threshold > 0 {
		opts.Threshold = threshold
	}
	if minMatchLength > 0 {
		opts.MinMatchLength = minMatchLength
	}
	return opts, nil
}

// normalizedWeights scales the configured weights so they sum to one.
// Fields without a positive weight are not searched.
func (o Options) normalizedWeights() map[Field]float64 {
	var total float64
	for _, f := range Fields {
		if w := o.Weights[f]; w > 0 {
			total += w
		}
	}
	out := make(map[Field]float64, len(Fields))
	if total == 0 {
		return out
	}
	for _, f := range Fields {
		if w := o.Weights[f]; w > 0 {
			out[f] = w / total
		}
	}
	return out
}

func (o Options) withDefaults() Options {
	if len(o.Weights) == 0 {
		o.Weights = DefaultOptions().Weights
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.MinMatchLength <= 0 {
		o.MinMatchLength = DefaultMinMatchLength
	}
	return o
}
