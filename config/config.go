// Package config provides the resource constraint of a platform and the
// configuration of a search run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Search methods of the core tuners.
const (
	MethodGenetic    = "genetic"
	MethodExhaustive = "exhaustive"
	MethodRandom     = "random"
	MethodAnnealing  = "annealing"
	MethodBayesian   = "bayesian"
)

// DefaultBatchTimeout bounds one executor batch.
const DefaultBatchTimeout = 30 * time.Minute

// MutationPolicy holds the roulette probabilities of the chain mutations.
type MutationPolicy struct {
	Redistribute float64 `yaml:"redistribute"`
	Refactorize  float64 `yaml:"refactorize"`
	Resample     float64 `yaml:"resample"`
}

// SearchConfig configures a search run.
type SearchConfig struct {
	Method string `yaml:"method"`
	Metric string `yaml:"metric"`

	// Exactly one of Epochs and MaxTime bounds a search.
	Epochs  int           `yaml:"epochs"`
	MaxTime time.Duration `yaml:"max_time"`

	Population          int            `yaml:"population"`
	ParentsRatio        float64        `yaml:"parents_ratio"`
	MutationProbability float64        `yaml:"mutation_probability"`
	Epsilon             float64        `yaml:"epsilon"`
	MutationPolicy      MutationPolicy `yaml:"mutation_policy"`
	MaxTrials           int            `yaml:"max_trials"`

	// Inner searches run per workload under a fixed array.
	InnerEpochs     int `yaml:"inner_epochs"`
	InnerPopulation int `yaml:"inner_population"`

	XGBNTurns      int     `yaml:"xgb_n_turns"`
	ModelGens      int     `yaml:"model_gens"`
	XGBThres       float64 `yaml:"xgb_thres"`
	XGBThresAdjust float64 `yaml:"xgb_thres_adjust"`
	HWParentsRatio float64 `yaml:"hw_parents_ratio"`

	MaxTrial         int  `yaml:"max_trial"`
	MaxArrays        int  `yaml:"max_arrays"`
	MultiAccStrategy int  `yaml:"multi_acc_strategy"`
	Fusion           bool `yaml:"fusion"`
	PartialFusion    bool `yaml:"partial_fusion"`
	MultiAcc         bool `yaml:"multi_acc"`
	Programmable     bool `yaml:"programmable"`
	UseURAM          bool `yaml:"use_uram"`

	Workers      int           `yaml:"workers"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	Seed         int64         `yaml:"seed"`
	DB           string        `yaml:"db"`
}

// DefaultSearchConfig returns the configuration used for unset fields.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Method:              MethodGenetic,
		Metric:              "latency",
		Epochs:              20,
		Population:          200,
		ParentsRatio:        0.2,
		MutationProbability: 0.5,
		Epsilon:             0.1,
		MutationPolicy: MutationPolicy{
			Redistribute: 0.4,
			Refactorize:  0.4,
			Resample:     0.2,
		},
		InnerEpochs:     5,
		InnerPopulation: 50,
		XGBNTurns:       3,
		ModelGens:       2,
		XGBThres:        0.0,
		XGBThresAdjust:  0.8,
		HWParentsRatio:  0.1,
		MaxTrial:        20,
		MaxArrays:       2,
		Workers:         4,
		BatchTimeout:    DefaultBatchTimeout,
		Seed:            1,
	}
}

// LoadSearchConfig reads a yaml file over the defaults.
func LoadSearchConfig(path string) (SearchConfig, error) {
	cfg := DefaultSearchConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading search config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	// A file that only sets max_time switches the stop criterion.
	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err == nil {
		if _, ok := keys["epochs"]; !ok && cfg.MaxTime > 0 {
			cfg.Epochs = 0
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the fields that would make a search ill-defined.
func (c *SearchConfig) Validate() error {
	switch c.Method {
	case MethodGenetic, MethodExhaustive, MethodRandom, MethodAnnealing, MethodBayesian:
	default:
		return fmt.Errorf("unknown method %q", c.Method)
	}

	if c.Epochs > 0 && c.MaxTime > 0 {
		return errors.New("epochs and max_time are exclusive")
	}

	if c.Epochs <= 0 && c.MaxTime <= 0 {
		return errors.New("one of epochs and max_time must be set")
	}

	if c.Population <= 0 {
		return errors.New("population must be positive")
	}

	if c.ParentsRatio <= 0 || c.ParentsRatio > 1 {
		return fmt.Errorf("parents_ratio %g out of (0, 1]", c.ParentsRatio)
	}

	p := c.MutationPolicy
	if p.Redistribute < 0 || p.Refactorize < 0 || p.Resample < 0 ||
		p.Redistribute+p.Refactorize+p.Resample == 0 {
		return errors.New("mutation_policy needs non-negative weights")
	}

	if c.Workers <= 0 {
		c.Workers = 1
	}

	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}

	return nil
}
