//
// Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package config

import (
	"fmt"
	"io/ioutil"

	"github.com/gvallee/collective_profiler/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBalanceTolerance is the maximum deviation between the mean and the median of a group (10%)
	DefaultBalanceTolerance = 0.1

	// DefaultMsgSizeThreshold is the default threshold to differentiate small and large messages
	DefaultMsgSizeThreshold = 200

	// NoCallLimit means that all the calls after StartCall are profiled
	NoCallLimit = -1
)

// Config gathers the analyses that are active while collecting call data
type Config struct {
	// PatternDetection enables the fan-out/fan-in histograms
	PatternDetection bool `yaml:"pattern_detection"`

	// PerCallPatterns groups the patterns on a per-call signature basis instead of globally
	PerCallPatterns bool `yaml:"per_call_patterns"`

	// SizeScopedPatterns differentiates global patterns based on the communicator size
	SizeScopedPatterns bool `yaml:"size_scoped_patterns"`

	// ClusteringEnabled groups ranks based on the amount of data they send and receive
	ClusteringEnabled bool `yaml:"clustering_enabled"`

	// BalanceTolerance is the maximum deviation between the mean and the median of a group, in [0, 1)
	BalanceTolerance float64 `yaml:"balance_tolerance"`

	// TrackDisplacements records displacements in addition to counts
	TrackDisplacements bool `yaml:"track_displacements"`

	// StartCall is the number of the call during which we start profiling
	StartCall int `yaml:"start_call"`

	// CallLimit is the maximum number of calls that are profiled (-1 means no limit)
	CallLimit int `yaml:"call_limit"`

	// MsgSizeThreshold is the size in bytes that differentiates small and large messages
	MsgSizeThreshold int `yaml:"msg_size_threshold"`
}

// Default returns the configuration used when nothing is specified: only the
// counts are compacted
func Default() Config {
	return Config{
		BalanceTolerance: DefaultBalanceTolerance,
		StartCall:        0,
		CallLimit:        NoCallLimit,
		MsgSizeThreshold: DefaultMsgSizeThreshold,
	}
}

// Validate checks that the configuration is consistent. The returned error is
// a *errors.ProfilerError with the ErrInvalidConfig code
func (c Config) Validate() error {
	if c.BalanceTolerance < 0 || c.BalanceTolerance >= 1 {
		return errors.New(errors.ErrInvalidConfig, fmt.Errorf("balance tolerance %f is not in [0, 1)", c.BalanceTolerance))
	}

	if c.PerCallPatterns && !c.PatternDetection {
		return errors.New(errors.ErrInvalidConfig, fmt.Errorf("per-call patterns require pattern detection"))
	}

	if c.SizeScopedPatterns && !c.PatternDetection {
		return errors.New(errors.ErrInvalidConfig, fmt.Errorf("size-scoped patterns require pattern detection"))
	}

	if c.StartCall < 0 {
		return errors.New(errors.ErrInvalidConfig, fmt.Errorf("invalid start call: %d", c.StartCall))
	}

	if c.CallLimit < NoCallLimit {
		return errors.New(errors.ErrInvalidConfig, fmt.Errorf("invalid call limit: %d (%d means no limit)", c.CallLimit, NoCallLimit))
	}

	if c.MsgSizeThreshold < 0 {
		return errors.New(errors.ErrInvalidConfig, fmt.Errorf("invalid message size threshold: %d", c.MsgSizeThreshold))
	}

	return nil
}

// Load reads a YAML configuration file. Options missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read %s: %w", path, err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return cfg, nil
}
