/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package threadpool

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config is one named pool's YAML-loadable tunables. Zero-valued fields
// other than Name/MinThreads/MaxThreads are left at the process-wide
// defaults (see SetResizeParameters) instead of being forced to zero.
type Config struct {
	Name            string `yaml:"name"`
	MinThreads      int    `yaml:"min_threads"`
	MaxThreads      int    `yaml:"max_threads"`
	Responsiveness  int    `yaml:"responsiveness"`
	HighWatermarkMs int64  `yaml:"high_watermark_ms"`
	LowWatermarkMs  int64  `yaml:"low_watermark_ms"`
}

// LoadConfigs decodes a YAML list of pool configs, the format a process
// wiring up several named pools at startup would keep on disk.
func LoadConfigs(r io.Reader) ([]Config, error) {
	var cfgs []Config
	if err := yaml.NewDecoder(r).Decode(&cfgs); err != nil {
		return nil, errors.Wrap(err, "threadpool: decoding config")
	}
	return cfgs, nil
}

// NewFromConfig creates and registers a pool from cfg. If cfg sets any of
// the resize-watermark fields, SetResizeParameters is called first — those
// parameters are process-wide, so this also affects every other pool
// already running.
func NewFromConfig(cfg Config, opts ...Option) *Pool {
	if cfg.Responsiveness > 0 || cfg.HighWatermarkMs > 0 || cfg.LowWatermarkMs > 0 {
		responsiveness := int(globalResponsiveness.Load())
		high := globalWaitHighWatermarkMs.Load()
		low := globalWaitLowWatermarkMs.Load()
		if cfg.Responsiveness > 0 {
			responsiveness = cfg.Responsiveness
		}
		if cfg.HighWatermarkMs > 0 {
			high = cfg.HighWatermarkMs
		}
		if cfg.LowWatermarkMs > 0 {
			low = cfg.LowWatermarkMs
		}
		SetResizeParameters(responsiveness, high, low)
	}
	return New(cfg.Name, cfg.MinThreads, cfg.MaxThreads, opts...)
}
