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

package session

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config is a Session's YAML-loadable tunables. A zero field leaves the
// corresponding Option unapplied, so New's own defaults take over.
type Config struct {
	CommandTimeoutMs int  `yaml:"command_timeout_ms"`
	MaxFrameSize     int  `yaml:"max_frame_size"`
	ProtocolVersion  byte `yaml:"protocol_version"`
	AllowCompression bool `yaml:"allow_compression"`
}

// LoadConfig decodes one Config from YAML.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "session: decoding config")
	}
	return cfg, nil
}

// NewFromConfig wraps conn in a Session with cfg applied ahead of opts, so
// a caller-supplied Option can still override an individual field.
func NewFromConfig(conn net.Conn, cfg Config, opts ...Option) *Session {
	all := make([]Option, 0, len(opts)+4)
	if cfg.CommandTimeoutMs > 0 {
		all = append(all, WithCommandTimeout(time.Duration(cfg.CommandTimeoutMs)*time.Millisecond))
	}
	if cfg.MaxFrameSize > 0 {
		all = append(all, WithMaxFrameSize(cfg.MaxFrameSize))
	}
	if cfg.ProtocolVersion > 0 {
		all = append(all, WithProtocolVersion(cfg.ProtocolVersion))
	}
	all = append(all, WithCompression(cfg.AllowCompression))
	all = append(all, opts...)
	return New(conn, all...)
}
