// Copyright 2019 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"time"

	"github.com/sorintlab/errors"
	yaml "go.yaml.in/yaml/v4"

	"agola.io/reslock/internal/sqlg/sql"
	"agola.io/reslock/internal/util"
)

const (
	DefaultProfileName        = "default"
	RecoverySystemProfileName = "recoverySystem"
	DataPathProfileName       = "dataPath"

	defaultRedisKeyPrefix = "reslock:"
)

type Config struct {
	ResourceLock ResourceLock `yaml:"resourceLock"`
}

type ResourceLock struct {
	Debug bool `yaml:"debug"`

	// DataDir is used for the default sqlite database when no store db
	// connection string is provided
	DataDir string `yaml:"dataDir"`

	Store Store `yaml:"store"`

	// DefaultProfile is the profile used when a lock is requested without
	// explicit timings
	DefaultProfile string                 `yaml:"defaultProfile"`
	Profiles       map[string]LockProfile `yaml:"profiles"`

	// ReleaseRetry defines how many times and how often a conflicting
	// release is retried
	ReleaseRetry Backoff `yaml:"releaseRetry"`
}

type StoreType string

const (
	StoreTypeSQL   StoreType = "sql"
	StoreTypeRedis StoreType = "redis"
)

type Store struct {
	Type StoreType `yaml:"type"`

	DB    DB    `yaml:"db"`
	Redis Redis `yaml:"redis"`
}

type DB struct {
	Type       sql.Type `yaml:"type"`
	ConnString string   `yaml:"connString"`
}

type Redis struct {
	Address   string `yaml:"address"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// LockProfile is a named pair of acquisition timings.
type LockProfile struct {
	Timeout       time.Duration `yaml:"timeout"`
	RetryInterval time.Duration `yaml:"retryInterval"`
}

type Backoff struct {
	Steps    int           `yaml:"steps"`
	Duration time.Duration `yaml:"duration"`
	Factor   float64       `yaml:"factor"`
	Jitter   float64       `yaml:"jitter"`
}

func DefaultProfiles() map[string]LockProfile {
	return map[string]LockProfile{
		DefaultProfileName: {
			Timeout:       1 * time.Second,
			RetryInterval: 200 * time.Millisecond,
		},
		RecoverySystemProfileName: {
			Timeout:       3 * time.Second,
			RetryInterval: 200 * time.Millisecond,
		},
		DataPathProfileName: {
			Timeout:       1 * time.Second,
			RetryInterval: 200 * time.Millisecond,
		},
	}
}

func DefaultReleaseRetry() Backoff {
	return Backoff{
		Steps:    30,
		Duration: 10 * time.Millisecond,
		Factor:   1.0,
		Jitter:   0.1,
	}
}

func DefaultConfig() *Config {
	return &Config{
		ResourceLock: DefaultResourceLock(),
	}
}

func DefaultResourceLock() ResourceLock {
	return ResourceLock{
		Store: Store{
			Type: StoreTypeSQL,
			DB: DB{
				Type: sql.Sqlite3,
			},
			Redis: Redis{
				KeyPrefix: defaultRedisKeyPrefix,
			},
		},
		DefaultProfile: DefaultProfileName,
		Profiles:       DefaultProfiles(),
		ReleaseRetry:   DefaultReleaseRetry(),
	}
}

func Parse(configFile string) (*Config, error) {
	configData, err := os.ReadFile(configFile)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	c := DefaultConfig()
	// profiles provided by the config file are merged with the default ones
	c.ResourceLock.Profiles = nil
	if err := yaml.Unmarshal(configData, &c); err != nil {
		return nil, errors.WithStack(err)
	}

	profiles := DefaultProfiles()
	for name, p := range c.ResourceLock.Profiles {
		profiles[name] = p
	}
	c.ResourceLock.Profiles = profiles

	return c, Validate(c)
}

func validateDB(db *DB) error {
	switch db.Type {
	case sql.Sqlite3:
	case sql.Postgres:
	default:
		if db.Type == "" {
			return errors.Errorf("type is not defined")
		}
		return errors.Errorf("unknown type %q", db.Type)
	}

	return nil
}

func validateRedis(r *Redis) error {
	if r.Address == "" {
		return errors.Errorf("redis address undefined")
	}
	if r.DB < 0 {
		return errors.Errorf("invalid redis db %d", r.DB)
	}

	return nil
}

func validateStore(s *Store, dataDir string) error {
	switch s.Type {
	case StoreTypeSQL:
		if err := validateDB(&s.DB); err != nil {
			return errors.Wrapf(err, "db configuration error")
		}
		if s.DB.ConnString == "" && (s.DB.Type != sql.Sqlite3 || dataDir == "") {
			return errors.Errorf("db connection string undefined")
		}
	case StoreTypeRedis:
		if err := validateRedis(&s.Redis); err != nil {
			return errors.Wrapf(err, "redis configuration error")
		}
	default:
		if s.Type == "" {
			return errors.Errorf("store type is not defined")
		}
		return errors.Errorf("unknown store type %q", s.Type)
	}

	return nil
}

func ValidateProfile(p LockProfile) error {
	if p.Timeout < 0 {
		return errors.Errorf("negative timeout %s", p.Timeout)
	}
	if p.RetryInterval <= 0 {
		return errors.Errorf("retry interval must be greater than zero")
	}

	return nil
}

func validateBackoff(b *Backoff) error {
	if b.Steps < 1 {
		return errors.Errorf("steps must be at least 1")
	}
	if b.Duration < 0 {
		return errors.Errorf("negative duration %s", b.Duration)
	}
	if b.Factor < 0 {
		return errors.Errorf("negative factor %v", b.Factor)
	}
	if b.Jitter < 0 {
		return errors.Errorf("negative jitter %v", b.Jitter)
	}

	return nil
}

func Validate(c *Config) error {
	rl := &c.ResourceLock

	if err := validateStore(&rl.Store, rl.DataDir); err != nil {
		return errors.Wrapf(err, "store configuration error")
	}

	for name, p := range rl.Profiles {
		if !util.ValidateName(name) {
			return errors.Errorf("invalid profile name %q", name)
		}
		if err := ValidateProfile(p); err != nil {
			return errors.Wrapf(err, "profile %q configuration error", name)
		}
	}

	if rl.DefaultProfile == "" {
		return errors.Errorf("default profile is empty")
	}
	if _, ok := rl.Profiles[rl.DefaultProfile]; !ok {
		return errors.Errorf("default profile %q is not defined", rl.DefaultProfile)
	}

	if err := validateBackoff(&rl.ReleaseRetry); err != nil {
		return errors.Wrapf(err, "release retry configuration error")
	}

	return nil
}
