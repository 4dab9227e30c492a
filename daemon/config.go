//
// Copyright 2015 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct { // Needs to be exported for TOML to work
	PidPath         string   `toml:"pid-file"`
	LogPath         string   `toml:"log-file"`
	LogCycle        duration `toml:"log-cycle-interval"`
	StoreType       string   `toml:"store-type"` // postgres, badger or memory
	DbConnectString string   `toml:"db-connect-string"`
	BadgerDir       string   `toml:"badger-dir"`
	HttpListenSpec  string   `toml:"http-listen-spec"`
	BaseInterval    duration `toml:"base-interval"`
	BlasterEnabled  bool     `toml:"blaster-enabled"`
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

var Cfg *Config

var ReadConfig = func(cfgPath string) error {
	Cfg = &Config{}
	if _, err := toml.DecodeFile(cfgPath, Cfg); err != nil {
		log.Printf("Error reading config file %s: %v", cfgPath, err)
		return err
	}
	return nil
}

func (c *Config) processConfigPidFile(wd string) error {
	if c.PidPath == "" {
		return fmt.Errorf("pid-file setting empty")
	}
	if !filepath.IsAbs(c.PidPath) {
		if wd == "" {
			return fmt.Errorf("pid-file must be absolute path if working directory cannot be determined")
		}
		c.PidPath = filepath.Join(wd, c.PidPath)
	}
	pidDir, _ := filepath.Split(c.PidPath)
	if err := os.MkdirAll(pidDir, 0755); err != nil {
		return errors.New(fmt.Sprintf("Unable to create directory: '%s' (%v).", pidDir, err))
	}
	return nil
}

func (c *Config) processConfigLogFile(wd string) error {
	if os.Getenv("KUNLUN_LOG") != "" {
		c.LogPath = os.Getenv("KUNLUN_LOG")
	}
	if c.LogPath == "" {
		return fmt.Errorf("log-file setting empty")
	}
	if !filepath.IsAbs(c.LogPath) {
		if wd == "" {
			return fmt.Errorf("log-file must be absolute path if working directory cannot be determined")
		}
		c.LogPath = filepath.Join(wd, c.LogPath)
	}
	logDir, _ := filepath.Split(c.LogPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return errors.New(fmt.Sprintf("Unable to create directory: '%s' (%v).", logDir, err))
	}

	log.Printf("Logs will be written to '%s'.", c.LogPath)
	return nil
}

func (c *Config) processConfigLogCycleInterval() error {
	if c.LogCycle.Duration == 0 {
		return fmt.Errorf("log-cycle-interval setting empty")
	}
	log.Printf("Will cycle logs every %v (log-cycle-interval).", c.LogCycle.Duration)

	logDir, _ := filepath.Split(c.LogPath)
	log.Printf("All further status messages will be written to log file(s) in '%s'.", logDir)
	logFileCycler(c.LogPath, c.LogCycle.Duration)
	log.Print("Server starting.")

	return nil
}

func (c *Config) processStoreType() error {
	if c.StoreType == "" {
		c.StoreType = "postgres"
	}
	switch c.StoreType {
	case "postgres":
		if os.Getenv("KUNLUN_DB_CONNECT") != "" {
			c.DbConnectString = os.Getenv("KUNLUN_DB_CONNECT")
		}
		if c.DbConnectString == "" {
			return fmt.Errorf("db-connect-string empty")
		}
	case "badger":
		if c.BadgerDir == "" {
			return fmt.Errorf("badger-dir empty")
		}
	case "memory":
		log.Printf("Store is in-memory, all data is lost on restart.")
	default:
		return fmt.Errorf("invalid store-type %q (valid: postgres, badger, memory)", c.StoreType)
	}
	return nil
}

func (c *Config) processBaseInterval() error {
	if c.BaseInterval.Duration == 0 {
		c.BaseInterval.Duration = 10 * time.Second
		log.Printf("base-interval unspecified, defaulting to %v.", c.BaseInterval.Duration)
	}
	secs := int64(c.BaseInterval.Seconds())
	if secs <= 0 || 60%secs != 0 {
		return fmt.Errorf("base-interval (%v) must be a whole number of seconds dividing a minute", c.BaseInterval.Duration)
	}
	log.Printf("Samples expected every %v (base-interval).", c.BaseInterval.Duration)
	return nil
}

type configer interface {
	processConfigPidFile(string) error
	processConfigLogFile(string) error
	processConfigLogCycleInterval() error
	processStoreType() error
	processBaseInterval() error
}

var processConfig = func(c configer, wd string) error {

	if err := c.processConfigPidFile(wd); err != nil {
		return err
	}
	if err := c.processConfigLogFile(wd); err != nil {
		return err
	}
	if err := c.processConfigLogCycleInterval(); err != nil {
		return err
	}
	if err := c.processStoreType(); err != nil {
		return err
	}
	if err := c.processBaseInterval(); err != nil {
		return err
	}
	return nil
}
