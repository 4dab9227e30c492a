//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func Test_duration_UnmarshalText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("15m")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 15*time.Minute {
		t.Errorf("expected 15m, got %v", d.Duration)
	}
	if err := d.UnmarshalText([]byte("bogus")); err == nil {
		t.Errorf("expected an error for a bogus duration")
	}
}

func Test_processStoreType(t *testing.T) {
	c := &Config{}
	if err := c.processStoreType(); err == nil {
		t.Errorf("default store is postgres, empty db-connect-string should fail")
	}

	c = &Config{StoreType: "postgres", DbConnectString: "host=/tmp dbname=kunlun"}
	if err := c.processStoreType(); err != nil {
		t.Errorf("postgres with connect string: %v", err)
	}

	os.Setenv("KUNLUN_DB_CONNECT", "host=/var/run dbname=other")
	defer os.Unsetenv("KUNLUN_DB_CONNECT")
	c = &Config{StoreType: "postgres"}
	if err := c.processStoreType(); err != nil {
		t.Errorf("env var should satisfy db-connect-string: %v", err)
	}
	if c.DbConnectString != "host=/var/run dbname=other" {
		t.Errorf("env var should override, got %q", c.DbConnectString)
	}

	c = &Config{StoreType: "badger"}
	if err := c.processStoreType(); err == nil {
		t.Errorf("badger without badger-dir should fail")
	}
	c = &Config{StoreType: "badger", BadgerDir: "/tmp/kl"}
	if err := c.processStoreType(); err != nil {
		t.Errorf("badger with dir: %v", err)
	}

	c = &Config{StoreType: "memory"}
	if err := c.processStoreType(); err != nil {
		t.Errorf("memory store: %v", err)
	}

	c = &Config{StoreType: "cassandra"}
	if err := c.processStoreType(); err == nil {
		t.Errorf("unknown store type should fail")
	}
}

func Test_processBaseInterval(t *testing.T) {
	c := &Config{}
	if err := c.processBaseInterval(); err != nil {
		t.Fatalf("empty base-interval should default: %v", err)
	}
	if c.BaseInterval.Duration != 10*time.Second {
		t.Errorf("default should be 10s, got %v", c.BaseInterval.Duration)
	}

	c = &Config{BaseInterval: duration{7 * time.Second}}
	if err := c.processBaseInterval(); err == nil {
		t.Errorf("7s does not divide a minute, should fail")
	}

	c = &Config{BaseInterval: duration{30 * time.Second}}
	if err := c.processBaseInterval(); err != nil {
		t.Errorf("30s is valid: %v", err)
	}
}

func Test_processConfig(t *testing.T) {
	// Stub out the log cycler, no log files in tests.
	saveCycler := logFileCycler
	logFileCycler = func(logPath string, logCycle time.Duration) {}
	defer func() { logFileCycler = saveCycler }()

	dir := t.TempDir()
	c := &Config{
		PidPath:   "kunlun.pid",
		LogPath:   filepath.Join(dir, "log", "kunlun.log"),
		LogCycle:  duration{24 * time.Hour},
		StoreType: "memory",
	}
	if err := processConfig(c, dir); err != nil {
		t.Fatalf("processConfig: %v", err)
	}
	if !filepath.IsAbs(c.PidPath) {
		t.Errorf("relative pid-file should be made absolute, got %q", c.PidPath)
	}
	if c.PidPath != filepath.Join(dir, "kunlun.pid") {
		t.Errorf("pid-file should be joined to the working directory, got %q", c.PidPath)
	}

	c = &Config{}
	if err := processConfig(c, dir); err == nil {
		t.Errorf("empty config should fail validation")
	}
}

func Test_ReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kunlun.conf")
	conf := `
pid-file = "kunlun.pid"
log-file = "log/kunlun.log"
log-cycle-interval = "24h"
store-type = "badger"
badger-dir = "data"
http-listen-spec = "0.0.0.0:8888"
base-interval = "10s"
blaster-enabled = true
`
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ReadConfig(path); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if Cfg.StoreType != "badger" || Cfg.BadgerDir != "data" {
		t.Errorf("wrong store config: %+v", Cfg)
	}
	if Cfg.BaseInterval.Duration != 10*time.Second {
		t.Errorf("wrong base-interval: %v", Cfg.BaseInterval.Duration)
	}
	if Cfg.HttpListenSpec != "0.0.0.0:8888" || !Cfg.BlasterEnabled {
		t.Errorf("wrong config: %+v", Cfg)
	}

	if err := ReadConfig(filepath.Join(dir, "no-such-file.conf")); err == nil {
		t.Errorf("missing config file should error")
	}
}
