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

// Package daemon ties the pieces together: it reads the config, opens
// the store, builds the rollup engine, the receiver and the HTTP
// services, and runs until signalled to stop.
package daemon

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/kunlun/kunlun/blaster"
	klhttp "github.com/kunlun/kunlun/http"
	"github.com/kunlun/kunlun/receiver"
	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
	"github.com/kunlun/kunlun/serde"
)

var (
	serviceMgr *serviceManager
	logFile    *os.File
	cycleLogCh      = make(chan int)
	quitting   bool = false
)

func savePid(PidPath string) {
	f, err := os.Create(PidPath)
	if err != nil {
		log.Fatalf("Unable to create pid file '%s': (%v)", PidPath, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	log.Printf("Pid saved in %s.", PidPath)
}

func openStore(cfg *Config, schema sample.Schema) (serde.SerDe, error) {
	switch cfg.StoreType {
	case "postgres":
		return serde.InitDb(cfg.DbConnectString, "", schema)
	case "badger":
		return serde.InitBadger(cfg.BadgerDir, schema)
	case "memory":
		return serde.NewMemSerDe(), nil
	}
	return nil, fmt.Errorf("invalid store-type %q", cfg.StoreType)
}

func Init(cfgPath string) *Config { // not to be confused with init()

	runtime.GOMAXPROCS(runtime.NumCPU())

	log.SetPrefix(fmt.Sprintf("[%d] ", os.Getpid()))
	log.Printf("Kunlun starting.")

	// This creates the Cfg variable
	if err := ReadConfig(cfgPath); err != nil {
		log.Fatal("Exiting.")
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	if err := processConfig(configer(Cfg), wd); err != nil { // This validates the config
		log.Fatalf("Error in config file %s: %v", cfgPath, err)
	}

	savePid(Cfg.PidPath)

	schema := sample.DefaultSchema()

	db, err := openStore(Cfg, schema)
	if err != nil {
		log.Printf("Error opening the store: %v", err)
		return nil
	}
	log.Printf("Initialized %s store.", Cfg.StoreType)

	engine := rollup.NewEngine(db, schema, int64(Cfg.BaseInterval.Seconds()))
	rcvr := receiver.New(db, engine)

	hub := klhttp.NewHub(schema)
	go hub.Run()
	rcvr.Notify(hub.Listener())

	var blstr *blaster.Blaster
	if Cfg.BlasterEnabled {
		blstr = blaster.New(rcvr, schema, engine.Interval())
		log.Printf("Blaster available (idle until POST /blaster sets a rate).")
	}

	router := klhttp.NewRouter(rcvr, db, hub, blstr)

	// Create and run the Service Manager
	serviceMgr = newServiceManager(router, Cfg)
	if err := serviceMgr.run(); err != nil {
		log.Printf("Could not run the service manager: %v", err)
		return nil
	}

	// Wait for a SIGINT or SIGTERM.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Printf("Got signal: %v", s)

	quitting = true

	log.Printf("Waiting for HTTP connections to finish...")
	serviceMgr.closeListeners()
	log.Printf("HTTP connections finished.")

	if err := db.Close(); err != nil {
		log.Printf("Error closing the store: %v", err)
	}
	return Cfg
}

func Finish(cfg *Config) {
	quitting = true
	log.Printf("main: Waiting for all other goroutines to finish...")
	log.Println("main: All goroutines finished, exiting.")

	// Close log
	log.SetOutput(os.Stderr)
	if logFile != nil {
		logFile.Close()
	}

	os.Remove(cfg.PidPath)
}
