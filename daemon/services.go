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
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

type klService interface {
	Start() error
	Stop()
}

type serviceManager struct {
	services map[string]klService
}

func newServiceManager(router *mux.Router, cfg *Config) *serviceManager {
	return &serviceManager{
		services: map[string]klService{
			"www": &wwwServer{router: router, listenSpec: cfg.HttpListenSpec},
		},
	}
}

func processListenSpec(listenSpec string) string {
	if os.Getenv("KUNLUN_BIND") != "" {
		return strings.Replace(listenSpec, "0.0.0.0", os.Getenv("KUNLUN_BIND"), 1)
	}
	return listenSpec
}

func (r *serviceManager) run() error {
	for _, service := range r.services {
		if err := service.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (r *serviceManager) closeListeners() {
	for _, service := range r.services {
		service.Stop()
	}
}

type wwwServer struct {
	router     *mux.Router
	listenSpec string
	listener   net.Listener
	server     *http.Server
	stop       int32
}

func (g *wwwServer) Stop() {
	if !atomic.CompareAndSwapInt32(&g.stop, 0, 1) {
		return
	}
	if g.server != nil {
		log.Printf("Closing listener %s\n", g.listenSpec)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := g.server.Shutdown(ctx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}
}

func (g *wwwServer) Start() error {
	if g.listenSpec == "" {
		log.Printf("Not starting HTTP server because http-listen-spec is blank.")
		return nil
	}

	gl, err := net.Listen("tcp", processListenSpec(g.listenSpec))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting HTTP protocol: %v\n", err)
		return fmt.Errorf("Error starting HTTP protocol: %v", err)
	}
	g.listener = gl

	log.Printf("HTTP protocol Listening on %s\n", processListenSpec(g.listenSpec))

	g.server = &http.Server{
		Addr:           g.listenSpec,
		Handler:        g.router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 16}

	go func() {
		if err := g.server.Serve(gl); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server: %v", err)
		}
	}()

	return nil
}
