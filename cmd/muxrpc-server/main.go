package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"mux-rpc/middleware"
	"mux-rpc/registry"
	"mux-rpc/server"
)

var version string

func echo(_ context.Context, request []byte) ([]byte, error) {
	return request, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	config := flag.String("c", "", "config: path to the configuration file or its content")
	host := flag.String("host", "127.0.0.1", "address to listen on")
	port := flag.Int("port", 0, "port to listen on, 0 picks a free one")
	adminAddr := flag.String("admin", "", "ip:port for the HTTP admin endpoints, empty to disable")
	workers := flag.Int("workers", 0, "handler goroutine limit, 0 for one goroutine per request")
	etcd := flag.String("etcd", "", "comma separated etcd endpoints to advertise the server in")
	rateLimit := flag.Float64("rps", 0, "requests per second admitted to the handler, 0 for no limit")
	verbosity := flag.String("verbosity", "info", "verbosity level")
	askVersion := flag.Bool("v", false, "Print the version number")
	flag.Parse()

	if *askVersion {
		log.Printf("muxrpc-server %s", version)
		return
	}

	lvl, err := log.ParseLevel(*verbosity)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(lvl)

	raw := &server.Config{Host: *host, Port: *port, AdminAddr: *adminAddr, MaxWorkers: *workers}
	if *config != "" {
		raw, err = server.ParseConfig(*config)
		if err != nil {
			log.Fatalf("Configuration file error: %v", err)
		}
		// flags given explicitly win over the file
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "host":
				raw.Host = *host
			case "port":
				raw.Port = *port
			case "admin":
				raw.AdminAddr = *adminAddr
			case "workers":
				raw.MaxWorkers = *workers
			}
		})
	}
	if *etcd != "" {
		raw.EtcdEndpoints = strings.Split(*etcd, ",")
	}

	opts, err := raw.Options()
	if err != nil {
		log.Fatalf("Configuration file error: %v", err)
	}
	opts.Logger = log.StandardLogger()
	if len(raw.EtcdEndpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(raw.EtcdEndpoints, opts.Logger)
		if err != nil {
			log.Fatalf("unable to reach etcd: %v", err)
		}
		defer reg.Close()
		opts.Registry = reg
		if len(opts.ServiceNames) == 0 {
			opts.ServiceNames = []string{"Echo"}
		}
	}

	svr := server.NewServer(echo, opts)
	svr.Use(middleware.Recover(), middleware.Logging(opts.Logger))
	if *rateLimit > 0 {
		svr.Use(middleware.RateLimit(*rateLimit, int(*rateLimit)+1))
	}

	boundHost, boundPort, err := svr.Open(raw.Host, raw.Port)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("muxrpc-server %s serving on %s:%d", version, boundHost, boundPort)

	if raw.AdminAddr != "" {
		go func() {
			log.Infof("admin endpoints on http://%v/admin/", raw.AdminAddr)
			log.Error(http.ListenAndServe(raw.AdminAddr, server.AdminRouterOf(svr)))
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	if err := svr.Close(); err != nil {
		log.Error(err)
	}
}
