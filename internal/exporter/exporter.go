package exporter

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/wait"
)

// DefaultPort is the exporter's well-known HTTPS port.
const DefaultPort = 9443

// The three files deploy materializes into the exporter's data
// directory, consumed here at startup.
const (
	crtName   = "crt"
	keyName   = "key"
	tokenName = "token"
)

const minTokenLen = 8

// Producers supply the scrape payloads. The host producer wraps the
// host-facts capability, daemons wraps the inventory listing, disks
// wraps ceph-volume.
type Producers struct {
	Host    Producer
	Disks   Producer
	Daemons Producer
}

// Daemon is one running exporter process.
type Daemon struct {
	log      zerolog.Logger
	identity model.Identity
	dataDir  string
	port     int
	cache    *Cache
	prods    Producers

	registry *prometheus.Registry
	duration *prometheus.HistogramVec
}

// New builds an exporter daemon for the given identity, reading its
// TLS material and token from dataDir at Run time.
func New(identity model.Identity, dataDir string, port int, prods Producers, log zerolog.Logger) *Daemon {
	if port == 0 {
		port = DefaultPort
	}
	registry := prometheus.NewRegistry()
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cephadm",
		Subsystem: "exporter",
		Name:      "scrape_duration_seconds",
		Help:      "Time taken by each scrape task.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task"})
	registry.MustRegister(duration)

	return &Daemon{
		log:      log.With().Str("component", "exporter").Logger(),
		identity: identity,
		dataDir:  dataDir,
		port:     port,
		cache:    NewCache(),
		prods:    prods,
		registry: registry,
		duration: duration,
	}
}

// ValidateConfig checks an exporter config-json payload before deploy
// writes it: PEM envelopes on crt/key, a token of at least eight
// characters, and a usable port.
func ValidateConfig(files map[string]string, port int) error {
	var errs []string
	for _, name := range []string{crtName, keyName, tokenName} {
		if _, ok := files[name]; !ok {
			return agenterr.New(agenterr.KindConfigJSONMalformed, "exporter.ValidateConfig",
				"config must contain the following fields : "+strings.Join([]string{keyName, crtName, tokenName}, ", "))
		}
	}
	if !strings.HasPrefix(files[crtName], "-----BEGIN CERTIFICATE-----") {
		errs = append(errs, "crt field is not a valid SSL certificate")
	}
	if !strings.Contains(files[keyName], "PRIVATE KEY-----") {
		errs = append(errs, "key is not a valid SSL private key")
	}
	if len(files[tokenName]) < minTokenLen {
		errs = append(errs, fmt.Sprintf("'token' must be at least %d characters long", minTokenLen))
	}
	if port != 0 && port <= 1024 {
		errs = append(errs, "port must be an integer > 1024")
	}
	if len(errs) > 0 {
		return agenterr.New(agenterr.KindConfigJSONMalformed, "exporter.ValidateConfig",
			"parameter errors : "+strings.Join(errs, ", "))
	}
	return nil
}

// canRun verifies every startup precondition, logging all failures
// rather than just the first.
func (d *Daemon) canRun() (token string, ok bool) {
	var errs []string
	if inUse, err := wait.PortInUse(d.port); err == nil && inUse {
		errs = append(errs, fmt.Sprintf("TCP port %d already in use, unable to bind", d.port))
	}
	for _, name := range []string{keyName, crtName} {
		if _, err := os.Stat(filepath.Join(d.dataDir, name)); err != nil {
			errs = append(errs, fmt.Sprintf("file %q is missing from %s", name, d.dataDir))
		}
	}
	b, err := os.ReadFile(filepath.Join(d.dataDir, tokenName))
	if err != nil {
		errs = append(errs, fmt.Sprintf("authentication token %q is missing from %s", tokenName, d.dataDir))
	} else {
		token = strings.TrimSpace(string(b))
		if len(token) < minTokenLen {
			errs = append(errs, fmt.Sprintf("token must be at least %d characters long", minTokenLen))
		}
	}
	for _, e := range errs {
		d.log.Error().Msg(e)
	}
	return token, len(errs) == 0
}

// Run starts the scrapers and the HTTPS server, blocking until a
// TERM/INT arrives or the server dies. HUP is accepted and ignored, a
// placeholder for config reloading.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info().Str("fsid", string(d.identity.FSID)).Msg("cephadm exporter starting")
	token, ok := d.canRun()
	if !ok {
		return agenterr.New(agenterr.KindUsage, "exporter.Run", "unable to start the exporter daemon")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	srv := &http.Server{
		// IPv4 only; the address is pinned rather than ":port" so the
		// listener never picks up a v6 wildcard.
		Addr:    fmt.Sprintf("0.0.0.0:%d", d.port),
		Handler: newHandler(d.cache, token, d.registry, d.log),
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	ln, err := net.Listen("tcp4", srv.Addr)
	if err != nil {
		return agenterr.Wrap(agenterr.KindPortOccupied, "exporter.Run", srv.Addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range []*scraper{
		{name: TaskHost, interval: 5 * time.Second, produce: d.prods.Host, cache: d.cache, log: d.log, duration: d.duration},
		{name: TaskDaemons, interval: 20 * time.Second, produce: d.prods.Daemons, cache: d.cache, log: d.log, duration: d.duration},
		{name: TaskDisks, interval: 20 * time.Second, produce: d.prods.Disks, cache: d.cache, log: d.log, duration: d.duration},
	} {
		s := s
		d.cache.UpdateHealth(s.name, TaskActive, "")
		d.log.Info().Str("task", s.name).Dur("interval", s.interval).Msg("started scraper")
		g.Go(func() error {
			s.run(gctx)
			return nil
		})
	}

	d.cache.UpdateHealth(TaskHTTPServer, TaskActive, "")
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ServeTLS(ln,
			filepath.Join(d.dataDir, crtName),
			filepath.Join(d.dataDir, keyName))
	}()
	d.log.Info().Str("addr", srv.Addr).Msg("https server listening")

	var runErr error
loop:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				// placeholder: nothing to reload yet
				d.log.Info().Msg("reload request received - ignoring, no action needed")
				continue
			}
			d.log.Info().Str("signal", sig.String()).Msg("shutdown request received")
			break loop
		case err := <-serveErr:
			if err != nil && err != http.ErrServerClosed {
				d.cache.UpdateHealth(TaskHTTPServer, TaskInactive, err.Error())
				runErr = agenterr.Wrap(agenterr.KindExternalCommand, "exporter.Run", "https server failed", err)
			}
			break loop
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	d.cache.UpdateHealth(TaskHTTPServer, TaskInactive, "")
	g.Wait()
	d.log.Info().Msg("exporter stopped")
	return runErr
}
