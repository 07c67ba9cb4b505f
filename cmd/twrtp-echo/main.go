// Command twrtp-echo runs one RTP endpoint that plays received audio back to
// its sender through the jitter buffer, one frame per tick. It is a loopback
// harness for checking a peer's RTP stream and the buffer's behaviour under
// real network conditions.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/channel-io/go-twjit/pkg/twrtp"
	"github.com/channel-io/go-twjit/pkg/udppair"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)

	log := logrus.WithFields(logrus.Fields{"channel": cfg.Channel})

	ep, err := setupEndpoint(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up endpoint")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	collector := twrtp.NewCollector("twjit")
	collector.Add(cfg.Channel, ep)
	reg.MustRegister(collector, collectors.NewGoCollector())

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.MetricsAddr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
			stop()
		}
	}()

	if err := ep.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start endpoint")
	}

	runEcho(ctx, ep, time.Duration(cfg.Endpoint.QuantumMs)*time.Millisecond, log)

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Metrics server shutdown")
	}
	if err := ep.Close(); err != nil {
		log.WithError(err).Error("Endpoint stopped with error")
		os.Exit(1)
	}
}

func setupEndpoint(cfg Config, log *logrus.Entry) (*twrtp.Endpoint, error) {
	ep, err := twrtp.New(cfg.Endpoint, twrtp.WithLogger(log))
	if err != nil {
		return nil, err
	}

	ip := net.ParseIP(cfg.BindIP)
	if cfg.PortRange != nil {
		r, err := udppair.NewRange(cfg.PortRange.Start, cfg.PortRange.End)
		if err != nil {
			return nil, err
		}
		err = ep.BindRange(ip, r)
	} else {
		err = ep.Bind(ip, cfg.BindPort)
	}
	if err != nil {
		return nil, err
	}

	remote, err := net.ResolveUDPAddr("udp", cfg.Remote)
	if err != nil {
		ep.Close()
		return nil, err
	}
	if err := ep.SetRemote(remote); err != nil {
		ep.Close()
		return nil, err
	}

	if cfg.DSCP != nil {
		if err := ep.SetDSCP(*cfg.DSCP); err != nil {
			log.WithError(err).Warn("Failed to set DSCP")
		}
	}
	if cfg.SocketPriority != nil {
		if err := ep.SetSocketPriority(*cfg.SocketPriority); err != nil {
			log.WithError(err).Warn("Failed to set socket priority")
		}
	}
	return ep, nil
}

// runEcho pulls one frame per tick and sends it back; ticks without a frame
// are skipped so the outgoing timestamps stay on the clock.
func runEcho(ctx context.Context, ep *twrtp.Endpoint, tick time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p, ok := ep.Pull()
		if !ok {
			ep.TxSkip()
			continue
		}
		if err := ep.TxQuantum(p.Data, 1, p.Marker, true, false); err != nil {
			log.WithError(err).Warn("Failed to send frame")
		}
	}
}
