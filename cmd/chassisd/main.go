package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/cybercoder/ik8s-chassis/pkg/chassis"
	"github.com/cybercoder/ik8s-chassis/pkg/config"
	"github.com/cybercoder/ik8s-chassis/pkg/device"
	"github.com/cybercoder/ik8s-chassis/pkg/event"
	"github.com/cybercoder/ik8s-chassis/pkg/k8s"
	"github.com/cybercoder/ik8s-chassis/pkg/netdev"
	"github.com/cybercoder/ik8s-chassis/pkg/ovs"
	"github.com/cybercoder/ik8s-chassis/pkg/phal"
)

type flags struct {
	daemonConfig  string
	chassisConfig string
	configMap     string
	kubeconfig    string
	metricsAddr   string
	logLevel      string
	logFormat     string
	ovsProvision  bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := pflag.NewFlagSet("chassisd", pflag.ContinueOnError)
	fs.StringVar(&f.daemonConfig, "config", "/etc/chassisd/chassisd.yaml", "daemon config binding nodes to drivers")
	fs.StringVar(&f.chassisConfig, "chassis-config", "", "chassis config file")
	fs.StringVar(&f.configMap, "configmap", "", "chassis config ConfigMap, namespace/name[:key]")
	fs.StringVar(&f.kubeconfig, "kubeconfig", "", "kubeconfig path, in-cluster config when empty")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "metrics listen address, overrides the daemon config")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level")
	fs.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	fs.BoolVar(&f.ovsProvision, "ovs-provision", false, "create missing OVS ports for the configured singleton ports")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if (f.chassisConfig == "") == (f.configMap == "") {
		return nil, errors.NotValidf("exactly one of --chassis-config and --configmap")
	}
	return f, nil
}

func newLogger(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.NewNotValid(err, "log level")
	}
	logger.SetLevel(lvl)
	switch format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.NotValidf("log format %q", format)
	}
	return logger, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("invalid flags")
	}
	logger, err := newLogger(f.logLevel, f.logFormat)
	if err != nil {
		logrus.WithError(err).Fatal("invalid flags")
	}
	log := logrus.NewEntry(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f, log); err != nil {
		log.WithError(err).Fatal("chassisd failed")
	}
}

func run(ctx context.Context, f *flags, log *logrus.Entry) error {
	dcfg, err := config.LoadDaemonFile(f.daemonConfig)
	if err != nil {
		return err
	}

	drivers, closeDrivers, err := buildDrivers(ctx, dcfg, log)
	if err != nil {
		return err
	}
	defer closeDrivers()

	cfg, err := loadChassisConfig(ctx, f)
	if err != nil {
		return err
	}

	if f.ovsProvision {
		if err := provisionPorts(ctx, drivers, cfg); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mgr, err := chassis.CreateInstance(phal.NewSim(), drivers.byNode(),
		chassis.WithLogger(log),
		chassis.WithRegisterer(reg),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Shutdown(); err != nil {
			log.WithError(err).Warn("chassis manager shutdown")
		}
	}()

	if err := mgr.RegisterEventNotifyWriter(event.NewLogWriter(log.WithField("component", "events"))); err != nil {
		return err
	}
	if err := mgr.PushChassisConfig(cfg); err != nil {
		return errors.Annotate(err, "pushing chassis config")
	}

	addr := dcfg.MetricsAddr
	if f.metricsAddr != "" {
		addr = f.metricsAddr
	}
	if addr == "" {
		log.Info("metrics disabled")
		<-ctx.Done()
		return nil
	}
	return serveMetrics(ctx, addr, reg, log)
}

func loadChassisConfig(ctx context.Context, f *flags) (*config.ChassisConfig, error) {
	if f.chassisConfig != "" {
		return config.LoadFile(f.chassisConfig)
	}
	client, err := k8s.CreateClient(f.kubeconfig)
	if err != nil {
		return nil, err
	}
	src, err := k8s.NewConfigMapSource(client, f.configMap)
	if err != nil {
		return nil, err
	}
	return src.Load(ctx)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return errors.Annotate(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// boundDriver holds the concrete driver of one node.
type boundDriver struct {
	ovs    *ovs.Driver
	netdev *netdev.Driver
}

func (b boundDriver) driver() device.Driver {
	if b.ovs != nil {
		return b.ovs
	}
	return b.netdev
}

type driverSet map[uint64]boundDriver

func (s driverSet) byNode() map[uint64]device.Driver {
	out := make(map[uint64]device.Driver, len(s))
	for id, b := range s {
		out[id] = b.driver()
	}
	return out
}

func buildDrivers(ctx context.Context, dcfg *config.DaemonConfig, log *logrus.Entry) (driverSet, func(), error) {
	clients := make(map[string]*ovs.Client)
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	drivers := make(driverSet)
	for _, n := range dcfg.Nodes {
		nlog := log.WithField("node", n.ID)
		switch n.Driver {
		case config.DriverOVS:
			c, ok := clients[n.OVS.Endpoint]
			if !ok {
				var err error
				c, err = ovs.CreateOVSclient(ctx, n.OVS.Endpoint, nlog)
				if err != nil {
					closeAll()
					return nil, nil, errors.Annotatef(err, "node %d", n.ID)
				}
				clients[n.OVS.Endpoint] = c
			}
			drivers[n.ID] = boundDriver{ovs: ovs.NewDriver(c, n.OVS.Bridge, nlog)}
		case config.DriverNetdev:
			d, err := netdev.NewDriver(n.Netdev.Netns, n.Netdev.Ports, nlog)
			if err != nil {
				closeAll()
				return nil, nil, errors.Annotatef(err, "node %d", n.ID)
			}
			if missing, err := d.MissingInterfaces(); err != nil {
				nlog.WithError(err).Warn("checking interfaces")
			} else if len(missing) > 0 {
				nlog.WithField("interfaces", missing).Warn("configured interfaces not present yet")
			}
			drivers[n.ID] = boundDriver{netdev: d}
		}
	}
	return drivers, closeAll, nil
}

// provisionPorts creates the OVS interfaces of every singleton port bound to
// an OVS node.
func provisionPorts(ctx context.Context, drivers driverSet, cfg *config.ChassisConfig) error {
	for _, p := range cfg.SingletonPorts {
		b, ok := drivers[p.Node]
		if !ok || b.ovs == nil {
			continue
		}
		name := p.Name
		if name == "" {
			name = ovs.PortName(p.Node, p.ID)
		}
		if err := b.ovs.EnsurePort(ctx, name, p.ID, p.ConfigParams.MacAddress); err != nil {
			return errors.Annotatef(err, "provisioning %s", p.Key())
		}
	}
	return nil
}
