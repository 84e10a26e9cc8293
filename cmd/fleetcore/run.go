package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-fleet/internal/audit"
	"github.com/nerrad567/gray-logic-fleet/internal/device"
	"github.com/nerrad567/gray-logic-fleet/internal/dialect/agent"
	"github.com/nerrad567/gray-logic-fleet/internal/health"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fleet/internal/management/apps"
	"github.com/nerrad567/gray-logic-fleet/internal/management/apps/bundle"
	"github.com/nerrad567/gray-logic-fleet/internal/management/apps/command"
	"github.com/nerrad567/gray-logic-fleet/internal/management/apps/configuration"
	"github.com/nerrad567/gray-logic-fleet/internal/management/apps/inventory"
	"github.com/nerrad567/gray-logic-fleet/internal/management/apps/keystore"
	"github.com/nerrad567/gray-logic-fleet/internal/management/apps/packages"
	"github.com/nerrad567/gray-logic-fleet/internal/management/call"
	"github.com/nerrad567/gray-logic-fleet/internal/management/devicecall"
	"github.com/nerrad567/gray-logic-fleet/internal/management/lifecycle"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
	"github.com/nerrad567/gray-logic-fleet/internal/management/wire"
	_ "github.com/nerrad567/gray-logic-fleet/migrations"
)

// applications are the management applications this core speaks.
var applications = []apps.Descriptor{
	command.Descriptor,
	configuration.Descriptor,
	bundle.Descriptor,
	packages.Descriptor,
	keystore.Descriptor,
	inventory.Descriptor,
}

// run wires every component, then serves until ctx is cancelled or, with
// --exec, until the one-shot command has completed.
func run(ctx context.Context, opts options, stdout io.Writer) error { //nolint:gocognit,gocyclo // linear startup sequence
	if opts.showVersion {
		fmt.Fprintf(stdout, "fleetcore %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting Fleet Core", "version", version, "commit", commit, "build_date", date)

	configPath := opts.resolvedConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "transport", cfg.Management.Transport)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Database
	db, err := database.OpenMigrated(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	// Device registry
	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log.Component("device"))
	if refreshErr := devices.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", devices.Count())

	// Translators
	agentCfg := agent.Config{Classifier: cfg.Management.Classifier, RequesterID: cfg.Management.RequesterID}
	translators, err := buildTranslators(agentCfg)
	if err != nil {
		return err
	}
	log.Info("translators registered", "count", translators.Len())

	// Transport
	client, loopback, closeTransport, err := connectTransport(cfg, log)
	if err != nil {
		return err
	}
	defer closeTransport()

	adapter := wire.New(wire.Config{
		Classifier:       cfg.Management.Classifier,
		StrictBodyLength: cfg.Management.StrictBodyLength,
	}, translators)
	adapter.SetLogger(log.Component("wire"))

	// Executor
	metrics := devicecall.NewMetrics()
	executor := devicecall.New(devicecall.Config{
		ReplyFilter: agentCfg.ReplyFilter(),
		Correlate:   agent.Correlate,
		QoS:         message.QoS(cfg.Management.RequestQoS),
	}, client, translators, adapter, clock.WallClock)
	executor.SetLogger(log.Component("devicecall"))
	executor.SetMetrics(metrics)
	if startErr := executor.Start(ctx); startErr != nil {
		return fmt.Errorf("starting executor: %w", startErr)
	}
	defer func() {
		if closeErr := executor.Close(); closeErr != nil {
			log.Error("error closing executor", "error", closeErr)
		}
	}()

	// Call observers
	recorder := audit.NewCallRecorder(audit.NewSQLiteRepository(db.DB), audit.WithLogger(log.Component("audit")))
	observers := []call.Observer{recorder}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	caller, err := call.New(call.Deps{
		Devices:        devices,
		Translators:    translators,
		Executor:       executor,
		Dialects:       agent.Dialects(),
		DefaultDialect: agent.DefaultDialect,
		DefaultTimeout: cfg.DefaultCallTimeout(),
		Logger:         log.Component("call"),
		Observers:      observers,
	})
	if err != nil {
		return fmt.Errorf("creating caller: %w", err)
	}

	// Lifecycle
	listener := lifecycle.New(agentCfg, client, adapter, devices, clock.WallClock)
	listener.SetLogger(log.Component("lifecycle"))
	if startErr := listener.Start(ctx); startErr != nil {
		return startErr
	}
	defer func() {
		if stopErr := listener.Stop(); stopErr != nil {
			log.Error("error stopping lifecycle listener", "error", stopErr)
		}
	}()

	if loopback != nil {
		stopSims, simErr := startSimulators(ctx, cfg.Management.Simulators, agentCfg, loopback, log)
		if simErr != nil {
			return simErr
		}
		defer stopSims()
		// Let the births land before anything calls a simulated device.
		loopback.Drain()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return recorder.Run(gctx) })

	if cfg.Health.Enabled {
		srv, srvErr := newHealthServer(cfg, log, db, client, influxClient, metrics)
		if srvErr != nil {
			return srvErr
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	if opts.execTarget != "" {
		g.Go(func() error {
			defer cancel()
			return execOnce(gctx, command.New(caller), opts, stdout)
		})
	} else {
		log.Info("initialisation complete, waiting for shutdown signal")
	}

	<-gctx.Done()
	log.Info("shutting down")
	err = g.Wait()

	// Deferred Close() calls run in reverse order: lifecycle, InfluxDB,
	// executor, transport, database.
	log.Info("Fleet Core stopped")
	return err
}

func buildTranslators(cfg agent.Config) (*translator.Registry, error) {
	reg := translator.NewRegistry()
	if err := agent.Register(reg, cfg); err != nil {
		return nil, fmt.Errorf("registering agent dialect: %w", err)
	}
	for _, app := range applications {
		if err := agent.RegisterApplication(reg, cfg, app); err != nil {
			return nil, fmt.Errorf("registering %s: %w", app.ID(), err)
		}
	}
	reg.Seal()
	return reg, nil
}

// connectTransport returns the configured transport client. For the
// loopback transport the in-memory broker is also returned so simulators
// can attach to it.
func connectTransport(cfg *config.Config, log *logging.Logger) (transport.Client, *transport.Loopback, func(), error) {
	if cfg.Management.Transport == config.TransportLoopback {
		lb := transport.NewLoopback(clock.WallClock, uuid.NewString())
		lb.SetLogger(log.Component("loopback"))
		log.Info("using in-memory loopback transport")
		return lb, lb, func() { _ = lb.Close() }, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := log.Component("mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() { mqttLog.Info("MQTT reconnected") })
	client.SetOnDisconnect(func(err error) { mqttLog.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	return client, nil, func() {
		log.Info("disconnecting from MQTT")
		if err := client.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}, nil
}

func newHealthServer(cfg *config.Config, log *logging.Logger, db *database.DB, client transport.Client,
	influxClient *influxdb.Client, metrics *devicecall.Metrics,
) (*health.Server, error) {
	reg, err := health.NewRegistry(metrics)
	if err != nil {
		return nil, err
	}
	checks := []health.Check{
		{Name: "database", Probe: db.HealthCheck},
		health.ConnectedCheck("transport", client.IsConnected),
	}
	if influxClient != nil {
		checks = append(checks, health.Check{Name: "influxdb", Probe: influxClient.HealthCheck})
	}
	return health.New(health.Deps{
		Config:   cfg.Health,
		Logger:   log.Component("health"),
		Checks:   checks,
		Gatherer: reg,
		Version:  version,
	})
}

// execOnce runs one command on the --exec target and prints its output.
func execOnce(ctx context.Context, svc *command.Service, opts options, stdout io.Writer) error {
	scope, deviceID, ok := strings.Cut(opts.execTarget, "/")
	if !ok || scope == "" || deviceID == "" {
		return fmt.Errorf("--exec target %q must be scope/device", opts.execTarget)
	}

	out, err := svc.Exec(ctx, apps.Target{ScopeID: scope, DeviceID: deviceID}, command.Input{
		Command:   opts.execCommand[0],
		Arguments: opts.execCommand[1:],
	}, 0)
	if err != nil {
		return fmt.Errorf("exec on %s: %w", opts.execTarget, err)
	}

	fmt.Fprint(stdout, out.Stdout)
	if out.Stderr != "" {
		fmt.Fprint(stdout, out.Stderr)
	}
	if out.TimedOut {
		return errors.New("command timed out on the device")
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("command exited with status %d", out.ExitCode)
	}
	return nil
}
