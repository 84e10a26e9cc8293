package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/clock"

	"github.com/nerrad567/gray-logic-fleet/internal/dialect/agent"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fleet/internal/management/apps/command"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
)

// startSimulators attaches one simulated agent per entry to the loopback
// broker. The returned func publishes their DC events.
func startSimulators(ctx context.Context, sims []config.SimulatorConfig, cfg agent.Config,
	lb *transport.Loopback, log *logging.Logger,
) (func(), error) {
	started := make([]*agent.Simulator, 0, len(sims))
	stop := func() {
		for _, s := range started {
			if err := s.Stop(context.Background()); err != nil {
				log.Warn("error stopping simulator", "error", err)
			}
		}
	}

	for _, sc := range sims {
		enc, err := agent.ParseEncoding(sc.Encoding)
		if err != nil {
			stop()
			return nil, fmt.Errorf("simulator %s/%s: %w", sc.Scope, sc.ClientID, err)
		}

		sim := agent.NewSimulator(cfg, enc, lb, sc.Scope, sc.ClientID, clock.WallClock)
		sim.SetLogger(log.Component("simulator").With("scope", sc.Scope, "client_id", sc.ClientID))
		sim.SetBirthMetric(agent.MetricDisplayName, "simulated "+sc.ClientID)
		sim.SetBirthMetric(agent.MetricModel, "fleetcore-simulator")
		sim.SetBirthMetric(agent.MetricFirmwareVersion, version)
		sim.Handle(command.Descriptor.ID(), echoCommand)

		if err := sim.Start(ctx); err != nil {
			stop()
			return nil, err
		}
		started = append(started, sim)
		log.Info("simulated agent started", "scope", sc.Scope, "client_id", sc.ClientID, "encoding", enc)
	}
	return stop, nil
}

// echoCommand answers CMD-V1 by printing the command line back.
func echoCommand(r agent.Request) agent.Response {
	cmd, _ := r.Metrics.Text(command.MetricCommand)
	line := cmd
	if args, ok := r.Metrics.Text(command.MetricArguments); ok && args != "" {
		line += " " + args
	}
	return agent.Response{Metrics: message.Metrics{
		command.MetricStdout:   strings.TrimSpace(line) + "\n",
		command.MetricExitCode: 0,
	}}
}
