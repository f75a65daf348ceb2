// Command evse-load-balancer wires configuration, charger/meter
// adapters, and the control loop together into a deployable binary.
package main

import (
	"flag"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/chargers"
	"github.com/matkvaid/evse-load-balancer/config"
	"github.com/matkvaid/evse-load-balancer/core"
	"github.com/matkvaid/evse-load-balancer/meters"
	"github.com/matkvaid/evse-load-balancer/metrics"
	"github.com/matkvaid/evse-load-balancer/push"
	"github.com/matkvaid/evse-load-balancer/util"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; env vars and defaults still apply)")
	flag.Parse()

	log := util.NewStderrLogger("evse-load-balancer")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.FATAL.Fatalf("config: %v", err)
	}

	livePhases, err := cfg.LivePhases()
	if err != nil {
		log.FATAL.Fatalf("config: %v", err)
	}

	mode, err := cfg.Mode()
	if err != nil {
		log.FATAL.Fatalf("config: %v", err)
	}

	effectiveFuseSize := cfg.EffectiveFuseSize()
	fuseLimits := api.Flatten(livePhases, effectiveFuseSize)

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	bus := push.NewBus()
	clock := util.NewClock()

	balancer := core.NewBalancer(log, fuseLimits, mode)
	balancer.SetMetricsRecorder(recorder)
	allocator := core.NewAllocator(log, clock)
	dispatcher := core.NewDispatcher(log, 32)

	chargerFactory := chargers.NewFactory(log)
	meterFactory := meters.NewFactory(log)

	meter, err := meterFactory.New(api.MeterDSMR, meters.AdapterConfig{})
	if err != nil {
		log.FATAL.Fatalf("meter: %v", err)
	}

	registered := make([]api.Charger, 0, len(cfg.Chargers))
	for _, device := range cfg.Chargers {
		adapterCfg, err := chargers.AdapterConfigFromMap(device.Other)
		if err != nil {
			log.FATAL.Fatalf("charger %s: %v", device.ID, err)
		}
		adapterCfg.ID = api.ChargerID(device.ID)

		kind, err := api.ParseChargerKind(device.Kind)
		if err != nil {
			log.FATAL.Fatalf("charger %s: %v", device.ID, err)
		}
		charger, err := chargerFactory.New(kind, adapterCfg)
		if err != nil {
			log.FATAL.Fatalf("charger %s: %v", device.ID, err)
		}
		registered = append(registered, charger)
	}

	coordinator := core.NewCoordinator(
		log,
		clock,
		meter,
		balancer,
		allocator,
		dispatcher,
		bus,
		recorder,
		livePhases,
		cfg.ChargeLimitHysteresisMinutes,
	)

	for _, charger := range registered {
		coordinator.AddCharger(charger)
	}

	stop := coordinator.Run(core.ExecutionCycleDelay)
	defer stop()

	log.INFO.Printf("evse-load-balancer running, fuse=%dA phases=%d mode=%s", effectiveFuseSize, cfg.PhaseCount, mode)
	select {}
}
