package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/config"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/gate"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/lifecycle"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/probe"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/store"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/supervisor"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/telemetry"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/trail"
)

// #region main
func main() {
	cfgPath := config.EnvOr("SENTINEL_CONFIG", "")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	dbPath := config.EnvOr("SENTINEL_DB", cfg.DBPath)

	st, err := store.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	sink := telemetry.NewAsyncSink(telemetry.LogSink{}, 256)
	defer sink.Close()

	ctrl := lifecycle.NewController(cfg.HookTimeout(), sink)

	sup := supervisor.NewSupervisor(ctrl, cfg.SupervisorConfig())
	sup.SetBlueprintSource(st)
	sup.SetBackupStore(st)
	sup.SetSink(sink)
	mem, err := supervisor.NewMemory(st.DB())
	if err != nil {
		log.Fatalf("failed to init repair memory: %v", err)
	}
	sup.SetMemory(mem)

	if cfg.Probe.Addr != "" {
		prober, err := probe.NewHealthProber(cfg.Probe.Addr)
		if err != nil {
			log.Fatalf("failed to init prober at %s: %v", cfg.Probe.Addr, err)
		}
		defer prober.Close()
		sup.SetProber(prober)
	}

	auditTrail, err := trail.NewTrailWithDB(st.DB())
	if err != nil {
		log.Fatalf("failed to init audit trail: %v", err)
	}

	keeper := gate.NewGatekeeper(cfg.GateConfig())
	if err := keeper.SetDB(st.DB()); err != nil {
		log.Fatalf("failed to init gate log: %v", err)
	}
	keeper.SetSink(sink)

	registerDemoComponents(ctrl, sup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println()
		cancel()
		if err := ctrl.GracefulShutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	fmt.Println("Vault Sentinel control plane ready.")
	fmt.Printf("  DB: %s\n", dbPath)
	fmt.Println("Commands: status start stop suspend resume repair check gate history audit quit")

	repl(ctx, ctrl, sup, keeper, auditTrail)

	cancel()
	if err := ctrl.GracefulShutdown(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// #endregion main

// #region demo-components

// registerDemoComponents wires a small dependency chain so the control plane
// has something to supervise out of the box.
func registerDemoComponents(ctrl *lifecycle.Controller, sup *supervisor.Supervisor) {
	noop := lifecycle.Hooks{}
	must := func(err error) {
		if err != nil {
			log.Fatalf("register: %v", err)
		}
	}
	must(ctrl.Register("vault-core", nil, noop))
	must(ctrl.Register("index-service", []string{"vault-core"}, noop))
	must(ctrl.Register("query-frontend", []string{"index-service"}, noop))
	sup.MarkCritical("vault-core")
}

// #endregion demo-components

// #region repl

func repl(
	ctx context.Context,
	ctrl *lifecycle.Controller,
	sup *supervisor.Supervisor,
	keeper *gate.Gatekeeper,
	auditTrail *trail.Trail,
) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "quit", "exit":
			return

		case "status":
			printStatus(ctrl)

		case "start", "stop", "suspend", "resume", "repair":
			if len(args) != 1 {
				fmt.Printf("usage: %s <component>\n", cmd)
				continue
			}
			if err := lifecycleOp(ctrl, cmd, args[0]); err != nil {
				fmt.Printf("error: %v\n", err)
			}

		case "check":
			sup.CheckNow(ctx)
			fmt.Println("check complete")

		case "gate":
			if len(args) < 2 {
				fmt.Println("usage: gate <source> <payload...>")
				continue
			}
			payload := strings.Join(args[1:], " ")
			evaluateAndTrace(keeper, auditTrail, args[0], payload)

		case "history":
			for _, a := range sup.History() {
				fmt.Printf("  %s  %-28s %-30s ok=%v %s\n",
					a.Timestamp.Format(time.RFC3339), a.ComponentName, a.Strategy, a.Success, a.ErrorMessage)
			}

		case "audit":
			for _, s := range auditTrail.Audit(trail.AuditFilter{}) {
				fmt.Printf("  %s  conf=%.3f nodes=%d  %q\n",
					s.PathID[:12], s.TotalConfidence, s.NodeCount, s.RootQuestion)
			}

		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

func lifecycleOp(ctrl *lifecycle.Controller, cmd, name string) error {
	switch cmd {
	case "start":
		return ctrl.Start(name)
	case "stop":
		return ctrl.Stop(name, true)
	case "suspend":
		return ctrl.Suspend(name)
	case "resume":
		return ctrl.Resume(name)
	case "repair":
		return ctrl.Repair(name)
	}
	return fmt.Errorf("unknown op %q", cmd)
}

func printStatus(ctrl *lifecycle.Controller) {
	status := ctrl.SystemStatus()
	fmt.Printf("aggregate health: %.3f\n", status.AggregateHealth)
	for name, rec := range status.Components {
		fmt.Printf("  %-20s %-13s health=%.2f errors=%d deps=%v\n",
			name, rec.State, rec.HealthScore, rec.ErrorCount, rec.Dependencies)
	}
}

// evaluateAndTrace runs one gate evaluation and records the reasoning DAG
// behind it.
func evaluateAndTrace(keeper *gate.Gatekeeper, auditTrail *trail.Trail, source, payload string) {
	began := time.Now()
	pathID := auditTrail.StartPath(
		fmt.Sprintf("admit payload from %s?", source),
		map[string]any{"source": source, "payload": payload, "at": began.UTC().Format(time.RFC3339Nano)},
	)

	decision := keeper.Evaluate(payload, source, gate.Metadata{})

	seed, _ := auditTrail.AddStep(pathID, trail.StepSeedActivation, "gate",
		map[string]any{"source": source}, 1.0, nil)
	var checkNodes []string
	for _, name := range []string{gate.CheckSource, gate.CheckIntegrity, gate.CheckPattern, gate.CheckThreat} {
		id, err := auditTrail.AddStep(pathID, trail.StepEvidenceEvaluation, "gate",
			map[string]any{"check": name, "score": decision.CheckScores[name]},
			decision.CheckScores[name], []string{seed})
		if err == nil {
			checkNodes = append(checkNodes, id)
		}
	}
	auditTrail.AddStep(pathID, trail.StepDecisionSynthesis, "gate",
		map[string]any{"action": string(decision.Action)}, decision.Confidence, checkNodes)

	verdict := map[string]any{
		"action":         string(decision.Action),
		"security_level": string(decision.SecurityLevel),
	}
	if err := auditTrail.CompletePath(pathID, verdict, time.Since(began)); err != nil {
		log.Printf("trail error: %v", err)
	}

	fmt.Printf("action=%s level=%s confidence=%.3f\n",
		decision.Action, decision.SecurityLevel, decision.Confidence)
	for _, r := range decision.Reasoning {
		fmt.Printf("  - %s\n", r)
	}
	if len(decision.Transformations) > 0 {
		fmt.Printf("  transforms: %v\n", decision.Transformations)
	}
}

// #endregion repl
