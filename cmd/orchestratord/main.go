// Command orchestratord is the daemon and CLI entrypoint: it exposes the
// verb-noun command surface ("agent spawn", "monitor start", ...) and,
// for "monitor start", also runs the long-lived supervisor loop. The
// flag-driven flag.Parse()-then-branch shape follows the teacher's
// cmd/cliaimonitor/main.go; the verb-noun dispatch on flag.Args() is
// this repository's own adaptation since the teacher is a single-binary
// dashboard server rather than a multi-command CLI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/orchestrator/internal/audit"
	"github.com/agentfleet/orchestrator/internal/broadcast"
	"github.com/agentfleet/orchestrator/internal/classifier"
	"github.com/agentfleet/orchestrator/internal/config"
	"github.com/agentfleet/orchestrator/internal/eventbus"
	"github.com/agentfleet/orchestrator/internal/lifecycle"
	"github.com/agentfleet/orchestrator/internal/logging"
	"github.com/agentfleet/orchestrator/internal/messaging"
	"github.com/agentfleet/orchestrator/internal/notifications"
	"github.com/agentfleet/orchestrator/internal/notifications/external"
	"github.com/agentfleet/orchestrator/internal/orcerr"
	"github.com/agentfleet/orchestrator/internal/schedule"
	"github.com/agentfleet/orchestrator/internal/server"
	"github.com/agentfleet/orchestrator/internal/singleton"
	"github.com/agentfleet/orchestrator/internal/supervisor"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

// ANSI colors for the startup banner, matching the teacher's terminal output.
const (
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorReset = "\033[0m"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file overlaying the defaults")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var runErr error
	switch args[0] {
	case "agent":
		runErr = runAgent(cfg, args[1:])
	case "team":
		runErr = runTeam(cfg, args[1:])
	case "pm":
		runErr = runPM(cfg, args[1:])
	case "monitor":
		runErr = runMonitor(cfg, args[1:])
	default:
		printUsage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", colorCyan, colorReset, runErr)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: orchestratord [-config path] <command> [args]

commands:
  agent spawn <role> <session> [--briefing text] [--cwd dir]
  agent restart <target>
  agent kill <target>
  agent message <target> <body>
  agent status [--json]
  team broadcast <session> <body> [--roles r1,r2] [--exclude e1,e2]
  pm create <session>
  monitor start [--interval seconds] [--supervised]
  monitor stop
  monitor status [--json]
  monitor pause <seconds>
  monitor dashboard [--addr host:port]`)
}

// runtime bundles the components every one-shot command needs: a tmux
// adapter, the messaging and lifecycle layers, and the pause gate the
// Lifecycle Controller holds during a spawn.
type runtime struct {
	cfg   config.Config
	log   *zap.Logger
	ops   *tmux.Ops
	sub   *messaging.Submitter
	pause *schedule.PauseGate
	lc    *lifecycle.Controller
	bc    *broadcast.Coordinator
}

func newRuntime(cfg config.Config) (*runtime, error) {
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	ops := tmux.NewOps("tmux", cfg.ReadTimeout, cfg.ExecTimeout, logging.Component(log, "tmux"))
	sub := messaging.NewSubmitter(ops, messaging.SubmitOptions{
		MaxChunkSize:    cfg.MaxChunkSize,
		InterChunkDelay: cfg.InterChunkDelay,
		SettleDelay:     cfg.SettleDelay,
	}, logging.Component(log, "messaging"), time.Sleep)

	pause := schedule.NewPauseGate(filepath.Join(cfg.InstallRoot, "daemon.pause"))

	lcOpts := lifecycle.DefaultOptions()
	lcOpts.PauseDuringSpawn = cfg.PauseDuringSpawn
	lcOpts.ReadinessWait = cfg.ReadinessWait
	lc := lifecycle.NewController(ops, sub, pause, lcOpts, logging.Component(log, "lifecycle"))

	bc := broadcast.New(ops, sub)

	return &runtime{cfg: cfg, log: log, ops: ops, sub: sub, pause: pause, lc: lc, bc: bc}, nil
}

func runAgent(cfg config.Config, args []string) error {
	if len(args) < 1 {
		return &orcerr.BadArgumentError{Reason: "agent requires a subcommand: spawn, restart, kill, message, status"}
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.log.Sync()
	ctx := context.Background()

	switch args[0] {
	case "spawn":
		fs := flag.NewFlagSet("agent spawn", flag.ExitOnError)
		briefing := fs.String("briefing", "", "briefing text delivered after launch")
		cwd := fs.String("cwd", "", "working directory for the new window")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		rest := fs.Args()
		if len(rest) != 2 {
			return &orcerr.BadArgumentError{Reason: "usage: agent spawn <role> <session>"}
		}
		role, session := rest[0], rest[1]
		target, err := rt.lc.Spawn(ctx, session, role, *cwd, lifecycle.Briefing{Body: *briefing})
		if err != nil {
			return err
		}
		fmt.Printf("spawned %s as %s\n", target.String(), role)
		return nil

	case "restart":
		if len(args) != 2 {
			return &orcerr.BadArgumentError{Reason: "usage: agent restart <target>"}
		}
		target, err := tmux.ParseTarget(args[1])
		if err != nil {
			return err
		}
		if err := rt.lc.Restart(ctx, target); err != nil {
			return err
		}
		fmt.Printf("restarted %s\n", target.String())
		return nil

	case "kill":
		if len(args) != 2 {
			return &orcerr.BadArgumentError{Reason: "usage: agent kill <target>"}
		}
		target, err := tmux.ParseTarget(args[1])
		if err != nil {
			return err
		}
		if err := rt.lc.Kill(ctx, target); err != nil {
			return err
		}
		fmt.Printf("killed %s\n", target.String())
		return nil

	case "message":
		if len(args) != 3 {
			return &orcerr.BadArgumentError{Reason: "usage: agent message <target> <body>"}
		}
		target, err := tmux.ParseTarget(args[1])
		if err != nil {
			return err
		}
		if err := rt.sub.Deliver(ctx, target, args[2]); err != nil {
			return err
		}
		fmt.Printf("delivered to %s\n", target.String())
		return nil

	case "status":
		fs := flag.NewFlagSet("agent status", flag.ExitOnError)
		asJSON := fs.Bool("json", false, "emit JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return printAgentStatus(ctx, rt, *asJSON)

	default:
		return &orcerr.BadArgumentError{Reason: "unknown agent subcommand: " + args[0]}
	}
}

// printAgentStatus lists every tmux window across every session matching
// the "Claude-<role>" naming convention, with its current pane tail
// classified on the spot — a read-only snapshot, independent of a
// running daemon's Supervisor state.
func printAgentStatus(ctx context.Context, rt *runtime, asJSON bool) error {
	sessions, err := rt.ops.ListSessions(ctx)
	if err != nil {
		return err
	}

	type row struct {
		Target  string `json:"target"`
		Session string `json:"session"`
		Window  string `json:"window"`
		State   string `json:"state"`
	}
	var rows []row
	agentPrefix := lifecycle.WindowName("")
	for _, sess := range sessions {
		windows, err := rt.ops.ListWindows(ctx, sess.Name)
		if err != nil {
			continue
		}
		for _, w := range windows {
			if len(w.Name) <= len(agentPrefix) || w.Name[:len(agentPrefix)] != agentPrefix {
				continue
			}
			target := tmux.Target{Session: sess.Name, Window: w.Index}
			tail, err := rt.ops.CapturePane(ctx, target, rt.cfg.TailLines)
			if err != nil {
				continue
			}
			state := classifier.Classify(classifier.Input{PrevTail: tail, NewTail: tail, PrevState: classifier.StateUnknown})
			rows = append(rows, row{Target: target.String(), Session: sess.Name, Window: w.Name, State: state.String()})
		}
	}

	if asJSON {
		return encodeJSON(os.Stdout, rows)
	}
	for _, r := range rows {
		fmt.Printf("%-20s %-24s %s\n", r.Target, r.Window, r.State)
	}
	return nil
}

func runTeam(cfg config.Config, args []string) error {
	if len(args) < 1 || args[0] != "broadcast" {
		return &orcerr.BadArgumentError{Reason: "usage: team broadcast <session> <body> [--roles r1,r2] [--exclude e1,e2]"}
	}
	fs := flag.NewFlagSet("team broadcast", flag.ExitOnError)
	roles := fs.String("roles", "", "comma-separated role filter")
	excludes := fs.String("exclude", "", "comma-separated window names/indices to skip")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return &orcerr.BadArgumentError{Reason: "usage: team broadcast <session> <body>"}
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	job := broadcast.Job{
		Session:    rest[0],
		Body:       rest[1],
		RoleFilter: splitNonEmpty(*roles),
		Excludes:   splitNonEmpty(*excludes),
	}
	outcome, err := rt.bc.Run(context.Background(), job)
	if err != nil {
		return err
	}
	fmt.Println(outcome.Summary)
	if !outcome.Success {
		os.Exit(1)
	}
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func runPM(cfg config.Config, args []string) error {
	if len(args) < 2 || args[0] != "create" {
		return &orcerr.BadArgumentError{Reason: "usage: pm create <session>"}
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	target, err := rt.lc.Spawn(context.Background(), args[1], "pm", "", lifecycle.Briefing{})
	if err != nil {
		return err
	}
	fmt.Printf("created PM at %s\n", target.String())
	return nil
}

func runMonitor(cfg config.Config, args []string) error {
	if len(args) < 1 {
		return &orcerr.BadArgumentError{Reason: "monitor requires a subcommand: start, stop, status, pause, dashboard"}
	}

	switch args[0] {
	case "start":
		fs := flag.NewFlagSet("monitor start", flag.ExitOnError)
		interval := fs.Int("interval", int(cfg.TickInterval.Seconds()), "tick interval in seconds")
		supervised := fs.Bool("supervised", false, "also serve the read-only dashboard alongside the loop")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *interval > 0 {
			cfg.TickInterval = time.Duration(*interval) * time.Second
		}
		return runDaemon(cfg, *supervised)

	case "stop":
		guard := singleton.NewGuard(cfg.InstallRoot, "orchestratord")
		pid, ok := guard.CurrentPID()
		if !ok {
			fmt.Println("no daemon is running")
			return nil
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return err
		}
		// Set the sentinel before signaling so the daemon's handler can
		// confirm this SIGTERM was requested through `monitor stop`
		// (spec.md §6: "Sets daemon.graceful, signals TERM, waits for PID
		// removal").
		if err := guard.MarkGracefulIntent(); err != nil {
			return fmt.Errorf("writing graceful sentinel: %w", err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("signaling pid %d: %w", pid, err)
		}

		const stopTimeout = 10 * time.Second
		deadline := time.Now().Add(stopTimeout)
		for {
			if _, running := guard.CurrentPID(); !running {
				fmt.Printf("pid %d stopped\n", pid)
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("pid %d did not exit within %s of SIGTERM", pid, stopTimeout)
			}
			time.Sleep(100 * time.Millisecond)
		}

	case "status":
		fs := flag.NewFlagSet("monitor status", flag.ExitOnError)
		asJSON := fs.Bool("json", false, "emit JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		guard := singleton.NewGuard(cfg.InstallRoot, "orchestratord")
		pid, running := guard.CurrentPID()
		if *asJSON {
			return encodeJSON(os.Stdout, map[string]interface{}{"running": running, "pid": pid})
		}
		if !running {
			fmt.Println("monitor: not running")
			return nil
		}
		fmt.Printf("monitor: running (pid %d)\n", pid)
		return nil

	case "pause":
		if len(args) != 2 {
			return &orcerr.BadArgumentError{Reason: "usage: monitor pause <seconds 1..300>"}
		}
		seconds, err := strconv.Atoi(args[1])
		if err != nil || seconds < 1 || seconds > 300 {
			return &orcerr.BadArgumentError{Reason: "pause duration must be an integer between 1 and 300 seconds"}
		}
		pause := schedule.NewPauseGate(filepath.Join(cfg.InstallRoot, "daemon.pause"))
		pause.PauseFor(time.Duration(seconds) * time.Second)
		fmt.Printf("paused for %ds\n", seconds)
		return nil

	case "dashboard":
		fs := flag.NewFlagSet("monitor dashboard", flag.ExitOnError)
		addr := fs.String("addr", "127.0.0.1:8990", "dashboard listen address")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return runDashboardOnly(cfg, *addr)

	default:
		return &orcerr.BadArgumentError{Reason: "unknown monitor subcommand: " + args[0]}
	}
}

// runDaemon is `monitor start`: it acquires the process singleton, runs
// the Supervisor loop, and, when supervised is set, also serves the
// read-only dashboard, all torn down on SIGINT/SIGTERM.
func runDaemon(cfg config.Config, supervised bool) error {
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer log.Sync()

	guard := singleton.NewGuard(cfg.InstallRoot, "orchestratord")
	if err := guard.Acquire(os.Getpid()); err != nil {
		return err
	}
	// Deliberately not deferred: ReleaseGraceful (sentinel write + PID
	// removal) only runs on the clean-shutdown path below. A panic or
	// os.Exit skips it entirely, leaving a stale PID file that the next
	// Acquire reclaims, per spec.md §4.6's "ungraceful exits leave a stale
	// PID that startup reclaims."

	if err := os.MkdirAll(cfg.InstallRoot, 0o755); err != nil {
		return err
	}

	ops := tmux.NewOps("tmux", cfg.ReadTimeout, cfg.ExecTimeout, logging.Component(log, "tmux"))
	sub := messaging.NewSubmitter(ops, messaging.SubmitOptions{
		MaxChunkSize:    cfg.MaxChunkSize,
		InterChunkDelay: cfg.InterChunkDelay,
		SettleDelay:     cfg.SettleDelay,
	}, logging.Component(log, "messaging"), time.Sleep)

	pause := schedule.NewPauseGate(filepath.Join(cfg.InstallRoot, "daemon.pause"))

	lcOpts := lifecycle.DefaultOptions()
	lcOpts.PauseDuringSpawn = cfg.PauseDuringSpawn
	lcOpts.ReadinessWait = cfg.ReadinessWait
	lc := lifecycle.NewController(ops, sub, pause, lcOpts, logging.Component(log, "lifecycle"))

	auditLog, err := audit.Open(filepath.Join(cfg.InstallRoot, "audit.db"))
	if err != nil {
		return err
	}
	defer auditLog.Close()

	embedded, err := eventbus.NewEmbeddedServer(eventbus.ServerConfig{Host: cfg.EventBus.Host, Port: cfg.EventBus.Port})
	if err != nil {
		return err
	}
	if err := embedded.Start(); err != nil {
		return err
	}
	defer embedded.Shutdown()

	busClient, err := eventbus.Dial(embedded.URL(), logging.Component(log, "eventbus"))
	if err != nil {
		return err
	}
	defer busClient.Close()

	supOpts := supervisor.Options{
		TickInterval:      cfg.TickInterval,
		TailLines:         cfg.TailLines,
		IdleTicks:         cfg.IdleTicks,
		UnresponsiveTicks: cfg.UnresponsiveTicks,
		CrashLoopLimit:    cfg.CrashLoopLimit,
		CrashLoopWindow:   cfg.CrashLoopWindow,
	}
	sup := supervisor.New(ops, lc, sub, pause, supOpts, logging.Component(log, "supervisor"), auditLog)
	sup.SetPublisher(eventbus.NewSupervisorPublisher(busClient, "supervisor"))

	router := buildNotificationRouter(cfg, log)
	if _, err := busClient.SubscribeAll(router.Route); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopErr := make(chan error, 1)
	go func() { loopErr <- sup.Run(ctx) }()

	var dash *server.Server
	dashErr := make(chan error, 1)
	if supervised {
		dash = server.New(cfg.Notifications.DashboardURL, sup, auditLog, pause, func(t tmux.Target) string {
			tail, _ := ops.CapturePane(ctx, t, cfg.TailLines)
			return tail
		}, logging.Component(log, "server"))
		if err := dash.Subscribe(busClient); err != nil {
			return err
		}
		stopWatch, err := pause.WatchPauseFile(func() { dash.BroadcastPauseChange() })
		if err != nil {
			return err
		}
		defer stopWatch()
		go func() { dashErr <- dash.Run(ctx, cfg.TickInterval) }()
	}

	fmt.Printf("%sorchestratord started%s (pid %d, tick %s)\n", colorGreen, colorReset, os.Getpid(), cfg.TickInterval)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-shutdown:
		cancel()
	case err := <-loopErr:
		cancel()
		runErr = err
	case err := <-dashErr:
		cancel()
		runErr = err
	}

	// On SIGTERM, observe daemon.graceful to confirm intent (spec.md
	// §4.2/§4.6/§9): a confirmed `monitor stop` logs nothing extra; an
	// external signal or an internal loop/dashboard error still finishes
	// this clean-exit path but is logged as unexpected.
	if !guard.WasGraceful() {
		log.Warn("daemon exiting without a confirmed monitor-stop sentinel")
	}
	if err := guard.ReleaseGraceful(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// runDashboardOnly is `monitor dashboard`: a read-only server attached
// to whatever daemon is already running, polling tmux directly since it
// has no in-process Supervisor to read from.
func runDashboardOnly(cfg config.Config, addr string) error {
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer log.Sync()

	ops := tmux.NewOps("tmux", cfg.ReadTimeout, cfg.ExecTimeout, logging.Component(log, "tmux"))
	sub := messaging.NewSubmitter(ops, messaging.DefaultSubmitOptions(), logging.Component(log, "messaging"), time.Sleep)
	pause := schedule.NewPauseGate(filepath.Join(cfg.InstallRoot, "daemon.pause"))
	lc := lifecycle.NewController(ops, sub, pause, lifecycle.DefaultOptions(), logging.Component(log, "lifecycle"))

	supOpts := supervisor.Options{
		TickInterval:      cfg.TickInterval,
		TailLines:         cfg.TailLines,
		IdleTicks:         cfg.IdleTicks,
		UnresponsiveTicks: cfg.UnresponsiveTicks,
		CrashLoopLimit:    cfg.CrashLoopLimit,
		CrashLoopWindow:   cfg.CrashLoopWindow,
	}
	sup := supervisor.New(ops, lc, sub, pause, supOpts, logging.Component(log, "supervisor"), nil)

	var auditLog *audit.Store
	if data, err := audit.Open(filepath.Join(cfg.InstallRoot, "audit.db")); err == nil {
		auditLog = data
		defer auditLog.Close()
	}

	dash := server.New(addr, sup, auditLog, pause, func(t tmux.Target) string {
		tail, _ := ops.CapturePane(context.Background(), t, cfg.TailLines)
		return tail
	}, logging.Component(log, "server"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = sup.Tick(ctx)
			}
		}
	}()

	fmt.Printf("%sdashboard listening on %s%s\n", colorGreen, addr, colorReset)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		cancel()
	}()

	return dash.Run(ctx, cfg.TickInterval)
}

// buildNotificationRouter wires every enabled external channel from
// cfg.Notifications into a Router, skipping channels left unconfigured
// (empty webhook URL / SMTP host), matching the teacher's opt-in wiring.
func buildNotificationRouter(cfg config.Config, log *zap.Logger) *notifications.Router {
	var channels []notifications.Channel

	if cfg.Notifications.ToastEnabled {
		channels = append(channels, notifications.NewToastChannel("orchestratord", cfg.Notifications.DashboardURL, notifications.Filter{
			Kinds:       []eventbus.Kind{eventbus.KindRecoveryDecision, eventbus.KindAgentKilled},
			MinPriority: eventbus.PriorityHigh,
		}))
	}
	if cfg.Notifications.Discord.WebhookURL != "" {
		channels = append(channels, external.NewDiscord(external.DiscordConfig{
			WebhookURL:  cfg.Notifications.Discord.WebhookURL,
			MinPriority: cfg.Notifications.Discord.MinPriority,
		}))
	}
	if cfg.Notifications.Slack.WebhookURL != "" {
		channels = append(channels, external.NewSlack(external.SlackConfig{
			WebhookURL:  cfg.Notifications.Slack.WebhookURL,
			MinPriority: cfg.Notifications.Slack.MinPriority,
		}))
	}
	if cfg.Notifications.Email.SMTPHost != "" {
		channels = append(channels, external.NewEmail(external.EmailConfig{
			SMTPHost:    cfg.Notifications.Email.SMTPHost,
			SMTPPort:    cfg.Notifications.Email.SMTPPort,
			Username:    cfg.Notifications.Email.Username,
			Password:    cfg.Notifications.Email.Password,
			From:        cfg.Notifications.Email.From,
			To:          cfg.Notifications.Email.To,
			MinPriority: cfg.Notifications.Email.MinPriority,
		}))
	}

	return notifications.NewRouter(channels, logging.Component(log, "notifications"))
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
