package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/cinema-bridge/internal/api"
	"github.com/mattjoyce/cinema-bridge/internal/bridge"
	"github.com/mattjoyce/cinema-bridge/internal/config"
	"github.com/mattjoyce/cinema-bridge/internal/dispatch"
	"github.com/mattjoyce/cinema-bridge/internal/doctor"
	"github.com/mattjoyce/cinema-bridge/internal/events"
	"github.com/mattjoyce/cinema-bridge/internal/journal"
	"github.com/mattjoyce/cinema-bridge/internal/lock"
	"github.com/mattjoyce/cinema-bridge/internal/log"
	"github.com/mattjoyce/cinema-bridge/internal/protocol"
	"github.com/mattjoyce/cinema-bridge/internal/request"
	"github.com/mattjoyce/cinema-bridge/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "journal":
		return runJournalNoun(args)

	// --- VERBS ---
	case "call":
		if hasHelpFlag(args) {
			printCallHelp()
			return 0
		}
		return runCall(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "doctor":
		return runConfigCheck(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: cinema-bridge version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("cinema-bridge %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`cinema-bridge - Method channel bridge to an external command host

Usage:
  cinema-bridge <noun> <action> [flags]
  cinema-bridge <verb> [flags]

Core Resources (Nouns):
  system    Bridge service lifecycle
  config    Configuration and integrity
  journal   Recorded dispatch outcomes

System Commands:
  system start      Serve the method channel over HTTP in the foreground

Config Commands:
  config check      Validate configuration, host tooling, and integrity
  config lock       Authorize current state (update integrity hashes)
  config show       Print the resolved configuration

Journal Commands:
  journal list      Show recent dispatch outcomes

Verbs:
  call              Handle one call locally and print the reply
  watch             Real-time dispatch monitoring TUI

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'cinema-bridge <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runJournalNoun(args []string) int {
	if len(args) < 1 {
		printJournalNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJournalNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printJournalListHelp()
			return 0
		}
		return runJournalList(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown journal action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: cinema-bridge system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: cinema-bridge config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printJournalNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: cinema-bridge journal <action> [flags]")
	fmt.Fprintln(w, "Actions: list")
}

func printSystemStartHelp() {
	fmt.Println("Usage: cinema-bridge system start [--config PATH]")
	fmt.Println("Serve the configured channel over HTTP in the foreground. Requires api.enabled.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: cinema-bridge config check [--config PATH] [--strict] [--json]")
	fmt.Println("Validate configuration, host tooling, and integrity.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Valid")
	fmt.Println("  1  One or more errors")
	fmt.Println("  2  Warnings present and --strict set")
}

func printConfigLockHelp() {
	fmt.Println("Usage: cinema-bridge config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize current configuration state by regenerating .checksums.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: cinema-bridge config show [--config PATH]")
	fmt.Println("Print the resolved configuration as YAML. The API key is redacted.")
}

func printJournalListHelp() {
	fmt.Println("Usage: cinema-bridge journal list [--config PATH] [--limit N] [--json]")
	fmt.Println("Show recent dispatch outcomes, newest first.")
}

func printCallHelp() {
	fmt.Println("Usage: cinema-bridge call [--config PATH] [--strategy KIND] [--method NAME]")
	fmt.Println("                          (--input PATH [--profile P] [--channels C] [--intensity I] | --json)")
	fmt.Println()
	fmt.Println("Handle one call locally and print the reply as JSON.")
	fmt.Println("With --json, a {\"method\", \"args\"} call is read from stdin.")
	fmt.Println()
	fmt.Println("Exit codes:")
	fmt.Println("  0  Success")
	fmt.Println("  1  Usage or configuration error")
	fmt.Println("  3  The call was reported as a failure")
}

func printWatchHelp() {
	fmt.Println("Usage: cinema-bridge watch [flags]")
	fmt.Println()
	fmt.Println("Real-time dispatch monitoring TUI.")
	fmt.Println("Shows bridge health and reported outcomes as they happen.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Bridge API URL (default: http://127.0.0.1:8087)")
	fmt.Println("  --api-key KEY    API Bearer Token (or CINEMA_BRIDGE_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Navigate dispatches")
}

// --- ACTION IMPLEMENTATIONS ---

// exitCallFailed is returned by call when the reply reports a failure.
const exitCallFailed = 3

func runCall(args []string) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	strategy := fs.String("strategy", "", "Override dispatch.strategy (background, visible, direct)")
	method := fs.String("method", "", "Method name (default: channel.method)")
	input := fs.String("input", "", "Input audio path")
	profile := fs.String("profile", "", "Processing profile")
	channels := fs.String("channels", "", "Channel layout")
	intensity := fs.String("intensity", "", "Processing intensity")
	fromStdin := fs.Bool("json", false, "Read a JSON call from stdin")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *strategy != "" {
		kind, err := dispatch.ParseKind(*strategy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --strategy: %v\n", err)
			return 1
		}
		cfg.Dispatch.Strategy = string(kind)
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --strategy %s: %v\n", kind, err)
			return 1
		}
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	var call *protocol.Call
	if *fromStdin {
		call, err = protocol.DecodeCall(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read call: %v\n", err)
			return 1
		}
	} else {
		call = &protocol.Call{Method: cfg.Channel.Method, Args: map[string]string{}}
		setArg(call.Args, request.InputKeys[0], *input)
		setArg(call.Args, request.ProfileKeys[0], *profile)
		setArg(call.Args, request.ChannelKeys[0], *channels)
		setArg(call.Args, request.IntensityKeys[0], *intensity)
	}
	if *method != "" {
		call.Method = *method
	}

	ctx := context.Background()
	store, err := openJournal(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	var rec bridge.Recorder
	if store != nil {
		defer store.Close()
		rec = store
	}

	handler, err := buildHandler(cfg, newDispatcher(cfg), rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build handler: %v\n", err)
		return 1
	}

	reply := handler.HandleCall(ctx, *call)
	if err := protocol.EncodeReply(os.Stdout, reply); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write reply: %v\n", err)
		return 1
	}
	if !reply.OK() {
		return exitCallFailed
	}
	return 0
}

func setArg(args map[string]string, key, value string) {
	if value != "" {
		args[key] = value
	}
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if !cfg.API.Enabled {
		fmt.Fprintln(os.Stderr, "api.enabled is false; nothing to serve (use 'cinema-bridge call' for one-shot calls)")
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("cinema-bridge starting", "version", version, "config", cfg.SourcePath, "strategy", cfg.Dispatch.Strategy)

	instance, err := lock.Acquire(cfg.Service.LockPath)
	if err != nil {
		logger.Error("failed to acquire lock (another instance may be running)", "path", cfg.Service.LockPath, "error", err)
		return 1
	}
	defer instance.Release()
	logger.Info("acquired lock", "path", instance.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(events.DefaultCapacity)
	recorders := bridge.Recorders{hub}
	var lister api.DispatchLister

	store, err := openJournal(ctx, cfg)
	if err != nil {
		logger.Error("failed to open journal", "error", err)
		return 1
	}
	if store != nil {
		defer store.Close()
		recorders = append(recorders, store)
		lister = store
		logger.Info("journal opened", "path", cfg.Journal.Path)
	}

	handler, err := buildHandler(cfg, newDispatcher(cfg), recorders)
	if err != nil {
		logger.Error("failed to build handler", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	server := api.New(apiConfigFrom(cfg), handler, lister, hub, log.WithComponent("api"))
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	logger.Info("cinema-bridge running (press Ctrl+C to stop)", "listen", cfg.API.Listen, "channel", cfg.Channel.Name)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("cinema-bridge stopped")
	return 0
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	report, err := config.Lock(path, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if isVerbose || dryRun {
		fmt.Printf("Processing directory: %s\n", report.ConfigDir)
		for _, f := range report.Files {
			if !f.Exists {
				fmt.Printf("  SKIP  %s (not present)\n", f.Filename)
				continue
			}
			fmt.Printf("  HASH  %s %s\n", f.Filename, f.Hash)
		}
	}

	if dryRun {
		fmt.Printf("Dry run: %s not written\n", report.ChecksumPath)
		return 0
	}
	fmt.Printf("Wrote %s\n", report.ChecksumPath)
	return 0
}

const redacted = "********"

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if cfg.API.Auth.APIKey != "" {
		cfg.API.Auth.APIKey = redacted
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Printf("# source: %s\n", cfg.SourcePath)
	fmt.Print(string(out))
	return 0
}

func runJournalList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", journal.DefaultListLimit, "Maximum entries to show")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *limit < 0 {
		fmt.Fprintln(os.Stderr, "--limit must not be negative")
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if !cfg.Journal.Enabled {
		fmt.Fprintln(os.Stderr, "journal.enabled is false")
		return 1
	}

	ctx := context.Background()
	store, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer store.Close()

	entries, err := store.List(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list journal: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No dispatches recorded.")
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCALL\tSTRATEGY\tRESULT\tINPUT\tDETAIL")
	for _, e := range entries {
		result := "ok"
		detail := e.Message
		if !e.OK {
			result = e.Kind
			detail = e.Detail
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), shortID(e.CallID), e.Strategy, result, e.InputPath, detail)
	}
	_ = tw.Flush()
	return 0
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8087", "Bridge API URL")
	apiKey := fs.String("api-key", os.Getenv("CINEMA_BRIDGE_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(strings.TrimRight(*apiURL, "/"), *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
