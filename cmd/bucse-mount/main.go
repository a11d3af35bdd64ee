// Command bucse-mount mounts a bucse repository as a POSIX filesystem
// (spec §4.9/§6.5): it opens the repository, starts the concurrency
// harness, and bridges the Operations Layer to the kernel via go-fuse/v2
// (or, built with -tags cgofuse, winfsp/cgofuse) until unmounted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/bchodorowski/bucse/internal/bucselog"
	"github.com/bchodorowski/bucse/internal/config"
	"github.com/bchodorowski/bucse/internal/repo"
)

const version = "0.1.0"

// mountOpts accumulates repeatable -o key[=value] pairs, FUSE-style
// (comma-separated within one flag occurrence, or repeated occurrences).
type mountOpts map[string]string

func (m mountOpts) String() string { return fmt.Sprintf("%v", map[string]string(m)) }

func (m mountOpts) Set(s string) error {
	for _, kv := range strings.Split(s, ",") {
		if kv == "" {
			continue
		}
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		} else {
			m[kv] = "true"
		}
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("bucse-mount", flag.ContinueOnError)
	repoURL := fs.String("r", "", "repository URL to mount")
	passphrase := fs.String("p", "", "repository passphrase")
	verbose := fs.Int("v", 0, "verbosity (0=note, 1=debug, 2+=verbose_debug)")
	configPath := fs.String("config", "", "YAML config file (overridden by flags/-o)")
	showVersion := fs.Bool("V", false, "print version and exit")
	opts := make(mountOpts)
	fs.Var(opts, "o", "mount option(s), comma-separated key=value (e.g. -o ro,allow_other,repository=...)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: bucse-mount [-r repo-url] [-p passphrase] [-v N] [-o key=value,...] <mountpoint>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Println("bucse-mount", version)
		return 0
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	mountPoint := fs.Arg(0)

	cfg := config.NewDefault()
	if *configPath != "" {
		if err := cfg.LoadFromFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "bucse-mount:", err)
			return 1
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "bucse-mount:", err)
		return 1
	}

	if v, ok := opts["repository"]; ok {
		cfg.Repository = v
	}
	if *repoURL != "" {
		cfg.Repository = *repoURL
	}
	if v, ok := opts["passphrase"]; ok {
		cfg.Passphrase = v
	}
	if *passphrase != "" {
		cfg.Passphrase = *passphrase
	}
	if v, ok := opts["verbose"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			*verbose = n
		}
	}
	if v, ok := opts["metrics"]; ok {
		cfg.MetricsListenAddr = v
	}
	if cfg.Repository == "" {
		fmt.Fprintln(os.Stderr, "bucse-mount: no repository given (-r or -o repository=...)")
		return 2
	}

	level := bucselog.FromVerbosity(*verbose)
	bucselog.Default().SetLevel(level)

	if cfg.Passphrase == "" {
		if p, err := promptPassphraseIfNeeded(cfg.Repository); err == nil {
			cfg.Passphrase = p
		}
	}

	if _, ok := opts["ro"]; ok {
		cfg.ReadOnly = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "bucse-mount:", err)
		return 1
	}

	ctx := context.Background()
	r, err := repo.Mount(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bucse-mount:", err)
		return 1
	}

	_, allowOther := opts["allow_other"]
	m := newMounter(bridgeOptions{
		MountPoint: mountPoint,
		ReadOnly:   cfg.ReadOnly,
		AllowOther: allowOther,
		Debug:      level <= bucselog.DEBUG,
	})
	if err := m.Mount(r); err != nil {
		fmt.Fprintln(os.Stderr, "bucse-mount:", err)
		_ = r.Unmount(ctx)
		return 1
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		_ = m.Unmount()
	}()

	m.Wait()
	_ = r.Unmount(ctx)
	return 0
}

// promptPassphraseIfNeeded only prompts when stdin is an interactive
// terminal; a non-interactive caller (init scripts, tests) with no
// passphrase configured is left to fail later at repo.Mount's cipher check.
func promptPassphraseIfNeeded(_ string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("not a terminal")
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
