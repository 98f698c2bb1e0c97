// Command listener watches declared directory subtrees for filesystem
// activity and runs a shell command for each matching event. See the rule
// file dialects documented alongside internal/rule.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/watchrules/listener/internal/logging"
	"github.com/watchrules/listener/internal/rule"
	"github.com/watchrules/listener/internal/spawn"
	"github.com/watchrules/listener/internal/watch"
)

const defaultConfigPath = "/etc/listener.conf"

const usage = `usage: listener [options]

  -c, --config FILE   path to rule file (default: ` + defaultConfigPath + `)
  -d, --debug         stay in the foreground, emit debug prints
  -h, --help          show this message and exit
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("listener", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)

	configPath := flags.StringP("config", "c", defaultConfigPath, "path to rule file")
	debug := flags.BoolP("debug", "d", false, "stay in foreground, emit debug prints")
	help := flags.BoolP("help", "h", false, "show usage")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		return 1
	}
	if *help {
		fmt.Fprint(os.Stdout, usage)
		return 0
	}
	if len(flags.Args()) != 0 {
		fmt.Fprintf(os.Stderr, "listener: unexpected argument %q\n", flags.Args()[0])
		return 1
	}

	log := logging.New(*debug)
	log.Debugf("running in debug mode")

	rules, err := rule.Load(*configPath)
	if err != nil {
		log.Errorf("loading %s: %v", *configPath, err)
		return 1
	}
	log.Infof("loaded %d rule(s) from %s", len(rules), *configPath)

	k, err := watch.OpenKernel()
	if err != nil {
		log.Errorf("initializing inotify: %v", err)
		return 1
	}
	defer k.Close()

	reg := watch.NewRegistry()
	for i := range rules {
		r := &rules[i]
		root, err := watch.Install(reg, k, r, log.Sublogger("installer"))
		if err != nil {
			log.Errorf("registering rule %d (target %s): %v", r.Index, r.Target, err)
			return 1
		}
		log.Debugf("rule %d: watching %s (depth %d, mask %s)", r.Index, root.Path, r.Depth, root.EffectiveMask)
	}

	if !*debug {
		daemonize(log)
	}

	spawner := &spawn.Spawner{Log: log.Sublogger("spawn")}
	dispatcher := watch.NewDispatcher(reg, k, spawner.Spawn, log.Sublogger("dispatch"))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Infof("received %s, shutting down", s)
		k.Stop()
	}()

	if err := dispatcher.Run(); err != nil {
		log.Errorf("dispatcher: %v", err)
		shutdown(reg, k, log)
		return 1
	}

	shutdown(reg, k, log)
	return 0
}

// shutdown deregisters every Watch still in the Registry, per §4.7: this
// implicitly drains the kernel source of further events for those
// descriptors. Workers already spawned are not waited for.
func shutdown(reg *watch.Registry, k interface{ RmWatch(uint32) error }, log *logging.Logger) {
	for _, rootID := range reg.RootIDs() {
		for _, wd := range reg.RemoveRoot(rootID) {
			if err := k.RmWatch(wd); err != nil {
				log.Debugf("rm_watch during shutdown: %v", err)
			}
		}
	}
}

// daemonize detaches the process from its controlling terminal by
// re-executing itself in the background with stdio redirected to
// /dev/null, then exits the foreground parent. This is the idiomatic Go
// substitute for the original's fork()-based daemonization, since the Go
// runtime cannot safely fork without exec.
func daemonize(log *logging.Logger) {
	if os.Getenv("LISTENER_DAEMONIZED") == "1" {
		return
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		log.Warnf("daemonize: opening %s: %v; staying in foreground", os.DevNull, err)
		return
	}
	defer devNull.Close()

	cmd := selfCommand()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull
	cmd.Env = append(os.Environ(), "LISTENER_DAEMONIZED=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		log.Warnf("daemonize: %v; staying in foreground", err)
		return
	}
	os.Exit(0)
}

// selfCommand builds an *exec.Cmd that re-invokes this same binary with the
// arguments it was originally started with.
func selfCommand() *exec.Cmd {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return exec.Command(exe, os.Args[1:]...)
}
