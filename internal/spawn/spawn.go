// Package spawn implements the Worker Spawner (§4.6): running a Rule's
// expanded command for a matched event without ever blocking the dispatcher
// that triggered it.
//
// Modeled on mutagen's agent.process handling (a *exec.Cmd started in one
// goroutine and waited on in another) — the idiomatic Go substitute for the
// original's fork()+execvp("/bin/sh","-c",...)+waitpid() sequence.
package spawn

import (
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/watchrules/listener/internal/expand"
	"github.com/watchrules/listener/internal/logging"
	"github.com/watchrules/listener/internal/watch"
)

// Spawner runs shell commands on behalf of matched events. The zero value is
// usable; a non-nil Log makes spawn failures and exit status visible in
// debug mode.
type Spawner struct {
	Log *logging.Logger
}

// Spawn expands ev's command template and runs it with /bin/sh -c in a new
// process. Start errors are logged and dropped (§7: "worker spawn failure
// (fork), resource exhaustion, logged, event lost"); once started, the wait
// for the child happens in its own goroutine so Spawn itself never blocks
// past the fork.
func (s *Spawner) Spawn(ev watch.Spawned) {
	command := expand.Command(ev.Watch.Command, ev.Watch.Path, ev.Name)

	// Every invocation gets its own correlation id so debug logs for
	// overlapping spawns on the same path (e.g. a rapid create/delete pair)
	// can still be told apart once they interleave across goroutines.
	corr := uuid.New().String()

	cmd := exec.Command("/bin/sh", "-c", command)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		s.Log.Errorf("spawn %s: starting command for %q: %v", corr, ev.Watch.Path, err)
		return
	}
	s.Log.Debugf("spawn %s: started %q for %q", corr, command, ev.Watch.Path)

	go func() {
		err := cmd.Wait()
		if err != nil {
			s.Log.Debugf("spawn %s: command for %q exited with error: %v", corr, ev.Watch.Path, err)
		} else {
			s.Log.Debugf("spawn %s: command for %q exited 0", corr, ev.Watch.Path)
		}
		s.Log.DebugDuration("spawn "+corr, start)
	}()
}
