// Package dispatch hands a built command to the execution host.
//
// Three interchangeable strategies are supported, selected by configuration:
//
//   - background: `am startservice` on the host's run-command service with the
//     background flag set. Returns as soon as the activity manager accepts the
//     intent. Silent and unreliable: there is no signal that the script was
//     delivered, started, or finished, and none is assumed.
//   - visible: resolves the host package with `pm path`, then `am start` on the
//     host's activity, passing the command as `<shell> -c <line>` so it runs
//     in the host's own foreground terminal. Fails with DispatchError
//     ("host not found") when the package is not installed.
//   - direct: starts the script in the caller's own sandbox with os/exec and
//     does not wait for it. Launch failures are ExecError.
//
// When a launcher prefix is configured (for example `adb shell` or `su -c`),
// the activity/package manager argv is joined into a single quoted line and
// passed through that remote shell.
//
// Every platform side effect goes through a Runner, so tests swap in a
// recording double. Dispatch never returns an error or lets a panic escape:
// everything is folded into an outcome.Outcome.
//
// Nothing is retried, cancelled, or timed out here. The caller's context only
// bounds the short-lived am/pm invocations, never the downstream script.
package dispatch
