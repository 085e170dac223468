/*
Package supervisor starts, watches and restarts child processes.

A supervisor is a [genserver] that traps exits. When a child exits, its
[Restart] type decides whether it is restarted, and the [Strategy] decides
which other children are restarted with it:

  - [OneForOne]: only the failed child
  - [OneForAll]: every child. The others are stopped in reverse start order,
    then all are started again in start order
  - [RestForOne]: the failed child and every child started after it

If more than Intensity restarts happen within Period seconds the supervisor
gives up. It stops all children and exits with
exitreason.Shutdown([ErrMaxIntensity]), which its own supervisor sees as a
child failure. This happens once; the supervisor is then in [StateFailed].

Trees can be built in code with [NewChildSpec] or loaded from YAML with
[LoadTree].
*/
package supervisor
