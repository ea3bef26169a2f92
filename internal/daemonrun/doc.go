// Package daemonrun hosts the foreground daemon process: logging setup, the
// pid file, the optional metrics endpoint, the IPC server and signal-driven
// shutdown.
package daemonrun
