// Package process starts, signals and reaps worker OS processes.
//
// Workers are plain child processes of the master. The master never blocks
// in wait(2): it reaps with WNOHANG when it learns through SIGCHLD that a
// child changed state.
package process
