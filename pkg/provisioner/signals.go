package provisioner

import (
	"os"
	"os/signal"
	"syscall"
)

var signalNames = map[os.Signal]string{
	syscall.SIGCHLD: SignalChild,
	syscall.SIGTERM: SignalTerminate,
	syscall.SIGINT:  SignalInterrupt,
}

// NotifySignals forwards SIGCHLD, SIGTERM and SIGINT to the signal loop.
// The returned function stops forwarding.
func (p *Provisioner) NotifySignals() func() {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, syscall.SIGCHLD, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				p.Enqueue(signalNames[sig])
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
