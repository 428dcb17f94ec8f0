package windows

import (
	"golang.org/x/sys/windows/svc"
)

// serviceRunner translates service-control commands into a close of the
// process's stop channel.
type serviceRunner struct {
	stop chan<- struct{}
}

func (m *serviceRunner) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown | svc.AcceptPauseAndContinue
	changes <- svc.Status{State: svc.StartPending}
	changes <- svc.Status{State: svc.Running, Accepts: accepted}

	for c := range r {
		switch c.Cmd {
		case svc.Interrogate:
			changes <- c.CurrentStatus
		case svc.Stop, svc.Shutdown:
			if m.stop != nil {
				close(m.stop)
			}
		case svc.Pause:
			changes <- svc.Status{State: svc.Paused, Accepts: accepted}
		case svc.Continue:
			changes <- svc.Status{State: svc.Running, Accepts: accepted}
		}
	}

	changes <- svc.Status{State: svc.StopPending}
	return
}

// RunAsService enters the Windows service control loop; stopChan is
// closed when the service manager asks the process to stop.
func RunAsService(name string, stopChan chan<- struct{}) error {
	return svc.Run(name, &serviceRunner{stop: stopChan})
}

// IsWindowsService reports whether the process was started by the
// service control manager.
func IsWindowsService() bool {
	isService, _ := svc.IsWindowsService()
	return isService
}
