package service

// Recorder receives service level events. metrics.Metrics implements it.
type Recorder interface {
	PrivilegesLoaded(outcome string)
	AuthStatus(status string)
	SignInEvent(event string)
}

type nopRecorder struct{}

func (nopRecorder) PrivilegesLoaded(string) {}
func (nopRecorder) AuthStatus(string)       {}
func (nopRecorder) SignInEvent(string)      {}
