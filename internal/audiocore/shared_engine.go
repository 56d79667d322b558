package audiocore

// sharedEngine reference counts the host processing engine. The host engine
// runs while at least one route is active. Callers hold RoutingEngine.mu.
type sharedEngine struct {
	host  Host
	users int
}

// acquire adds a user, starting the host engine on the 0→1 transition.
func (e *sharedEngine) acquire() error {
	if e.users == 0 {
		if err := e.host.StartEngine(); err != nil {
			return err
		}
	}
	e.users++
	return nil
}

// release drops a user, stopping the host engine on the 1→0 transition.
func (e *sharedEngine) release() error {
	if e.users == 0 {
		return nil
	}
	e.users--
	if e.users == 0 {
		return e.host.StopEngine()
	}
	return nil
}
