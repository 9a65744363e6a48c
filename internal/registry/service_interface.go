package registry

// Service is the interface for all plug-in services
type Service interface {
	Start() error
	Stop() error
}

// Funcs adapts a pair of functions to Service. Either may be nil.
type Funcs struct {
	OnStart func() error
	OnStop  func() error
}

func (f Funcs) Start() error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart()
}

func (f Funcs) Stop() error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop()
}
