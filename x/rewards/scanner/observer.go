package scanner

// Observer receives session events as they happen. Calls are made from the
// goroutine running the session and must not block for long.
type Observer interface {
	OnState(state State)
	OnEpoch(res EpochResult, p Progress)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	State func(State)
	Epoch func(EpochResult, Progress)
}

func (o ObserverFuncs) OnState(state State) {
	if o.State != nil {
		o.State(state)
	}
}

func (o ObserverFuncs) OnEpoch(res EpochResult, p Progress) {
	if o.Epoch != nil {
		o.Epoch(res, p)
	}
}

type nopObserver struct{}

func (nopObserver) OnState(State)                 {}
func (nopObserver) OnEpoch(EpochResult, Progress) {}
