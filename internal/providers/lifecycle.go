package providers

import (
	"fmt"
	"sync"

	"github.com/lplpqq/forecast/internal/log"
)

const (
	stateFresh = iota
	stateSetup
	stateTornDown
)

// Lifecycle tracks the Fresh → Setup → TornDown progression every provider
// goes through. Repeated transitions warn and no-op; setting up a provider
// that was already torn down is refused.
type Lifecycle struct {
	Name string

	mu    sync.Mutex
	state int
}

// RunSetup runs fn once per lifecycle and records the transition.
func (l *Lifecycle) RunSetup(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case stateSetup:
		log.Warnf("%s is already set up, ignoring the repeated setup", l.Name)
		return nil
	case stateTornDown:
		log.Warnf("%s has been torn down and may not be set up again", l.Name)
		return fmt.Errorf("%s: setup after teardown", l.Name)
	}

	if err := fn(); err != nil {
		return err
	}
	l.state = stateSetup
	return nil
}

// RunTeardown runs fn if the provider is set up and records the
// transition. Tearing down a fresh provider leaves it fresh.
func (l *Lifecycle) RunTeardown(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case stateFresh:
		log.Warnf("%s was never set up, nothing to tear down", l.Name)
		return nil
	case stateTornDown:
		log.Warnf("%s is already torn down, ignoring the repeated teardown", l.Name)
		return nil
	}

	if err := fn(); err != nil {
		return err
	}
	l.state = stateTornDown
	return nil
}

// Ready returns an error unless setup has completed and teardown has not
// run yet. Fetch paths call this first.
func (l *Lifecycle) Ready() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case stateFresh:
		return fmt.Errorf("%s: provider was never set up", l.Name)
	case stateTornDown:
		return fmt.Errorf("%s: provider has been torn down", l.Name)
	}
	return nil
}
