package icp

import (
	"sync"

	"github.com/pkg/errors"
)

/* Known control point list */
const (
	// TwoPhaseDecisionCP sits between the prepare and the commit phases.
	TwoPhaseDecisionCP = "2pc_decision_cp"
)

var (
	mu      sync.Mutex
	enabled = map[string]struct{}{}
)

var ErrControlPoint = errors.New("control point reached")

// DefineICP arms a known control point. Armed points fail every check
// until reset.
func DefineICP(name string) error {
	switch name {
	case TwoPhaseDecisionCP:
		mu.Lock()
		defer mu.Unlock()
		enabled[name] = struct{}{}
		return nil
	}
	return errors.Errorf("unknown control point name %s", name)
}

func ResetICP(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(enabled, name)
}

func CheckControlPoint(name string) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := enabled[name]; ok {
		return errors.Wrapf(ErrControlPoint, "%s", name)
	}
	return nil
}
