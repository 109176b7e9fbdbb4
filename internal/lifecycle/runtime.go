package lifecycle

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runtime owns the background components of the process. Components
// come up in registration order and go down in reverse; a failed start
// tears down everything already running so the process never keeps
// going half-assembled.
type Runtime struct {
	components []Component
	started    []Component
}

func NewRuntime(components ...Component) *Runtime {
	r := &Runtime{}
	for _, component := range components {
		r.Register(component)
	}
	return r
}

func (r *Runtime) Register(component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, component)
}

func (r *Runtime) Start(ctx context.Context) error {
	for i, component := range r.components {
		if err := component.Start(ctx); err != nil {
			if rollbackErr := r.Stop(ctx); rollbackErr != nil {
				log.WithError(rollbackErr).Warn("rollback after failed start")
			}
			return fmt.Errorf("start component %d: %w", i, err)
		}
		r.started = append(r.started, component)
	}
	log.WithField("components", len(r.started)).Debug("runtime started")
	return nil
}

// Stop shuts down the components that actually started, newest first.
// Every component gets its Stop call even when an earlier one errors.
func (r *Runtime) Stop(ctx context.Context) error {
	var stopErr error
	for i := len(r.started) - 1; i >= 0; i-- {
		if err := r.started[i].Stop(ctx); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("stop component %d: %w", i, err))
		}
	}
	r.started = nil
	return stopErr
}
