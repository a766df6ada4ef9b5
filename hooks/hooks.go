// Package hooks runs side effects after a primary mutation has been
// committed. Each hook is isolated: an error or panic is logged and never
// reaches the caller.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"taskboard/utils"
)

type Func func(ctx context.Context) error

type Dispatcher struct {
	log *logrus.Entry
	wg  sync.WaitGroup
}

func NewDispatcher(log *logrus.Entry) *Dispatcher {
	return &Dispatcher{log: log}
}

// Run executes fn synchronously and swallows its failure.
func (d *Dispatcher) Run(ctx context.Context, name string, fn Func) {
	d.safeRun(ctx, name, fn)
}

// Go executes fn in the background. The context is detached from the
// request so the hook outlives it; Wait blocks until every hook is done.
func (d *Dispatcher) Go(ctx context.Context, name string, fn Func) {
	d.wg.Add(1)
	bg := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		d.safeRun(bg, name, fn)
	}()
}

// Wait blocks until background hooks finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) safeRun(ctx context.Context, name string, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			utils.LogError("hook_panic", fmt.Errorf("panic: %v", r), map[string]interface{}{"hook": name})
		}
	}()
	if err := fn(ctx); err != nil {
		utils.LogError("hook_failed", err, map[string]interface{}{"hook": name})
		return
	}
	d.log.WithField("hook", name).Debug("hook completed")
}
