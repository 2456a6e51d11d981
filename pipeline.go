package fbq

import "fmt"

// HandlerFunc processes one popped job. The archive staged at
// ctx.ArchivePath is the job input; call ctx.SetResult to name the archive
// uploaded on success.
type HandlerFunc func(JobContext) error

// MiddlewareFunc wraps a HandlerFunc with cross-cutting behaviour. The
// middleware decides whether and how to call next.
//
// Example:
//
//	func timing(ctx fbq.JobContext, next fbq.HandlerFunc) error {
//	    start := time.Now()
//	    defer func() { log.Printf("job %d took %s", ctx.ID, time.Since(start)) }()
//	    return next(ctx)
//	}
type MiddlewareFunc func(ctx JobContext, next HandlerFunc) error

// stage is one named link in a worker's execution pipeline.
type stage struct {
	name string
	fn   MiddlewareFunc
}

// pipeline is the ordered middleware a worker wraps around its handler.
// The first stage added is outermost. Names identify stages: adding a name
// that is already present swaps the middleware into the existing slot, so a
// pipeline can be reconfigured without disturbing its nesting order. The
// zero value is an empty pipeline ready for use.
type pipeline struct {
	stages []stage
	serial int
}

// add registers a stage under the name, replacing the stage already holding
// that name in place.
func (p *pipeline) add(name string, fn MiddlewareFunc) {
	for i := range p.stages {
		if p.stages[i].name == name {
			p.stages[i].fn = fn
			return
		}
	}
	p.stages = append(p.stages, stage{name: name, fn: fn})
}

// anonymous returns a fresh generated stage name. Serials only grow, so a
// generated name is never handed out twice, removals included.
func (p *pipeline) anonymous() string {
	p.serial++
	return fmt.Sprintf("stage-%d", p.serial)
}

// remove drops the named stage and reports whether it was present.
func (p *pipeline) remove(name string) bool {
	for i := range p.stages {
		if p.stages[i].name == name {
			p.stages = append(p.stages[:i], p.stages[i+1:]...)
			return true
		}
	}
	return false
}

// wrap composes the pipeline around a handler, first stage outermost.
func (p *pipeline) wrap(handler HandlerFunc) HandlerFunc {
	wrapped := handler
	for i := len(p.stages) - 1; i >= 0; i-- {
		fn := p.stages[i].fn
		next := wrapped
		wrapped = func(ctx JobContext) error {
			return fn(ctx, next)
		}
	}
	return wrapped
}
