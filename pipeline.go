// Package acmesig wires the signal binding stages together.
package acmesig

import (
	"context"
	"sync"
)

// Stage is a long running component of the pipeline.
type Stage interface {
	Init(ctx context.Context) error
	Run(ctx context.Context)
	Stop()
}

// Pipeline initializes its stages in order, runs them concurrently and
// stops them in reverse order.
type Pipeline struct {
	stages []Stage

	wg        *sync.WaitGroup
	isRunning bool
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		stages: []Stage{},

		wg:        &sync.WaitGroup{},
		isRunning: false,
	}
}

func (p *Pipeline) AddStage(stage Stage) {
	if p.isRunning {
		return
	}

	p.stages = append(p.stages, stage)
}

func (p *Pipeline) Init(ctx context.Context) error {
	for _, stage := range p.stages {
		if err := stage.Init(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) Run(ctx context.Context) {
	p.isRunning = true

	p.wg.Add(len(p.stages))

	for _, stage := range p.stages {
		go func() {
			stage.Run(ctx)
			p.wg.Done()
		}()
	}
}

// Stop stops the stages, the last added first, and waits for their Run to return.
func (p *Pipeline) Stop() {
	for i := len(p.stages) - 1; i >= 0; i-- {
		p.stages[i].Stop()
	}

	p.wg.Wait()
}

// StageFuncs adapts plain functions to a [Stage]. Nil functions are skipped.
type StageFuncs struct {
	InitFunc func(ctx context.Context) error
	RunFunc  func(ctx context.Context)
	StopFunc func()
}

func (s *StageFuncs) Init(ctx context.Context) error {
	if s.InitFunc == nil {
		return nil
	}
	return s.InitFunc(ctx)
}

func (s *StageFuncs) Run(ctx context.Context) {
	if s.RunFunc != nil {
		s.RunFunc(ctx)
	}
}

func (s *StageFuncs) Stop() {
	if s.StopFunc != nil {
		s.StopFunc()
	}
}
