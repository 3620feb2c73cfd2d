package worker

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
)

// Worker long running worker, Run returns when ctx is done
type Worker interface {
	Run(ctx context.Context) error
}

// IJob cron job
type IJob interface {
	Start() error
	Run()
	Stop() error
}

type OnWork func() error

// BaseJob cron driven job, a tick is skipped while the previous one is running
type BaseJob struct {
	Cron   *cron.Cron
	OnWork OnWork

	running sync.Mutex
}

func (job *BaseJob) Start() error {
	job.Cron.Start()
	return nil
}

func (job *BaseJob) Stop() error {
	<-job.Cron.Stop().Done()
	return nil
}

func (job *BaseJob) Run() {
	if !job.running.TryLock() {
		return
	}

	defer job.running.Unlock()
	_ = job.OnWork()
}

// RunUntil start the cron and block until ctx is done
func (job *BaseJob) RunUntil(ctx context.Context) error {
	if err := job.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	return job.Stop()
}
