package job

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type logger interface{ Printf(string, ...interface{}) }

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// A job runs a series of tasks, at most concurrency at a time
type Job struct {
	ID          uuid.UUID
	name        string
	concurrency int // Number of concurrent tasks
	l           logger
}

// a task is a work unit. It gets the job's context and must honor it.
type Task func(ctx context.Context)

func NewJob(name string, concurrency int) *Job {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Job{
		ID:          uuid.New(),
		name:        name,
		concurrency: concurrency,
		l:           nullLogger{},
	}
}

func (j *Job) WithLogger(l logger) *Job {
	if l != nil {
		j.l = l
	}
	return j
}

// Concurrency gives the number of tasks running at the same time
func (j *Job) Concurrency() int { return j.concurrency }

// Run executes the tasks until the channel is closed, and returns when all of them have ended.
// Every task received is run, even when the context is done.
func (j *Job) Run(ctx context.Context, tasks <-chan Task) {
	j.l.Printf("[JOB] %s started with %d runners", j.name, j.concurrency)
	wg := sync.WaitGroup{}
	wg.Add(j.concurrency)
	for i := 0; i < j.concurrency; i++ {
		go func() {
			defer wg.Done()
			for task := range tasks {
				task(ctx)
			}
		}()
	}
	wg.Wait()
	j.l.Printf("[JOB] %s ended", j.name)
}

// RunTasks runs the given tasks and waits for them
func (j *Job) RunTasks(ctx context.Context, tasks ...Task) {
	c := make(chan Task)
	go func() {
		defer close(c)
		for _, t := range tasks {
			c <- t
		}
	}()
	j.Run(ctx, c)
}
