package jobs

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Job is one periodic maintenance pass.
type Job interface {
	Name() string
	// Schedule is a cron expression; empty registers an on-demand job.
	Schedule() string
	Run(ctx context.Context) error
}

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron *cron.Cron
	jobs []Job
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		jobs: make([]Job, 0),
	}
}

// Register adds a job; jobs with a schedule are wired into cron.
func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)

	schedule := job.Schedule()
	if schedule == "" {
		log.Printf("📝 [%s] registered as on-demand job (no schedule)", job.Name())
		return
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if err := job.Run(context.Background()); err != nil {
			log.Printf("❌ [%s] job failed: %v", job.Name(), err)
		}
	})
	if err != nil {
		log.Printf("⚠️ failed to schedule job %s: %v", job.Name(), err)
		return
	}
	log.Printf("📅 [%s] scheduled with cron: %s", job.Name(), schedule)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("🚀 job scheduler started with %d registered jobs", len(s.jobs))
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("🛑 job scheduler stopped")
}
