// Package reminder keeps recurring reminders on a cron schedule.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/metrics"
	"github.com/robfig/cron/v3"
)

type Reminder struct {
	ID       string    `json:"id"`
	Schedule string    `json:"schedule"`
	Text     string    `json:"text"`
	Next     time.Time `json:"next"`
	Created  time.Time `json:"created"`
}

type Options struct {
	Location *time.Location
	// Notify is called from the cron goroutine whenever a reminder fires.
	Notify   func(Reminder)
	Observer metrics.Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

type entry struct {
	reminder Reminder
	schedule cron.Schedule
	cronID   cron.EntryID
}

type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	opts   Options
	obs    metrics.Observer
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func New(opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(opts.Location)),
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
		opts:    opts,
		obs:     metrics.OrNoop(opts.Observer),
		logger:  opts.Logger,
		entries: make(map[string]*entry),
	}
}

// Parse checks a schedule and returns its next fire time after now.
func (s *Scheduler) Parse(spec string) (cron.Schedule, time.Time, error) {
	spec = strings.TrimSpace(spec)
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return nil, time.Time{}, &errorsx.ValidationError{Field: "schedule", Problem: err.Error()}
	}
	next := sched.Next(s.opts.Now().In(s.opts.Location))
	if next.IsZero() {
		return nil, time.Time{}, &errorsx.ValidationError{Field: "schedule", Problem: "never fires"}
	}
	return sched, next, nil
}

// Add schedules text on spec, a five-field cron expression or a descriptor
// such as "@daily" or "@every 2h".
func (s *Scheduler) Add(spec, text string) (Reminder, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reminder{}, &errorsx.ValidationError{Field: "text", Problem: "is required"}
	}
	sched, next, err := s.Parse(spec)
	if err != nil {
		return Reminder{}, err
	}
	r := Reminder{
		ID:       uuid.NewString(),
		Schedule: strings.TrimSpace(spec),
		Text:     text,
		Next:     next,
		Created:  s.opts.Now(),
	}
	e := &entry{reminder: r, schedule: sched}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.ID
	e.cronID = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(id) }))
	s.entries[id] = e
	s.logger.Info("reminder_added", "reminder_id", id, "schedule", r.Schedule, "next", next.Format(time.RFC3339))
	return r, nil
}

func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	s.cron.Remove(e.cronID)
	delete(s.entries, id)
	return true
}

// List returns the reminders ordered by next fire time.
func (s *Scheduler) List() []Reminder {
	now := s.opts.Now().In(s.opts.Location)
	s.mu.Lock()
	out := make([]Reminder, 0, len(s.entries))
	for _, e := range s.entries {
		r := e.reminder
		r.Next = e.schedule.Next(now)
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Next.Equal(out[j].Next) {
			return out[i].ID < out[j].ID
		}
		return out[i].Next.Before(out[j].Next)
	})
	return out
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run starts the cron loop and blocks until ctx ends, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("reminder_scheduler_started", "reminders", s.Len())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("reminder_scheduler_stopped")
	return nil
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	var r Reminder
	if ok {
		r = e.reminder
		r.Next = e.schedule.Next(s.opts.Now().In(s.opts.Location))
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.obs.RecordEvent(metrics.NewEvent(metrics.EventReminderFire, 1, map[string]string{"reminder_id": id}))
	s.logger.Info("reminder_fire", "reminder_id", id, "text", r.Text)
	if s.opts.Notify != nil {
		s.opts.Notify(r)
	}
}

// Describe renders a reminder for a spoken confirmation.
func Describe(r Reminder) string {
	return fmt.Sprintf("Reminder %q set; next at %s.", r.Text, r.Next.Format("Mon 2 Jan 15:04"))
}
