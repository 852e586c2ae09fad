package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// calendarReminder is how long before the start the VALARM fires.
const calendarReminder = "-PT1H"

// AssignmentLister lists the assignments of a simulation.
type AssignmentLister interface {
	ListBySimulation(ctx context.Context, simulationID uuid.UUID) ([]model.Assignment, error)
}

// CalendarService exports scheduled simulations as iCalendar events.
type CalendarService struct {
	access      *AccessService
	assignments AssignmentLister
	baseURL     string
	now         func() time.Time
}

// NewCalendarService creates a new CalendarService.
func NewCalendarService(access *AccessService, assignments AssignmentLister, baseURL string) *CalendarService {
	return &CalendarService{
		access:      access,
		assignments: assignments,
		baseURL:     baseURL,
		now:         time.Now,
	}
}

// Export renders the caller's window of a simulation as a VCALENDAR holding
// one VEVENT with a reminder.
func (s *CalendarService) Export(ctx context.Context, p *model.Principal, simulationID uuid.UUID) (string, error) {
	access, err := s.access.ResolveAccess(ctx, p, simulationID)
	if err != nil {
		return "", err
	}

	a := access.Assignment
	if (a == nil || a.StartDate == nil) && p.Role.IsStaff() {
		a, err = s.firstScheduled(ctx, simulationID)
		if err != nil {
			return "", err
		}
	}
	if a == nil || a.StartDate == nil {
		return "", ErrNotScheduled
	}

	return BuildCalendar(access.Simulation, a, s.baseURL, s.now()), nil
}

func (s *CalendarService) firstScheduled(ctx context.Context, simulationID uuid.UUID) (*model.Assignment, error) {
	list, err := s.assignments.ListBySimulation(ctx, simulationID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	for i := range list {
		if list[i].StartDate != nil {
			return &list[i], nil
		}
	}
	return nil, ErrNotScheduled
}

// BuildCalendar renders the event of sim scheduled by a. The event ends at
// the assignment end date, or after the simulation's duration when the
// assignment is open ended.
func BuildCalendar(sim *model.Simulation, a *model.Assignment, baseURL string, stamp time.Time) string {
	start := a.StartDate.UTC()
	end := start.Add(time.Duration(sim.DurationMinutes) * time.Minute)
	if a.EndDate != nil {
		end = a.EndDate.UTC()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//PrepScuola//Simulazioni//IT")

	event := cal.AddEvent(fmt.Sprintf("%s-%s@simulazioni", sim.ID, a.ID))
	event.SetDtStampTime(stamp.UTC())
	event.SetStartAt(start)
	event.SetEndAt(end)
	event.SetSummary(sim.Title)
	event.SetDescription(fmt.Sprintf("Simulazione %s: %d domande, %d minuti.",
		sim.Type, sim.TotalQuestions, sim.DurationMinutes))
	if baseURL = strings.TrimRight(baseURL, "/"); baseURL != "" {
		event.SetURL(fmt.Sprintf("%s/simulazioni/%s", baseURL, sim.ID))
	}

	alarm := event.AddAlarm()
	alarm.SetAction(ics.ActionDisplay)
	alarm.SetTrigger(calendarReminder)
	alarm.SetProperty(ics.ComponentPropertyDescription, sim.Title)

	return cal.Serialize()
}
