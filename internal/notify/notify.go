// Package notify posts build farm events to chat platforms.
package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

// Severity colors, used as sidebar hints by the platforms.
const (
	ColorInfo    = "#439fe0"
	ColorSuccess = "#36a64f"
	ColorWarning = "#daa038"
	ColorError   = "#d00000"
)

// Notifier delivers events to one destination.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Event is a build farm event formatted for chat.
type Event struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string
	Fields   []Field
}

// Field is a key-value pair displayed with an event.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to several notifiers. Every notifier is tried;
// failures are aggregated.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt Event) error {
	var result *multierror.Error
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// BuilderDisabled describes a builder taken out of dispatch after repeated
// failures.
func BuilderDisabled(name, processor, note string, failures int) Event {
	return Event{
		Title:    fmt.Sprintf("Builder %s disabled", name),
		Body:     note,
		Severity: "error",
		Color:    ColorError,
		Fields: []Field{
			{Name: "Processor", Value: processor, Short: true},
			{Name: "Failures", Value: strconv.Itoa(failures), Short: true},
		},
	}
}

// BuildsRetired summarizes a sweep that retired stale builds.
func BuildsRetired(superseded, failed int) Event {
	return Event{
		Title:    fmt.Sprintf("Retired %d stale builds", superseded+failed),
		Severity: "info",
		Color:    ColorInfo,
		Fields: []Field{
			{Name: "Superseded", Value: strconv.Itoa(superseded), Short: true},
			{Name: "Failed", Value: strconv.Itoa(failed), Short: true},
		},
	}
}
