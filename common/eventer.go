package common

import "time"

// Eventer publishes annotations, such as an errored trace, to an external
// timeline. Attributes become tags where the backend supports them.
type Eventer interface {
	Now(name string, attributes map[string]string) error
	At(name string, attributes map[string]string, when time.Time) error
	Interval(name string, attributes map[string]string, begin, end time.Time) error
	Stop()
}
