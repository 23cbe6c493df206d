package common

import (
	"errors"
	"time"
)

type Events struct {
	eventers []Eventer
}

func (es *Events) Now(name string, attributes map[string]string) error {
	return es.At(name, attributes, time.Now())
}

func (es *Events) At(name string, attributes map[string]string, when time.Time) error {
	return es.Interval(name, attributes, when, when)
}

func (es *Events) Interval(name string, attributes map[string]string, begin, end time.Time) error {

	var errs []error
	for _, e := range es.eventers {
		if err := e.Interval(name, attributes, begin, end); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (es *Events) Stop() {
	for _, e := range es.eventers {
		e.Stop()
	}
}

func (es *Events) Len() int {
	return len(es.eventers)
}

func (es *Events) Register(e Eventer) {
	if es != nil && e != nil {
		es.eventers = append(es.eventers, e)
	}
}

func NewEvents() *Events {
	return &Events{}
}
