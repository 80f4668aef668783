// Package calsynctest provides an in-memory calsync.Store for tests.
package calsynctest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"memocal/internal/calsync"
	"memocal/internal/models"
)

// Store keeps events in memory and records how often each operation ran.
type Store struct {
	mu     sync.Mutex
	events map[string]*models.Event
	keys   map[string]string
	seq    int

	Inserts int
	Lists   int
	Deletes int

	// InsertErr, ListErr and DeleteErr are returned instead of performing the operation when set.
	InsertErr error
	ListErr   error
	DeleteErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		events: make(map[string]*models.Event),
		keys:   make(map[string]string),
	}
}

func (s *Store) Insert(_ context.Context, _ string, r models.Reminder) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inserts++
	if s.InsertErr != nil {
		return "", s.InsertErr
	}
	if r.Key != "" {
		if _, ok := s.keys[r.Key]; ok {
			return "", calsync.NewError(calsync.OpCreate, calsync.KindConflict, errors.New("duplicate key"))
		}
	}

	s.seq++
	id := fmt.Sprintf("evt-%d", s.seq)
	s.events[id] = &models.Event{ID: id, Summary: r.Summary, Start: r.Start, End: r.End, TimeZone: r.TimeZone}
	if r.Key != "" {
		s.keys[r.Key] = id
	}
	return id, nil
}

func (s *Store) List(_ context.Context, _ string, from time.Time, max int) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lists++
	if s.ListErr != nil {
		return nil, s.ListErr
	}

	var out []*models.Event
	for _, e := range s.events {
		if e.Start.Before(from) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, _ string, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deletes++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.events[eventID]; !ok {
		return calsync.NewError(calsync.OpDelete, calsync.KindNotFound, fmt.Errorf("event %s", eventID))
	}
	delete(s.events, eventID)
	return nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
