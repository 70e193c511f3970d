// Package memory provides an in-process implementation of the bot's storage
// contracts. It backs tests and single-node development runs where MongoDB
// is disabled; the production deployment uses the mongo repository.
package memory

import (
	"context"
	"sync"
	"time"

	"PledgePay/entity"
)

type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*entity.Session
	seen        map[string]time.Time
	payments    []entity.PaymentRecord
	customTypes []entity.CustomType
	volunteers  map[string]entity.Volunteer
}

func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]*entity.Session),
		seen:       make(map[string]time.Time),
		volunteers: make(map[string]entity.Volunteer),
	}
}

func (s *Store) SaveSession(_ context.Context, session *entity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.LastActive = time.Now()
	session.Warned = false
	cp := *session
	cp.Data = make(map[string]string, len(session.Data))
	for k, v := range session.Data {
		cp.Data[k] = v
	}
	s.sessions[session.Phone] = &cp
	return nil
}

func (s *Store) LoadSession(_ context.Context, phone string) (*entity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[phone]
	if !ok {
		return nil, nil
	}
	cp := *stored
	cp.Data = make(map[string]string, len(stored.Data))
	for k, v := range stored.Data {
		cp.Data[k] = v
	}
	return &cp, nil
}

func (s *Store) DeleteSession(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.sessions[phone]
	delete(s.sessions, phone)
	return existed, nil
}

// UpdateSession writes a session only if it still exists, so a session
// claimed by the payment coordinator cannot be recreated mid-dialogue.
func (s *Store) UpdateSession(_ context.Context, session *entity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.Phone]; !ok {
		return nil
	}
	session.LastActive = time.Now()
	session.Warned = false
	cp := *session
	cp.Data = make(map[string]string, len(session.Data))
	for k, v := range session.Data {
		cp.Data[k] = v
	}
	s.sessions[session.Phone] = &cp
	return nil
}

func (s *Store) MarkSessionWarned(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[phone]; ok {
		session.Warned = true
	}
	return nil
}

func (s *Store) AllSessions(_ context.Context) ([]entity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	return out, nil
}

func (s *Store) SeenMessage(_ context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.seen[messageID]
	return ok, nil
}

func (s *Store) MarkMessageSeen(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[messageID]; !ok {
		s.seen[messageID] = time.Now()
	}
	return nil
}

func (s *Store) EvictSeenMessages(_ context.Context, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-window)
	for id, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, id)
		}
	}
	return nil
}

func (s *Store) AppendPayment(_ context.Context, record entity.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments = append(s.payments, record)
	return nil
}

func (s *Store) PaymentsSince(_ context.Context, cutoff time.Time) ([]entity.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.PaymentRecord
	for _, r := range s.payments {
		if !r.PaidAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ActiveCustomTypes(_ context.Context) ([]entity.CustomType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var out []entity.CustomType
	for _, t := range s.customTypes {
		if t.Active(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) AppendCustomType(_ context.Context, entry entity.CustomType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customTypes = append(s.customTypes, entry)
	return nil
}

func (s *Store) PruneExpiredCustomTypes(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	kept := s.customTypes[:0]
	for _, t := range s.customTypes {
		if !t.Expired(now) {
			kept = append(kept, t)
		}
	}
	s.customTypes = kept
	return nil
}

func (s *Store) ApproveCustomTypes(_ context.Context, addedBy, approvedBy string, expires *time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approved := 0
	for i := range s.customTypes {
		if s.customTypes[i].AddedBy == addedBy && s.customTypes[i].ApprovedOn.IsZero() {
			s.customTypes[i].ApprovedBy = approvedBy
			s.customTypes[i].ApprovedOn = time.Now()
			s.customTypes[i].Expires = expires
			approved++
		}
	}
	return approved, nil
}

func (s *Store) SaveVolunteer(_ context.Context, v entity.Volunteer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	s.volunteers[v.Phone] = v
	return nil
}

// Volunteer returns a stored registration, for test assertions.
func (s *Store) Volunteer(phone string) (entity.Volunteer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.volunteers[phone]
	return v, ok
}

// Payments returns a copy of the ledger, for test assertions.
func (s *Store) Payments() []entity.PaymentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.PaymentRecord, len(s.payments))
	copy(out, s.payments)
	return out
}
