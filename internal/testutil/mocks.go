// Package testutil provides shared test doubles for domain interfaces, in
// the spirit of net/http/httptest.
package testutil

import (
	"context"
	"sync"

	"bi-demo/internal/domain"
)

// === Stats spy ===

// StatsCall is one recorded IncrStats invocation.
type StatsCall struct {
	Bucket   domain.MetricBucket
	FuncName string
}

// StatsSpy implements domain.StatsRecorder and records every call.
type StatsSpy struct {
	mu    sync.Mutex
	calls []StatsCall
}

// IncrStats records the call.
func (s *StatsSpy) IncrStats(bucket domain.MetricBucket, funcName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, StatsCall{Bucket: bucket, FuncName: funcName})
}

// Calls returns a copy of the recorded calls.
func (s *StatsSpy) Calls() []StatsCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StatsCall(nil), s.calls...)
}

// Reset forgets all recorded calls.
func (s *StatsSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// === Fixture store mock ===

// MockFixtureStore implements domain.FixtureStore in memory. Rows match
// criteria through Match; Save assigns ids through SetID when an id is zero.
type MockFixtureStore[T any] struct {
	Rows  []*T
	Match func(row *T, criteria map[string]any) bool
	ID    func(row *T) int64
	SetID func(row *T, id int64)

	FindCalls int
	SaveCalls int
	nextID    int64
}

// FindFirst implements the interface method for testing.
func (m *MockFixtureStore[T]) FindFirst(_ context.Context, criteria map[string]any) (*T, error) {
	m.FindCalls++
	for _, r := range m.Rows {
		if m.Match(r, criteria) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

// Save implements the interface method for testing.
func (m *MockFixtureStore[T]) Save(_ context.Context, obj *T) (*T, error) {
	m.SaveCalls++
	cp := *obj
	if m.ID(&cp) == 0 {
		m.nextID++
		m.SetID(&cp, m.nextID)
	} else if m.ID(&cp) > m.nextID {
		m.nextID = m.ID(&cp)
	}
	for i, r := range m.Rows {
		if m.ID(r) == m.ID(&cp) {
			m.Rows[i] = &cp
			out := cp
			return &out, nil
		}
	}
	m.Rows = append(m.Rows, &cp)
	out := cp
	return &out, nil
}

// === Query Repository Mock ===

// MockQueryRepo implements domain.QueryRepository for testing.
type MockQueryRepo struct {
	CreateFn        func(ctx context.Context, q *domain.Query) (*domain.Query, error)
	FinishFn        func(ctx context.Context, q *domain.Query) error
	GetByClientIDFn func(ctx context.Context, clientID string) (*domain.Query, error)
}

// Create implements the interface method for testing.
func (m *MockQueryRepo) Create(ctx context.Context, q *domain.Query) (*domain.Query, error) {
	if m.CreateFn == nil {
		panic("unexpected call to MockQueryRepo.Create")
	}
	return m.CreateFn(ctx, q)
}

// Finish implements the interface method for testing.
func (m *MockQueryRepo) Finish(ctx context.Context, q *domain.Query) error {
	if m.FinishFn == nil {
		panic("unexpected call to MockQueryRepo.Finish")
	}
	return m.FinishFn(ctx, q)
}

// GetByClientID implements the interface method for testing.
func (m *MockQueryRepo) GetByClientID(ctx context.Context, clientID string) (*domain.Query, error) {
	if m.GetByClientIDFn == nil {
		panic("unexpected call to MockQueryRepo.GetByClientID")
	}
	return m.GetByClientIDFn(ctx, clientID)
}

// Compile-time interface checks.
var (
	_ domain.StatsRecorder                 = (*StatsSpy)(nil)
	_ domain.FixtureStore[domain.Database] = (*MockFixtureStore[domain.Database])(nil)
	_ domain.QueryRepository               = (*MockQueryRepo)(nil)
)
