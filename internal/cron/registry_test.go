package cron

import (
	"context"
	"slices"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	if err := registry.Register(jobA); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.Register(jobB); err != nil {
		t.Fatalf("register b: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
	if got := registry.Names(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	first := &stubJob{name: "stale-claim-sweep"}
	registry := NewRegistry(first, nil, &stubJob{name: "stale-claim-sweep"})

	if jobs := registry.Jobs(); len(jobs) != 1 || jobs[0] != first {
		t.Fatalf("expected only the first job to be kept, got %v", jobs)
	}
	if err := registry.Register(&stubJob{name: "stale-claim-sweep"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatal("expected nil job to be rejected")
	}
}
