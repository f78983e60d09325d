package engine

import "testing"

func TestEnsureProjectTransition(t *testing.T) {
	allowed := [][2]string{
		{"draft", "open"},
		{"open", "in_progress"},
		{"open", "cancelled"},
		{"in_progress", "completed"},
		{"in_progress", "cancelled"},
	}
	for _, pair := range allowed {
		if err := ensureProjectTransition(pair[0], pair[1]); err != nil {
			t.Errorf("%s -> %s should be allowed: %v", pair[0], pair[1], err)
		}
	}
	forbidden := [][2]string{
		{"draft", "in_progress"},
		{"draft", "completed"},
		{"draft", "cancelled"},
		{"open", "completed"},
		{"open", "draft"},
		{"in_progress", "open"},
		{"completed", "open"},
		{"cancelled", "open"},
		{"open", "open"},
	}
	for _, pair := range forbidden {
		if err := ensureProjectTransition(pair[0], pair[1]); err == nil {
			t.Errorf("%s -> %s should be forbidden", pair[0], pair[1])
		}
	}
}

func TestEnsureBidTransition(t *testing.T) {
	for _, target := range []string{"accepted", "rejected", "withdrawn"} {
		if err := ensureBidTransition("pending", target); err != nil {
			t.Errorf("pending -> %s should be allowed: %v", target, err)
		}
		// every non-pending state is terminal
		for _, from := range []string{"accepted", "rejected", "withdrawn"} {
			if err := ensureBidTransition(from, target); err == nil {
				t.Errorf("%s -> %s should be forbidden", from, target)
			}
		}
	}
	if err := ensureBidTransition("pending", "pending"); err == nil {
		t.Errorf("pending -> pending should be forbidden")
	}
}

func TestEnsureMilestoneTransition(t *testing.T) {
	allowed := [][2]string{
		{"pending", "in_progress"},
		{"pending", "blocked"},
		{"in_progress", "completed"},
		{"in_progress", "blocked"},
		{"blocked", "in_progress"},
	}
	for _, pair := range allowed {
		if err := ensureMilestoneTransition(pair[0], pair[1]); err != nil {
			t.Errorf("%s -> %s should be allowed: %v", pair[0], pair[1], err)
		}
	}
	forbidden := [][2]string{
		{"pending", "completed"},
		{"blocked", "completed"},
		{"blocked", "pending"},
		{"completed", "in_progress"},
		{"in_progress", "pending"},
		{"blocked", "blocked"},
	}
	for _, pair := range forbidden {
		if err := ensureMilestoneTransition(pair[0], pair[1]); err == nil {
			t.Errorf("%s -> %s should be forbidden", pair[0], pair[1])
		}
	}
}
