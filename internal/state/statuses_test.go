package state

import (
	"testing"
)

func TestJobStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected bool
	}{
		{
			name:     "Created status",
			status:   JobCreated,
			expected: false,
		},
		{
			name:     "Dispatching status",
			status:   JobDispatching,
			expected: false,
		},
		{
			name:     "InProgress status",
			status:   JobInProgress,
			expected: false,
		},
		{
			name:     "Completed status",
			status:   JobCompleted,
			expected: true,
		},
		{
			name:     "Failed status",
			status:   JobFailed,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.status.IsTerminal()
			if result != tt.expected {
				t.Errorf("IsTerminal() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestAttemptStatus_IsTerminal(t *testing.T) {
	if AttemptTransientFailure.IsTerminal() {
		t.Errorf("transient failure must not be terminal")
	}
	if !AttemptPermanentFailure.IsTerminal() || !AttemptSucceeded.IsTerminal() {
		t.Errorf("succeeded and permanent failure must be terminal")
	}
}

func TestIsValidTransition_Job(t *testing.T) {
	tests := []struct {
		name     string
		from     JobStatus
		to       JobStatus
		expected bool
	}{
		{
			name:     "Valid: Created to Dispatching",
			from:     JobCreated,
			to:       JobDispatching,
			expected: true,
		},
		{
			name:     "Valid: Dispatching to InProgress",
			from:     JobDispatching,
			to:       JobInProgress,
			expected: true,
		},
		{
			name:     "Valid: InProgress to Completed",
			from:     JobInProgress,
			to:       JobCompleted,
			expected: true,
		},
		{
			name:     "Valid: InProgress to Failed",
			from:     JobInProgress,
			to:       JobFailed,
			expected: true,
		},
		{
			name:     "Invalid: Created to Completed",
			from:     JobCreated,
			to:       JobCompleted,
			expected: false,
		},
		{
			name:     "Invalid: Completed to Failed",
			from:     JobCompleted,
			to:       JobFailed,
			expected: false,
		},
		{
			name:     "Invalid: Failed to InProgress",
			from:     JobFailed,
			to:       JobInProgress,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidTransition(JobTransitions, tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsValidTransition_Attempt(t *testing.T) {
	tests := []struct {
		name     string
		from     AttemptStatus
		to       AttemptStatus
		expected bool
	}{
		{
			name:     "Valid: TransientFailure to Pending",
			from:     AttemptTransientFailure,
			to:       AttemptPending,
			expected: true,
		},
		{
			name:     "Valid: Dispatched to PermanentFailure",
			from:     AttemptDispatched,
			to:       AttemptPermanentFailure,
			expected: true,
		},
		{
			name:     "Invalid: PermanentFailure to Pending",
			from:     AttemptPermanentFailure,
			to:       AttemptPending,
			expected: false,
		},
		{
			name:     "Invalid: Pending to Succeeded",
			from:     AttemptPending,
			to:       AttemptSucceeded,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidTransition(AttemptTransitions, tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition() = %v, want %v", result, tt.expected)
			}
		})
	}
}
