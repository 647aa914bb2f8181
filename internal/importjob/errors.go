package importjob

import "errors"

var (
	// ErrSurfaceBusy is returned by Start while another job is processing on the same surface.
	ErrSurfaceBusy = errors.New("another import job is already processing on this surface")
	// ErrJobNotFound is returned when a job id is unknown to the manager.
	ErrJobNotFound = errors.New("import job not found")
	// ErrInvalidTransition is returned when an operation does not fit the job's current state.
	ErrInvalidTransition = errors.New("invalid import job state transition")
	// ErrCollaboratorUnavailable marks a collaborator failure that ended a job before any row
	// was processed.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrCancelled is returned by Run when the job was cancelled while it was running.
	ErrCancelled = errors.New("import job cancelled")
)

// CancelledMessage is the error appended to a job that was abandoned by its caller.
const CancelledMessage = "cancelled"
