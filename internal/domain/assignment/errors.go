package assignment

import "errors"

// Sentinel kinds for assignment errors.
var (
	// ErrNoTechnicianAvailable is a defined outcome, not a failure: the
	// eligible set was empty and the request needs manual assignment.
	ErrNoTechnicianAvailable = errors.New("no technicians available")

	// ErrAlreadyAssigned signals the request already has a work order.
	ErrAlreadyAssigned = errors.New("request already assigned")

	// ErrAssignmentInFlight signals another call is currently assigning
	// the same request in this process.
	ErrAssignmentInFlight = errors.New("assignment already in flight")
)
