// Package v1 provides the client-side business logic for version 1 of the
// Codeyard API: authentication, cached catalog reads and optimistic solution
// mutations.
//
// Error Handling:
// API failures reach callers as *client.APIError, wrapped with context using
// fmt.Errorf("%w"). The sentinels below cover failures detected locally,
// before any request is sent.
//
// Error Checking (in the CLI):
//
//	switch {
//	case errors.Is(err, logicv1.ErrNotAuthenticated):
//	    fmt.Fprintln(stderr, "Please log in first.")
//	case errors.Is(err, client.ErrForbidden):
//	    fmt.Fprintln(stderr, client.DefaultMessages.Text(err))
//	}
package v1

import "errors"

var (
	// ErrNotAuthenticated indicates the operation needs a logged-in session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrPasswordMismatch indicates the registration passwords differ.
	ErrPasswordMismatch = errors.New("passwords do not match")

	// ErrInvalidReviewType indicates a review type other than 0 or 1.
	ErrInvalidReviewType = errors.New("invalid review type")

	// ErrOwnSolution indicates the viewer tried to review their own solution.
	ErrOwnSolution = errors.New("cannot review own solution")

	// ErrInvalidOrdering indicates an unsupported task ordering.
	ErrInvalidOrdering = errors.New("invalid ordering")

	// ErrInvalidPage indicates a page number below 1.
	ErrInvalidPage = errors.New("invalid page")
)
