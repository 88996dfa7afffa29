package directory

import (
	"context"
	"log"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	StudentByCard(ctx context.Context, code string) (*Student, error)
	ProfileByCard(ctx context.Context, code string) (*Profile, error)
	// CreateStudent inserts the student unless a row with the same card
	// already exists, and returns whichever row ends up owning the card.
	CreateStudent(ctx context.Context, s Student) (*Student, error)
	PromoteStudent(ctx context.Context, studentID string, p Profile) (*Student, error)
}

// Resolver maps card identifiers to students.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver backed by a store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve finds the student for a normalized card identifier.
//
// Order: directory lookup, then pending-registration lookup (promoting the
// profile into a real student row), then an unresolved placeholder so the
// ledger always has a foreign-key target. A nil student is returned only
// when the store itself fails; callers record the scan with a null student
// reference rather than dropping it.
func (r *Resolver) Resolve(ctx context.Context, code string) (*Student, error) {
	student, err := r.store.StudentByCard(ctx, code)
	if err != nil {
		return nil, err
	}
	if student != nil {
		return student, nil
	}

	profile, err := r.store.ProfileByCard(ctx, code)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return r.store.CreateStudent(ctx, studentFromProfile(code, *profile))
	}

	return r.store.CreateStudent(ctx, Student{
		Name:         UnknownName,
		MatricNumber: UnknownMatric,
		RFIDCode:     code,
		Unresolved:   true,
	})
}

// Promote re-checks the pending-registration directory for a card and, when
// a profile has appeared, fills in the placeholder student in place.
// Returns nil when there is still nothing to promote to.
func (r *Resolver) Promote(ctx context.Context, code string) (*Student, error) {
	profile, err := r.store.ProfileByCard(ctx, code)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, nil
	}

	student, err := r.store.StudentByCard(ctx, code)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return r.store.CreateStudent(ctx, studentFromProfile(code, *profile))
	}
	if !student.Unresolved {
		// First seen wins; a later profile does not overwrite a real record.
		return student, nil
	}

	promoted, err := r.store.PromoteStudent(ctx, student.ID, *profile)
	if err != nil {
		return nil, err
	}
	log.Printf("promoted placeholder student %s to %s", student.ID, promoted.Name)
	return promoted, nil
}

func studentFromProfile(code string, p Profile) Student {
	return Student{
		Name:         p.FullName,
		MatricNumber: p.MatricNumber,
		RFIDCode:     code,
		Department:   p.Department,
	}
}
