package account

import "context"

// Store describes persistence operations required by the account subsystem.
//
// Implementations must make UpdateFields atomic per record and must enforce
// username uniqueness inside Insert and UpdateFields, returning
// ErrDuplicateIdentity when a concurrent writer got there first.
type Store interface {
	// FindByIdentity returns ErrNotFound when no account has the username.
	FindByIdentity(ctx context.Context, username string) (Account, error)
	// FindByID returns ErrNotFound when no account has the id.
	FindByID(ctx context.Context, id int64) (Account, error)
	// UpdateFields applies patch to the account and returns the stored result.
	UpdateFields(ctx context.Context, id int64, patch Patch) (Account, error)
	// Insert assigns the next monotonic id to a and persists it.
	Insert(ctx context.Context, a Account) (Account, error)
	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}
