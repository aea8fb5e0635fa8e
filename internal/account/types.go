package account

// Account is a persisted user record. Timestamps are epoch seconds, except
// PasswordChangedAt which is epoch milliseconds; zero means the event never
// happened.
type Account struct {
	ID                int64  `json:"id"`
	Username          string `json:"username"`
	PasswordHash      string `json:"password"`
	IsAdmin           bool   `json:"is_admin"`
	IsSuspended       bool   `json:"is_suspended"`
	CreatedAt         int64  `json:"created_at"`
	SuspendedAt       int64  `json:"suspended_at,omitempty"`
	PasswordChangedAt int64  `json:"password_changed_at,omitempty"`
	UsernameChangedAt int64  `json:"username_changed_at,omitempty"`
	ProfilePicture    string `json:"profile_picture,omitempty"`
}

// Patch lists the fields to overwrite in UpdateFields. Nil pointers are left
// untouched.
type Patch struct {
	Username          *string
	PasswordHash      *string
	IsAdmin           *bool
	IsSuspended       *bool
	SuspendedAt       *int64
	PasswordChangedAt *int64
	UsernameChangedAt *int64
	ProfilePicture    *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Username == nil && p.PasswordHash == nil && p.IsAdmin == nil &&
		p.IsSuspended == nil && p.SuspendedAt == nil && p.PasswordChangedAt == nil &&
		p.UsernameChangedAt == nil && p.ProfilePicture == nil
}

// Apply copies the set fields of p onto a.
func (p Patch) Apply(a *Account) {
	if p.Username != nil {
		a.Username = *p.Username
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.IsAdmin != nil {
		a.IsAdmin = *p.IsAdmin
	}
	if p.IsSuspended != nil {
		a.IsSuspended = *p.IsSuspended
	}
	if p.SuspendedAt != nil {
		a.SuspendedAt = *p.SuspendedAt
	}
	if p.PasswordChangedAt != nil {
		a.PasswordChangedAt = *p.PasswordChangedAt
	}
	if p.UsernameChangedAt != nil {
		a.UsernameChangedAt = *p.UsernameChangedAt
	}
	if p.ProfilePicture != nil {
		a.ProfilePicture = *p.ProfilePicture
	}
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T { return &v }
