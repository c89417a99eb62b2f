package domain

import "strconv"

// UserRecord is a user as returned by the users API. The id is assigned by
// the backend; the front-end never invents or patches records locally.
type UserRecord struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Key returns the row key used by the table: id, name and email concatenated.
func (u UserRecord) Key() string {
	return strconv.FormatInt(u.ID, 10) + u.Name + u.Email
}

// FormState is the transient content of the name and email inputs.
type FormState struct {
	Name  string `json:"name" form:"name"`
	Email string `json:"email" form:"email"`
}

// IsZero reports whether both inputs are empty.
func (f FormState) IsZero() bool {
	return f.Name == "" && f.Email == ""
}

// EditTarget marks the record being edited. The zero value means create mode.
type EditTarget struct {
	id  int64
	set bool
}

// NoEditTarget returns the create-mode target.
func NoEditTarget() EditTarget {
	return EditTarget{}
}

// EditTargetFor returns an update-mode target for id.
func EditTargetFor(id int64) EditTarget {
	return EditTarget{id: id, set: true}
}

// ID returns the target id and whether one is set.
func (t EditTarget) ID() (int64, bool) {
	return t.id, t.set
}

// Editing reports whether the target is in update mode.
func (t EditTarget) Editing() bool {
	return t.set
}

// MarshalJSON encodes the target as the id, or null in create mode.
func (t EditTarget) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.id, 10)), nil
}

// String implements fmt.Stringer.
func (t EditTarget) String() string {
	if !t.set {
		return "none"
	}
	return strconv.FormatInt(t.id, 10)
}
