package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/bursar/core"
)

// Statuses
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusGraduated = "graduated"
	StatusWithdrawn = "withdrawn"
)

type Student struct {
	ID            int       `json:"id"`
	StudentNumber string    `json:"student_number"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	GuardianName  string    `json:"guardian_name"`
	GuardianEmail string    `json:"guardian_email"`
	GuardianPhone string    `json:"guardian_phone"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// ContactEmail is where receipts are sent by default: the guardian, then the student.
func (s Student) ContactEmail() (name, email string) {
	if s.GuardianEmail != "" {
		return s.GuardianName, s.GuardianEmail
	}
	return s.FullName(), s.Email
}

type NewStudent struct {
	StudentNumber string `json:"student_number" validate:"required,max=30,alphanum_"`
	FirstName     string `json:"first_name" validate:"required,max=100"`
	LastName      string `json:"last_name" validate:"required,max=100"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"omitempty,max=30"`
	GuardianName  string `json:"guardian_name" validate:"omitempty,max=200"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
	GuardianPhone string `json:"guardian_phone" validate:"omitempty,max=30"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.StudentNumber = core.CleanString(ns.StudentNumber)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.GuardianName = core.CleanString(ns.GuardianName)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
	ns.GuardianPhone = core.CleanString(ns.GuardianPhone)
	return validate.Struct(ns)
}

// UpdateStudent holds the fields to change; nil fields are left untouched.
type UpdateStudent struct {
	FirstName     *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName      *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Phone         *string `json:"phone" validate:"omitempty,max=30"`
	GuardianName  *string `json:"guardian_name" validate:"omitempty,max=200"`
	GuardianEmail *string `json:"guardian_email" validate:"omitempty,email"`
	GuardianPhone *string `json:"guardian_phone" validate:"omitempty,max=30"`
	Status        *string `json:"status" validate:"omitempty,oneof=active inactive graduated withdrawn"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{us.FirstName, us.LastName, us.Phone, us.GuardianName, us.GuardianPhone, us.Status} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	for _, fld := range []*string{us.Email, us.GuardianEmail} {
		if fld != nil {
			*fld = core.CleanString(*fld, true /* lower */)
		}
	}
	return validate.Struct(us)
}

// Field names a Student column that may be updated.
type Field string

const (
	FieldFirstName     Field = "first_name"
	FieldLastName      Field = "last_name"
	FieldEmail         Field = "email"
	FieldPhone         Field = "phone"
	FieldGuardianName  Field = "guardian_name"
	FieldGuardianEmail Field = "guardian_email"
	FieldGuardianPhone Field = "guardian_phone"
	FieldStatus        Field = "status"
)

// Changes lists the set fields of the update.
func (us UpdateStudent) Changes() map[Field]interface{} {
	changes := make(map[Field]interface{})
	set := func(f Field, v *string) {
		if v != nil {
			changes[f] = *v
		}
	}
	set(FieldFirstName, us.FirstName)
	set(FieldLastName, us.LastName)
	set(FieldEmail, us.Email)
	set(FieldPhone, us.Phone)
	set(FieldGuardianName, us.GuardianName)
	set(FieldGuardianEmail, us.GuardianEmail)
	set(FieldGuardianPhone, us.GuardianPhone)
	set(FieldStatus, us.Status)
	return changes
}

// Apply copies the changes onto s.
func (us UpdateStudent) Apply(s *Student) {
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&s.FirstName, us.FirstName)
	apply(&s.LastName, us.LastName)
	apply(&s.Email, us.Email)
	apply(&s.Phone, us.Phone)
	apply(&s.GuardianName, us.GuardianName)
	apply(&s.GuardianEmail, us.GuardianEmail)
	apply(&s.GuardianPhone, us.GuardianPhone)
	apply(&s.Status, us.Status)
}

type QueryFilter struct {
	Search string `query:"search"`
	Status string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
