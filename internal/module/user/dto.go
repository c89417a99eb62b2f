package user

import (
	"github.com/simp-lee/usercrud/internal/controller"
	"github.com/simp-lee/usercrud/internal/domain"
)

// FormRequest carries the name and email inputs. Both are free text; the
// users API is the only place that judges them.
type FormRequest struct {
	Name  string `json:"name" form:"name"`
	Email string `json:"email" form:"email"`
}

// State converts the request into controller form state.
func (r FormRequest) State() domain.FormState {
	return domain.FormState{Name: r.Name, Email: r.Email}
}

// IDParam is the :id path parameter of row actions.
type IDParam struct {
	ID int64 `uri:"id" binding:"gt=0"`
}

// Form modes reported by StateResponse.
const (
	ModeCreate = "create"
	ModeUpdate = "update"
)

// StateResponse is the JSON view of one session's controller.
type StateResponse struct {
	Users      []domain.UserRecord `json:"users"`
	Form       domain.FormState    `json:"form"`
	EditTarget domain.EditTarget   `json:"edit_target"`
	Mode       string              `json:"mode"`
	Busy       bool                `json:"busy"`
}

func newStateResponse(v controller.View) StateResponse {
	mode := ModeCreate
	if v.EditTarget.Editing() {
		mode = ModeUpdate
	}
	return StateResponse{
		Users:      v.Users,
		Form:       v.Form,
		EditTarget: v.EditTarget,
		Mode:       mode,
		Busy:       v.Busy,
	}
}
