package authors

type ListAuthorsQuery struct {
	Limit  int     `query:"limit" json:"limit,omitempty" default:"24" validate:"min=1,max=100"`
	Offset int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Search *string `query:"search" json:"search,omitempty" validate:"omitempty,max=100"`
}

type CreateAuthorPayload struct {
	Name string `json:"name" form:"name" mod:"trim" validate:"required,max=264"`
}

type UpdateAuthorPayload struct {
	Name *string `json:"name,omitempty" form:"name" mod:"trim" validate:"omitempty,min=1,max=264"`
}
