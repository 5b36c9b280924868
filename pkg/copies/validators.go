package copies

type ListCopiesQuery struct {
	Limit     int   `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=200"`
	Offset    int   `query:"offset" json:"offset,omitempty" validate:"min=0"`
	BookID    *int  `query:"book_id" json:"book_id,omitempty" validate:"omitempty,min=1"`
	Available *bool `query:"available" json:"available,omitempty"`
}

type CreateCopyPayload struct {
	BookID int `json:"book_id" form:"book_id" validate:"required,min=1"`
}

type AddCopiesPayload struct {
	Count int `json:"count" form:"count" validate:"required,min=1,max=100"`
}
