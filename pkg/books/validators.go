package books

import "mime/multipart"

type ListBooksQuery struct {
	Limit         int     `query:"limit" json:"limit,omitempty" default:"24" validate:"min=1,max=100"`
	Offset        int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	AuthorID      *int    `query:"author_id" json:"author_id,omitempty" validate:"omitempty,min=1"`
	Search        *string `query:"search" json:"search,omitempty" validate:"omitempty,max=100"`
	AvailableOnly bool    `query:"available_only" json:"available_only,omitempty"`
}

type CreateBookPayload struct {
	Title     string `json:"title" form:"title" mod:"trim" validate:"required,max=264"`
	AuthorID  int    `json:"author_id" form:"author_id" validate:"required,min=1"`
	DailyRent string `json:"daily_rent" form:"daily_rent" mod:"trim" default:"0" validate:"money"`
	// Copies is how many copies to shelve right away.
	Copies int `json:"copies" form:"copies" validate:"min=0,max=100"`
}

type UpdateBookPayload struct {
	Title     *string `json:"title,omitempty" form:"title" mod:"trim" validate:"omitempty,min=1,max=264"`
	AuthorID  *int    `json:"author_id,omitempty" form:"author_id" validate:"omitempty,min=1"`
	DailyRent *string `json:"daily_rent,omitempty" form:"daily_rent" mod:"trim" validate:"omitempty,money"`
}

type UploadCoverPayload struct {
	FormFiles map[string]*multipart.FileHeader `json:"-" form:"-"`
}
