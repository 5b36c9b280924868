package binder

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type params struct {
	Hello string `json:"hello" mod:"trim" validate:"max=9"`
	Omit  string `json:"-"`
}

type rentParams struct {
	DailyRent  string `json:"daily_rent" form:"daily_rent" mod:"trim" validate:"required,money"`
	Code       string `json:"code" form:"code" validate:"omitempty,barcode"`
	RentedDays int    `json:"rented_days" form:"rented_days" default:"3" validate:"min=1"`
}

var (
	goodJSON             = `{"hello":" world "}`
	unknownFieldsErrJSON = `{"hello":"world","foo":"bar"}`
	typeErrJSON          = `{"hello":123}`
	validationErrJSON    = `{"hello":"0123456789"}`
)

func TestNew(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)
	assert.NotNil(t, b)

	t.Run("only allows application/json and application/x-www-form-urlencoded", func(tt *testing.T) {
		c := newContext(goodJSON, echo.MIMEApplicationXML)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), "Unsupported Media Type")
	})

	t.Run("disallows unknown fields", func(tt *testing.T) {
		c := newContext(unknownFieldsErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `Unknown Parameter "foo"`)
	})

	t.Run("returns a good message for type errors", func(tt *testing.T) {
		c := newContext(typeErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `"hello" should be of type string`)
	})

	t.Run("use mod tag to modify params", func(tt *testing.T) {
		c := newContext(goodJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		require.NoError(tt, err)
		assert.Equal(tt, "world", p.Hello)
	})

	t.Run("use validate tag to validate params", func(tt *testing.T) {
		c := newContext(validationErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), "length must be less than or equal to 9 characters")
	})
}

func TestBind_Money(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	good := []string{"0", "2", "2.5", "2.00", "99.99"}
	for _, v := range good {
		c := newContext(`{"daily_rent":"`+v+`"}`, echo.MIMEApplicationJSON)
		p := rentParams{}
		assert.NoError(t, b.Bind(&p, c), v)
		assert.Equal(t, 3, p.RentedDays)
	}

	bad := []string{"100", "-1", "1.234", "abc", "100.00"}
	for _, v := range bad {
		c := newContext(`{"daily_rent":"`+v+`"}`, echo.MIMEApplicationJSON)
		p := rentParams{}
		err := b.Bind(&p, c)
		require.Error(t, err, v)
		assert.Contains(t, err.Error(), "between 0 and 99.99")
	}
}

func TestBind_Form(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	c := newContext("daily_rent=4.50&code=000123456789&rented_days=5", echo.MIMEApplicationForm)
	p := rentParams{}
	require.NoError(t, b.Bind(&p, c))
	assert.Equal(t, "4.50", p.DailyRent)
	assert.Equal(t, "000123456789", p.Code)
	assert.Equal(t, 5, p.RentedDays)

	c = newContext("daily_rent=4.50&code=12AB", echo.MIMEApplicationForm)
	p = rentParams{}
	err = b.Bind(&p, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"code" should contain only digits`)
}

func newContext(payload, mime string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(echo.POST, "/", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, mime)
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr)
}
