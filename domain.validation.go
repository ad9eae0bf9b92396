package main

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var isbnPattern = regexp.MustCompile(`^[0-9]{10}$|^[0-9]{13}$`)

// BookRequest is the payload accepted to create or update a book.
// Optional fields are pointers so that absence can be told apart
// from zero values.
type BookRequest struct {
	Title           string      `json:"title" validate:"notblank,max=255"`
	Author          string      `json:"author" validate:"notblank,max=255"`
	ISBN            *string     `json:"isbn" validate:"omitempty,isbn"`
	PublicationYear *int        `json:"publicationYear" validate:"omitempty,min=1000,max=2025"`
	Category        *string     `json:"category" validate:"omitempty,max=100"`
	Description     *string     `json:"description" validate:"omitempty,max=2000"`
	StockQuantity   *int        `json:"stockQuantity" validate:"omitempty,min=0"`
	Price           *float64    `json:"price" validate:"omitempty,min=0"`
	Status          *BookStatus `json:"status" validate:"omitempty,bookstatus"`
}

// NewBook builds the book to be created. Missing stock defaults to 0
// and missing status defaults to AVAILABLE.
func (br BookRequest) NewBook() Book {
	book := Book{Status: StatusAvailable}
	br.ApplyTo(&book)
	return book
}

// ApplyTo overwrites the book fields with the request values. The stock
// and the status are kept when the request does not carry them.
func (br BookRequest) ApplyTo(book *Book) {
	book.Title = br.Title
	book.Author = br.Author
	book.ISBN = br.ISBN
	book.PublicationYear = br.PublicationYear
	book.Category = br.Category
	book.Description = br.Description
	book.Price = br.Price
	if br.StockQuantity != nil {
		book.StockQuantity = *br.StockQuantity
	}
	if br.Status != nil {
		book.Status = *br.Status
	}
}

// ValidationErrors maps each invalid field to its message.
type ValidationErrors map[string]string

func (ve ValidationErrors) Error() string {
	fields := make([]string, 0, len(ve))
	for field := range ve {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+ve[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var bookValidator = newBookValidator()

func newBookValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("isbn", func(fl validator.FieldLevel) bool {
		return isbnPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("bookstatus", func(fl validator.FieldLevel) bool {
		return BookStatus(fl.Field().String()).IsValid()
	})
	return v
}

var validationMessages = map[string]string{
	"title.notblank":      "title is required",
	"title.max":           "title must be between 1 and 255 characters",
	"author.notblank":     "author is required",
	"author.max":          "author must be between 1 and 255 characters",
	"isbn.isbn":           "isbn must be 10 or 13 digits",
	"publicationYear.min": "publication year must be between 1000 and 2025",
	"publicationYear.max": "publication year must be between 1000 and 2025",
	"category.max":        "category must not exceed 100 characters",
	"description.max":     "description must not exceed 2000 characters",
	"stockQuantity.min":   "stock quantity cannot be negative",
	"price.min":           "price cannot be negative",
	"status.bookstatus":   "status must be one of AVAILABLE, BORROWED, RESERVED, LOST, DAMAGED",
}

// Validate checks every field of the request and reports all violations at once.
func (br *BookRequest) Validate() error {
	err := bookValidator.Struct(br)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verrs := make(ValidationErrors, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, exists := verrs[fe.Field()]; exists {
			continue
		}
		msg, ok := validationMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%s is invalid", fe.Field())
		}
		verrs[fe.Field()] = msg
	}
	return verrs
}
