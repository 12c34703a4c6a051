package product

import (
	"reflect"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ValidationError lists the fields of an Input or Patch that were rejected,
// keyed by wire name, with a human-readable message each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid product: " + strings.Join(parts, "; ")
}

// fieldRule describes how one product field is checked and reported.
type fieldRule struct {
	name     string
	tag      string
	messages map[string]string
}

var rules = map[string]fieldRule{
	"Title": {name: "title", tag: "required", messages: map[string]string{
		"required": "Title is required",
	}},
	"Description": {name: "description", tag: "required", messages: map[string]string{
		"required": "Description is required",
	}},
	"Price": {name: "price", tag: "gt=0", messages: map[string]string{
		"gt": "Price must be greater than 0",
	}},
	"DiscountPercentage": {name: "discountPercentage", tag: "gte=0,lte=100", messages: map[string]string{
		"gte": "Discount must be between 0 and 100",
		"lte": "Discount must be between 0 and 100",
	}},
	"Rating": {name: "rating", tag: "gte=0,lte=5", messages: map[string]string{
		"gte": "Rating must be between 0 and 5",
		"lte": "Rating must be between 0 and 5",
	}},
	"Stock": {name: "stock", tag: "gte=0", messages: map[string]string{
		"gte": "Stock cannot be negative",
	}},
	"Brand": {name: "brand", tag: "required", messages: map[string]string{
		"required": "Brand is required",
	}},
	"Category": {name: "category", tag: "required,category", messages: map[string]string{
		"required": "Category is required",
		"category": "Category is not supported",
	}},
	"Thumbnail": {name: "thumbnail", tag: "omitempty,url", messages: map[string]string{
		"url": "Thumbnail must be a valid URL",
	}},
}

// Validator checks product inputs and patches before they reach the cache.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator with the decimal type and the closed
// category set registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return Category(fl.Field().String()).Valid()
	})
	return &Validator{v: v}
}

func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return nil
}

// Input normalizes in and validates it.
func (v *Validator) Input(in Input) (Input, error) {
	in = in.Normalize()

	err := v.v.Struct(in)
	if err == nil {
		return in, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return in, errors.Wrap(err, "validate input")
	}

	verr := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.add(fe.StructField(), fe.Tag())
	}
	return in, verr
}

// Patch validates every field the patch sets, using the same rules as Input.
// An empty patch is rejected.
func (v *Validator) Patch(p Patch) (Patch, error) {
	if p.Empty() {
		return p, &ValidationError{Fields: map[string]string{"patch": "Nothing to update"}}
	}

	p = trimPatch(p)
	verr := &ValidationError{Fields: make(map[string]string)}

	check := func(field string, value any) {
		rule := rules[field]
		if err := v.v.Var(value, rule.tag); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				verr.add(field, fieldErrs[0].Tag())
				return
			}
			verr.add(field, "")
		}
	}

	if p.Title != nil {
		check("Title", *p.Title)
	}
	if p.Description != nil {
		check("Description", *p.Description)
	}
	if p.Price != nil {
		check("Price", *p.Price)
	}
	if p.DiscountPercentage != nil {
		check("DiscountPercentage", *p.DiscountPercentage)
	}
	if p.Rating != nil {
		check("Rating", *p.Rating)
	}
	if p.Stock != nil {
		check("Stock", *p.Stock)
	}
	if p.Brand != nil {
		check("Brand", *p.Brand)
	}
	if p.Category != nil {
		check("Category", *p.Category)
	}
	if p.Thumbnail != nil {
		check("Thumbnail", *p.Thumbnail)
	}

	if len(verr.Fields) > 0 {
		return p, verr
	}
	return p, nil
}

func (e *ValidationError) add(field, tag string) {
	rule, ok := rules[field]
	if !ok {
		e.Fields[field] = "invalid value"
		return
	}
	msg, ok := rule.messages[tag]
	if !ok {
		msg = "invalid value"
	}
	e.Fields[rule.name] = msg
}

func trimPatch(p Patch) Patch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		return ptr(strings.TrimSpace(*s))
	}
	p.Title = trim(p.Title)
	p.Description = trim(p.Description)
	p.Brand = trim(p.Brand)
	p.Thumbnail = trim(p.Thumbnail)
	if p.Category != nil {
		p.Category = ptr(Category(strings.TrimSpace(string(*p.Category))))
	}
	return p
}
