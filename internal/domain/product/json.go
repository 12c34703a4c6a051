package product

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode writes the product as a JSON object.
func (p Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	p.encodeFields(e)
	e.ObjEnd()
}

func (p Product) encodeFields(e *jx.Encoder) {
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("discountPercentage")
	encodeDecimal(e, p.DiscountPercentage)
	e.FieldStart("rating")
	e.Float64(p.Rating)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("category")
	e.Str(string(p.Category))
	if p.Thumbnail != "" {
		e.FieldStart("thumbnail")
		e.Str(p.Thumbnail)
	}
}

// Decode reads a product object. Unknown fields are skipped.
func (p *Product) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Int64()
		case "title":
			p.Title, err = decodeStr(d)
		case "description":
			p.Description, err = decodeStr(d)
		case "price":
			p.Price, err = decodeDecimal(d)
		case "discountPercentage":
			p.DiscountPercentage, err = decodeDecimal(d)
		case "rating":
			p.Rating, err = decodeFloat(d)
		case "stock":
			p.Stock, err = decodeInt(d)
		case "brand":
			p.Brand, err = decodeStr(d)
		case "category":
			var s string
			s, err = decodeStr(d)
			p.Category = Category(s)
		case "thumbnail":
			p.Thumbnail, err = decodeStr(d)
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}

// Encode writes the create payload.
func (in Input) Encode(e *jx.Encoder) {
	e.ObjStart()
	in.Product(0).encodeFields(e)
	e.ObjEnd()
}

// Decode reads a create payload. Unknown fields are skipped.
func (in *Input) Decode(d *jx.Decoder) error {
	var p Product
	if err := p.Decode(d); err != nil {
		return err
	}
	*in = Input{
		Title:              p.Title,
		Description:        p.Description,
		Price:              p.Price,
		DiscountPercentage: p.DiscountPercentage,
		Rating:             p.Rating,
		Stock:              p.Stock,
		Brand:              p.Brand,
		Category:           p.Category,
		Thumbnail:          p.Thumbnail,
	}
	return nil
}

// Encode writes only the fields the patch sets.
func (p Patch) Encode(e *jx.Encoder) {
	e.ObjStart()
	if p.Title != nil {
		e.FieldStart("title")
		e.Str(*p.Title)
	}
	if p.Description != nil {
		e.FieldStart("description")
		e.Str(*p.Description)
	}
	if p.Price != nil {
		e.FieldStart("price")
		encodeDecimal(e, *p.Price)
	}
	if p.DiscountPercentage != nil {
		e.FieldStart("discountPercentage")
		encodeDecimal(e, *p.DiscountPercentage)
	}
	if p.Rating != nil {
		e.FieldStart("rating")
		e.Float64(*p.Rating)
	}
	if p.Stock != nil {
		e.FieldStart("stock")
		e.Int(*p.Stock)
	}
	if p.Brand != nil {
		e.FieldStart("brand")
		e.Str(*p.Brand)
	}
	if p.Category != nil {
		e.FieldStart("category")
		e.Str(string(*p.Category))
	}
	if p.Thumbnail != nil {
		e.FieldStart("thumbnail")
		e.Str(*p.Thumbnail)
	}
	e.ObjEnd()
}

// Decode reads a partial update. Absent and null fields stay unset; the id
// field is ignored.
func (p *Patch) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "title":
			p.Title, err = decodePtr(d, decodeStr)
		case "description":
			p.Description, err = decodePtr(d, decodeStr)
		case "price":
			p.Price, err = decodePtr(d, decodeDecimal)
		case "discountPercentage":
			p.DiscountPercentage, err = decodePtr(d, decodeDecimal)
		case "rating":
			p.Rating, err = decodePtr(d, decodeFloat)
		case "stock":
			p.Stock, err = decodePtr(d, decodeInt)
		case "brand":
			p.Brand, err = decodePtr(d, decodeStr)
		case "category":
			var s *string
			s, err = decodePtr(d, decodeStr)
			if s != nil {
				p.Category = ptr(Category(*s))
			}
		case "thumbnail":
			p.Thumbnail, err = decodePtr(d, decodeStr)
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}

// Encode writes the collection in the upstream list shape.
func (c Collection) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("products")
	e.ArrStart()
	for _, p := range c.Products {
		p.Encode(e)
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Int(c.Total)
	e.FieldStart("skip")
	e.Int(c.Skip)
	e.FieldStart("limit")
	e.Int(c.Limit)
	e.ObjEnd()
}

// Decode reads a collection in the upstream list shape.
func (c *Collection) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "products":
			c.Products = c.Products[:0]
			err = d.Arr(func(d *jx.Decoder) error {
				var p Product
				if err := p.Decode(d); err != nil {
					return err
				}
				c.Products = append(c.Products, p)
				return nil
			})
		case "total":
			c.Total, err = d.Int()
		case "skip":
			c.Skip, err = d.Int()
		case "limit":
			c.Limit, err = d.Int()
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Decimal{}, d.Null()
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	}
}

func decodeStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeFloat(d *jx.Decoder) (float64, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	return d.Float64()
}

// decodeInt tolerates integral floats such as 5.0.
func decodeInt(d *jx.Decoder) (int, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	n, err := d.Num()
	if err != nil {
		return 0, err
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, err
	}
	if !v.IsInteger() {
		return 0, errors.Errorf("%s is not an integer", n)
	}
	return int(v.IntPart()), nil
}

func decodePtr[T any](d *jx.Decoder, decode func(*jx.Decoder) (T, error)) (*T, error) {
	v, err := decode(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
