package product

// Category is one of the closed set of catalog categories.
type Category string

const (
	CategorySmartphones     Category = "smartphones"
	CategoryLaptops         Category = "laptops"
	CategoryFragrances      Category = "fragrances"
	CategorySkincare        Category = "skincare"
	CategoryGroceries       Category = "groceries"
	CategoryHomeDecoration  Category = "home-decoration"
	CategoryFurniture       Category = "furniture"
	CategoryTops            Category = "tops"
	CategoryWomensDresses   Category = "womens-dresses"
	CategoryWomensShoes     Category = "womens-shoes"
	CategoryMensShirts      Category = "mens-shirts"
	CategoryMensShoes       Category = "mens-shoes"
	CategoryMensWatches     Category = "mens-watches"
	CategoryWomensWatches   Category = "womens-watches"
	CategoryWomensBags      Category = "womens-bags"
	CategoryWomensJewellery Category = "womens-jewellery"
	CategorySunglasses      Category = "sunglasses"
	CategoryAutomotive      Category = "automotive"
	CategoryMotorcycle      Category = "motorcycle"
	CategoryLighting        Category = "lighting"
)

var categories = []Category{
	CategorySmartphones,
	CategoryLaptops,
	CategoryFragrances,
	CategorySkincare,
	CategoryGroceries,
	CategoryHomeDecoration,
	CategoryFurniture,
	CategoryTops,
	CategoryWomensDresses,
	CategoryWomensShoes,
	CategoryMensShirts,
	CategoryMensShoes,
	CategoryMensWatches,
	CategoryWomensWatches,
	CategoryWomensBags,
	CategoryWomensJewellery,
	CategorySunglasses,
	CategoryAutomotive,
	CategoryMotorcycle,
	CategoryLighting,
}

// Categories returns the closed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c belongs to the closed set.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}
