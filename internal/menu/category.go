package menu

// Category is one of the three fixed menu sections. Each variant carries
// everything the codec and the cost engine need to treat it uniformly.
type Category struct {
	// Key is the section's key in the catalog document.
	Key string
	// Tag is the category segment of a form selection key (Cheese_toasty_0).
	Tag string
	// Marker starts a new instance in the flattened item list. Empty means
	// every token is its own instance.
	Marker string
	// Field is the order field holding this category's tokens.
	Field string
	// Label names one instance in admin displays.
	Label string
}

// MultiInstance reports whether the category groups extras into instances.
func (c Category) MultiInstance() bool {
	return c.Marker != ""
}

// IsMarker reports whether token delimits an instance of this category.
func (c Category) IsMarker(token string) bool {
	return c.Marker != "" && token == c.Marker
}

var (
	MainCourse = Category{Key: "mainCourse", Tag: "toasty", Marker: "NEW TOASTY", Field: "toasties", Label: "Toasty"}
	Drink      = Category{Key: "drinks", Tag: "drink", Field: "drinks", Label: "Drink"}
	Dessert    = Category{Key: "desert", Tag: "desert", Marker: "NEW DESERT", Field: "deserts", Label: "Waffle"}
)

// Categories returns the variants in display order.
func Categories() []Category {
	return []Category{MainCourse, Drink, Dessert}
}

// CategoryByTag looks up a variant by its selection-key segment.
func CategoryByTag(tag string) (Category, bool) {
	for _, c := range Categories() {
		if c.Tag == tag {
			return c, true
		}
	}
	return Category{}, false
}
