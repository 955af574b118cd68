package order

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/toastysunday/api/internal/menu"
)

// MaxInstances bounds the instances of one multi-instance category, both as
// an explicit count and as a key index.
const MaxInstances = 20

// Selection is a submitted order form: category toggles, optional explicit
// instance counts and the checked extra keys (extraName_category_index).
type Selection struct {
	WantMain     bool     `json:"want_main"`
	WantDrink    bool     `json:"want_drink"`
	WantDessert  bool     `json:"want_dessert"`
	ToastyCount  int      `json:"toasty_count,omitempty"`
	DessertCount int      `json:"dessert_count,omitempty"`
	Checked      []string `json:"checked"`
}

func (s Selection) wants(cat menu.Category) bool {
	switch cat.Key {
	case menu.MainCourse.Key:
		return s.WantMain
	case menu.Drink.Key:
		return s.WantDrink
	case menu.Dessert.Key:
		return s.WantDessert
	}
	return false
}

func (s Selection) count(cat menu.Category) int {
	switch cat.Key {
	case menu.MainCourse.Key:
		return s.ToastyCount
	case menu.Dessert.Key:
		return s.DessertCount
	}
	return 0
}

func (s *Selection) want(cat menu.Category, on bool, count int) {
	switch cat.Key {
	case menu.MainCourse.Key:
		s.WantMain, s.ToastyCount = on, count
	case menu.Drink.Key:
		s.WantDrink = on
	case menu.Dessert.Key:
		s.WantDessert, s.DessertCount = on, count
	}
}

// SelectionKey is one parsed checkbox key.
type SelectionKey struct {
	Extra    string
	Category menu.Category
	Index    int
}

// String formats the key back into its form name.
func (k SelectionKey) String() string {
	return k.Extra + "_" + k.Category.Tag + "_" + strconv.Itoa(k.Index)
}

// ParseSelectionKey splits extraName_category_index. It reads from the right
// so extra names may themselves contain underscores.
func ParseSelectionKey(raw string) (SelectionKey, error) {
	i := strings.LastIndexByte(raw, '_')
	if i <= 0 {
		return SelectionKey{}, fmt.Errorf("%w: %q", ErrMalformedSelection, raw)
	}
	index, err := strconv.Atoi(raw[i+1:])
	if err != nil || index < 0 {
		return SelectionKey{}, fmt.Errorf("%w: %q has no instance index", ErrMalformedSelection, raw)
	}
	if index >= MaxInstances {
		return SelectionKey{}, fmt.Errorf("%w: %q instance index exceeds %d", ErrMalformedSelection, raw, MaxInstances-1)
	}
	rest := raw[:i]
	j := strings.LastIndexByte(rest, '_')
	if j <= 0 {
		return SelectionKey{}, fmt.Errorf("%w: %q", ErrMalformedSelection, raw)
	}
	cat, ok := menu.CategoryByTag(rest[j+1:])
	if !ok {
		return SelectionKey{}, fmt.Errorf("%w: %q has unknown category %q", ErrMalformedSelection, raw, rest[j+1:])
	}
	return SelectionKey{Extra: rest[:j], Category: cat, Index: index}, nil
}

// Decode groups the checked keys of every toggled-on category into Items.
// Keys of toggled-off categories are ignored. Extras keep their submission
// order inside an instance; instances are emitted by ascending index.
func Decode(sel Selection) (Items, error) {
	byCategory := make(map[string][]SelectionKey, 3)
	for _, raw := range sel.Checked {
		k, err := ParseSelectionKey(raw)
		if err != nil {
			return Items{}, err
		}
		byCategory[k.Category.Key] = append(byCategory[k.Category.Key], k)
	}

	var items Items
	for _, cat := range menu.Categories() {
		tokens := []string{}
		if sel.wants(cat) {
			keys := byCategory[cat.Key]
			if cat.MultiInstance() {
				count := sel.count(cat)
				if count < 0 || count > MaxInstances {
					return Items{}, fmt.Errorf("%w: %s count %d outside 0..%d", ErrMalformedSelection, cat.Label, count, MaxInstances)
				}
				tokens = decodeInstances(cat, keys, count)
			} else {
				for _, k := range keys {
					tokens = append(tokens, k.Extra)
				}
			}
		}
		items.setTokens(cat, tokens)
	}
	return items, nil
}

func decodeInstances(cat menu.Category, keys []SelectionKey, count int) []string {
	present := make(map[int]bool, count+len(keys))
	for i := 0; i < count; i++ {
		present[i] = true
	}
	for _, k := range keys {
		present[k.Index] = true
	}
	if len(present) == 0 {
		present[0] = true
	}

	indices := make([]int, 0, len(present))
	for i := range present {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	tokens := make([]string, 0, len(indices)+len(keys))
	for _, idx := range indices {
		tokens = append(tokens, cat.Marker)
		for _, k := range keys {
			if k.Index == idx {
				tokens = append(tokens, k.Extra)
			}
		}
	}
	return tokens
}

// Encode is the inverse of Decode for well-formed items: it produces the
// toggles, instance counts and checked keys that decode back to items.
func Encode(items Items) Selection {
	sel := Selection{Checked: []string{}}
	for _, cat := range menu.Categories() {
		tokens := items.Tokens(cat)
		if !cat.MultiInstance() {
			for i, tok := range tokens {
				sel.Checked = append(sel.Checked, SelectionKey{Extra: tok, Category: cat, Index: i}.String())
			}
			sel.want(cat, len(tokens) > 0, 0)
			continue
		}
		idx := -1
		for _, tok := range tokens {
			if cat.IsMarker(tok) {
				idx++
				continue
			}
			sel.Checked = append(sel.Checked, SelectionKey{Extra: tok, Category: cat, Index: max(idx, 0)}.String())
		}
		sel.want(cat, idx >= 0, idx+1)
	}
	return sel
}

// Group is one displayable instance.
type Group struct {
	Label  string   `json:"label"`
	Extras []string `json:"extras"`
}

// Summary lists the extras, or "Plain" when there are none.
func (g Group) Summary() string {
	if len(g.Extras) == 0 {
		return "Plain"
	}
	return strings.Join(g.Extras, ", ")
}

// Groups splits a category's tokens into display groups, one per instance.
// An empty list yields no groups.
func Groups(cat menu.Category, tokens []string) []Group {
	if len(tokens) == 0 {
		return nil
	}
	if !cat.MultiInstance() {
		groups := make([]Group, len(tokens))
		for i, tok := range tokens {
			groups[i] = Group{Label: cat.Label, Extras: []string{tok}}
		}
		return groups
	}

	var groups []Group
	current := []string{}
	started := false
	flush := func() {
		groups = append(groups, Group{
			Label:  fmt.Sprintf("%s #%d", cat.Label, len(groups)+1),
			Extras: current,
		})
		current = []string{}
	}
	for _, tok := range tokens {
		if cat.IsMarker(tok) {
			if started || len(current) > 0 {
				flush()
			}
			started = true
			continue
		}
		current = append(current, tok)
	}
	flush()
	return groups
}
