package feed

// List is an ordered, id-unique sequence of items.
type List struct {
	items []Item
	index map[string]int
}

// NewList creates an empty list.
func NewList() *List {
	return &List{
		items: make([]Item, 0),
		index: make(map[string]int),
	}
}

// Reset replaces the contents of the list with items, dropping duplicate ids
// (first occurrence wins).
func (l *List) Reset(items []Item) {
	l.items = make([]Item, 0, len(items))
	l.index = make(map[string]int, len(items))
	l.Append(items)
}

// Append adds items whose ids are not already present and returns how many
// were added.
func (l *List) Append(items []Item) int {
	added := 0
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, exists := l.index[item.ID]; exists {
			continue
		}
		l.index[item.ID] = len(l.items)
		l.items = append(l.items, item)
		added++
	}
	return added
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.items)
}

// At returns the item at index i.
func (l *List) At(i int) (Item, bool) {
	if i < 0 || i >= len(l.items) {
		return Item{}, false
	}
	return l.items[i], true
}

// IndexOf returns the position of id, or -1.
func (l *List) IndexOf(id string) int {
	if i, ok := l.index[id]; ok {
		return i
	}
	return -1
}

// Items returns a copy of the list contents.
func (l *List) Items() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}
