package patterns

// groups is a map of slices whose iteration order is the order in which keys
// were first added. Go maps do not keep insertion order, so the key order is
// tracked separately.
type groups[T any] struct {
	order []string
	index map[string]int
	items [][]T
}

func newGroups[T any]() *groups[T] {
	return &groups[T]{index: make(map[string]int)}
}

func (g *groups[T]) add(key string, v T) {
	i, ok := g.index[key]
	if !ok {
		i = len(g.order)
		g.index[key] = i
		g.order = append(g.order, key)
		g.items = append(g.items, nil)
	}
	g.items[i] = append(g.items[i], v)
}

func (g *groups[T]) keys() []string {
	return g.order
}

func (g *groups[T]) each(fn func(key string, items []T)) {
	for i, k := range g.order {
		fn(k, g.items[i])
	}
}
