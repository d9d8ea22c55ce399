// ABOUTME: Merges fetched user food items into the seed categories.
// ABOUTME: Seed items come first; unknown categories are dropped.

package foodlog

// MergeUserItems appends fetched custom items to the seed categories they
// belong to. Seed items keep their order and come first; user items follow in
// fetch order. Rows for unknown categories are dropped. seed is not modified.
func MergeUserItems(seed []MealCategory, rows []UserFoodItemRow) []MealCategory {
	out := cloneCategories(seed)
	index := make(map[MealType]int, len(out))
	for i, cat := range out {
		index[cat.Type] = i
	}
	for _, row := range rows {
		i, ok := index[row.CategoryType]
		if !ok {
			continue
		}
		out[i].Items = append(out[i].Items, row.Item())
	}
	return out
}
