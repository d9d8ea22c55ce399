// ABOUTME: Built-in meal categories and seed food items.
// ABOUTME: Every call returns a fresh copy.

package foodlog

// DefaultCategories returns the built-in categories and seed items. Every call
// returns a fresh copy that callers may modify.
func DefaultCategories() []MealCategory {
	return []MealCategory{
		{
			Type:  Breakfast,
			Label: "BREAKFAST",
			Items: seedItems(
				"b1", "Tea & Khakra (No Sugar)", "☕",
				"b2", "Oats with Nuts", "🥣",
				"b3", "5 Almonds", "🥜",
				"b4", "5 Walnuts", "🥜",
			),
		},
		{
			Type:  Snack,
			Label: "SNACKS",
			Items: seedItems(
				"s1", "Siggi's Chas (Buttermilk)", "🥛",
				"s2", "Fresh Apple / Pear", "🍎",
				"s3", "Smoothie (Siggi's + Flax)", "🥤",
				"s4", "Roasted Makhana", "🍿",
				"s5", "Roasted Chana (1/4 cup)", "🥜",
				"s6", "Sprouted Moong Salad", "🥗",
				"s7", "Mixed Nuts (Almonds/Walnuts)", "🥜",
			),
		},
		{
			Type:  Lunch,
			Label: "LUNCH",
			Items: seedItems(
				"l1", "TJ / Costco Salad", "🥗",
				"l2", "Sprouted Moong Salad", "🥗",
				"l3", "Grilled Tofu Bowl", "🍲",
				"l4", "Chickpea (Chole) Salad", "🥗",
				"l5", "Tofu & Veggie Stir-fry", "🥦",
				"l6", "Mediterranean Bowl", "🥙",
				"l7", "Black-eyed Pea Salad", "🥗",
				"l8", "Quinoa & Veggie Pulao", "🍛",
				"l9", "Lentil Soup & Sprouted Bread", "🥣",
				"l10", "Tofu Bhurji (Turmeric)", "🍳",
			),
		},
		{
			Type:  Dinner,
			Label: "DINNER",
			Items: seedItems(
				"d1", "Bajra Roti, Chana Dal, Bhindi", "🫓",
				"d2", "Bajra Roti, Masoor Dal, Lauki", "🫓",
				"d3", "Bajra Roti, Mixed Sprouts", "🍛",
				"d4", "Bajra Roti, Rajma, Spinach", "🍲",
				"d5", "Bajra Roti, Yellow Moong, Methi", "🍛",
				"d6", "Tofu Steaks & Broccoli", "🥦",
				"d7", "Bajra Roti, Tofu, Bhindi", "🫓",
				"d8", "Moong Dal Cheela (2)", "🥞",
			),
		},
	}
}

// seedItems builds items from flat (id, name, emoji) triples.
func seedItems(fields ...string) []FoodItem {
	items := make([]FoodItem, 0, len(fields)/3)
	for i := 0; i+2 < len(fields); i += 3 {
		items = append(items, FoodItem{
			ID:     fields[i],
			Name:   fields[i+1],
			Emoji:  fields[i+2],
			Origin: OriginSeed,
		})
	}
	return items
}

// normalizeOrigins fills in Origin for categories saved before provenance was
// tracked: ids present in the seed set are seed items, anything else was
// created on this device.
func normalizeOrigins(categories, seed []MealCategory) []MealCategory {
	seedIDs := make(map[string]bool)
	for _, cat := range seed {
		for _, it := range cat.Items {
			seedIDs[it.ID] = true
		}
	}
	for ci := range categories {
		for ii := range categories[ci].Items {
			it := &categories[ci].Items[ii]
			if it.Origin != "" {
				continue
			}
			if seedIDs[it.ID] {
				it.Origin = OriginSeed
			} else {
				it.Origin = OriginLocal
			}
		}
	}
	return categories
}
