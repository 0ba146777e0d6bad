package news

// DefaultRawCategory is the bucket for items whose feed record carries no
// category label.
const DefaultRawCategory = "其他"

// CategoryAll is the filter key that matches every item.
const CategoryAll = "all"

// CategoryOther is the normalized key for unrecognized raw labels.
const CategoryOther = "other"

// CategoryTable maps the raw category labels found in feed records to
// normalized filter keys. It is read-only configuration: build one, hand it
// to the view pipeline, never mutate it afterwards.
type CategoryTable map[string]string

// DefaultCategories returns the mapping used by the production feed.
func DefaultCategories() CategoryTable {
	return CategoryTable{
		"政治":  "politics",
		"经济":  "economy",
		"社会":  "society",
		"军事":  "military",
		"科技":  "tech",
		"体育":  "sports",
		"娱乐":  "entertainment",
		"灾害":  "disaster",
		"国际":  "world",
		"其他":  CategoryOther,
	}
}

// Normalize maps a raw feed label to its filter key. Unlabeled items land
// in the default raw bucket, unknown labels in "other".
func (t CategoryTable) Normalize(raw string) string {
	if raw == "" {
		raw = DefaultRawCategory
	}
	if key, ok := t[raw]; ok {
		return key
	}
	return CategoryOther
}
