package model

// LinkCategory classifies a link discovered during a fetch.
type LinkCategory string

const (
	LinkSocial   LinkCategory = "social"
	LinkContact  LinkCategory = "contact"
	LinkInternal LinkCategory = "internal"
	LinkExternal LinkCategory = "external"
	LinkEmail    LinkCategory = "email"
)

// AllLinkCategories returns all defined link categories.
func AllLinkCategories() []LinkCategory {
	return []LinkCategory{
		LinkSocial,
		LinkContact,
		LinkInternal,
		LinkExternal,
		LinkEmail,
	}
}

// Link is one categorized link from a fetched page.
type Link struct {
	HRef     string       `json:"href"`
	Anchor   string       `json:"anchor,omitempty"`
	Category LinkCategory `json:"category"`
}

// LinkIndex maps categories to the links discovered in them. It drives
// augmentation decisions only and is never exposed as insight content.
type LinkIndex map[LinkCategory][]Link

// Add appends a link under its category, skipping exact href duplicates
// within that category.
func (li LinkIndex) Add(l Link) {
	for _, existing := range li[l.Category] {
		if existing.HRef == l.HRef {
			return
		}
	}
	li[l.Category] = append(li[l.Category], l)
}

// Merge adds every link from other into the index.
func (li LinkIndex) Merge(other LinkIndex) {
	for _, links := range other {
		for _, l := range links {
			li.Add(l)
		}
	}
}

// Count returns the total number of links across all categories.
func (li LinkIndex) Count() int {
	n := 0
	for _, links := range li {
		n += len(links)
	}
	return n
}
