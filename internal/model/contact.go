package model

// ContactProfile holds verified contact details extracted from a site.
type ContactProfile struct {
	Emails []string            `json:"emails,omitempty"`
	Phones []string            `json:"phones,omitempty"`
	Social map[string][]string `json:"social,omitempty"`
}

// Empty reports whether no contact details were found at all.
func (c ContactProfile) Empty() bool {
	return len(c.Emails) == 0 && len(c.Phones) == 0 && len(c.Social) == 0
}
