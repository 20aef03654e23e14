package models

// Contact is a known recipient from the static directory
type Contact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Country string `json:"country"`
}

// Recipient is who a transfer goes to. It is either a directory contact or an
// ad hoc phone number typed during the conversation.
type Recipient struct {
	ContactID string `json:"contact_id,omitempty"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
	AdHoc     bool   `json:"ad_hoc"`
}

// RecipientFromContact converts a directory entry into a transfer recipient
func RecipientFromContact(c Contact) *Recipient {
	return &Recipient{
		ContactID: c.ID,
		Name:      c.Name,
		Phone:     c.Phone,
		Country:   c.Country,
	}
}

// AdHocRecipient builds a recipient from a bare phone number
func AdHocRecipient(phone string) *Recipient {
	return &Recipient{
		Name:    "Contact " + phone,
		Phone:   phone,
		Country: "International",
		AdHoc:   true,
	}
}
