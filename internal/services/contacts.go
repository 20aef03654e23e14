package services

import "github.com/rampa-app/rampa-backend/internal/models"

// ContactDirectory is the fixed list of recipients offered in the menu.
// Menu numbers are positions in this list, so it must not change while the
// process runs.
type ContactDirectory struct {
	contacts []models.Contact
}

// DefaultContacts are the recipients shipped with the service
var DefaultContacts = []models.Contact{
	{ID: "contact_maria", Name: "María González", Phone: "+5215512345678", Country: "Mexico"},
	{ID: "contact_carlos", Name: "Carlos Rodríguez", Phone: "+573001234567", Country: "Colombia"},
	{ID: "contact_ana", Name: "Ana Silva", Phone: "+5511987654321", Country: "Brazil"},
}

// NewContactDirectory copies contacts into a read-only directory
func NewContactDirectory(contacts []models.Contact) *ContactDirectory {
	c := make([]models.Contact, len(contacts))
	copy(c, contacts)
	return &ContactDirectory{contacts: c}
}

// At returns the contact at 1-based menu position n
func (d *ContactDirectory) At(n int) (models.Contact, bool) {
	if n < 1 || n > len(d.contacts) {
		return models.Contact{}, false
	}
	return d.contacts[n-1], true
}

// All returns a copy of every contact in menu order
func (d *ContactDirectory) All() []models.Contact {
	c := make([]models.Contact, len(d.contacts))
	copy(c, d.contacts)
	return c
}
