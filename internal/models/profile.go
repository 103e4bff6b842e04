package models

// UserPreferences are the traveller's personalisation settings.
type UserPreferences struct {
	Interests     []string `json:"interests"`
	Budget        string   `json:"budget"`      // low, medium, high
	TravelsWith   string   `json:"travelsWith"` // Solo, Couple, Family, Friends
	Language      string   `json:"language"`    // en, ar
	Notifications bool     `json:"notifications"`
}

// DefaultPreferences returns the preferences of a fresh install.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		Interests:     []string{},
		Budget:        "medium",
		TravelsWith:   "Solo",
		Language:      "en",
		Notifications: true,
	}
}

// UserProfile holds a user's stored preferences.
type UserProfile struct {
	ID          string          `db:"id" json:"id"`
	Preferences UserPreferences `db:"preferences" json:"preferences"`
	CreatedAt   string          `db:"created_at" json:"created_at"`
	UpdatedAt   string          `db:"updated_at" json:"updated_at"`
	Synced      bool            `db:"synced" json:"-"`
}

// Table returns the table name for UserProfile.
func (UserProfile) Table() string {
	return "user_profiles"
}

// User is the authenticated account.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
